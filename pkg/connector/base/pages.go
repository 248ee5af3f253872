package base

import (
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/cursor"
	"github.com/ajitpratap0/nebula-extract/pkg/models"
)

// OffsetPage builds the page of an offset-family fetch at offset that asked
// for limit rows. A short or empty page ends the sequence.
func OffsetPage(records []models.Record, offset int64, limit int) *core.Page {
	next := cursor.Offset(offset + int64(len(records)))
	if len(records) < limit {
		next = next.Exhaust()
	}
	return &core.Page{Records: records, Next: next}
}

// TokenPage builds the page of a token-family fetch. An empty token ends the
// sequence.
func TokenPage(records []models.Record, token string) *core.Page {
	if token == "" {
		return &core.Page{Records: records, Next: cursor.Token("").Exhaust()}
	}
	return &core.Page{Records: records, Next: cursor.Token(token)}
}

// SingleShotPage builds the only page of a single-shot fetch.
func SingleShotPage(records []models.Record) *core.Page {
	return &core.Page{Records: records, Next: cursor.Done()}
}
