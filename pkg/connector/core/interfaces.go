// Package core defines the contracts between the extraction orchestrator and
// its collaborators: source adapters and batch sinks.
package core

import (
	"context"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/cursor"
	"github.com/ajitpratap0/nebula-extract/pkg/models"
)

// Family is the pagination idiom an adapter implements.
type Family string

const (
	// FamilyOffset pages with a numeric offset. An empty page is the last.
	// Adapters whose queries honor LIMIT may also end on a short page, which
	// saves the trailing empty query; they still set the exhaustion flag
	// themselves.
	FamilyOffset Family = "offset"
	// FamilyToken pages with a backend-issued continuation token
	FamilyToken Family = "token"
	// FamilyRangeKey scans a key range, resuming after the last key seen
	FamilyRangeKey Family = "range_key"
	// FamilyScan drains a stateful consumer-style scan iterator
	FamilyScan Family = "scan"
	// FamilySingleShot returns the whole result as one page
	FamilySingleShot Family = "single_shot"
)

// CursorKind returns the cursor variant adapters of the family use.
func (f Family) CursorKind() cursor.Kind {
	switch f {
	case FamilyOffset:
		return cursor.KindOffset
	case FamilyToken, FamilyScan:
		return cursor.KindToken
	case FamilyRangeKey:
		return cursor.KindRangeKey
	default:
		return cursor.KindNone
	}
}

// Page is the result of one FetchPage call.
type Page struct {
	// Records in source order
	Records []models.Record
	// Next is the cursor for the following call, exhausted on the last page
	Next cursor.Cursor
}

// Len returns the number of records in the page.
func (p *Page) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Records)
}

// Adapter normalizes one backend's pagination idiom into the cursor protocol.
// An adapter owns at most one live backend connection and is used by exactly
// one run.
type Adapter interface {
	// Name returns the registry name of the adapter
	Name() string

	// Family returns the pagination idiom of the adapter
	Family() Family

	// Connect validates cfg and opens the backend session. Malformed
	// configuration fails before any network activity.
	Connect(ctx context.Context, cfg *config.SourceConfig) error

	// Start returns the start-of-sequence cursor. Valid after Connect.
	Start() cursor.Cursor

	// FetchPage requests the page at c. A page with zero records and a
	// non-exhausted cursor is legal; only Next.Exhausted ends the sequence.
	FetchPage(ctx context.Context, c cursor.Cursor) (*Page, error)

	// Disconnect releases the backend session. It is safe after a failed
	// Connect or FetchPage and returns nil when already released.
	Disconnect(ctx context.Context) error
}

// Estimator is implemented by adapters that can cheaply size their result.
// The estimate is only used for progress reporting.
type Estimator interface {
	EstimateTotal(ctx context.Context) (total int64, ok bool, err error)
}

// BatchSink durably stores one page per Write call. Each call is one
// indivisible output artifact; pages are never merged or split.
type BatchSink interface {
	Write(ctx context.Context, records []models.Record) error
	Close(ctx context.Context) error
}

// RunAware is implemented by sinks that name their artifacts after the run
// producing them. The orchestrator calls BeginRun before the first Write.
type RunAware interface {
	BeginRun(jobID, runID string)
}
