package sqlutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

func TestSubquery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "plain", query: "SELECT id FROM orders", want: "SELECT * FROM (SELECT id FROM orders) AS nebula_page"},
		{name: "trailing semicolon", query: "SELECT 1;", want: "SELECT * FROM (SELECT 1) AS nebula_page"},
		{name: "whitespace and semicolons", query: "\n  SELECT 1 ; ;\n", want: "SELECT * FROM (SELECT 1) AS nebula_page"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Subquery(tt.query))
		})
	}
}

func TestValidOrderBy(t *testing.T) {
	for _, ok := range []string{"id", "id DESC", "[order].id asc, created_at", "o.created_at, o.id"} {
		assert.True(t, ValidOrderBy(ok), ok)
	}
	for _, bad := range []string{"", "id; DROP TABLE x", "id -- comment", "(SELECT 1)"} {
		assert.False(t, ValidOrderBy(bad), bad)
	}
}

func TestOrderBy(t *testing.T) {
	cfg := config.NewSourceConfig("mysql")
	_, err := OrderBy(cfg)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConfig))

	cfg.Options["order_by"] = " created_at DESC, id "
	orderBy, err := OrderBy(cfg)
	require.NoError(t, err)
	assert.Equal(t, "created_at DESC, id", orderBy)
}

func TestNormalize(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 500, time.FixedZone("CET", 3600))

	assert.Equal(t, "abc", Normalize([]byte("abc")))
	assert.Equal(t, "2024-03-01T11:30:00.0000005Z", Normalize(ts))
	assert.Equal(t, int64(7), Normalize(int64(7)))
	assert.Nil(t, Normalize(nil))
}
