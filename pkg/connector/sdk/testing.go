// Package sdk provides test doubles and a contract test suite for source
// adapters and batch sinks.
package sdk

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/cursor"
	"github.com/ajitpratap0/nebula-extract/pkg/models"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

// TestSuite checks that an adapter honours the cursor protocol.
type TestSuite struct {
	t        *testing.T
	logger   *zap.Logger
	timeout  time.Duration
	maxPages int
}

// NewTestSuite creates a new test suite
func NewTestSuite(t *testing.T) *TestSuite {
	return &TestSuite{
		t:        t,
		logger:   zaptest.NewLogger(t),
		timeout:  30 * time.Second,
		maxPages: 10000,
	}
}

// WithTimeout sets the test timeout
func (ts *TestSuite) WithTimeout(timeout time.Duration) *TestSuite {
	ts.timeout = timeout
	return ts
}

// WithMaxPages bounds the drain loop so a non-terminating adapter fails
// instead of hanging.
func (ts *TestSuite) WithMaxPages(n int) *TestSuite {
	ts.maxPages = n
	return ts
}

// TestAdapter runs the adapter through a full lifecycle and returns the pages
// it produced:
//   - Disconnect before Connect is a no-op
//   - Connect succeeds
//   - pages are fetched until the cursor is exhausted, each Next carrying the
//     family's cursor kind
//   - fetching with the exhausted cursor is a pagination error
//   - Disconnect succeeds and is idempotent
func (ts *TestSuite) TestAdapter(adapter core.Adapter, cfg *config.SourceConfig) [][]models.Record {
	ctx, cancel := context.WithTimeout(context.Background(), ts.timeout)
	defer cancel()

	var pages [][]models.Record

	ts.t.Run("DisconnectBeforeConnect", func(t *testing.T) {
		if err := adapter.Disconnect(ctx); err != nil {
			t.Fatalf("Disconnect before Connect failed: %v", err)
		}
	})

	connected := ts.t.Run("Connect", func(t *testing.T) {
		if err := adapter.Connect(ctx, cfg); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
	})
	if !connected {
		_ = adapter.Disconnect(ctx)
		return nil
	}

	var last cursor.Cursor
	ts.t.Run("DrainToExhaustion", func(t *testing.T) {
		c := adapter.Start()
		if c.Exhausted() {
			t.Fatalf("start cursor is exhausted")
		}
		wantKind := adapter.Family().CursorKind()
		for i := 0; ; i++ {
			if i >= ts.maxPages {
				t.Fatalf("adapter did not exhaust within %d pages", ts.maxPages)
			}
			page, err := adapter.FetchPage(ctx, c)
			if err != nil {
				t.Fatalf("FetchPage %d failed: %v", i, err)
			}
			if page == nil {
				t.Fatalf("FetchPage %d returned a nil page", i)
			}
			if page.Next.Kind() != wantKind {
				t.Fatalf("page %d: next cursor kind %s, want %s", i, page.Next.Kind(), wantKind)
			}
			pages = append(pages, page.Records)
			ts.logger.Debug("page fetched",
				zap.Int("page", i),
				zap.Int("records", len(page.Records)),
				zap.Stringer("next", page.Next))
			c = page.Next
			if c.Exhausted() {
				break
			}
		}
		last = c
	})

	ts.t.Run("FetchAfterExhaustion", func(t *testing.T) {
		if !last.Exhausted() {
			t.Skip("drain did not complete")
		}
		_, err := adapter.FetchPage(ctx, last)
		if !nebulaerrors.IsType(err, nebulaerrors.ErrorTypePagination) {
			t.Fatalf("fetch with exhausted cursor returned %v, want a pagination error", err)
		}
	})

	ts.t.Run("Disconnect", func(t *testing.T) {
		if err := adapter.Disconnect(ctx); err != nil {
			t.Fatalf("Disconnect failed: %v", err)
		}
		if err := adapter.Disconnect(ctx); err != nil {
			t.Fatalf("second Disconnect failed: %v", err)
		}
	})

	return pages
}

// TestRejectsConfig checks that Connect fails on cfg with a config error and
// leaves the adapter safe to disconnect.
func (ts *TestSuite) TestRejectsConfig(adapter core.Adapter, cfg *config.SourceConfig) {
	ts.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), ts.timeout)
	defer cancel()

	err := adapter.Connect(ctx, cfg)
	if !nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConfig) {
		ts.t.Fatalf("Connect returned %v, want a config error", err)
	}
	if err := adapter.Disconnect(ctx); err != nil {
		ts.t.Fatalf("Disconnect after rejected config failed: %v", err)
	}
}
