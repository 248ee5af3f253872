// Package base provides BaseAdapter, the lifecycle plumbing every source
// adapter embeds.
//
// # Overview
//
// BaseAdapter provides:
//   - Eager shape validation of the source config
//   - Ordered release hooks so a partially failed Connect is cleaned up
//   - Idempotent Disconnect
//   - Cursor validation against the adapter's family
//   - Optional fetch throttling (rate_limit option)
//   - A component logger
//
// # Usage
//
//	type Source struct {
//	    *base.BaseAdapter
//	    conn *pgx.Conn
//	}
//
//	func (s *Source) Connect(ctx context.Context, cfg *config.SourceConfig) error {
//	    if err := s.Begin(cfg, "query"); err != nil {
//	        return err
//	    }
//	    conn, err := pgx.Connect(ctx, dsn)
//	    if err != nil {
//	        return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "connect failed")
//	    }
//	    s.OnRelease(func(ctx context.Context) error { return conn.Close(ctx) })
//	    s.conn = conn
//	    return s.MarkConnected()
//	}
//
//	func (s *Source) FetchPage(ctx context.Context, c cursor.Cursor) (*core.Page, error) {
//	    if err := s.Guard(ctx, c); err != nil {
//	        return nil, err
//	    }
//	    ...
//	}
//
//	func (s *Source) Disconnect(ctx context.Context) error { return s.Release(ctx) }
package base

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/cursor"
	"github.com/ajitpratap0/nebula-extract/pkg/logger"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

// BaseAdapter implements the parts of core.Adapter that do not depend on the
// backend.
type BaseAdapter struct {
	name    string
	family  core.Family
	version string
	config  *config.SourceConfig
	logger  *zap.Logger
	limiter *rate.Limiter

	mu        sync.Mutex
	connected bool
	released  bool
	releases  []func(ctx context.Context) error
}

// NewBaseAdapter creates a base adapter with the given registry name,
// pagination family and version.
func NewBaseAdapter(name string, family core.Family, version string) *BaseAdapter {
	return &BaseAdapter{
		name:    name,
		family:  family,
		version: version,
		logger:  logger.Get().With(zap.String("connector", name), zap.String("family", string(family))),
	}
}

// Name returns the adapter name
func (b *BaseAdapter) Name() string { return b.name }

// Family returns the pagination family
func (b *BaseAdapter) Family() core.Family { return b.family }

// Version returns the adapter version
func (b *BaseAdapter) Version() string { return b.version }

// GetLogger returns the adapter logger
func (b *BaseAdapter) GetLogger() *zap.Logger { return b.logger }

// SetLogger replaces the adapter logger
func (b *BaseAdapter) SetLogger(l *zap.Logger) {
	b.logger = l.With(zap.String("connector", b.name), zap.String("family", string(b.family)))
}

// Config returns the config passed to Begin
func (b *BaseAdapter) Config() *config.SourceConfig { return b.config }

// Start returns the start-of-sequence cursor of the adapter's family.
func (b *BaseAdapter) Start() cursor.Cursor {
	switch b.family {
	case core.FamilyOffset:
		return cursor.Offset(0)
	case core.FamilyToken, core.FamilyScan:
		return cursor.Token("")
	case core.FamilyRangeKey:
		return cursor.RangeKey("")
	default:
		return cursor.None()
	}
}

// Begin validates cfg, requiring the named options (see
// config.SourceConfig.Require), and prepares the adapter for a new session.
// It performs no I/O.
func (b *BaseAdapter) Begin(cfg *config.SourceConfig, required ...string) error {
	if cfg == nil {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "source config is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Require(required...); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConnection, "adapter is already connected").
			WithDetail("connector", b.name)
	}

	b.config = cfg
	b.released = false
	b.limiter = nil
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return nil
}

// OnRelease registers a release hook for a resource acquired during Connect.
// Hooks run in reverse registration order on Release.
func (b *BaseAdapter) OnRelease(fn func(ctx context.Context) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releases = append(b.releases, fn)
}

// MarkConnected records that Connect completed.
func (b *BaseAdapter) MarkConnected() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	b.logger.Info("source connected", zap.String("version", b.version))
	return nil
}

// Connected reports whether Connect completed and Release has not run.
func (b *BaseAdapter) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Guard checks that the adapter is connected and that c is a usable cursor
// of the family's kind, then waits for the throttle if one is configured.
func (b *BaseAdapter) Guard(ctx context.Context, c cursor.Cursor) error {
	if !b.Connected() {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConnection, "fetch on a disconnected adapter").
			WithDetail("connector", b.name)
	}
	if err := cursor.Expect(c, b.family.CursorKind()); err != nil {
		return err
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeTimeout, "waiting for fetch throttle")
		}
	}
	return nil
}

// RequestContext bounds one backend request by the configured request timeout.
func (b *BaseAdapter) RequestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.config == nil || b.config.Timeouts.Request <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.config.Timeouts.Request)
}

// ConnectContext bounds session establishment by the configured connect timeout.
func (b *BaseAdapter) ConnectContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.config == nil || b.config.Timeouts.Connect <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.config.Timeouts.Connect)
}

// Release runs the registered release hooks once. Later calls return nil.
func (b *BaseAdapter) Release(ctx context.Context) error {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return nil
	}
	b.released = true
	wasConnected := b.connected
	b.connected = false
	hooks := b.releases
	b.releases = nil
	b.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if wasConnected {
		b.logger.Info("source disconnected")
	}
	if len(errs) > 0 {
		return nebulaerrors.Wrap(errors.Join(errs...), nebulaerrors.ErrorTypeConnection, "release failed").
			WithDetail("connector", b.name)
	}
	return nil
}
