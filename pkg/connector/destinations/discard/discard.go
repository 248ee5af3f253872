// Package discard provides a sink that counts records and drops them.
package discard

import (
	"context"
	"sync/atomic"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/models"
)

// Sink counts what it is handed.
type Sink struct {
	records atomic.Int64
	pages   atomic.Int64
}

// New creates a discard sink.
func New() *Sink {
	return &Sink{}
}

// Factory adapts New to the registry's sink factory signature.
func Factory(config.SinkConfig) (core.BatchSink, error) {
	return New(), nil
}

// Name returns the sink type.
func (s *Sink) Name() string { return "discard" }

// Write implements core.BatchSink.
func (s *Sink) Write(_ context.Context, records []models.Record) error {
	s.pages.Add(1)
	s.records.Add(int64(len(records)))
	return nil
}

// Close implements core.BatchSink.
func (s *Sink) Close(context.Context) error { return nil }

// Records returns the number of records written.
func (s *Sink) Records() int64 { return s.records.Load() }

// Pages returns the number of writes.
func (s *Sink) Pages() int { return int(s.pages.Load()) }
