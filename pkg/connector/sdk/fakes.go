package sdk

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/base"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/cursor"
	"github.com/ajitpratap0/nebula-extract/pkg/models"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-extract/pkg/state"
)

// Step scripts the result of one FetchPage call.
type Step struct {
	Records   []models.Record
	Exhausted bool
	Err       error
	// Panic makes the fetch panic with this value
	Panic interface{}
	// Block makes the fetch wait for context cancellation
	Block bool
}

// ScriptedAdapter is an offset-family adapter that replays a fixed script of
// pages and counts lifecycle calls.
type ScriptedAdapter struct {
	*base.BaseAdapter

	ConnectErr    error
	DisconnectErr error
	Steps         []Step

	connectCalls    atomic.Int32
	fetchCalls      atomic.Int32
	disconnectCalls atomic.Int32
	last            cursor.Cursor
	mu              sync.Mutex
}

// NewScriptedAdapter creates an adapter that yields steps in order.
func NewScriptedAdapter(steps ...Step) *ScriptedAdapter {
	return &ScriptedAdapter{
		BaseAdapter: base.NewBaseAdapter("scripted", core.FamilyOffset, "test"),
		Steps:       steps,
	}
}

// Connect implements core.Adapter.
func (a *ScriptedAdapter) Connect(_ context.Context, cfg *config.SourceConfig) error {
	a.connectCalls.Add(1)
	if err := a.Begin(cfg); err != nil {
		return err
	}
	if a.ConnectErr != nil {
		return a.ConnectErr
	}
	a.OnRelease(func(context.Context) error { return a.DisconnectErr })
	return a.MarkConnected()
}

// FetchPage implements core.Adapter. The offset of the cursor selects the step.
func (a *ScriptedAdapter) FetchPage(ctx context.Context, c cursor.Cursor) (*core.Page, error) {
	a.fetchCalls.Add(1)
	a.mu.Lock()
	a.last = c
	a.mu.Unlock()

	if err := a.Guard(ctx, c); err != nil {
		return nil, err
	}
	offset, _ := c.Offset()
	if offset >= int64(len(a.Steps)) {
		return nil, nebulaerrors.Newf(nebulaerrors.ErrorTypePagination, "script has no step %d", offset)
	}

	step := a.Steps[offset]
	if step.Panic != nil {
		panic(step.Panic)
	}
	if step.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if step.Err != nil {
		return nil, step.Err
	}

	next := cursor.Offset(offset + 1)
	if step.Exhausted {
		next = next.Exhaust()
	}
	return &core.Page{Records: step.Records, Next: next}, nil
}

// Disconnect implements core.Adapter.
func (a *ScriptedAdapter) Disconnect(ctx context.Context) error {
	a.disconnectCalls.Add(1)
	return a.Release(ctx)
}

// ConnectCalls returns how many times Connect was called.
func (a *ScriptedAdapter) ConnectCalls() int { return int(a.connectCalls.Load()) }

// FetchCalls returns how many times FetchPage was called.
func (a *ScriptedAdapter) FetchCalls() int { return int(a.fetchCalls.Load()) }

// DisconnectCalls returns how many times Disconnect was called.
func (a *ScriptedAdapter) DisconnectCalls() int { return int(a.disconnectCalls.Load()) }

// LastCursor returns the cursor of the most recent fetch.
func (a *ScriptedAdapter) LastCursor() cursor.Cursor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// KeyRangeAdapter scans an in-memory sorted key space in batches, bounded by
// the start_key (inclusive) and stop_key (exclusive) of its config. Each
// record is {"key": k}.
type KeyRangeAdapter struct {
	*base.BaseAdapter

	keys      []string
	batchSize int
	stopKey   string
}

// NewKeyRangeAdapter creates a range adapter over keys.
func NewKeyRangeAdapter(keys ...string) *KeyRangeAdapter {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return &KeyRangeAdapter{
		BaseAdapter: base.NewBaseAdapter("memory-range", core.FamilyRangeKey, "test"),
		keys:        sorted,
	}
}

// Connect implements core.Adapter.
func (a *KeyRangeAdapter) Connect(_ context.Context, cfg *config.SourceConfig) error {
	if err := a.Begin(cfg); err != nil {
		return err
	}
	a.batchSize = cfg.PageLimit()
	a.stopKey = cfg.StopKey
	return a.MarkConnected()
}

// FetchPage implements core.Adapter. It reads one key past the batch to
// learn whether the range continues, so the last page is flagged exhausted
// without an extra empty fetch.
func (a *KeyRangeAdapter) FetchPage(ctx context.Context, c cursor.Cursor) (*core.Page, error) {
	if err := a.Guard(ctx, c); err != nil {
		return nil, err
	}
	last, _ := c.Key()

	var window []string
	for _, k := range a.keys {
		if last == "" {
			if k < a.Config().StartKey {
				continue
			}
		} else if k <= last {
			continue
		}
		if a.stopKey != "" && strings.Compare(k, a.stopKey) >= 0 {
			break
		}
		window = append(window, k)
		if len(window) > a.batchSize {
			break
		}
	}

	more := len(window) > a.batchSize
	if more {
		window = window[:a.batchSize]
	}

	records := make([]models.Record, len(window))
	for i, k := range window {
		records[i] = models.Record{"key": k}
	}

	next := c
	if len(window) > 0 {
		next = cursor.RangeKey(window[len(window)-1])
	}
	if !more {
		next = next.Exhaust()
	}
	return &core.Page{Records: records, Next: next}, nil
}

// Disconnect implements core.Adapter.
func (a *KeyRangeAdapter) Disconnect(ctx context.Context) error {
	return a.Release(ctx)
}

// RecordingSink keeps every page it is handed.
type RecordingSink struct {
	mu sync.Mutex

	// FailAt makes the Nth write (1-based) fail; zero never fails
	FailAt int
	// PanicAt makes the Nth write (1-based) panic; zero never panics
	PanicAt int

	pages  [][]models.Record
	writes int
	jobID  string
	runID  string
	closed bool
}

// NewRecordingSink creates an empty recording sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// BeginRun implements core.RunAware.
func (s *RecordingSink) BeginRun(jobID, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobID, s.runID = jobID, runID
}

// Write implements core.BatchSink.
func (s *RecordingSink) Write(_ context.Context, records []models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.PanicAt == s.writes {
		panic("sink exploded")
	}
	if s.FailAt == s.writes {
		return nebulaerrors.New(nebulaerrors.ErrorTypeSink, "scripted sink failure")
	}
	page := make([]models.Record, len(records))
	copy(page, records)
	s.pages = append(s.pages, page)
	return nil
}

// Close implements core.BatchSink.
func (s *RecordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Pages returns the stored pages in write order.
func (s *RecordingSink) Pages() [][]models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]models.Record(nil), s.pages...)
}

// Records returns every stored record in write order.
func (s *RecordingSink) Records() []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Record
	for _, p := range s.pages {
		out = append(out, p...)
	}
	return out
}

// Run returns the job and run IDs passed to BeginRun.
func (s *RecordingSink) Run() (jobID, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobID, s.runID
}

// Closed reports whether Close was called.
func (s *RecordingSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FailingStore wraps a store and injects errors.
type FailingStore struct {
	state.Store

	GetErr error
	SetErr error

	sets atomic.Int32
}

// NewFailingStore wraps inner.
func NewFailingStore(inner state.Store) *FailingStore {
	return &FailingStore{Store: inner}
}

// Get implements state.Store.
func (f *FailingStore) Get(ctx context.Context, jobID string) (state.JobState, bool, error) {
	if f.GetErr != nil {
		return state.JobState{}, false, f.GetErr
	}
	return f.Store.Get(ctx, jobID)
}

// Set implements state.Store.
func (f *FailingStore) Set(ctx context.Context, jobID string, st state.JobState) error {
	f.sets.Add(1)
	if f.SetErr != nil {
		return f.SetErr
	}
	return f.Store.Set(ctx, jobID, st)
}

// Sets returns how many times Set was called.
func (f *FailingStore) Sets() int { return int(f.sets.Load()) }

// Records builds n records {"id": start..start+n-1}.
func Records(start, n int) []models.Record {
	out := make([]models.Record, n)
	for i := range out {
		out[i] = models.Record{"id": start + i}
	}
	return out
}
