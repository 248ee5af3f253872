// Package pipeline drives one extraction run: it connects a source adapter,
// pages it to exhaustion into a batch sink, disconnects, and records the
// result in the job state store.
//
// # Lifecycle
//
// Every run follows the same sequence:
//   - load the job state (absent state counts as zero)
//   - connect the adapter
//   - fetch pages from the family's start cursor until the returned cursor is
//     exhausted, handing every non-empty page to the sink
//   - disconnect the adapter, exactly once, whatever happened before
//   - persist the updated job state, exactly once
//
// # Basic Usage
//
//	orch := pipeline.NewOrchestrator(logger,
//	    pipeline.WithJobLocks(state.NewJobLocks()),
//	    pipeline.WithMaxPages(100000),
//	)
//	outcome := orch.Run(ctx, adapter, sink, store, "orders-daily", cfg)
//	if !outcome.Succeeded() {
//	    return outcome.Cause
//	}
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/cursor"
	"github.com/ajitpratap0/nebula-extract/pkg/logger"
	"github.com/ajitpratap0/nebula-extract/pkg/metrics"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-extract/pkg/observability"
	"github.com/ajitpratap0/nebula-extract/pkg/state"
)

const (
	defaultDisconnectTimeout = 30 * time.Second
	defaultPersistTimeout    = 30 * time.Second
	defaultProgressInterval  = 10 * time.Second
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics enables or disables the Prometheus collectors. Enabled by default.
func WithMetrics(enabled bool) Option {
	return func(o *Orchestrator) { o.metrics = enabled }
}

// WithTracer sets the tracer used for run, connect, fetch and write spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = tracer }
}

// WithJobLocks serializes runs of the same job from state load to state write.
// Without it, concurrent runs of one job are last-writer-wins.
func WithJobLocks(locks *state.JobLocks) Option {
	return func(o *Orchestrator) { o.locks = locks }
}

// WithEmptyPollInterval sets the pause after an empty page whose cursor is not
// exhausted. Zero, the default, disables the pause.
func WithEmptyPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.emptyPoll = d }
}

// WithMaxPages fails a run that fetches more than n pages. Zero means no limit.
func WithMaxPages(n int) Option {
	return func(o *Orchestrator) { o.maxPages = n }
}

// WithDisconnectTimeout bounds the adapter's Disconnect call.
func WithDisconnectTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.disconnectTimeout = d }
}

// WithProgressInterval sets how often progress is logged during a run.
func WithProgressInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.progressInterval = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRunIDs replaces the run identifier generator.
func WithRunIDs(next func() string) Option {
	return func(o *Orchestrator) { o.newRunID = next }
}

// Orchestrator runs extraction jobs. It holds no per-run state and is safe
// for concurrent use.
type Orchestrator struct {
	logger            *zap.Logger
	tracer            trace.Tracer
	metrics           bool
	locks             *state.JobLocks
	emptyPoll         time.Duration
	maxPages          int
	disconnectTimeout time.Duration
	progressInterval  time.Duration
	now               func() time.Time
	newRunID          func() string
}

// NewOrchestrator creates an orchestrator. A nil logger uses the global one.
func NewOrchestrator(log *zap.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = logger.Get()
	}
	o := &Orchestrator{
		logger:            log.With(zap.String("component", "orchestrator")),
		tracer:            observability.Tracer(),
		metrics:           true,
		disconnectTimeout: defaultDisconnectTimeout,
		progressInterval:  defaultProgressInterval,
		now:               time.Now,
		newRunID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries the per-run bookkeeping.
type run struct {
	jobID     string
	runID     string
	adapter   core.Adapter
	sink      core.BatchSink
	cfg       *config.SourceConfig
	log       *zap.Logger
	collector *metrics.Collector
	progress  *ProgressReporter

	connected bool
	processed int64
	pages     int
}

// Run executes one extraction of adapter into sink and records the result for
// jobID in store. It never returns an error: failures are reported in the
// Outcome, and the adapter is always disconnected exactly once.
//
// Every run that gets past loading the prior state writes a JobState. When
// the job lock cannot be taken or the prior state cannot be read, there is
// no baseline to update, so nothing is written and the Outcome carries the
// error as both Cause and PersistErr.
func (o *Orchestrator) Run(ctx context.Context, adapter core.Adapter, sink core.BatchSink, store state.Store, jobID string, cfg *config.SourceConfig) (out Outcome) {
	started := o.now()
	r := &run{
		jobID:   jobID,
		runID:   o.newRunID(),
		adapter: adapter,
		sink:    sink,
		cfg:     cfg,
	}
	ctx = logger.ContextWithConnector(logger.ContextWithJob(ctx, jobID, r.runID), adapter.Name())
	r.log = logger.FromContext(ctx, o.logger)
	if o.metrics {
		r.collector = metrics.NewCollector(adapter.Name(), sinkName(sink))
	}
	r.progress = NewProgressReporter(r.log, o.now, o.progressInterval)

	ctx, span := observability.StartSpan(ctx, o.tracer, "extract.run",
		attribute.String("job_id", jobID),
		attribute.String("run_id", r.runID),
		attribute.String("source", adapter.Name()),
		attribute.String("family", string(adapter.Family())))

	out = Outcome{JobID: jobID, RunID: r.runID, Source: adapter.Name(), Status: StatusFailed}
	defer func() {
		out.Duration = o.now().Sub(started)
		if r.collector != nil {
			r.collector.ObserveRun(string(out.Status), out.Duration)
		}
		observability.EndSpan(span, out.Cause)
		if out.Succeeded() && out.PersistErr == nil {
			r.log.Info("extraction run finished", out.Fields()...)
		} else {
			r.log.Error("extraction run finished", out.Fields()...)
		}
	}()

	r.log.Info("extraction run started",
		zap.String("family", string(adapter.Family())),
		zap.String("sink", sinkName(sink)))

	// The state read and write happen under the job lock, when configured.
	if o.locks != nil {
		unlock, err := o.locks.Lock(ctx, jobID)
		if err != nil {
			o.disconnect(ctx, r)
			out.Cause = err
			out.PersistErr = err
			return out
		}
		defer unlock()
	}

	prior, found, err := store.Get(ctx, jobID)
	if err != nil {
		// No accounting without a baseline: nothing is written back.
		o.disconnect(ctx, r)
		loadErr := asType(err, nebulaerrors.ErrorTypeState, "load job state")
		out.Cause = loadErr
		out.PersistErr = loadErr
		return out
	}
	if !found {
		prior = state.JobState{JobID: jobID}
	}

	cause := o.extract(ctx, r)
	o.disconnect(ctx, r)

	out.Processed = r.processed
	out.Pages = r.pages
	out.Cause = cause

	var next state.JobState
	switch {
	case cause == nil:
		out.Status = StatusSucceeded
		next = prior.RecordSuccess(r.processed)
	case !r.connected:
		next = prior.RecordConnectFailure()
	default:
		next = prior.RecordFailure(r.processed)
	}
	next.JobID = jobID
	out.State = next

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultPersistTimeout)
	defer cancel()
	if err := store.Set(persistCtx, jobID, next); err != nil {
		out.PersistErr = asType(err, nebulaerrors.ErrorTypeState, "persist job state")
	}
	return out
}

// extract connects and pages the adapter. It returns the fatal error of the
// run, or nil once a page with an exhausted cursor has been sunk.
func (o *Orchestrator) extract(ctx context.Context, r *run) (cause error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("extraction panicked", zap.Any("panic", rec), zap.Stack("stack"))
			cause = nebulaerrors.Newf(nebulaerrors.ErrorTypeInternal, "panic during extraction: %v", rec)
		}
	}()

	if err := o.connect(ctx, r); err != nil {
		return err
	}

	if ra, ok := r.sink.(core.RunAware); ok {
		ra.BeginRun(r.jobID, r.runID)
	}
	if est, ok := r.adapter.(core.Estimator); ok {
		total, ok, err := est.EstimateTotal(ctx)
		switch {
		case err != nil:
			r.log.Debug("record estimate unavailable", zap.Error(err))
		case ok:
			r.progress.SetTotal(total)
			r.log.Info("estimated records", zap.Int64("total", total))
		}
	}

	c := r.adapter.Start()
	for {
		if err := ctx.Err(); err != nil {
			return interrupted(ctx, err, r.pages)
		}
		if o.maxPages > 0 && r.pages >= o.maxPages {
			return nebulaerrors.Newf(nebulaerrors.ErrorTypePagination,
				"source did not exhaust within %d pages", o.maxPages).
				WithDetail("cursor", c.String())
		}

		page, err := o.fetch(ctx, r, c)
		if err != nil {
			return err
		}
		r.pages++

		if n := len(page.Records); n > 0 {
			if err := o.write(ctx, r, page); err != nil {
				return err
			}
			r.processed += int64(n)
		}
		r.progress.Page(len(page.Records))

		if page.Next.Exhausted() {
			return nil
		}
		if len(page.Records) == 0 && o.emptyPoll > 0 {
			if err := sleep(ctx, o.emptyPoll); err != nil {
				return interrupted(ctx, err, r.pages)
			}
		}
		c = page.Next
	}
}

func (o *Orchestrator) connect(ctx context.Context, r *run) error {
	ctx, span := observability.StartSpan(ctx, o.tracer, "extract.connect")
	err := r.adapter.Connect(ctx, r.cfg)
	observability.EndSpan(span, err)
	if err != nil {
		if ctx.Err() != nil {
			return interrupted(ctx, err, 0)
		}
		return asType(err, nebulaerrors.ErrorTypeConnection, "connect source")
	}
	r.connected = true
	if r.collector != nil {
		r.collector.Connected()
	}
	r.log.Debug("source connected")
	return nil
}

func (o *Orchestrator) fetch(ctx context.Context, r *run, c cursor.Cursor) (*core.Page, error) {
	ctx, span := observability.StartSpan(ctx, o.tracer, "extract.fetch",
		attribute.Int("page", r.pages),
		attribute.String("cursor", c.String()))
	start := o.now()
	page, err := r.adapter.FetchPage(ctx, c)
	if err == nil && page == nil {
		err = nebulaerrors.New(nebulaerrors.ErrorTypeInternal, "adapter returned a nil page")
	}
	if err == nil && page.Next.Kind() != c.Kind() {
		err = nebulaerrors.Newf(nebulaerrors.ErrorTypePagination,
			"adapter returned a %s cursor for a %s sequence", page.Next.Kind(), c.Kind())
	}
	observability.EndSpan(span, err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, interrupted(ctx, err, r.pages)
		}
		return nil, asType(err, nebulaerrors.ErrorTypeQuery, "fetch page").
			WithDetail("page", r.pages).
			WithDetail("cursor", c.String())
	}

	if r.collector != nil {
		r.collector.ObserveFetch(o.now().Sub(start), len(page.Records), page.Next.Exhausted())
	}
	r.log.Debug("page fetched",
		zap.Int("page", r.pages),
		zap.Int("records", len(page.Records)),
		zap.Stringer("next", page.Next))
	return page, nil
}

func (o *Orchestrator) write(ctx context.Context, r *run, page *core.Page) error {
	ctx, span := observability.StartSpan(ctx, o.tracer, "extract.write",
		attribute.Int("page", r.pages),
		attribute.Int("records", len(page.Records)))
	start := o.now()
	err := r.sink.Write(ctx, page.Records)
	observability.EndSpan(span, err)
	if err != nil {
		if ctx.Err() != nil {
			return interrupted(ctx, err, r.pages)
		}
		return asType(err, nebulaerrors.ErrorTypeSink, "write page").
			WithDetail("page", r.pages).
			WithDetail("records", len(page.Records))
	}
	if r.collector != nil {
		r.collector.ObserveWrite(o.now().Sub(start), len(page.Records))
	}
	return nil
}

// disconnect releases the adapter on a context detached from the run's
// cancellation. Its error is logged and never changes the outcome.
func (o *Orchestrator) disconnect(ctx context.Context, r *run) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.disconnectTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("disconnect panicked", zap.Any("panic", rec))
		}
	}()

	if err := r.adapter.Disconnect(ctx); err != nil {
		r.log.Warn("disconnect failed", zap.Error(err))
	}
	if r.connected && r.collector != nil {
		r.collector.Disconnected()
	}
}

// asType keeps err's classification when it has one and wraps it as t otherwise.
func asType(err error, t nebulaerrors.ErrorType, msg string) *nebulaerrors.Error {
	var ne *nebulaerrors.Error
	if errors.As(err, &ne) {
		if ne.Type == t {
			return ne
		}
		return nebulaerrors.Wrap(err, ne.Type, msg)
	}
	return nebulaerrors.Wrap(err, t, msg)
}

// interrupted classifies an error raised while ctx was done.
func interrupted(ctx context.Context, err error, pages int) *nebulaerrors.Error {
	t := nebulaerrors.ErrorTypeCanceled
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		t = nebulaerrors.ErrorTypeTimeout
	}
	return nebulaerrors.Wrap(err, t, fmt.Sprintf("run interrupted after %d pages", pages))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sinkName(sink core.BatchSink) string {
	if n, ok := sink.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", sink)
}
