package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/destinations/discard"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-extract/pkg/state"
)

// Connectors resolves source adapters and sinks by type name.
// *registry.Registry satisfies it.
type Connectors interface {
	CreateSource(name string) (core.Adapter, error)
	CreateSink(cfg config.SinkConfig) (core.BatchSink, error)
}

// StoreOpener opens the state store of a job.
type StoreOpener func(ctx context.Context, cfg config.StateConfig) (state.Store, error)

// JobRunner runs declarative job configurations.
type JobRunner struct {
	orch       *Orchestrator
	connectors Connectors
	openStore  StoreOpener
	locks      *state.JobLocks
	logger     *zap.Logger

	// DryRun replaces the configured sink with one that counts records
	DryRun bool
}

// NewJobRunner creates a runner that resolves connectors through connectors
// and opens state stores with state.Open.
func NewJobRunner(orch *Orchestrator, connectors Connectors, log *zap.Logger) *JobRunner {
	return &JobRunner{
		orch:       orch,
		connectors: connectors,
		openStore:  state.Open,
		locks:      state.NewJobLocks(),
		logger:     log.With(zap.String("component", "job_runner")),
	}
}

// WithStoreOpener replaces state.Open.
func (j *JobRunner) WithStoreOpener(open StoreOpener) *JobRunner {
	j.openStore = open
	return j
}

// RunJob validates cfg, wires its source, sink and state store, and runs it.
// The error is non-nil only when the job could not be set up; run failures
// are reported in the Outcome.
func (j *JobRunner) RunJob(ctx context.Context, cfg *config.JobConfig) (Outcome, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Outcome{JobID: cfg.JobID}, err
	}

	adapter, err := j.connectors.CreateSource(cfg.Source.Type)
	if err != nil {
		return Outcome{JobID: cfg.JobID}, err
	}

	var sink core.BatchSink
	if j.DryRun {
		sink = discard.New()
	} else if sink, err = j.connectors.CreateSink(cfg.Sink); err != nil {
		return Outcome{JobID: cfg.JobID}, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultDisconnectTimeout)
		defer cancel()
		if err := sink.Close(closeCtx); err != nil {
			j.logger.Warn("failed to close sink", zap.String("job_id", cfg.JobID), zap.Error(err))
		}
	}()

	store, err := j.openStore(ctx, cfg.State)
	if err != nil {
		return Outcome{JobID: cfg.JobID}, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeState, "open state store")
	}
	defer func() {
		if err := state.Close(store); err != nil {
			j.logger.Warn("failed to close state store", zap.String("job_id", cfg.JobID), zap.Error(err))
		}
	}()

	runCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	orch := j.orch.with(WithEmptyPollInterval(cfg.EmptyPollInterval))
	if cfg.MaxPages > 0 {
		orch = orch.with(WithMaxPages(cfg.MaxPages))
	}
	if cfg.State.Lock {
		orch = orch.with(WithJobLocks(j.locks))
	}
	out := orch.Run(runCtx, adapter, sink, store, cfg.JobID, &cfg.Source)

	if cs, ok := sink.(*discard.Sink); ok {
		j.logger.Info("dry run finished",
			zap.String("job_id", cfg.JobID),
			zap.Int64("records", cs.Records()),
			zap.Int("pages", cs.Pages()))
	}
	return out, nil
}

// with returns a copy of o with opts applied.
func (o *Orchestrator) with(opts ...Option) *Orchestrator {
	cp := *o
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}
