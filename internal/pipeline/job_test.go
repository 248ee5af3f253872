package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/sdk"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-extract/pkg/state"
)

type fakeConnectors struct {
	adapter core.Adapter
	sink    *sdk.RecordingSink
	sinkErr error
}

func (f *fakeConnectors) CreateSource(name string) (core.Adapter, error) {
	if f.adapter == nil || name != f.adapter.Name() {
		return nil, nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "source %s not found", name)
	}
	return f.adapter, nil
}

func (f *fakeConnectors) CreateSink(config.SinkConfig) (core.BatchSink, error) {
	if f.sinkErr != nil {
		return nil, f.sinkErr
	}
	return f.sink, nil
}

func jobConfig(t *testing.T) *config.JobConfig {
	cfg := config.NewJobConfig()
	cfg.JobID = "orders-daily"
	cfg.Source.Type = "scripted"
	cfg.Sink = config.SinkConfig{Type: "file", Path: t.TempDir()}
	cfg.State = config.StateConfig{Type: "file", Path: filepath.Join(t.TempDir(), "state.json")}
	cfg.EmptyPollInterval = 0
	return cfg
}

func TestRunJob(t *testing.T) {
	adapter := sdk.NewScriptedAdapter(
		sdk.Step{Records: sdk.Records(0, 2)},
		sdk.Step{Records: sdk.Records(2, 2), Exhausted: true},
	)
	connectors := &fakeConnectors{adapter: adapter, sink: sdk.NewRecordingSink()}
	runner := NewJobRunner(newTestOrchestrator(t), connectors, zaptest.NewLogger(t))
	cfg := jobConfig(t)

	out, err := runner.RunJob(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, out.Succeeded(), "cause: %v", out.Cause)
	assert.Equal(t, int64(4), out.Processed)
	assert.True(t, connectors.sink.Closed())

	// The state outlives the runner.
	store, err := state.Open(context.Background(), cfg.State)
	require.NoError(t, err)
	st, ok, err := store.Get(context.Background(), "orders-daily")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), st.SuccessCount)
	assert.Equal(t, int64(4), st.ProcessedRecords)
}

func TestRunJobDryRun(t *testing.T) {
	adapter := sdk.NewScriptedAdapter(sdk.Step{Records: sdk.Records(0, 3), Exhausted: true})
	connectors := &fakeConnectors{adapter: adapter, sinkErr: errors.New("must not be called")}
	runner := NewJobRunner(newTestOrchestrator(t), connectors, zaptest.NewLogger(t))
	runner.DryRun = true

	out, err := runner.RunJob(context.Background(), jobConfig(t))
	require.NoError(t, err)
	assert.True(t, out.Succeeded())
	assert.Equal(t, int64(3), out.Processed)
}

func TestRunJobSetupErrors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		runner := NewJobRunner(newTestOrchestrator(t), &fakeConnectors{}, zaptest.NewLogger(t))
		cfg := jobConfig(t)
		cfg.JobID = ""

		_, err := runner.RunJob(context.Background(), cfg)
		assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConfig))
	})

	t.Run("unknown source", func(t *testing.T) {
		runner := NewJobRunner(newTestOrchestrator(t), &fakeConnectors{}, zaptest.NewLogger(t))

		_, err := runner.RunJob(context.Background(), jobConfig(t))
		assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConfig))
	})

	t.Run("state store", func(t *testing.T) {
		adapter := sdk.NewScriptedAdapter()
		sink := sdk.NewRecordingSink()
		runner := NewJobRunner(newTestOrchestrator(t), &fakeConnectors{adapter: adapter, sink: sink}, zaptest.NewLogger(t)).
			WithStoreOpener(func(context.Context, config.StateConfig) (state.Store, error) {
				return nil, errors.New("permission denied")
			})

		_, err := runner.RunJob(context.Background(), jobConfig(t))
		assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeState))
		assert.True(t, sink.Closed())
		assert.Equal(t, 0, adapter.ConnectCalls())
	})
}

func TestRunJobTimeout(t *testing.T) {
	adapter := sdk.NewScriptedAdapter(sdk.Step{Block: true})
	connectors := &fakeConnectors{adapter: adapter, sink: sdk.NewRecordingSink()}
	runner := NewJobRunner(newTestOrchestrator(t), connectors, zaptest.NewLogger(t))
	cfg := jobConfig(t)
	cfg.Timeout = 30 * time.Millisecond

	out, err := runner.RunJob(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, nebulaerrors.ErrorTypeTimeout, out.ErrorType())
	assert.Equal(t, 1, adapter.DisconnectCalls())
}
