package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/destinations/discard"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/sdk"
	"github.com/ajitpratap0/nebula-extract/pkg/json"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-extract/pkg/state"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterSource("scripted", func() core.Adapter {
		return sdk.NewScriptedAdapter(
			sdk.Step{Records: sdk.Records(0, 2)},
			sdk.Step{Records: sdk.Records(2, 1), Exhausted: true},
		)
	}))
	require.NoError(t, reg.RegisterSource("broken", func() core.Adapter {
		a := sdk.NewScriptedAdapter()
		a.ConnectErr = nebulaerrors.New(nebulaerrors.ErrorTypeConnection, "connection refused")
		return a
	}))
	require.NoError(t, reg.RegisterSink("discard", discard.Factory))
	return reg
}

func execute(t *testing.T, reg *registry.Registry, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(reg)
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append(args, "--log-level", "error"))
	root.SetContext(context.Background())
	err := root.Execute()
	return out.String(), err
}

func writeJob(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestListCommand(t *testing.T) {
	out, err := execute(t, testRegistry(t), "list")
	require.NoError(t, err)

	assert.Contains(t, out, "Available Source Adapters:")
	assert.Contains(t, out, "scripted")
	assert.Contains(t, out, string(core.FamilyOffset))
	assert.Contains(t, out, "Available Sinks:")
	assert.Contains(t, out, "discard")
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	job := writeJob(t, dir, "job.yaml", `
job_id: orders
source:
  type: scripted
  page_size: 2
sink:
  type: discard
state:
  type: file
  path: `+statePath+`
`)

	reg := testRegistry(t)
	for run := 1; run <= 2; run++ {
		out, err := execute(t, reg, "run", "-c", job)
		require.NoError(t, err)

		var res runResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, "orders", res.JobID)
		assert.Equal(t, "succeeded", res.Status)
		assert.Equal(t, int64(3), res.Processed)
		assert.Equal(t, int64(run), res.SuccessCount)
		assert.Empty(t, res.Error)
	}

	out, err := execute(t, reg, "state", "show", "orders", "--state-path", statePath)
	require.NoError(t, err)
	assert.Contains(t, out, "job orders: 2 runs (2 succeeded, 0 failed)")

	_, err = execute(t, reg, "state", "reset", "orders", "--state-path", statePath)
	require.NoError(t, err)

	_, err = execute(t, reg, "state", "show", "orders", "--state-path", statePath)
	require.Error(t, err)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeNotFound))

	store, err := state.NewFileStore(statePath)
	require.NoError(t, err)
	_, ok, err := store.Get(context.Background(), "orders")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunCommandReportsFailedJobs(t *testing.T) {
	dir := t.TempDir()
	good := writeJob(t, dir, "good.yaml", `
job_id: good
source:
  type: scripted
sink:
  type: discard
`)
	bad := writeJob(t, dir, "bad.yaml", `
job_id: bad
source:
  type: broken
sink:
  type: discard
`)

	out, err := execute(t, testRegistry(t), "run", "-c", good, "-c", bad, "--parallel", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 jobs failed")

	lines := bytes.Split(bytes.TrimSpace([]byte(out)), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second runResult
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))

	assert.Equal(t, "good", first.JobID)
	assert.Equal(t, "succeeded", first.Status)

	assert.Equal(t, "bad", second.JobID)
	assert.Equal(t, "failed", second.Status)
	assert.Equal(t, string(nebulaerrors.ErrorTypeConnection), second.ErrorType)
	assert.Equal(t, int64(1), second.FailureCount)
}

func TestRunCommandUnknownSource(t *testing.T) {
	dir := t.TempDir()
	job := writeJob(t, dir, "job.yaml", `
job_id: mystery
source:
  type: nope
sink:
  type: discard
`)

	out, err := execute(t, testRegistry(t), "run", "-c", job)
	require.Error(t, err)

	var res runResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "failed", res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestRunCommandRequiresConfig(t *testing.T) {
	_, err := execute(t, testRegistry(t), "run")
	require.Error(t, err)
}

func TestRunCommandRejectsInvalidJob(t *testing.T) {
	dir := t.TempDir()
	job := writeJob(t, dir, "job.yaml", `
source:
  type: scripted
sink:
  type: discard
`)

	_, err := execute(t, testRegistry(t), "run", "-c", job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job_id is required")
}
