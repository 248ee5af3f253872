package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-extract/pkg/compression"
	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/sdk"
	"github.com/ajitpratap0/nebula-extract/pkg/json"
	"github.com/ajitpratap0/nebula-extract/pkg/models"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

func readPart(t *testing.T, path string, alg compression.Algorithm) []models.Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r, err := compression.NewReader(alg, f)
	require.NoError(t, err)
	defer r.Close()

	records, err := json.ReadRecordsLines(r)
	require.NoError(t, err)
	return records
}

func TestSinkWritesOneFilePerPage(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(config.SinkConfig{Type: "file", Path: dir, Prefix: "out", Compression: "gzip"})
	require.NoError(t, err)
	var _ core.RunAware = sink

	ctx := context.Background()
	sink.BeginRun("orders", "run-1")
	require.NoError(t, sink.Write(ctx, sdk.Records(0, 3)))
	require.NoError(t, sink.Write(ctx, sdk.Records(3, 2)))
	require.NoError(t, sink.Close(ctx))

	runDir := filepath.Join(dir, "out", "orders", "run-1")
	entries, err := os.ReadDir(runDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"part-000000.jsonl.gz", "part-000001.jsonl.gz"}, names)

	assert.Len(t, readPart(t, filepath.Join(runDir, names[0]), compression.Gzip), 3)
	assert.Len(t, readPart(t, filepath.Join(runDir, names[1]), compression.Gzip), 2)
	assert.Equal(t, int64(2), sink.Files())
}

func TestSinkRunsDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(config.SinkConfig{Type: "file", Path: dir})
	require.NoError(t, err)
	ctx := context.Background()

	sink.BeginRun("orders", "run-1")
	require.NoError(t, sink.Write(ctx, sdk.Records(0, 1)))
	sink.BeginRun("orders", "run-2")
	require.NoError(t, sink.Write(ctx, sdk.Records(1, 1)))

	assert.FileExists(t, filepath.Join(dir, "orders", "run-1", "part-000000.jsonl"))
	assert.FileExists(t, filepath.Join(dir, "orders", "run-2", "part-000000.jsonl"))
}

func TestSinkErrors(t *testing.T) {
	_, err := New(config.SinkConfig{Type: "file"})
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConfig))

	_, err = New(config.SinkConfig{Type: "file", Path: t.TempDir(), Compression: "brotli"})
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConfig))

	sink, err := New(config.SinkConfig{Type: "file", Path: t.TempDir()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = sink.Write(ctx, sdk.Records(0, 1))
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeSink))
}
