package bigquery

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/sdk"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

type fakeRunner struct {
	rows    []map[string]bigquery.Value
	dryErr  error
	readErr error
	queries []string
	closed  int
}

func (f *fakeRunner) DryRun(_ context.Context, query string) error {
	f.queries = append(f.queries, "dry:"+query)
	return f.dryErr
}

func (f *fakeRunner) Rows(_ context.Context, query string) ([]map[string]bigquery.Value, error) {
	f.queries = append(f.queries, query)
	return f.rows, f.readErr
}

func (f *fakeRunner) Close() error {
	f.closed++
	return nil
}

func sourceWith(r *fakeRunner) *BigQuerySource {
	return NewBigQuerySource().WithRunnerFactory(func(context.Context, *config.SourceConfig) (Runner, error) {
		return r, nil
	})
}

func queryConfig() *config.SourceConfig {
	cfg := config.NewSourceConfig("bigquery")
	cfg.Project = "analytics"
	cfg.Query = "SELECT * FROM `analytics.events`"
	return cfg
}

func TestBigQuerySourceSingleShot(t *testing.T) {
	runner := &fakeRunner{rows: []map[string]bigquery.Value{
		{"id": int64(1), "day": civil.Date{Year: 2024, Month: 2, Day: 29}},
		{"id": int64(2), "at": time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)},
		{"id": int64(3), "amount": big.NewRat(5, 2), "tags": []bigquery.Value{"x"}},
	}}

	pages := sdk.NewTestSuite(t).TestAdapter(sourceWith(runner), queryConfig())

	require.Len(t, pages, 1)
	require.Len(t, pages[0], 3)
	assert.Equal(t, "2024-02-29", pages[0][0]["day"])
	assert.Equal(t, "2024-01-01T08:00:00Z", pages[0][1]["at"])
	assert.Equal(t, "2.500000000", pages[0][2]["amount"])
	assert.Equal(t, []interface{}{"x"}, pages[0][2]["tags"])
	assert.Equal(t, []string{"dry:SELECT * FROM `analytics.events`", "SELECT * FROM `analytics.events`"}, runner.queries)
	assert.Equal(t, 1, runner.closed)
}

func TestBigQuerySourceEmptyResult(t *testing.T) {
	pages := sdk.NewTestSuite(t).TestAdapter(sourceWith(&fakeRunner{}), queryConfig())
	require.Len(t, pages, 1)
	assert.Empty(t, pages[0])
}

func TestBigQuerySourceErrors(t *testing.T) {
	t.Run("missing project", func(t *testing.T) {
		cfg := queryConfig()
		cfg.Project = ""
		sdk.NewTestSuite(t).TestRejectsConfig(sourceWith(&fakeRunner{}), cfg)
	})

	t.Run("dry run fails", func(t *testing.T) {
		runner := &fakeRunner{dryErr: errors.New("googleapi: Error 403: Access Denied")}
		src := sourceWith(runner)
		err := src.Connect(context.Background(), queryConfig())
		assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConnection))
		assert.NoError(t, src.Disconnect(context.Background()))
		assert.Equal(t, 1, runner.closed)
	})

	t.Run("read fails", func(t *testing.T) {
		runner := &fakeRunner{readErr: errors.New("googleapi: Error 400: Syntax error")}
		src := sourceWith(runner)
		ctx := context.Background()
		require.NoError(t, src.Connect(ctx, queryConfig()))
		defer src.Disconnect(ctx) //nolint:errcheck

		_, err := src.FetchPage(ctx, src.Start())
		assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeQuery))
	})
}
