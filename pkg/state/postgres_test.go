package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-extract/pkg/testutil"
)

// Runs only when NEBULA_TEST_POSTGRES_DSN points at a disposable database.
func TestPostgresStoreIntegration(t *testing.T) {
	dsn := testutil.IntegrationEnv(t, "NEBULA_TEST_POSTGRES_DSN")
	ctx := testutil.TestContext(t)

	store, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()

	jobID := "integration-" + t.Name()
	defer store.Delete(ctx, jobID) //nolint:errcheck

	require.NoError(t, store.Set(ctx, jobID, JobState{SuccessCount: 1, ProcessedRecords: 10}))
	got, ok, err := store.Get(ctx, jobID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(10), got.ProcessedRecords)
}

func TestNewPostgresStoreBadDSN(t *testing.T) {
	_, err := NewPostgresStore(context.Background(), "postgres://%zz")
	assert.Error(t, err)
}
