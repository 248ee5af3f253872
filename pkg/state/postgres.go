package state

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

// PostgresStore persists job states in a shared PostgreSQL table, letting
// several hosts account for the same jobs.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the job_state table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "parse state store dsn")
	}
	poolConfig.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "connect to state store")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "ping state store")
	}
	if _, err := pool.Exec(ctx, jobStateDDL); err != nil {
		pool.Close()
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeState, "create job_state table")
	}
	return &PostgresStore{pool: pool}, nil
}

// Get implements Store.
func (p *PostgresStore) Get(ctx context.Context, jobID string) (JobState, bool, error) {
	if err := validJobID(jobID); err != nil {
		return JobState{}, false, err
	}

	st := JobState{JobID: jobID}
	err := p.pool.QueryRow(ctx,
		`SELECT success_count, failure_count, processed_records FROM job_state WHERE job_id = $1`, jobID).
		Scan(&st.SuccessCount, &st.FailureCount, &st.ProcessedRecords)
	if errors.Is(err, pgx.ErrNoRows) {
		return JobState{}, false, nil
	}
	if err != nil {
		return JobState{}, false, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeState, "read job state").
			WithDetail("job_id", jobID)
	}
	return st, true, nil
}

// Set implements Store.
func (p *PostgresStore) Set(ctx context.Context, jobID string, st JobState) error {
	if err := validJobID(jobID); err != nil {
		return err
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO job_state (job_id, success_count, failure_count, processed_records, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (job_id) DO UPDATE SET
			success_count = EXCLUDED.success_count,
			failure_count = EXCLUDED.failure_count,
			processed_records = EXCLUDED.processed_records,
			updated_at = EXCLUDED.updated_at`,
		jobID, st.SuccessCount, st.FailureCount, st.ProcessedRecords)
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeState, "write job state").
			WithDetail("job_id", jobID)
	}
	return nil
}

// Delete implements Deleter.
func (p *PostgresStore) Delete(ctx context.Context, jobID string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM job_state WHERE job_id = $1`, jobID); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeState, "delete job state").
			WithDetail("job_id", jobID)
	}
	return nil
}

// Close implements Closer.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
