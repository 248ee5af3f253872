package state

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

const jobStateDDL = `
CREATE TABLE IF NOT EXISTS job_state (
	job_id            TEXT PRIMARY KEY,
	success_count     BIGINT NOT NULL DEFAULT 0,
	failure_count     BIGINT NOT NULL DEFAULT 0,
	processed_records BIGINT NOT NULL DEFAULT 0,
	updated_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteStore persists job states in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// ensures the job_state table exists.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "sqlite state store requires a path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "create state directory").
				WithDetail("path", path)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeState, "open sqlite state store")
	}
	// A single connection serializes writers, which SQLite requires anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, jobStateDDL); err != nil {
		db.Close()
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeState, "create job_state table")
	}
	return &SQLiteStore{db: db}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, jobID string) (JobState, bool, error) {
	if err := validJobID(jobID); err != nil {
		return JobState{}, false, err
	}

	st := JobState{JobID: jobID}
	err := s.db.QueryRowContext(ctx,
		`SELECT success_count, failure_count, processed_records FROM job_state WHERE job_id = ?`, jobID).
		Scan(&st.SuccessCount, &st.FailureCount, &st.ProcessedRecords)
	if errors.Is(err, sql.ErrNoRows) {
		return JobState{}, false, nil
	}
	if err != nil {
		return JobState{}, false, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeState, "read job state").
			WithDetail("job_id", jobID)
	}
	return st, true, nil
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, jobID string, st JobState) error {
	if err := validJobID(jobID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_state (job_id, success_count, failure_count, processed_records, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (job_id) DO UPDATE SET
			success_count = excluded.success_count,
			failure_count = excluded.failure_count,
			processed_records = excluded.processed_records,
			updated_at = excluded.updated_at`,
		jobID, st.SuccessCount, st.FailureCount, st.ProcessedRecords)
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeState, "write job state").
			WithDetail("job_id", jobID)
	}
	return nil
}

// Delete implements Deleter.
func (s *SQLiteStore) Delete(ctx context.Context, jobID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM job_state WHERE job_id = ?`, jobID); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeState, "delete job state").
			WithDetail("job_id", jobID)
	}
	return nil
}

// Close implements Closer.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
