// Package state holds the per-job accounting model and the stores that
// persist it.
//
// A JobState is read at the start of a run and written exactly once at its
// end. Stores are last-writer-wins keyed maps: two concurrent runs of the
// same job ID both read the same prior state and the later Set wins. Wrap
// runs with JobLocks when that is not acceptable.
package state

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

// JobState is the accounting record of one job identifier.
type JobState struct {
	JobID string `json:"job_id" yaml:"job_id"`
	// SuccessCount is incremented once per run that completed
	SuccessCount int64 `json:"success_count" yaml:"success_count"`
	// FailureCount is incremented once per run that ended in a fatal error
	FailureCount int64 `json:"failure_count" yaml:"failure_count"`
	// ProcessedRecords is the number of records sunk by the latest run
	ProcessedRecords int64 `json:"processed_records" yaml:"processed_records"`
}

// Runs returns the number of completed runs recorded.
func (s JobState) Runs() int64 {
	return s.SuccessCount + s.FailureCount
}

// RecordSuccess returns the state after a successful run that sunk processed records.
func (s JobState) RecordSuccess(processed int64) JobState {
	s.SuccessCount++
	s.ProcessedRecords = processed
	return s
}

// RecordFailure returns the state after a failed run that sunk processed records.
func (s JobState) RecordFailure(processed int64) JobState {
	s.FailureCount++
	s.ProcessedRecords = processed
	return s
}

// RecordConnectFailure returns the state after a run whose adapter never
// connected. ProcessedRecords keeps its prior value.
func (s JobState) RecordConnectFailure() JobState {
	s.FailureCount++
	return s
}

// Describe renders the state for terminal output.
func Describe(s JobState) string {
	return fmt.Sprintf("job %s: %d runs (%d succeeded, %d failed), last run processed %d records",
		s.JobID, s.Runs(), s.SuccessCount, s.FailureCount, s.ProcessedRecords)
}

// Store is a keyed store of job states.
type Store interface {
	// Get returns the state of jobID and whether it exists.
	Get(ctx context.Context, jobID string) (JobState, bool, error)
	// Set replaces the state of jobID.
	Set(ctx context.Context, jobID string, st JobState) error
}

// Deleter is implemented by stores that can forget a job.
type Deleter interface {
	Delete(ctx context.Context, jobID string) error
}

// Closer is implemented by stores holding a connection or file handle.
type Closer interface {
	Close() error
}

// Open creates the store selected by cfg.
func Open(ctx context.Context, cfg config.StateConfig) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(cfg.Path)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.Path)
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "unknown state store type %q", cfg.Type)
	}
}

// Close closes s if it holds resources.
func Close(s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}

func validJobID(jobID string) error {
	if jobID == "" {
		return nebulaerrors.New(nebulaerrors.ErrorTypeValidation, "job id is required")
	}
	return nil
}
