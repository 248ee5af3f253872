package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-extract/pkg/state"
)

// Status is the terminal status of a run.
type Status string

const (
	// StatusSucceeded means the adapter was driven to exhaustion
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the run ended on a fatal error
	StatusFailed Status = "failed"
)

// Outcome is the result of one run. Run never returns an error; every
// failure is reported here and in the persisted job state.
type Outcome struct {
	JobID  string
	RunID  string
	Source string
	Status Status
	// Processed is the number of records handed to the sink during the run
	Processed int64
	// Pages is the number of pages fetched, including empty ones
	Pages int
	// Cause is the fatal error of a failed run
	Cause error
	// State is the job state persisted at the end of the run, or the state
	// that could not be persisted when PersistErr is set
	State state.JobState
	// PersistErr reports a failure to load or save the job state
	PersistErr error
	Duration   time.Duration
}

// Failed builds the outcome of a run that ended on cause before the
// orchestrator could start it.
func Failed(jobID string, processed int64, cause error) Outcome {
	return Outcome{JobID: jobID, Status: StatusFailed, Processed: processed, Cause: cause}
}

// Succeeded reports whether the run completed.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSucceeded
}

// ErrorType returns the category of the failure cause, or "" on success.
func (o Outcome) ErrorType() nebulaerrors.ErrorType {
	if o.Cause == nil {
		return ""
	}
	if t := nebulaerrors.GetType(o.Cause); t != "" {
		return t
	}
	return nebulaerrors.ErrorTypeInternal
}

// Fields returns the outcome as structured log fields.
func (o Outcome) Fields() []zap.Field {
	fields := []zap.Field{
		zap.String("job_id", o.JobID),
		zap.String("run_id", o.RunID),
		zap.String("source", o.Source),
		zap.String("status", string(o.Status)),
		zap.Int64("processed", o.Processed),
		zap.Int("pages", o.Pages),
		zap.Duration("duration", o.Duration),
		zap.Int64("success_count", o.State.SuccessCount),
		zap.Int64("failure_count", o.State.FailureCount),
	}
	if o.Cause != nil {
		fields = append(fields, zap.Error(o.Cause), zap.String("error_type", string(o.ErrorType())))
	}
	if o.PersistErr != nil {
		fields = append(fields, zap.NamedError("persist_error", o.PersistErr))
	}
	return fields
}
