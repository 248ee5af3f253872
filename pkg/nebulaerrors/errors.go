// Package nebulaerrors provides structured error handling for the extraction
// engine with error categorization, structured details, and captured stack
// traces.
//
// # Overview
//
// Every failure an adapter, sink, or state store can produce is classified by
// an ErrorType. The orchestrator never propagates these errors to its caller;
// it converts them into a run outcome and a persisted job state. The type is
// what lets callers and dashboards tell a connection failure from a query
// failure from a pagination protocol violation.
//
// # Basic Usage
//
//	if err := conn.Ping(ctx); err != nil {
//	    return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "ping failed").
//	        WithDetail("host", cfg.Host)
//	}
//
//	if c.Exhausted() {
//	    return nebulaerrors.New(nebulaerrors.ErrorTypePagination, "fetch against exhausted cursor")
//	}
//
// # Thread Safety
//
// Error instances are not thread-safe for modification. Add details before
// sharing an error across goroutines.
package nebulaerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error.
type ErrorType string

const (
	// ErrorTypeInternal represents internal errors, including recovered panics
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents resource not found errors
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeTimeout represents deadline exceeded errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeCanceled represents runs cancelled by their caller
	ErrorTypeCanceled ErrorType = "canceled"
	// ErrorTypeConnection represents failures to establish a backend session
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeConfig represents malformed or incomplete configuration
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeQuery represents a backend rejecting or failing a page request
	ErrorTypeQuery ErrorType = "query"
	// ErrorTypePagination represents a cursor protocol contradiction
	ErrorTypePagination ErrorType = "pagination"
	// ErrorTypeSink represents a failure to store a page
	ErrorTypeSink ErrorType = "sink"
	// ErrorTypeState represents a failure to read or write job state
	ErrorTypeState ErrorType = "state"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
)

// Error represents a structured error with context.
//
// Fields:
//   - Type: Categorizes the error
//   - Message: Human-readable error description
//   - Cause: The underlying error that caused this error
//   - Details: Key-value pairs providing additional context
//   - Stack: Call stack at the point of error creation
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Calls can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, capturing the
// call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a format string.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with a type and message. If err is already a
// structured Error its stack trace is preserved. Returns nil if err is nil.
//
// Callers that return the result as a plain error must check err for nil
// first, since a nil *Error stored in an error interface is not nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, errType, fmt.Sprintf(format, args...))
	if len(wrapped.Stack) == 0 {
		wrapped.Stack = captureStack(2)
	}
	return wrapped
}

// IsRetryable reports whether a fresh run could plausibly succeed where this
// one failed. The engine itself never retries within a run; this is for
// schedulers that decide whether to launch another run.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeConnection:
		return true
	default:
		return false
	}
}

// IsType checks if the outermost structured error in the chain has the given type.
func IsType(err error, errType ErrorType) bool {
	return GetType(err) == errType
}

// GetType returns the type of the outermost structured error in the chain,
// or the empty string if err carries no structured error.
func GetType(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Type
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
