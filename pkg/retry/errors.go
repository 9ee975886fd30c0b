package retry

import (
	"errors"
	"fmt"
	"time"

	"streamretry/internal/shared"
)

// ErrShapeMismatch is returned when an invocation declared as a Single or Stream
// produces a value of a different shape.
var ErrShapeMismatch = shared.MarkKind(errors.New("retry: result shape does not match declaration"), shared.KindIllegalState)

// ConfigError reports an invalid policy declaration. It is raised while building a
// policy and only affects the call sites using that declaration.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "retry: invalid " + e.Field + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes shared.ErrValidation and the optional cause.
func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{shared.ErrValidation, e.Err}
	}
	return []error{shared.ErrValidation}
}

// ExhaustedError is returned once a policy stops retrying.
// Attempts counts every invocation, the first one included.
type ExhaustedError struct {
	Last     error
	Attempts int
	Elapsed  time.Duration
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: exhausted after %d attempts (%s): %v", e.Attempts, e.Elapsed, e.Last)
}

// Unwrap returns the most recent failure.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Retries returns the number of attempts beyond the first.
func (e *ExhaustedError) Retries() int {
	if e.Attempts == 0 {
		return 0
	}
	return e.Attempts - 1
}

// LookupError reports a named executor that could not be found.
type LookupError struct {
	Name string
	Err  error
}

func (e *LookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retry: executor %q: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("retry: executor %q not found", e.Name)
}

// Unwrap exposes shared.ErrNotFound and the optional cause.
func (e *LookupError) Unwrap() []error {
	if e.Err != nil {
		return []error{shared.ErrNotFound, e.Err}
	}
	return []error{shared.ErrNotFound}
}

// IsExhausted reports whether err is (or wraps) an ExhaustedError.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}
