// Package shared contains the error kinds used across the retry engine.
package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
	"reflect"
)

// Sentinel errors shared by the engine and its adapters.
var (
	// ErrNotFound indicates that a named resource (executor, method, row) does not exist
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates that a declaration or configuration value is invalid
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates that a declaration clashes with an existing one
	ErrConflict = errors.New("conflict")

	// ErrIllegalState indicates that an operation was attempted in the wrong state
	ErrIllegalState = errors.New("illegal state")

	// ErrIllegalArgument indicates that an operation received a bad argument
	ErrIllegalArgument = errors.New("illegal argument")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrDependencyFailure indicates that an external dependency failed
	ErrDependencyFailure = errors.New("dependency failure")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")
)

// Kind is a coarse classification of an error.
type Kind int

const (
	// KindUnknown represents an unclassified error
	KindUnknown Kind = iota
	// KindCanceled represents context cancellation
	KindCanceled
	// KindTimeout represents deadlines and timeouts
	KindTimeout
	// KindNotFound represents missing resources
	KindNotFound
	// KindValidation represents invalid input
	KindValidation
	// KindConflict represents conflicting declarations
	KindConflict
	// KindIllegalState represents operations in the wrong state
	KindIllegalState
	// KindIllegalArgument represents bad arguments
	KindIllegalArgument
	// KindDependencyFailure represents failures of external dependencies
	KindDependencyFailure
	// KindInternal represents internal errors
	KindInternal
)

var kindNames = map[Kind]string{
	KindCanceled:          "Canceled",
	KindTimeout:           "Timeout",
	KindNotFound:          "NotFound",
	KindValidation:        "Validation",
	KindConflict:          "Conflict",
	KindIllegalState:      "IllegalState",
	KindIllegalArgument:   "IllegalArgument",
	KindDependencyFailure: "DependencyFailure",
	KindInternal:          "Internal",
}

// String returns the string representation of the Kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// kindOrder is the deterministic lookup order used by KindOf.
// Canceled and Timeout are checked first because they carry special detection logic.
var kindOrder = []struct {
	kind Kind
	err  error
}{
	{KindCanceled, nil},
	{KindTimeout, ErrTimeout},
	{KindNotFound, ErrNotFound},
	{KindValidation, ErrValidation},
	{KindConflict, ErrConflict},
	{KindIllegalArgument, ErrIllegalArgument},
	{KindIllegalState, ErrIllegalState},
	{KindDependencyFailure, ErrDependencyFailure},
	{KindInternal, ErrInternal},
}

// KindOf returns the Kind of err by checking the error chain against the sentinels.
// For errors.Join values the first kind in lookup order wins.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kindOrder {
		switch k.kind {
		case KindCanceled:
			if IsCanceled(err) {
				return KindCanceled
			}
		case KindTimeout:
			if IsTimeout(err) {
				return KindTimeout
			}
		default:
			if errors.Is(err, k.err) {
				return k.kind
			}
		}
	}
	return KindUnknown
}

// HasKind reports whether KindOf(err) == kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// SentinelOf returns the sentinel error for kind, or nil for KindUnknown and KindCanceled.
func SentinelOf(kind Kind) error {
	for _, k := range kindOrder {
		if k.kind == kind {
			return k.err
		}
	}
	return nil
}

// MarkKind wraps err with the sentinel of kind, keeping err reachable through errors.Is.
// Marking an error that already has the kind returns it unchanged.
func MarkKind(err error, kind Kind) error {
	sentinel := SentinelOf(kind)
	if err == nil {
		return sentinel
	}
	if sentinel == nil || KindOf(err) == kind {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Wrap returns "context: err". It returns nil for a nil err and err for an empty context.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf is Wrap with a formatted context.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// IsCanceled reports whether err is a context cancellation.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout reports whether err is a deadline, ErrTimeout, or a network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsNotFound reports whether err is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// UnwrapAll returns every error in the chain, outermost first, flattening errors.Join.
func UnwrapAll(err error) []error {
	if err == nil {
		return nil
	}
	var out []error
	seen := make(map[error]struct{})
	queue := []error{err}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if reflect.ValueOf(cur).Comparable() {
			if _, ok := seen[cur]; ok {
				continue
			}
			seen[cur] = struct{}{}
		}
		out = append(out, cur)
		switch u := cur.(type) {
		case interface{ Unwrap() []error }:
			queue = append(queue, u.Unwrap()...)
		case interface{ Unwrap() error }:
			if next := u.Unwrap(); next != nil {
				queue = append(queue, next)
			}
		}
	}
	return out
}
