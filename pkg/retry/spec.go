package retry

import (
	"fmt"
	"strings"
)

// Mode selects the policy variant built from a PolicySpec.
type Mode int

const (
	// ModeMaxAttempts retries up to MaxAttempts times without delay
	ModeMaxAttempts Mode = iota
	// ModeMaxConsecutiveAttempts allows MaxAttempts failures in a row; emitted values reset the count
	ModeMaxConsecutiveAttempts
	// ModeFixedDelay retries up to MaxAttempts times with a constant delay
	ModeFixedDelay
	// ModeExponentialBackoff retries up to MaxAttempts times with growing, optionally jittered delays
	ModeExponentialBackoff
)

var modeNames = []string{"max_attempts", "max_consecutive_attempts", "fixed_delay", "exponential_backoff"}

// String returns the snake_case name used in declaration tables.
func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode parses a mode name as produced by Mode.String. An empty string means ModeMaxAttempts.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeMaxAttempts, nil
	}
	for i, name := range modeNames {
		if s == name {
			return Mode(i), nil
		}
	}
	return 0, &ConfigError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", s)}
}

// ModeFor derives a mode from the legacy boolean flags, in order of precedence:
// exponential backoff, consecutive attempts, a positive fixed delay, max attempts.
func ModeFor(exponential, consecutive bool, fixedDelayMillis int64) Mode {
	switch {
	case exponential:
		return ModeExponentialBackoff
	case consecutive:
		return ModeMaxConsecutiveAttempts
	case fixedDelayMillis > 0:
		return ModeFixedDelay
	default:
		return ModeMaxAttempts
	}
}

// Unset marks an optional numeric field as not configured.
const Unset = -1

// DefaultMaxAttempts is the number of retries used when a declaration does not set one.
const DefaultMaxAttempts = 3

// PolicySpec is a declared retry configuration attached to a method or a type.
// Delays are milliseconds. Optional fields hold Unset when not configured; delays of
// zero are treated the same way. When Executor is non-empty every other field is ignored.
type PolicySpec struct {
	Include       []Category
	Exclude       []Category
	MaxAttempts   int
	Mode          Mode
	FixedDelay    int64
	MinDelay      int64
	MaxDelay      int64
	BackoffFactor float64
	Executor      string
}

// DefaultSpec returns a spec with three attempts and every optional field unset.
func DefaultSpec() PolicySpec {
	return PolicySpec{
		MaxAttempts:   DefaultMaxAttempts,
		Mode:          ModeMaxAttempts,
		FixedDelay:    Unset,
		MinDelay:      Unset,
		MaxDelay:      Unset,
		BackoffFactor: Unset,
	}
}

// Custom reports whether the spec delegates to a named executor.
func (s PolicySpec) Custom() bool {
	return s.Executor != ""
}

func isSet(v int64) bool { return v > 0 }
