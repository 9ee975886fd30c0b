package retry

import (
	"fmt"
	"time"
)

// Build validates spec and assembles the policy for its mode. Categories named in the
// include and exclude lists must be defined in tax; a nil tax means DefaultTaxonomy.
// Specs delegating to a named executor cannot be built and are rejected.
func Build(spec PolicySpec, tax *Taxonomy) (Policy, error) {
	if tax == nil {
		tax = defaultTaxonomy
	}
	if spec.Custom() {
		return nil, &ConfigError{Field: "executor", Reason: fmt.Sprintf("spec delegates to executor %q", spec.Executor)}
	}
	if err := validate(spec, tax); err != nil {
		return nil, err
	}
	filter := NewErrorFilter(tax, spec.Include, spec.Exclude)

	switch spec.Mode {
	case ModeMaxAttempts:
		return buildMaxAttempts(spec, filter), nil
	case ModeMaxConsecutiveAttempts:
		return buildMaxConsecutive(spec, filter), nil
	case ModeFixedDelay:
		return buildFixedDelay(spec, filter), nil
	case ModeExponentialBackoff:
		return buildBackoff(spec, filter), nil
	default:
		return nil, &ConfigError{Field: "mode", Reason: fmt.Sprintf("unknown mode %s", spec.Mode)}
	}
}

// MustBuild is like Build but panics on error. Intended for package-level policies.
func MustBuild(spec PolicySpec, tax *Taxonomy) Policy {
	p, err := Build(spec, tax)
	if err != nil {
		panic(err)
	}
	return p
}

func validate(spec PolicySpec, tax *Taxonomy) error {
	if spec.MaxAttempts < 1 {
		return &ConfigError{Field: "max_attempts", Reason: fmt.Sprintf("must be at least 1, got %d", spec.MaxAttempts)}
	}
	delays := []struct {
		field string
		value int64
	}{
		{"fixed_delay", spec.FixedDelay},
		{"min_delay", spec.MinDelay},
		{"max_delay", spec.MaxDelay},
	}
	for _, d := range delays {
		if d.value < Unset {
			return &ConfigError{Field: d.field, Reason: fmt.Sprintf("must be %d (unset) or non-negative, got %d", Unset, d.value)}
		}
	}
	if isSet(spec.MinDelay) && isSet(spec.MaxDelay) && spec.MinDelay > spec.MaxDelay {
		return &ConfigError{
			Field:  "min_delay",
			Reason: fmt.Sprintf("%dms exceeds max_delay %dms", spec.MinDelay, spec.MaxDelay),
		}
	}
	if spec.BackoffFactor > 1 {
		return &ConfigError{Field: "backoff_factor", Reason: fmt.Sprintf("must be within [0, 1], got %g", spec.BackoffFactor)}
	}
	for _, c := range spec.Include {
		if !tax.Defined(c) {
			return &ConfigError{Field: "include", Reason: fmt.Sprintf("undefined category %q", c)}
		}
	}
	for _, c := range spec.Exclude {
		if !tax.Defined(c) {
			return &ConfigError{Field: "exclude", Reason: fmt.Sprintf("undefined category %q", c)}
		}
	}
	return nil
}

func buildMaxAttempts(spec PolicySpec, filter ErrorFilter) *MaxAttemptsPolicy {
	return &MaxAttemptsPolicy{Attempts: spec.MaxAttempts, Errors: filter}
}

func buildMaxConsecutive(spec PolicySpec, filter ErrorFilter) *MaxConsecutivePolicy {
	return &MaxConsecutivePolicy{Attempts: spec.MaxAttempts, Errors: filter}
}

func buildFixedDelay(spec PolicySpec, filter ErrorFilter) *FixedDelayPolicy {
	var interval time.Duration
	if isSet(spec.FixedDelay) {
		interval = millis(spec.FixedDelay)
	}
	return &FixedDelayPolicy{Attempts: spec.MaxAttempts, Interval: interval, Errors: filter}
}

func buildBackoff(spec PolicySpec, filter ErrorFilter) *BackoffPolicy {
	b := Backoff{Base: DefaultBaseDelay}
	if isSet(spec.MinDelay) {
		b.Base = millis(spec.MinDelay)
	}
	if isSet(spec.MaxDelay) {
		b.Max = millis(spec.MaxDelay)
		b.Base = min(b.Base, b.Max)
	}
	// jitter never goes below the first delay
	b.Min = b.Base
	if spec.BackoffFactor > 0 {
		b.Jitter = spec.BackoffFactor
	}
	return &BackoffPolicy{Attempts: spec.MaxAttempts, Backoff: b, Errors: filter}
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
