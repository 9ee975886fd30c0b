package retry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamretry/internal/shared"
	"streamretry/pkg/retry"
)

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		name  string
		spec  retry.PolicySpec
		field string
	}{
		{"zero attempts", specWith(func(s *retry.PolicySpec) { s.MaxAttempts = 0 }), "max_attempts"},
		{"negative attempts", specWith(func(s *retry.PolicySpec) { s.MaxAttempts = -2 }), "max_attempts"},
		{"min above max", specWith(func(s *retry.PolicySpec) {
			s.Mode = retry.ModeExponentialBackoff
			s.MinDelay = 500
			s.MaxDelay = 100
		}), "min_delay"},
		{"delay below sentinel", specWith(func(s *retry.PolicySpec) { s.FixedDelay = -5 }), "fixed_delay"},
		{"jitter above one", specWith(func(s *retry.PolicySpec) {
			s.Mode = retry.ModeExponentialBackoff
			s.BackoffFactor = 1.5
		}), "backoff_factor"},
		{"undefined include", specWith(func(s *retry.PolicySpec) { s.Include = []retry.Category{"nope"} }), "include"},
		{"undefined exclude", specWith(func(s *retry.PolicySpec) { s.Exclude = []retry.Category{"nope"} }), "exclude"},
		{"unknown mode", specWith(func(s *retry.PolicySpec) { s.Mode = retry.Mode(42) }), "mode"},
		{"named executor", specWith(func(s *retry.PolicySpec) { s.Executor = "custom" }), "executor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := retry.Build(tt.spec, nil)
			require.Error(t, err)
			assert.Nil(t, p)

			var cfgErr *retry.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestBuildMinEqualMaxIsValid(t *testing.T) {
	_, err := retry.Build(specWith(func(s *retry.PolicySpec) {
		s.Mode = retry.ModeExponentialBackoff
		s.MinDelay = 200
		s.MaxDelay = 200
	}), nil)
	assert.NoError(t, err)
}

func TestBuildModes(t *testing.T) {
	filter := retry.NewErrorFilter(nil, nil, []retry.Category{retry.CategoryCanceled})

	tests := []struct {
		name string
		spec retry.PolicySpec
		want retry.Policy
	}{
		{
			"max attempts",
			specWith(func(s *retry.PolicySpec) { s.Exclude = []retry.Category{retry.CategoryCanceled} }),
			&retry.MaxAttemptsPolicy{Attempts: 3, Errors: filter},
		},
		{
			"max consecutive",
			specWith(func(s *retry.PolicySpec) {
				s.Mode = retry.ModeMaxConsecutiveAttempts
				s.MaxAttempts = 2
				s.Exclude = []retry.Category{retry.CategoryCanceled}
			}),
			&retry.MaxConsecutivePolicy{Attempts: 2, Errors: filter},
		},
		{
			"fixed delay",
			specWith(func(s *retry.PolicySpec) {
				s.Mode = retry.ModeFixedDelay
				s.FixedDelay = 250
				s.Exclude = []retry.Category{retry.CategoryCanceled}
			}),
			&retry.FixedDelayPolicy{Attempts: 3, Interval: 250 * time.Millisecond, Errors: filter},
		},
		{
			"fixed delay unset",
			specWith(func(s *retry.PolicySpec) {
				s.Mode = retry.ModeFixedDelay
				s.Exclude = []retry.Category{retry.CategoryCanceled}
			}),
			&retry.FixedDelayPolicy{Attempts: 3, Errors: filter},
		},
		{
			"backoff defaults",
			specWith(func(s *retry.PolicySpec) {
				s.Mode = retry.ModeExponentialBackoff
				s.Exclude = []retry.Category{retry.CategoryCanceled}
			}),
			&retry.BackoffPolicy{Attempts: 3, Backoff: retry.Backoff{Base: retry.DefaultBaseDelay, Min: retry.DefaultBaseDelay}, Errors: filter},
		},
		{
			"backoff bounded and jittered",
			specWith(func(s *retry.PolicySpec) {
				s.Mode = retry.ModeExponentialBackoff
				s.MaxAttempts = 5
				s.MinDelay = 50
				s.MaxDelay = 1000
				s.BackoffFactor = 0.5
				s.Exclude = []retry.Category{retry.CategoryCanceled}
			}),
			&retry.BackoffPolicy{
				Attempts: 5,
				Backoff: retry.Backoff{
					Base:   50 * time.Millisecond,
					Min:    50 * time.Millisecond,
					Max:    time.Second,
					Jitter: 0.5,
				},
				Errors: filter,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := retry.Build(tt.spec, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
			assert.Equal(t, tt.spec.Mode, p.Mode())
		})
	}
}

func TestStopConditions(t *testing.T) {
	maxAttempts := mustBuild(specWith(func(s *retry.PolicySpec) { s.MaxAttempts = 2 }))
	assert.False(t, maxAttempts.ShouldStop(0, 0))
	assert.False(t, maxAttempts.ShouldStop(1, 0))
	assert.True(t, maxAttempts.ShouldStop(2, 0))

	consecutive := mustBuild(specWith(func(s *retry.PolicySpec) {
		s.Mode = retry.ModeMaxConsecutiveAttempts
		s.MaxAttempts = 2
	}))
	assert.False(t, consecutive.ShouldStop(10, 1))
	assert.True(t, consecutive.ShouldStop(2, 2))
}

func TestParseMode(t *testing.T) {
	for _, m := range []retry.Mode{
		retry.ModeMaxAttempts, retry.ModeMaxConsecutiveAttempts, retry.ModeFixedDelay, retry.ModeExponentialBackoff,
	} {
		got, err := retry.ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	got, err := retry.ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, retry.ModeMaxAttempts, got)

	_, err = retry.ParseMode("forever")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, retry.ModeExponentialBackoff, retry.ModeFor(true, true, 100))
	assert.Equal(t, retry.ModeMaxConsecutiveAttempts, retry.ModeFor(false, true, 100))
	assert.Equal(t, retry.ModeFixedDelay, retry.ModeFor(false, false, 100))
	assert.Equal(t, retry.ModeMaxAttempts, retry.ModeFor(false, false, retry.Unset))
	assert.Equal(t, retry.ModeMaxAttempts, retry.ModeFor(false, false, 0))
}

func TestBuiltBackoffFloorsJitterAtBase(t *testing.T) {
	p := mustBuild(specWith(func(s *retry.PolicySpec) {
		s.Mode = retry.ModeExponentialBackoff
		s.BackoffFactor = 1
	})).(*retry.BackoffPolicy)
	lo, hi := p.Backoff.Bounds(0)
	assert.Equal(t, retry.DefaultBaseDelay, lo)
	assert.Equal(t, 2*retry.DefaultBaseDelay, hi)
	for i := 0; i < 50; i++ {
		assert.GreaterOrEqual(t, p.Delay(0), retry.DefaultBaseDelay)
	}

	small := mustBuild(specWith(func(s *retry.PolicySpec) {
		s.Mode = retry.ModeExponentialBackoff
		s.MaxDelay = 40
		s.BackoffFactor = 0.5
	})).(*retry.BackoffPolicy)
	assert.Equal(t, retry.Backoff{Base: 40 * time.Millisecond, Min: 40 * time.Millisecond, Max: 40 * time.Millisecond, Jitter: 0.5}, small.Backoff)
	assert.Equal(t, 40*time.Millisecond, small.Delay(3))
}

func TestBackoffNext(t *testing.T) {
	b := retry.Backoff{Base: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, b.Next(0))
	assert.Equal(t, 200*time.Millisecond, b.Next(1))
	assert.Equal(t, 400*time.Millisecond, b.Next(2))
	assert.Equal(t, 100*time.Millisecond, b.Next(-1))

	capped := retry.Backoff{Base: 100 * time.Millisecond, Max: 300 * time.Millisecond}
	assert.Equal(t, 300*time.Millisecond, capped.Next(2))
	assert.Equal(t, 300*time.Millisecond, capped.Next(1000), "large retries saturate at the cap")

	uncapped := retry.Backoff{Base: time.Second}
	assert.Positive(t, uncapped.Next(200), "no overflow without a cap")
}

func TestBackoffJitterBounds(t *testing.T) {
	b := retry.Backoff{Base: 100 * time.Millisecond, Max: time.Second, Jitter: 0.5}
	lo, hi := b.Bounds(0)
	assert.Equal(t, 50*time.Millisecond, lo)
	assert.Equal(t, 150*time.Millisecond, hi)

	lo, hi = b.Bounds(3) // 800ms ± 400ms, capped
	assert.Equal(t, 400*time.Millisecond, lo)
	assert.Equal(t, time.Second, hi)

	floored := retry.Backoff{Base: 100 * time.Millisecond, Min: 100 * time.Millisecond, Jitter: 1}
	lo, hi = floored.Bounds(0)
	assert.Equal(t, 100*time.Millisecond, lo)
	assert.Equal(t, 200*time.Millisecond, hi)

	for retryIdx := 0; retryIdx < 6; retryIdx++ {
		lo, hi := b.Bounds(retryIdx)
		for i := 0; i < 50; i++ {
			d := b.Delay(retryIdx)
			assert.GreaterOrEqual(t, d, lo)
			assert.LessOrEqual(t, d, hi)
		}
	}
}

func TestBackoffWithoutJitterIsDeterministic(t *testing.T) {
	b := retry.Backoff{Base: 10 * time.Millisecond}
	lo, hi := b.Bounds(2)
	assert.Equal(t, lo, hi)
	assert.Equal(t, 40*time.Millisecond, b.Delay(2))
}
