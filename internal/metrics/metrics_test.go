package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamretry/pkg/retry"
)

var get = retry.Method{Owner: "store.Reader", Name: "Get", Params: []string{"string"}, Returns: retry.ShapeSingle}

func histogram(t *testing.T, reg *prometheus.Registry, name string) *dto.Histogram {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.NotEmpty(t, mf.GetMetric())
			return mf.GetMetric()[0].GetHistogram()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return nil
}

func TestObserverThroughExecutor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	ex := retry.NewExecutor(retry.MustBuild(retry.DefaultSpec(), nil), retry.WithObserver(m))
	calls := 0
	single := ex.WrapSingle("store.Reader.Get", func(context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, retry.NewFailure(retry.CategoryIO, "connection reset")
		}
		return "ok", nil
	})
	v, err := single.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	mode := retry.ModeMaxAttempts.String()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallsTotal.WithLabelValues("store.Reader.Get()", mode, OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("store.Reader.Get()", mode, string(retry.CategoryIO))))

	h := histogram(t, reg, "streamretry_call_attempts")
	assert.Equal(t, uint64(1), h.GetSampleCount())
	assert.Equal(t, 3.0, h.GetSampleSum())
}

func TestCanceledCallIsCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	spec := retry.DefaultSpec()
	spec.Mode = retry.ModeFixedDelay
	spec.FixedDelay = int64(10 * time.Second / time.Millisecond)
	ex := retry.NewExecutor(retry.MustBuild(spec, nil), retry.WithObserver(m))
	single := ex.WrapSingle("store.Reader.Get", func(context.Context) (any, error) {
		return nil, retry.NewFailure(retry.CategoryIO, "connection reset")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := single.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	mode := retry.ModeFixedDelay.String()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallsTotal.WithLabelValues("store.Reader.Get()", mode, OutcomeCanceled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("store.Reader.Get()", mode, string(retry.CategoryIO))))
	assert.Equal(t, uint64(1), histogram(t, reg, "streamretry_call_attempts").GetSampleCount())
	assert.Equal(t, uint64(1), histogram(t, reg, "streamretry_call_duration_seconds").GetSampleCount())
}

func TestOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	ctx := context.Background()
	mode := retry.ModeFixedDelay

	m.OnExhausted(ctx, retry.Event{Method: get, Mode: mode, Attempt: 4, Err: errors.New("boom")})
	m.OnNonRetryable(ctx, retry.Event{Method: get, Mode: mode, Attempt: 1, Err: errors.New("bad input")})
	m.OnNonRetryable(ctx, retry.Event{Method: get, Mode: mode, Attempt: 2, Err: context.DeadlineExceeded})
	m.OnRetry(ctx, retry.Event{Method: get, Mode: mode, Attempt: 1, Err: errors.New("x"), Delay: 50 * time.Millisecond})

	for _, outcome := range []string{OutcomeExhausted, OutcomeNonRetryable, OutcomeCanceled} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.CallsTotal.WithLabelValues(get.String(), mode.String(), outcome)), outcome)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues(get.String(), mode.String(), string(retry.CategoryError))))

	h := histogram(t, reg, "streamretry_retry_delay_seconds")
	assert.InDelta(t, 0.05, h.GetSampleSum(), 1e-9)
}

func TestJobHooks(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.JobStarted("cache-sweep")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsRunning.WithLabelValues("cache-sweep")))
	m.JobFinished("cache-sweep", time.Millisecond, nil)
	m.JobStarted("cache-sweep")
	m.JobFinished("cache-sweep", time.Millisecond, errors.New("failed"))

	assert.Equal(t, 0.0, testutil.ToFloat64(m.JobsRunning.WithLabelValues("cache-sweep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("cache-sweep", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("cache-sweep", "error")))
}

type stats struct{ targets, entries int }

func (s stats) Stats() (int, int) { return s.targets, s.entries }

func TestRegisterCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterCache(reg, stats{targets: 2, entries: 5})

	n, err := testutil.GatherAndCount(reg, "streamretry_resolution_cache_targets", "streamretry_resolution_cache_entries")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		values[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
	}
	assert.Equal(t, 2.0, values["streamretry_resolution_cache_targets"])
	assert.Equal(t, 5.0, values["streamretry_resolution_cache_entries"])
}

func TestNewTwiceOnOneRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
