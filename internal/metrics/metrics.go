// Package metrics exports retry engine activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"streamretry/pkg/retry"
)

const namespace = "streamretry"

// Outcomes used as the "outcome" label of CallsTotal.
const (
	OutcomeSuccess      = "success"
	OutcomeNonRetryable = "non_retryable"
	OutcomeExhausted    = "exhausted"
	OutcomeCanceled     = "canceled"
)

// Metrics implements retry.Observer and records scheduler job runs.
type Metrics struct {
	// CallsTotal counts finished calls by method, mode and outcome
	CallsTotal *prometheus.CounterVec
	// RetriesTotal counts scheduled retries by method, mode and failure category
	RetriesTotal *prometheus.CounterVec
	// Attempts observes the number of invocations per finished call
	Attempts *prometheus.HistogramVec
	// RetryDelay observes the waits before retries
	RetryDelay *prometheus.HistogramVec
	// CallDuration observes the time from the first attempt to the outcome
	CallDuration *prometheus.HistogramVec

	JobsRunning *prometheus.GaugeVec
	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
}

// New registers the retry metrics on reg. A nil reg means prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		CallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Calls run under a retry policy, by outcome",
		}, []string{"method", "mode", "outcome"}),
		RetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retries scheduled after a retryable failure",
		}, []string{"method", "mode", "category"}),
		Attempts: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_attempts",
			Help:      "Invocations per finished call, the first one included",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 13, 21},
		}, []string{"method", "mode"}),
		RetryDelay: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retry_delay_seconds",
			Help:      "Wait before a retry",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"method", "mode"}),
		CallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Time from the first attempt to the outcome of a call",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "mode", "outcome"}),
		JobsRunning: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Scheduled jobs currently running",
		}, []string{"job"}),
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by result",
		}, []string{"job", "result"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job run time",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}
}

// CacheStats reports resolution cache occupancy.
type CacheStats interface {
	Stats() (targets, entries int)
}

// RegisterCache exports the size of c as gauges.
func RegisterCache(reg prometheus.Registerer, c CacheStats) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "resolution_cache_targets",
		Help:      "Targets with cached resolutions",
	}, func() float64 {
		targets, _ := c.Stats()
		return float64(targets)
	})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "resolution_cache_entries",
		Help:      "Cached method resolutions, pass-through included",
	}, func() float64 {
		_, entries := c.Stats()
		return float64(entries)
	})
}

func (m *Metrics) OnSuccess(_ context.Context, ev retry.Event) {
	m.finish(ev, OutcomeSuccess)
}

func (m *Metrics) OnRetry(_ context.Context, ev retry.Event) {
	method, mode := ev.Method.String(), ev.Mode.String()
	m.RetriesTotal.WithLabelValues(method, mode, string(retry.CategoryOf(ev.Err))).Inc()
	m.RetryDelay.WithLabelValues(method, mode).Observe(ev.Delay.Seconds())
}

func (m *Metrics) OnNonRetryable(_ context.Context, ev retry.Event) {
	if errors.Is(ev.Err, context.Canceled) || errors.Is(ev.Err, context.DeadlineExceeded) {
		m.finish(ev, OutcomeCanceled)
		return
	}
	m.finish(ev, OutcomeNonRetryable)
}

func (m *Metrics) OnExhausted(_ context.Context, ev retry.Event) {
	m.finish(ev, OutcomeExhausted)
}

func (m *Metrics) finish(ev retry.Event, outcome string) {
	method, mode := ev.Method.String(), ev.Mode.String()
	m.CallsTotal.WithLabelValues(method, mode, outcome).Inc()
	m.Attempts.WithLabelValues(method, mode).Observe(float64(ev.Attempt))
	m.CallDuration.WithLabelValues(method, mode, outcome).Observe(ev.Elapsed.Seconds())
}

// JobStarted matches scheduler.JobHooks.OnJobStart.
func (m *Metrics) JobStarted(name string) {
	m.JobsRunning.WithLabelValues(name).Inc()
}

// JobFinished matches scheduler.JobHooks.OnJobFinish.
func (m *Metrics) JobFinished(name string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.JobsRunning.WithLabelValues(name).Dec()
	m.JobRuns.WithLabelValues(name, result).Inc()
	m.JobDuration.WithLabelValues(name).Observe(d.Seconds())
}

var _ retry.Observer = (*Metrics)(nil)
