package retry

import (
	"context"
	"log/slog"
	"time"
)

// Event describes one step of a retried call.
type Event struct {
	// CallID is shared by every attempt of one call.
	CallID string
	Method Method
	Mode   Mode
	// Attempt is the number of invocations made so far, the first one included.
	Attempt int
	Err     error
	// Delay is set on OnRetry events only.
	Delay   time.Duration
	Elapsed time.Duration
}

// Observer receives executor events. Every call ends with exactly one of OnSuccess,
// OnNonRetryable or OnExhausted. A canceled call ends with OnNonRetryable carrying
// the context error. Implementations must be safe for concurrent use and must not block.
type Observer interface {
	OnSuccess(ctx context.Context, ev Event)
	OnRetry(ctx context.Context, ev Event)
	OnNonRetryable(ctx context.Context, ev Event)
	OnExhausted(ctx context.Context, ev Event)
}

// NoopObserver ignores every event.
type NoopObserver struct{}

func (NoopObserver) OnSuccess(context.Context, Event)      {}
func (NoopObserver) OnRetry(context.Context, Event)        {}
func (NoopObserver) OnNonRetryable(context.Context, Event) {}
func (NoopObserver) OnExhausted(context.Context, Event)    {}

// Observers fans events out to several observers.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multiObserver []Observer

func (m multiObserver) OnSuccess(ctx context.Context, ev Event) {
	for _, o := range m {
		o.OnSuccess(ctx, ev)
	}
}

func (m multiObserver) OnRetry(ctx context.Context, ev Event) {
	for _, o := range m {
		o.OnRetry(ctx, ev)
	}
}

func (m multiObserver) OnNonRetryable(ctx context.Context, ev Event) {
	for _, o := range m {
		o.OnNonRetryable(ctx, ev)
	}
}

func (m multiObserver) OnExhausted(ctx context.Context, ev Event) {
	for _, o := range m {
		o.OnExhausted(ctx, ev)
	}
}

// LogObserver writes events to a slog.Logger.
type LogObserver struct {
	Log *slog.Logger
}

// NewLogObserver returns a LogObserver; a nil logger means slog.Default.
func NewLogObserver(log *slog.Logger) *LogObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LogObserver{Log: log.With(slog.String("component", "retry"))}
}

func (l *LogObserver) OnSuccess(ctx context.Context, ev Event) {
	if ev.Attempt > 1 {
		l.Log.InfoContext(ctx, "retry succeeded", l.attrs(ev)...)
	}
}

func (l *LogObserver) OnRetry(ctx context.Context, ev Event) {
	l.Log.DebugContext(ctx, "retrying", append(l.attrs(ev), slog.Duration("delay", ev.Delay))...)
}

func (l *LogObserver) OnNonRetryable(ctx context.Context, ev Event) {
	l.Log.DebugContext(ctx, "failure not retryable", l.attrs(ev)...)
}

func (l *LogObserver) OnExhausted(ctx context.Context, ev Event) {
	l.Log.WarnContext(ctx, "retries exhausted", l.attrs(ev)...)
}

func (l *LogObserver) attrs(ev Event) []any {
	attrs := []any{
		slog.String("call_id", ev.CallID),
		slog.String("method", ev.Method.String()),
		slog.String("mode", ev.Mode.String()),
		slog.Int("attempt", ev.Attempt),
		slog.Duration("elapsed", ev.Elapsed),
	}
	if ev.Err != nil {
		attrs = append(attrs, slog.Any("err", ev.Err))
	}
	return attrs
}
