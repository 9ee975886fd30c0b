package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// DefaultBaseDelay is the first backoff delay when no minimum is configured.
const DefaultBaseDelay = 100 * time.Millisecond

// Backoff describes an exponential delay: Base doubled once per retry, never below Min
// and never above Max (Max of zero means uncapped). A positive Jitter spreads each delay
// by up to ±Jitter·delay while keeping the result inside [Min, Max].
type Backoff struct {
	Base   time.Duration
	Min    time.Duration
	Max    time.Duration
	Jitter float64
}

// Next returns the delay before jitter for the given zero-based retry.
func (b Backoff) Next(retry int) time.Duration {
	limit := b.limit()
	if retry < 0 {
		retry = 0
	}
	delay := b.Base
	// Apply the multiplier retry times, stopping at the cap to avoid overflow
	for i := 0; i < retry; i++ {
		if delay > limit/2 {
			delay = limit
			break
		}
		delay *= 2
	}
	return clamp(delay, b.Min, limit)
}

// Bounds returns the inclusive range a jittered delay for retry falls into.
func (b Backoff) Bounds(retry int) (lo, hi time.Duration) {
	next := b.Next(retry)
	if b.Jitter <= 0 {
		return next, next
	}
	offset := time.Duration(float64(next) * b.Jitter)
	if offset < 0 {
		offset = b.limit()
	}
	lo = max(next-offset, b.Min)
	hi = min(next+offset, b.limit())
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Delay returns the jittered delay for the given zero-based retry.
func (b Backoff) Delay(retry int) time.Duration {
	lo, hi := b.Bounds(retry)
	if hi <= lo {
		return lo
	}
	span := int64(hi - lo)
	if span < math.MaxInt64 {
		span++
	}
	return lo + time.Duration(rand.Int64N(span))
}

func (b Backoff) limit() time.Duration {
	if b.Max > 0 {
		return b.Max
	}
	return time.Duration(math.MaxInt64)
}

// clamp keeps value inside [lo, hi].
func clamp(value, lo, hi time.Duration) time.Duration {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
