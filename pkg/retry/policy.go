package retry

import "time"

// Policy is a resolved, immutable retry policy.
//
// retries is the number of retries already performed for the call and consecutive the
// number performed since the stream last emitted a value. Both count the state before
// the failure being evaluated.
type Policy interface {
	Mode() Mode
	MaxAttempts() int
	Retryable(err error) bool
	Delay(retry int) time.Duration
	ShouldStop(retries, consecutive int) bool
}

// MaxAttemptsPolicy retries immediately until Attempts retries have been made.
type MaxAttemptsPolicy struct {
	Attempts int
	Errors   ErrorFilter
}

func (p *MaxAttemptsPolicy) Mode() Mode                     { return ModeMaxAttempts }
func (p *MaxAttemptsPolicy) MaxAttempts() int               { return p.Attempts }
func (p *MaxAttemptsPolicy) Retryable(err error) bool       { return p.Errors.Test(err) }
func (p *MaxAttemptsPolicy) Delay(int) time.Duration        { return 0 }
func (p *MaxAttemptsPolicy) ShouldStop(retries, _ int) bool { return retries >= p.Attempts }

// MaxConsecutivePolicy retries immediately until Attempts failures happen in a row.
// A value emitted by a stream resets the count.
type MaxConsecutivePolicy struct {
	Attempts int
	Errors   ErrorFilter
}

func (p *MaxConsecutivePolicy) Mode() Mode               { return ModeMaxConsecutiveAttempts }
func (p *MaxConsecutivePolicy) MaxAttempts() int         { return p.Attempts }
func (p *MaxConsecutivePolicy) Retryable(err error) bool { return p.Errors.Test(err) }
func (p *MaxConsecutivePolicy) Delay(int) time.Duration  { return 0 }
func (p *MaxConsecutivePolicy) ShouldStop(_, consecutive int) bool {
	return consecutive >= p.Attempts
}

// FixedDelayPolicy waits Interval between attempts until Attempts retries have been made.
type FixedDelayPolicy struct {
	Attempts int
	Interval time.Duration
	Errors   ErrorFilter
}

func (p *FixedDelayPolicy) Mode() Mode                     { return ModeFixedDelay }
func (p *FixedDelayPolicy) MaxAttempts() int               { return p.Attempts }
func (p *FixedDelayPolicy) Retryable(err error) bool       { return p.Errors.Test(err) }
func (p *FixedDelayPolicy) Delay(int) time.Duration        { return p.Interval }
func (p *FixedDelayPolicy) ShouldStop(retries, _ int) bool { return retries >= p.Attempts }

// BackoffPolicy waits an exponentially growing, optionally jittered delay between
// attempts until Attempts retries have been made. See Backoff for the delay shape.
type BackoffPolicy struct {
	Attempts int
	Backoff  Backoff
	Errors   ErrorFilter
}

func (p *BackoffPolicy) Mode() Mode                     { return ModeExponentialBackoff }
func (p *BackoffPolicy) MaxAttempts() int               { return p.Attempts }
func (p *BackoffPolicy) Retryable(err error) bool       { return p.Errors.Test(err) }
func (p *BackoffPolicy) Delay(retry int) time.Duration  { return p.Backoff.Delay(retry) }
func (p *BackoffPolicy) ShouldStop(retries, _ int) bool { return retries >= p.Attempts }

var (
	_ Policy = (*MaxAttemptsPolicy)(nil)
	_ Policy = (*MaxConsecutivePolicy)(nil)
	_ Policy = (*FixedDelayPolicy)(nil)
	_ Policy = (*BackoffPolicy)(nil)
)
