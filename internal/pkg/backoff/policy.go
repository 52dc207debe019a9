// Package backoff provides a bounded exponential retry policy on top of
// cenkalti/backoff.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"

	cbackoff "github.com/cenkalti/backoff/v4"
)

// Policy retries an operation with exponentially growing delays.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int
	// BaseDelay is the wait before the first retry; it doubles each attempt.
	BaseDelay time.Duration
	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration
	// Jitter returns extra wait added to the computed delay. Nil means none.
	Jitter func(base time.Duration) time.Duration
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry, if set, is called before each wait with the attempt that failed.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Default is three attempts with a 10s base delay and uniform jitter of up to one base delay.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Second,
		MaxDelay:    2 * time.Minute,
		Jitter:      UniformJitter,
	}
}

// UniformJitter returns a random duration in [0, base).
func UniformJitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(base)))
}

// Delay returns the wait after the given failed attempt (1-based):
// BaseDelay * 2^(attempt-1) plus jitter, capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay << (attempt - 1)
	if p.Jitter != nil {
		d += p.Jitter(p.BaseDelay)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds, returns an error retryable rejects, or
// MaxAttempts calls have been made. It returns the number of calls made and
// the last error.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, fn func(ctx context.Context) error) (int, error) {
	limit := p.MaxAttempts
	if limit < 1 {
		limit = 1
	}

	attempts := 0
	op := func() error {
		attempts++
		err := fn(ctx)
		if err != nil && !retryable(err) {
			return cbackoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempts, delay, err)
		}
	}

	b := cbackoff.WithContext(cbackoff.WithMaxRetries(&schedule{policy: p}, uint64(limit-1)), ctx)

	var timer cbackoff.Timer
	if p.Sleep != nil {
		timer = &sleepTimer{ctx: ctx, sleep: p.Sleep}
	}
	err := cbackoff.RetryNotifyWithTimer(op, b, notify, timer)
	return attempts, err
}

// schedule adapts Policy.Delay to the cbackoff.BackOff interface.
type schedule struct {
	policy  Policy
	attempt int
}

func (s *schedule) NextBackOff() time.Duration {
	s.attempt++
	return s.policy.Delay(s.attempt)
}

func (s *schedule) Reset() { s.attempt = 0 }

// sleepTimer fires once the injected Sleep returns.
type sleepTimer struct {
	ctx   context.Context
	sleep func(ctx context.Context, d time.Duration) error
	c     chan time.Time
}

func (t *sleepTimer) Start(d time.Duration) {
	t.c = make(chan time.Time, 1)
	if err := t.sleep(t.ctx, d); err != nil && t.ctx.Err() != nil {
		return
	}
	t.c <- time.Now()
}

func (t *sleepTimer) Stop() {}

func (t *sleepTimer) C() <-chan time.Time { return t.c }
