package transport

import (
	"context"
	"time"
)

// Retry defaults.
const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 500 * time.Millisecond
)

// SleepFunc waits for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff configures retries of rate limited calls.
type Backoff struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// Initial is the delay before the first retry. It doubles each retry.
	Initial time.Duration
}

// DefaultBackoff returns 3 retries starting at 500ms.
func DefaultBackoff() Backoff {
	return Backoff{MaxRetries: DefaultMaxRetries, Initial: DefaultInitialBackoff}
}

// Decision is what the retry state machine says to do after an attempt.
type Decision int

const (
	// Done means the attempt succeeded or failed for good.
	Done Decision = iota
	// Wait means sleep for the returned delay and try again.
	Wait
)

// retryState tracks one call's progress through its retries.
type retryState struct {
	policy  Backoff
	attempt int
	delay   time.Duration
}

func newRetryState(policy Backoff) *retryState {
	if policy.Initial <= 0 {
		policy.Initial = DefaultInitialBackoff
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &retryState{policy: policy, delay: policy.Initial}
}

// next records the outcome of an attempt and decides what follows. Only
// rate limited failures are retried.
func (s *retryState) next(err error) (Decision, time.Duration) {
	s.attempt++
	if err == nil {
		return Done, 0
	}
	f, ok := AsFailure(err)
	if !ok || !f.retryable() || s.attempt > s.policy.MaxRetries {
		return Done, 0
	}
	d := s.delay
	s.delay *= 2
	return Wait, d
}

// attempts returns how many attempts have been recorded.
func (s *retryState) attempts() int {
	return s.attempt
}
