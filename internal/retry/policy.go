// Package retry holds explicit retry policies: how many attempts, how long to
// wait between them, and which failure kinds are worth another attempt.
package retry

import (
	"context"
	"time"

	"github.com/pders01/moji/internal/fault"
)

// Schedule returns the delay before the given retry. attempt is 1-based and
// refers to the attempt that just failed.
type Schedule interface {
	Delay(attempt int) time.Duration
}

// Linear waits Step*attempt.
type Linear struct {
	Step time.Duration
}

func (l Linear) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return l.Step * time.Duration(attempt)
}

// Exponential waits Base*2^(attempt-1), capped at Max when Max > 0.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := e.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if e.Max > 0 && d >= e.Max {
			return e.Max
		}
	}
	return d
}

// None never waits.
type None struct{}

func (None) Delay(int) time.Duration { return 0 }

// Policy is an immutable retry policy.
type Policy struct {
	MaxAttempts int
	Backoff     Schedule
	// Retryable lists the kinds that may be retried. Anything else is terminal.
	Retryable map[fault.Kind]bool
}

// Transient retries only timeouts and connection failures.
func Transient(attempts int, backoff Schedule) Policy {
	return Policy{
		MaxAttempts: attempts,
		Backoff:     backoff,
		Retryable: map[fault.Kind]bool{
			fault.KindNetworkTimeout:    true,
			fault.KindNetworkConnection: true,
		},
	}
}

// Attempts returns the effective attempt budget, at least one.
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// ShouldRetry reports whether a failure of kind on the given 1-based attempt
// warrants another attempt.
func (p Policy) ShouldRetry(kind fault.Kind, attempt int) bool {
	return attempt < p.Attempts() && p.Retryable[kind]
}

// Delay returns the wait after the given failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff.Delay(attempt)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
