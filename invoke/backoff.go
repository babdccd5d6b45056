package invoke

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/aponysus/hostcall/policy"
)

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func nextBackoff(current time.Duration, multiplier float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * multiplier)
	if next < 0 {
		next = 0
	}
	if max > 0 && next > max {
		return max
	}
	return next
}

func applyJitter(backoff time.Duration, kind policy.JitterKind) time.Duration {
	switch kind {
	case policy.JitterNone, "":
		return backoff
	case policy.JitterFull:
		return time.Duration(rand.Float64() * float64(backoff))
	case policy.JitterEqual:
		half := float64(backoff) / 2
		return time.Duration(half + rand.Float64()*half)
	default:
		return backoff
	}
}

// retryAfter is implemented by transport faults that carry a server hint,
// such as an HTTP Retry-After header.
type retryAfter interface {
	RetryAfter() (time.Duration, bool)
}

// computeSleep returns the delay before the next retry. A server hint longer
// than the computed backoff wins; MaxDelay caps both.
func computeSleep(backoff time.Duration, pol policy.RetryPolicy, cause error) time.Duration {
	d := applyJitter(backoff, pol.Jitter)

	var hint retryAfter
	if errors.As(cause, &hint) {
		if h, ok := hint.RetryAfter(); ok && h > d {
			d = h
		}
	}
	return capBackoff(d, pol.MaxDelay)
}

func capBackoff(d, max time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
