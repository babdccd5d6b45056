package invoke

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aponysus/hostcall/policy"
)

func TestSleepWithContext(t *testing.T) {
	if err := sleepWithContext(context.Background(), 0); err != nil {
		t.Fatalf("expected nil for zero duration, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepWithContext(ctx, 10*time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}

	if err := sleepWithContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("unexpected err %v", err)
	}
}

func TestNextBackoff(t *testing.T) {
	cases := []struct {
		current    time.Duration
		multiplier float64
		max        time.Duration
		want       time.Duration
	}{
		{current: time.Second, multiplier: 2, want: 2 * time.Second},
		{current: 4 * time.Second, multiplier: 2, max: 5 * time.Second, want: 5 * time.Second},
		{current: time.Second, multiplier: 1, want: time.Second},
		{current: time.Second, multiplier: -1, want: 0},
	}

	for _, tc := range cases {
		if got := nextBackoff(tc.current, tc.multiplier, tc.max); got != tc.want {
			t.Fatalf("nextBackoff(%v, %v, %v)=%v, want %v", tc.current, tc.multiplier, tc.max, got, tc.want)
		}
	}
}

func TestApplyJitterBounds(t *testing.T) {
	const base = 100 * time.Millisecond

	if got := applyJitter(base, policy.JitterNone); got != base {
		t.Fatalf("none: got %v", got)
	}
	for i := 0; i < 100; i++ {
		if got := applyJitter(base, policy.JitterFull); got < 0 || got > base {
			t.Fatalf("full: got %v, want within [0, %v]", got, base)
		}
		if got := applyJitter(base, policy.JitterEqual); got < base/2 || got > base {
			t.Fatalf("equal: got %v, want within [%v, %v]", got, base/2, base)
		}
	}
}

type hint time.Duration

func (h hint) Error() string { return "slow down" }

func (h hint) RetryAfter() (time.Duration, bool) { return time.Duration(h), h > 0 }

func TestComputeSleep(t *testing.T) {
	pol := policy.RetryPolicy{Jitter: policy.JitterNone, MaxDelay: 10 * time.Second}

	cases := []struct {
		name    string
		backoff time.Duration
		cause   error
		want    time.Duration
	}{
		{name: "plain", backoff: time.Second, want: time.Second},
		{name: "longer_hint_wins", backoff: time.Second, cause: hint(3 * time.Second), want: 3 * time.Second},
		{name: "shorter_hint_ignored", backoff: 4 * time.Second, cause: hint(time.Second), want: 4 * time.Second},
		{name: "wrapped_hint", backoff: time.Second, cause: fmt.Errorf("call: %w", hint(2*time.Second)), want: 2 * time.Second},
		{name: "capped", backoff: time.Second, cause: hint(time.Minute), want: 10 * time.Second},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := computeSleep(tc.backoff, pol, tc.cause); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCapBackoff(t *testing.T) {
	if got := capBackoff(-time.Second, 0); got != 0 {
		t.Fatalf("negative: got %v", got)
	}
	if got := capBackoff(time.Minute, time.Second); got != time.Second {
		t.Fatalf("capped: got %v", got)
	}
	if got := capBackoff(time.Minute, 0); got != time.Minute {
		t.Fatalf("uncapped: got %v", got)
	}
}
