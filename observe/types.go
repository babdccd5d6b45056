// Package observe carries per-call lifecycle callbacks and the structured
// timeline of a host call's attempts.
package observe

import (
	"context"
	"time"

	"github.com/aponysus/hostcall/classify"
	"github.com/aponysus/hostcall/policy"
	"github.com/aponysus/hostcall/result"
)

// AttemptRecord describes a single dispatch to the host.
type AttemptRecord struct {
	// Attempt is 0 for the initial call and n for the nth retry.
	Attempt   int
	StartTime time.Time
	EndTime   time.Time

	Outcome classify.Outcome

	// Envelope is nil when the attempt succeeded.
	Envelope *result.ErrorEnvelope
	Err      error
	TimedOut bool

	Backoff time.Duration // delay waited before this attempt

	BudgetAllowed bool
	BudgetReason  string
}

// Timeline is the structured record of one logical call and all of its attempts.
type Timeline struct {
	Command  string
	PolicyID string
	Start    time.Time
	End      time.Time

	// Attributes holds call-level metadata (policy source, fallbacks, circuit state).
	Attributes map[string]string

	Attempts []AttemptRecord

	// Final is the surfaced error envelope, nil on success.
	Final    *result.ErrorEnvelope
	FinalErr error
}

// Retries is the number of resubmissions the call made.
func (tl Timeline) Retries() int {
	if len(tl.Attempts) == 0 {
		return 0
	}
	return len(tl.Attempts) - 1
}

func (tl Timeline) Duration() time.Duration {
	if tl.End.Before(tl.Start) {
		return 0
	}
	return tl.End.Sub(tl.Start)
}

// Observer receives lifecycle callbacks for a single call.
type Observer interface {
	OnStart(ctx context.Context, command string, pol policy.Policy)
	OnAttempt(ctx context.Context, command string, rec AttemptRecord)
	OnRetry(ctx context.Context, command string, retry int, delay time.Duration)
	OnSuccess(ctx context.Context, command string, tl Timeline)
	OnFailure(ctx context.Context, command string, tl Timeline)
}
