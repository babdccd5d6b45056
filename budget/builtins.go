package budget

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/aponysus/hostcall/policy"
)

// Unlimited allows every retry.
type Unlimited struct{}

func (Unlimited) AllowRetry(context.Context, string, int, policy.BudgetRef) Decision {
	return Decision{Allowed: true, Reason: ReasonAllowed}
}

// TokenBucket starts full and refills at a fixed rate. Each retry consumes
// ref.Cost tokens, at least one.
type TokenBucket struct {
	mu sync.Mutex

	capacity        float64
	refillPerSecond float64

	tokens float64
	last   time.Time
	now    func() time.Time
}

func NewTokenBucket(capacity int, refillPerSecond float64) *TokenBucket {
	if capacity < 0 {
		capacity = 0
	}
	if refillPerSecond < 0 || math.IsNaN(refillPerSecond) || math.IsInf(refillPerSecond, 0) {
		refillPerSecond = 0
	}
	return &TokenBucket{
		capacity:        float64(capacity),
		refillPerSecond: refillPerSecond,
		tokens:          float64(capacity),
		last:            time.Now(),
		now:             time.Now,
	}
}

// Tokens returns the tokens currently available, after refill.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

func (b *TokenBucket) AllowRetry(_ context.Context, _ string, _ int, ref policy.BudgetRef) Decision {
	if b == nil {
		return Decision{Allowed: false, Reason: ReasonBudgetNil}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	need := float64(ref.Cost)
	if need < 1 {
		need = 1
	}
	if b.tokens >= need {
		b.tokens -= need
		return Decision{Allowed: true, Reason: ReasonAllowed}
	}
	return Decision{Allowed: false, Reason: ReasonBudgetDenied}
}

func (b *TokenBucket) refillLocked() {
	now := time.Now()
	if b.now != nil {
		now = b.now()
	}
	if math.IsNaN(b.tokens) || math.IsInf(b.tokens, 0) {
		b.tokens = 0
	}

	switch {
	case b.last.IsZero():
		b.tokens = b.capacity
	case b.refillPerSecond > 0 && now.After(b.last):
		added := now.Sub(b.last).Seconds() * b.refillPerSecond
		if math.IsNaN(added) || math.IsInf(added, 0) || added < 0 {
			added = 0
		}
		b.tokens = math.Min(b.capacity, b.tokens+added)
	}
	b.last = now
}
