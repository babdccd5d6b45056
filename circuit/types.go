package circuit

import (
	"context"
	"time"
)

// State represents the state of a circuit breaker.
type State int

const (
	StateClosed   State = iota // Calls flow through.
	StateOpen                  // Calls fail fast.
	StateHalfOpen              // A single probe call is let through.
)

const (
	ReasonCircuitOpen               = "circuit_open"
	ReasonCircuitHalfOpenProbeLimit = "circuit_half_open_probe_limit"
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Decision is the result of asking a breaker whether a host call may proceed.
type Decision struct {
	Allowed bool
	State   State
	Reason  string

	// RetryAfter is the remaining cooldown of an open breaker.
	RetryAfter time.Duration
}

// CircuitBreaker gates calls to one host command.
type CircuitBreaker interface {
	Allow(ctx context.Context) Decision
	RecordSuccess(ctx context.Context)
	RecordFailure(ctx context.Context)
	State() State
}
