package classify

import (
	"context"
	"errors"

	"github.com/aponysus/hostcall/result"
)

// Built-in classifier registry names.
const (
	ClassifierExplicit = "explicit"
	ClassifierNever    = "never"
)

// RegisterBuiltins registers core classifiers into reg.
func RegisterBuiltins(reg *Registry) {
	if reg == nil {
		return
	}
	reg.Register(ClassifierExplicit, ExplicitRetry{})
	reg.Register(ClassifierNever, NeverRetry{})
}

// ExplicitRetry retries only when the host marked the error retryable.
// Cancellation aborts immediately; a timeout is retried only if its envelope says so.
type ExplicitRetry struct{}

func (ExplicitRetry) Classify(env *result.ErrorEnvelope, err error) Outcome {
	if env == nil {
		return Outcome{Kind: OutcomeSuccess, Reason: "success"}
	}
	if isCancellation(err) {
		return Outcome{Kind: OutcomeAbort, Reason: "canceled"}
	}
	if env.Retryable {
		return Outcome{Kind: OutcomeRetryable, Reason: "retryable_error"}
	}
	return Outcome{Kind: OutcomeNonRetryable, Reason: "non_retryable_error"}
}

// NeverRetry treats every failure as terminal.
type NeverRetry struct{}

func (NeverRetry) Classify(env *result.ErrorEnvelope, err error) Outcome {
	if env == nil {
		return Outcome{Kind: OutcomeSuccess, Reason: "success"}
	}
	if isCancellation(err) {
		return Outcome{Kind: OutcomeAbort, Reason: "canceled"}
	}
	return Outcome{Kind: OutcomeNonRetryable, Reason: "retry_disabled"}
}

func isCancellation(err error) bool {
	return err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, ErrCanceled))
}
