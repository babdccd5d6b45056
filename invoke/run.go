package invoke

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aponysus/hostcall/budget"
	"github.com/aponysus/hostcall/circuit"
	"github.com/aponysus/hostcall/classify"
	"github.com/aponysus/hostcall/observe"
	"github.com/aponysus/hostcall/policy"
	"github.com/aponysus/hostcall/result"
	"github.com/aponysus/hostcall/wire"
)

// request is one logical call: a command, its merged args and call-level
// policy overrides.
type request struct {
	command   string
	args      map[string]any
	overrides []policy.Option
}

// run executes req until it succeeds, fails terminally or runs out of retries.
// onRetry, when non-nil, is called before every backoff sleep with the 1-based
// retry number.
func run[T any](ctx context.Context, exec *Executor, req request, onRetry func(int, time.Duration)) (result.Result[T], observe.Timeline, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	exec = exec.ready()
	capture, _ := observe.TimelineCaptureFromContext(ctx)

	start := exec.clock()
	pol, attrs := exec.resolvePolicy(ctx, req.command, req.overrides)
	classifier := exec.resolveClassifier(pol, attrs)
	breaker := exec.circuits.Get(req.command, pol.Circuit)

	tl := observe.Timeline{
		Command:    req.command,
		PolicyID:   pol.ID,
		Start:      start,
		Attributes: attrs,
		Attempts:   make([]observe.AttemptRecord, 0, pol.Retry.MaxRetries+1),
	}
	exec.observer.OnStart(ctx, req.command, pol)

	finish := func(r result.Result[T], err error) (result.Result[T], observe.Timeline, error) {
		tl.End = exec.clock()
		if env, failed := r.Err(); failed {
			tl.Final = &env
			tl.FinalErr = err
			exec.observer.OnFailure(ctx, req.command, tl)
		} else {
			exec.observer.OnSuccess(ctx, req.command, tl)
		}
		if capture != nil {
			observe.StoreTimelineCapture(capture, &tl)
		}
		return r, tl, err
	}
	fail := func(env result.ErrorEnvelope, cause error) (result.Result[T], observe.Timeline, error) {
		env = env.WithDefaults()
		return finish(result.Failure[T](env), &Error{Command: req.command, Envelope: env, Cause: cause})
	}

	backoff := pol.Retry.RetryDelay
	var lastDelay time.Duration
	var lastEnv result.ErrorEnvelope
	var lastCause error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fail(classify.Normalize(err), err)
		}

		rec := observe.AttemptRecord{
			Attempt:       attempt,
			Backoff:       lastDelay,
			BudgetAllowed: true,
		}

		var release func()
		if attempt > 0 {
			decision := exec.allowRetry(ctx, req.command, attempt, pol.Retry.Budget)
			if !decision.Allowed {
				tl.Attributes["budget_denied"] = decision.Reason
				return fail(budgetDenied(req.command, decision, lastEnv), errors.Join(ErrBudgetDenied, &lastEnv, lastCause))
			}
			rec.BudgetReason = decision.Reason
			release = decision.Release
		}

		if breaker != nil {
			decision := breaker.Allow(ctx)
			if !decision.Allowed {
				if release != nil {
					release()
				}
				tl.Attributes["circuit_state"] = decision.State.String()
				return fail(circuitOpen(req.command, decision), ErrCircuitOpen)
			}
		}

		rec.StartTime = exec.clock()
		r, cause := attemptOnce[T](ctx, exec, req, pol, attempt)
		rec.EndTime = exec.clock()
		if release != nil {
			release()
		}

		var envPtr *result.ErrorEnvelope
		if env, failed := r.Err(); failed {
			envPtr = &env
		}
		out, panicErr := classifyWithRecovery(exec.recoverPanics, classifier, envPtr, cause, req.command)

		rec.Outcome = out
		rec.Envelope = envPtr
		rec.Err = cause
		rec.TimedOut = errors.Is(cause, classify.ErrTimeout)
		tl.Attempts = append(tl.Attempts, rec)
		exec.observer.OnAttempt(ctx, req.command, rec)

		recordCircuit(ctx, breaker, envPtr, cause, out)

		if panicErr != nil {
			return fail(classify.Normalize(panicErr), panicErr)
		}
		if envPtr == nil {
			return finish(r, nil)
		}
		if out.Kind != classify.OutcomeRetryable || attempt >= pol.Retry.MaxRetries {
			return fail(*envPtr, cause)
		}

		lastEnv, lastCause = *envPtr, cause
		delay := computeSleep(backoff, pol.Retry, cause)
		exec.logger.Printf("hostcall: retry attempt %d for command: %s in %s (%s)", attempt+1, req.command, delay, envPtr.Message)
		if onRetry != nil {
			onRetry(attempt+1, delay)
		}
		exec.observer.OnRetry(ctx, req.command, attempt+1, delay)

		if delay > 0 {
			if err := exec.sleep(ctx, delay); err != nil {
				return fail(classify.Normalize(err), err)
			}
		}
		lastDelay = delay
		backoff = nextBackoff(backoff, pol.Retry.Multiplier, pol.Retry.MaxDelay)
	}
}

// attemptOnce dispatches one attempt and decodes the reply. The returned error is
// the transport-level cause, nil when the host answered with a well-formed reply.
func attemptOnce[T any](ctx context.Context, exec *Executor, req request, pol policy.Policy, attempt int) (result.Result[T], error) {
	attemptCtx := observe.WithAttemptInfo(observe.WithoutTimelineCapture(ctx), observe.AttemptInfo{
		Command:  req.command,
		Attempt:  attempt,
		PolicyID: pol.ID,
	})
	attemptCtx, cancel := context.WithCancel(attemptCtx)
	defer cancel()

	raw, err := exec.dispatch(attemptCtx, req.command, req.args, pol.Timeout)
	if err != nil {
		return result.Failure[T](classify.Normalize(err)), err
	}

	r, err := wire.Decode[T](raw, exec.logger)
	if err != nil {
		return result.Failure[T](classify.Normalize(err)), err
	}
	return r, nil
}

type reply struct {
	raw []byte
	err error
}

// dispatch races the host call against timeout and ctx. The loser's result is
// discarded; the host sees ctx canceled once the attempt returns.
func (e *Executor) dispatch(ctx context.Context, command string, args map[string]any, timeout time.Duration) ([]byte, error) {
	if e.host == nil {
		return nil, ErrNoHost
	}

	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: &PanicError{
					Component: "host",
					Command:   command,
					Value:     r,
					Stack:     debug.Stack(),
				}}
			}
		}()
		raw, err := e.host.Invoke(ctx, command, args)
		done <- reply{raw: raw, err: err}
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case rep := <-done:
		return rep.raw, rep.err
	case <-expired:
		return nil, classify.ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Executor) resolvePolicy(ctx context.Context, command string, overrides []policy.Option) (policy.Policy, map[string]string) {
	attrs := make(map[string]string)

	var pol policy.Policy
	var err error
	func() {
		if e.recoverPanics {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{
						Component: "policy_provider",
						Command:   command,
						Value:     r,
						Stack:     debug.Stack(),
					}
				}
			}()
		}
		pol, err = e.provider.PolicyFor(ctx, command)
	}()

	if err != nil {
		attrs["policy_error"] = err.Error()
	}
	if isZeroPolicy(pol) {
		pol = policy.Default(command)
	}
	pol.Command = command

	if len(overrides) > 0 {
		for _, opt := range overrides {
			if opt != nil {
				opt(&pol)
			}
		}
		pol.Meta.Source = policy.PolicySourceCall
	}

	normalized, normErr := pol.Normalize()
	if normErr != nil {
		attrs["policy_error"] = fmt.Sprintf("normalization_failed: %v", normErr)
		normalized, _ = policy.Default(command).Normalize()
	}
	attrs["policy_source"] = string(normalized.Meta.Source)
	return normalized, attrs
}

func isZeroPolicy(pol policy.Policy) bool {
	return pol.ID == "" &&
		pol.Timeout == 0 &&
		pol.Retry == (policy.RetryPolicy{}) &&
		pol.Circuit == (policy.CircuitPolicy{})
}

func (e *Executor) resolveClassifier(pol policy.Policy, attrs map[string]string) classify.Classifier {
	name := strings.TrimSpace(pol.Retry.Classifier)
	if name == "" {
		return e.defaultClassifier
	}
	if c, ok := e.classifiers.Get(name); ok {
		return c
	}
	attrs["classifier_name"] = name
	attrs["classifier_fallback"] = "default"
	return e.defaultClassifier
}

// allowRetry consults the policy's budget. Calls without a budget always retry;
// a named budget that is not registered denies.
func (e *Executor) allowRetry(ctx context.Context, command string, retry int, ref policy.BudgetRef) (d budget.Decision) {
	if strings.TrimSpace(ref.Name) == "" {
		return budget.Decision{Allowed: true, Reason: budget.ReasonNoBudget}
	}
	b, ok := e.budgets.Get(ref.Name)
	if !ok {
		return budget.Decision{Allowed: false, Reason: budget.ReasonBudgetNotFound}
	}

	if e.recoverPanics {
		defer func() {
			if r := recover(); r != nil {
				d = budget.Decision{Allowed: false, Reason: budget.ReasonPanicInBudget}
			}
		}()
	}
	return b.AllowRetry(ctx, command, retry, ref)
}

func classifyWithRecovery(recoverPanics bool, classifier classify.Classifier, env *result.ErrorEnvelope, err error, command string) (out classify.Outcome, panicErr error) {
	if recoverPanics {
		defer func() {
			if r := recover(); r != nil {
				out = classify.Outcome{Kind: classify.OutcomeAbort, Reason: "panic_in_classifier"}
				panicErr = &PanicError{
					Component: "classifier",
					Command:   command,
					Value:     r,
					Stack:     debug.Stack(),
				}
			}
		}()
	}

	out = classifier.Classify(env, err)
	if out.Kind == classify.OutcomeUnknown {
		if out.Reason == "" {
			out.Reason = "unknown_outcome"
		}
		out.Kind = classify.OutcomeAbort
	}
	if out.Reason == "" {
		out.Reason = out.Kind.String()
	}
	return out, nil
}

// recordCircuit feeds the breaker. A well-formed reply the host did not mark
// retryable means the host is healthy, even when the reply is an error.
func recordCircuit(ctx context.Context, breaker circuit.CircuitBreaker, env *result.ErrorEnvelope, cause error, out classify.Outcome) {
	if breaker == nil {
		return
	}
	if env == nil || (cause == nil && out.Kind == classify.OutcomeNonRetryable) {
		breaker.RecordSuccess(ctx)
		return
	}
	breaker.RecordFailure(ctx)
}

func circuitOpen(command string, d circuit.Decision) result.ErrorEnvelope {
	return result.ErrorEnvelope{
		Category:   result.CategoryOperation,
		ErrorType:  "CircuitOpen",
		Severity:   result.SeverityHigh,
		Message:    fmt.Sprintf("Circuit open for command %s", command),
		Code:       result.CodeCircuitOpen,
		StatusCode: http.StatusServiceUnavailable,
		NestedDetails: map[string]any{
			"state":        d.State.String(),
			"reason":       d.Reason,
			"retryAfterMs": d.RetryAfter.Milliseconds(),
		},
	}
}

func budgetDenied(command string, d budget.Decision, last result.ErrorEnvelope) result.ErrorEnvelope {
	return result.ErrorEnvelope{
		Category:    result.CategoryOperation,
		ErrorType:   "RetryBudgetDenied",
		Severity:    result.SeverityMedium,
		Message:     fmt.Sprintf("Retry budget exhausted for command %s", command),
		FullMessage: last.Message,
		Code:        result.CodeRetryBudgetDenied,
		NestedDetails: map[string]any{
			"reason":    d.Reason,
			"lastError": last,
		},
	}
}
