package invoke

import (
	"time"

	"github.com/aponysus/hostcall/policy"
	"github.com/aponysus/hostcall/result"
)

// Option configures a Call or a one-shot Invoke.
type Option func(*settings)

type settings struct {
	args     map[string]any
	policy   []policy.Option
	disabled bool

	onError    func(result.ErrorEnvelope)
	onFinished func()
	onRetry    func(attempt int, delay time.Duration)

	// typed holds hooks whose signature depends on the payload type. NewCall
	// picks the ones matching its T.
	typed []any
}

type successHook[T any] func(result.SuccessEnvelope[T])

type stateHook[T any] func(State[T])

// WithArgs sets default arguments. Arguments passed to Execute override them key by key.
func WithArgs(args map[string]any) Option {
	return func(s *settings) {
		s.args = mergeArgs(s.args, args)
	}
}

// WithTimeout races every attempt against d.
func WithTimeout(d time.Duration) Option {
	return WithPolicyOptions(policy.Timeout(d))
}

// WithRetry overrides the retry count and initial delay. The count is capped
// at policy.MaxRetriesLimit.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return WithPolicyOptions(policy.MaxRetries(maxRetries), policy.RetryDelay(delay))
}

// WithPolicyOptions applies opts on top of the executor's policy for the command.
func WithPolicyOptions(opts ...policy.Option) Option {
	return func(s *settings) {
		s.policy = append(s.policy, opts...)
	}
}

// WithEnabled(false) turns Call.Run into a no-op. Execute is unaffected.
func WithEnabled(enabled bool) Option {
	return func(s *settings) {
		s.disabled = !enabled
	}
}

// OnSuccess is called with the success envelope of every successful call.
func OnSuccess[T any](f func(result.SuccessEnvelope[T])) Option {
	return func(s *settings) {
		if f != nil {
			s.typed = append(s.typed, successHook[T](f))
		}
	}
}

// OnState is called after every state transition, in order.
func OnState[T any](f func(State[T])) Option {
	return func(s *settings) {
		if f != nil {
			s.typed = append(s.typed, stateHook[T](f))
		}
	}
}

// OnError is called with the terminal error envelope of every failed call.
func OnError(f func(result.ErrorEnvelope)) Option {
	return func(s *settings) {
		s.onError = f
	}
}

// OnFinished is called exactly once per call, after success or failure.
func OnFinished(f func()) Option {
	return func(s *settings) {
		s.onFinished = f
	}
}

// OnRetry is called before every backoff sleep with the 1-based retry number.
func OnRetry(f func(attempt int, delay time.Duration)) Option {
	return func(s *settings) {
		s.onRetry = f
	}
}

func mergeArgs(base, override map[string]any) map[string]any {
	if len(base) == 0 && len(override) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
