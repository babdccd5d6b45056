// Package hostcall is the short form of package invoke: every call goes
// through the global default executor.
package hostcall

import (
	"context"

	"github.com/aponysus/hostcall/invoke"
	"github.com/aponysus/hostcall/observe"
	"github.com/aponysus/hostcall/result"
)

// Init sets the global default executor.
// It must be called before Invoke is used.
func Init(exec *invoke.Executor) {
	invoke.SetGlobal(exec)
}

// Invoke runs command on the default executor.
func Invoke[T any](ctx context.Context, command string, args map[string]any, opts ...invoke.Option) (result.Result[T], error) {
	return invoke.Invoke[T](ctx, invoke.DefaultExecutor(), command, args, opts...)
}

// InvokeWithTimeline is Invoke that also returns the call's timeline.
func InvokeWithTimeline[T any](ctx context.Context, command string, args map[string]any, opts ...invoke.Option) (result.Result[T], observe.Timeline, error) {
	return invoke.InvokeWithTimeline[T](ctx, invoke.DefaultExecutor(), command, args, opts...)
}

// Exec runs command and returns only its data.
func Exec[T any](ctx context.Context, command string, args map[string]any, opts ...invoke.Option) (T, error) {
	r, err := Invoke[T](ctx, command, args, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return r.Unwrap().Data, nil
}

// NewCall creates a call site bound to the default executor.
func NewCall[T any](command string, opts ...invoke.Option) *invoke.Call[T] {
	return invoke.NewCall[T](invoke.DefaultExecutor(), command, opts...)
}
