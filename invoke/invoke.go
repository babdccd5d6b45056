package invoke

import (
	"context"

	"github.com/aponysus/hostcall/observe"
	"github.com/aponysus/hostcall/result"
)

// Invoke runs command once on exec, with retries per policy, and returns its
// outcome. A nil exec uses DefaultExecutor.
//
// The returned error is nil exactly when the Result is a Success.
func Invoke[T any](ctx context.Context, exec *Executor, command string, args map[string]any, opts ...Option) (result.Result[T], error) {
	c := NewCall[T](exec, command, opts...)
	defer c.Close()
	return c.Execute(ctx, args)
}

// InvokeWithTimeline is Invoke that also returns the call's timeline.
func InvokeWithTimeline[T any](ctx context.Context, exec *Executor, command string, args map[string]any, opts ...Option) (result.Result[T], observe.Timeline, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, capture := observe.RecordTimeline(ctx)
	r, err := Invoke[T](ctx, exec, command, args, opts...)

	var tl observe.Timeline
	if got := capture.Timeline(); got != nil {
		tl = *got
	}
	return r, tl, err
}
