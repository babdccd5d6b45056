package observe

import (
	"context"
	"log"
	"time"

	"github.com/aponysus/hostcall/policy"
)

// BaseObserver implements Observer with no-op methods.
//
// Embed it to implement only the callbacks you need.
type BaseObserver struct{}

func (BaseObserver) OnStart(context.Context, string, policy.Policy)      {}
func (BaseObserver) OnAttempt(context.Context, string, AttemptRecord)    {}
func (BaseObserver) OnRetry(context.Context, string, int, time.Duration) {}
func (BaseObserver) OnSuccess(context.Context, string, Timeline)         {}
func (BaseObserver) OnFailure(context.Context, string, Timeline)         {}

// MultiObserver fans out events to multiple observers.
type MultiObserver struct {
	Observers []Observer
}

func (m MultiObserver) OnStart(ctx context.Context, command string, pol policy.Policy) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnStart(ctx, command, pol)
		}
	}
}

func (m MultiObserver) OnAttempt(ctx context.Context, command string, rec AttemptRecord) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnAttempt(ctx, command, rec)
		}
	}
}

func (m MultiObserver) OnRetry(ctx context.Context, command string, retry int, delay time.Duration) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnRetry(ctx, command, retry, delay)
		}
	}
}

func (m MultiObserver) OnSuccess(ctx context.Context, command string, tl Timeline) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnSuccess(ctx, command, tl)
		}
	}
}

func (m MultiObserver) OnFailure(ctx context.Context, command string, tl Timeline) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnFailure(ctx, command, tl)
		}
	}
}

// LogObserver writes one key=value line per lifecycle event.
type LogObserver struct {
	Logger *log.Logger

	// Attempts also logs every individual attempt.
	Attempts bool
}

func (o LogObserver) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.Default()
}

func (o LogObserver) OnStart(_ context.Context, command string, pol policy.Policy) {
	o.logger().Printf("hostcall: event=start command=%s max_retries=%d timeout=%s",
		command, pol.Retry.MaxRetries, pol.Timeout)
}

func (o LogObserver) OnAttempt(_ context.Context, command string, rec AttemptRecord) {
	if !o.Attempts {
		return
	}
	o.logger().Printf("hostcall: event=attempt command=%s attempt=%d outcome=%s reason=%s duration=%s",
		command, rec.Attempt, rec.Outcome.Kind, rec.Outcome.Reason, rec.EndTime.Sub(rec.StartTime))
}

func (o LogObserver) OnRetry(_ context.Context, command string, retry int, delay time.Duration) {
	o.logger().Printf("hostcall: event=retry command=%s retry=%d delay=%s", command, retry, delay)
}

func (o LogObserver) OnSuccess(_ context.Context, command string, tl Timeline) {
	o.logger().Printf("hostcall: event=success command=%s retries=%d duration=%s",
		command, tl.Retries(), tl.Duration())
}

func (o LogObserver) OnFailure(_ context.Context, command string, tl Timeline) {
	category, msg := "", ""
	if tl.Final != nil {
		category, msg = tl.Final.Category, tl.Final.Message
	} else if tl.FinalErr != nil {
		msg = tl.FinalErr.Error()
	}
	o.logger().Printf("hostcall: event=failure command=%s retries=%d category=%s message=%q duration=%s",
		command, tl.Retries(), category, msg, tl.Duration())
}
