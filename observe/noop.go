package observe

import (
	"context"
	"time"

	"github.com/aponysus/hostcall/policy"
)

// NoopObserver implements Observer with no-op methods.
type NoopObserver struct{}

func (NoopObserver) OnStart(context.Context, string, policy.Policy)      {}
func (NoopObserver) OnAttempt(context.Context, string, AttemptRecord)    {}
func (NoopObserver) OnRetry(context.Context, string, int, time.Duration) {}
func (NoopObserver) OnSuccess(context.Context, string, Timeline)         {}
func (NoopObserver) OnFailure(context.Context, string, Timeline)         {}
