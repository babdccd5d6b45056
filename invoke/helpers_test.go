package invoke

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/aponysus/hostcall/host"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type profile struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// recordedSleep stands in for the backoff sleep and keeps every delay.
type recordedSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordedSleep) got() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

// scriptedHost answers with replies in order and repeats the last one.
type scriptedHost struct {
	mu      sync.Mutex
	replies []string
	args    []map[string]any
}

func (h *scriptedHost) Invoke(_ context.Context, _ string, args map[string]any) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.args = append(h.args, args)
	i := len(h.args) - 1
	if i >= len(h.replies) {
		i = len(h.replies) - 1
	}
	return []byte(h.replies[i]), nil
}

func (h *scriptedHost) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.args)
}

// blockingHost signals entered on every call and then waits for ctx.
func blockingHost(entered chan<- struct{}) host.Func {
	return func(ctx context.Context, _ string, _ map[string]any) ([]byte, error) {
		entered <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestExecutor(h host.Host, opts ...ExecutorOption) (*Executor, *recordedSleep) {
	rs := &recordedSleep{}
	base := []ExecutorOption{
		WithHost(h),
		WithSleep(rs.sleep),
		WithLogger(quietLogger()),
	}
	return NewExecutor(append(base, opts...)...), rs
}
