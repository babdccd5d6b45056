package invoke

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/hostcall/host"
	"github.com/aponysus/hostcall/result"
)

// stateLog collects every State delivered through OnState.
type stateLog[T any] struct {
	mu     sync.Mutex
	states []State[T]
}

func (l *stateLog[T]) record(s State[T]) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *stateLog[T]) all() []State[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State[T](nil), l.states...)
}

func TestCall_SuccessLifecycle(t *testing.T) {
	h := &scriptedHost{replies: []string{`{"Ok":{"data":{"id":7,"name":"A"}}}`}}
	exec, _ := newTestExecutor(h)

	var order []string
	log := &stateLog[profile]{}
	c := NewCall[profile](exec, "get_profile",
		WithArgs(map[string]any{"id": 7}),
		OnState(log.record),
		OnSuccess(func(s result.SuccessEnvelope[profile]) { order = append(order, "success:"+s.Data.Name) }),
		OnError(func(result.ErrorEnvelope) { order = append(order, "error") }),
		OnFinished(func() { order = append(order, "finished") }),
	)
	defer c.Close()

	r, err := c.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "A", r.Unwrap().Data.Name)
	assert.Equal(t, []string{"success:A", "finished"}, order)

	states := log.all()
	require.Len(t, states, 3)
	assert.True(t, states[0].Loading)
	assert.Nil(t, states[0].Data)
	assert.True(t, states[1].Loading, "loading is cleared only by the finishing step")
	require.NotNil(t, states[1].Data)
	assert.False(t, states[2].Loading)

	final := c.State()
	assert.False(t, final.Loading)
	assert.Nil(t, final.Err)
	assert.Equal(t, "A", final.Data.Data.Name)
}

func TestCall_FailureKeepsDataAndCallsOnErrorOnce(t *testing.T) {
	h := &scriptedHost{replies: []string{
		`{"Ok":{"data":{"id":1,"name":"Ada"}}}`,
		`{"Err":{"category":"not_found","message":"gone"}}`,
	}}
	exec, _ := newTestExecutor(h)

	var errs, finished atomic.Int32
	c := NewCall[profile](exec, "get_profile",
		OnError(func(result.ErrorEnvelope) { errs.Add(1) }),
		OnFinished(func() { finished.Add(1) }),
	)
	defer c.Close()

	_, err := c.Execute(context.Background(), nil)
	require.NoError(t, err)

	r, err := c.Execute(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, r.IsErr())

	s := c.State()
	require.NotNil(t, s.Err)
	assert.Equal(t, "gone", s.Err.Message)
	require.NotNil(t, s.Data)
	assert.Equal(t, "Ada", s.Data.Data.Name)
	assert.False(t, s.Loading)
	assert.EqualValues(t, 1, errs.Load())
	assert.EqualValues(t, 2, finished.Load())
}

func TestCall_RetryCountVisibleThenResetOnSuccess(t *testing.T) {
	local := host.NewLocal(host.WithLogger(quietLogger()))
	host.NewDemo(afero.NewMemMapFs()).Register(local)
	exec, _ := newTestExecutor(local)

	log := &stateLog[map[string]any]{}
	c := NewCall[map[string]any](exec, "flaky",
		WithArgs(map[string]any{"key": "retry-count", "failures": 2}),
		OnState(log.record),
	)
	defer c.Close()

	_, err := c.Execute(context.Background(), nil)
	require.NoError(t, err)

	var counts []int
	for _, s := range log.all() {
		counts = append(counts, s.RetryCount)
	}
	assert.Equal(t, []int{0, 1, 2, 0, 0}, counts)
	assert.Zero(t, c.State().RetryCount)
}

func TestCall_RetryCountSurvivesTerminalFailure(t *testing.T) {
	h := &scriptedHost{replies: []string{networkDown}}
	exec, _ := newTestExecutor(h)

	c := NewCall[profile](exec, "get_profile", WithRetry(2, time.Millisecond))
	defer c.Close()

	_, err := c.Execute(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, 2, c.State().RetryCount)

	c.Reset()
	assert.Equal(t, State[profile]{}, c.State())
}

func TestCall_LoadingHeldThroughTimeout(t *testing.T) {
	entered := make(chan struct{}, 1)
	exec, _ := newTestExecutor(blockingHost(entered))

	log := &stateLog[string]{}
	c := NewCall[string](exec, "slow", WithTimeout(30*time.Millisecond), OnState(log.record))
	defer c.Close()

	done := make(chan error, 1)
	go func() {
		_, err := c.Execute(context.Background(), nil)
		done <- err
	}()

	<-entered
	assert.True(t, c.State().Loading)

	err := <-done
	require.Error(t, err)

	states := log.all()
	require.Len(t, states, 3)
	assert.True(t, states[0].Loading)
	assert.True(t, states[1].Loading)
	require.NotNil(t, states[1].Err)
	assert.Equal(t, "Timeout", states[1].Err.Message)
	assert.False(t, states[2].Loading)
}

func TestCall_CancelInFlight(t *testing.T) {
	entered := make(chan struct{}, 1)
	exec, rs := newTestExecutor(blockingHost(entered))

	c := NewCall[string](exec, "slow")
	defer c.Close()

	type outcome struct {
		r   result.Result[string]
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := c.Execute(context.Background(), nil)
		done <- outcome{r, err}
	}()

	<-entered
	c.Cancel()
	got := <-done

	require.ErrorIs(t, got.err, context.Canceled)
	env, _ := got.r.Err()
	assert.Equal(t, result.CodeCancelled, env.Code)
	assert.Empty(t, rs.got(), "cancellation aborts without retrying")
	assert.False(t, c.State().Loading)
}

func TestCall_CancelAfterSettleIsNoop(t *testing.T) {
	h := &scriptedHost{replies: []string{`{"Ok":{"data":"first"}}`, `{"Ok":{"data":"second"}}`}}
	exec, _ := newTestExecutor(h)

	c := NewCall[string](exec, "echo")
	defer c.Close()

	_, err := c.Execute(context.Background(), nil)
	require.NoError(t, err)
	before := c.State()

	c.Cancel()
	assert.Equal(t, before, c.State())

	r, err := c.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "second", r.Unwrap().Data)
}

func TestCall_NewerExecuteSupersedesState(t *testing.T) {
	release := make(chan struct{})
	first := make(chan struct{})
	h := host.Func(func(_ context.Context, _ string, args map[string]any) ([]byte, error) {
		if args["n"] == 1 {
			close(first)
			<-release
		}
		return []byte(fmt.Sprintf(`{"type":"success","answer":{"data":%d}}`, args["n"])), nil
	})
	exec, _ := newTestExecutor(h)

	var successes atomic.Int32
	c := NewCall[int](exec, "gate", OnSuccess(func(result.SuccessEnvelope[int]) { successes.Add(1) }))
	defer c.Close()

	done := make(chan result.Result[int], 1)
	go func() {
		r, _ := c.Execute(context.Background(), map[string]any{"n": 1})
		done <- r
	}()
	<-first

	r2, err := c.Execute(context.Background(), map[string]any{"n": 2})
	require.NoError(t, err)
	assert.Equal(t, 2, r2.Unwrap().Data)

	close(release)
	r1 := <-done
	assert.Equal(t, 1, r1.Unwrap().Data, "each caller gets its own outcome")
	assert.EqualValues(t, 2, successes.Load(), "each caller gets its own hooks")

	s := c.State()
	assert.Equal(t, 2, s.Data.Data)
	assert.False(t, s.Loading)
}

func TestCall_CloseSuppressesUpdates(t *testing.T) {
	entered := make(chan struct{}, 1)
	exec, _ := newTestExecutor(blockingHost(entered))

	var errs, finished, states atomic.Int32
	c := NewCall[string](exec, "slow",
		OnError(func(result.ErrorEnvelope) { errs.Add(1) }),
		OnFinished(func() { finished.Add(1) }),
		OnState(func(State[string]) { states.Add(1) }),
	)

	done := make(chan error, 1)
	go func() {
		_, err := c.Execute(context.Background(), nil)
		done <- err
	}()

	<-entered
	c.Close()
	require.ErrorIs(t, <-done, context.Canceled)

	assert.Zero(t, errs.Load())
	assert.EqualValues(t, 1, finished.Load())
	assert.EqualValues(t, 1, states.Load(), "only the started transition was delivered")
	assert.True(t, c.State().Loading, "state is frozen at close")

	r, err := c.Execute(context.Background(), nil)
	require.ErrorIs(t, err, ErrClosed)
	env, _ := r.Err()
	assert.Equal(t, result.CodeCallSiteClosed, env.Code)
	assert.EqualValues(t, 2, finished.Load())

	c.Close()
}

func TestCall_StateHookMayReenter(t *testing.T) {
	h := &scriptedHost{replies: []string{`{"Ok":{"data":"first"}}`, `{"Ok":{"data":"second"}}`}}
	exec, _ := newTestExecutor(h)

	log := &stateLog[string]{}
	var c *Call[string]
	reentered := false
	c = NewCall[string](exec, "load", OnState(func(s State[string]) {
		log.record(s)
		if reentered || s.Data == nil || !s.Loading {
			return
		}
		reentered = true
		c.Reset()
		_, _ = c.Execute(context.Background(), nil)
	}))
	defer c.Close()

	done := make(chan result.Result[string], 1)
	go func() {
		r, _ := c.Execute(context.Background(), nil)
		done <- r
	}()

	var r result.Result[string]
	select {
	case r = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not return after a hook re-entered the call site")
	}
	assert.Equal(t, "first", r.Unwrap().Data)
	assert.Equal(t, 2, h.calls())

	states := log.all()
	require.Len(t, states, 6)
	assert.Equal(t, State[string]{}, states[2], "reset is delivered after the state that triggered it")
	assert.True(t, states[3].Loading)
	assert.Nil(t, states[3].Data)
	assert.False(t, states[5].Loading)

	final := c.State()
	assert.False(t, final.Loading)
	require.NotNil(t, final.Data)
	assert.Equal(t, "second", final.Data.Data)
}

func TestCall_Run(t *testing.T) {
	h := &scriptedHost{replies: []string{`{"Ok":{"data":"mounted"}}`}}
	exec, _ := newTestExecutor(h)

	disabled := NewCall[string](exec, "load", WithEnabled(false))
	<-disabled.Run(context.Background())
	assert.Zero(t, h.calls())
	disabled.Close()

	c := NewCall[string](exec, "load")
	defer c.Close()
	<-c.Run(context.Background())

	assert.Equal(t, 1, h.calls())
	require.NotNil(t, c.State().Data)
	assert.Equal(t, "mounted", c.State().Data.Data)
}

func TestNewCall_IgnoresMismatchedHooks(t *testing.T) {
	h := &scriptedHost{replies: []string{`{"Ok":{"data":"x"}}`}}
	exec, _ := newTestExecutor(h)

	called := false
	c := NewCall[string](exec, "echo", OnSuccess(func(result.SuccessEnvelope[int]) { called = true }))
	defer c.Close()

	_, err := c.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, "echo", c.Command())
}
