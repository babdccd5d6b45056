package invoke

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aponysus/hostcall/result"
)

// Call binds a command to a call site. It keeps the state of the latest
// execution and fires the configured hooks.
//
// Concurrent Executes are allowed. Each gets its own outcome and hooks, but
// only the newest one may update State. OnState sees every transition in
// order, though a transition made while another goroutine is delivering is
// handed to that goroutine.
type Call[T any] struct {
	exec     *Executor
	command  string
	settings settings

	onSuccess []successHook[T]
	onState   []stateHook[T]

	mu        sync.Mutex
	state     State[T]
	pending   []State[T]
	draining  bool
	gen       uint64
	cancel    context.CancelFunc
	cancelGen uint64
	closed    bool

	root context.Context
	stop context.CancelFunc
}

// NewCall binds command on exec. A nil exec uses DefaultExecutor.
func NewCall[T any](exec *Executor, command string, opts ...Option) *Call[T] {
	if exec == nil {
		exec = DefaultExecutor()
	}

	c := &Call[T]{
		exec:    exec,
		command: command,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c.settings)
		}
	}
	for _, h := range c.settings.typed {
		switch hook := h.(type) {
		case successHook[T]:
			c.onSuccess = append(c.onSuccess, hook)
		case stateHook[T]:
			c.onState = append(c.onState, hook)
		default:
			exec.ready().logger.Printf("hostcall: %s: ignoring hook %T, payload type does not match", command, h)
		}
	}

	c.root, c.stop = context.WithCancel(context.Background())
	return c
}

func (c *Call[T]) Command() string {
	return c.command
}

// State returns a snapshot of the call-site state.
func (c *Call[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Execute runs the command with args merged over the configured defaults.
//
// A Failure always comes with a non-nil *Error. Loading is set before the host
// is contacted and cleared after the outcome is stored; OnFinished runs last.
func (c *Call[T]) Execute(ctx context.Context, args map[string]any) (r result.Result[T], err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if c.settings.onFinished != nil {
			defer c.settings.onFinished()
		}
		env := closedEnvelope(c.command)
		return result.Failure[T](env), &Error{Command: c.command, Envelope: env, Cause: ErrClosed}
	}
	c.gen++
	gen := c.gen
	callCtx, cancel := context.WithCancel(ctx)
	stopAfter := context.AfterFunc(c.root, cancel)
	c.cancel, c.cancelGen = cancel, gen
	c.mu.Unlock()

	c.apply(gen, Event[T]{Kind: EventStarted})

	defer func() {
		stopAfter()
		cancel()

		c.mu.Lock()
		if c.cancelGen == gen {
			c.cancel = nil
		}
		c.mu.Unlock()

		c.apply(gen, Event[T]{Kind: EventFinished})
		if c.settings.onFinished != nil {
			c.settings.onFinished()
		}
	}()

	req := request{
		command:   c.command,
		args:      mergeArgs(c.settings.args, args),
		overrides: c.settings.policy,
	}
	r, _, err = run[T](callCtx, c.exec, req, func(attempt int, d time.Duration) {
		c.apply(gen, Event[T]{Kind: EventRetried, RetryCount: attempt})
		if c.settings.onRetry != nil && !c.isClosed() {
			c.settings.onRetry(attempt, d)
		}
	})

	if env, ok := r.Value(); ok {
		c.apply(gen, Event[T]{Kind: EventSucceeded, Data: env})
		if !c.isClosed() {
			for _, h := range c.onSuccess {
				h(env)
			}
		}
		return r, nil
	}

	env, _ := r.Err()
	c.apply(gen, Event[T]{Kind: EventFailed, Err: env})
	if c.settings.onError != nil && !c.isClosed() {
		c.settings.onError(env)
	}
	return r, err
}

// Cancel signals the cancellation token of the newest in-flight execution.
// It is a no-op once that execution has settled.
func (c *Call[T]) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset returns the state to its zero value.
func (c *Call[T]) Reset() {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.apply(gen, Event[T]{Kind: EventReset})
}

// Run executes the command in the background with the default arguments and
// returns a channel closed when it settles. It does nothing when the call site
// is disabled.
func (c *Call[T]) Run(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if c.settings.disabled {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		if _, err := c.Execute(ctx, nil); err != nil {
			c.exec.ready().logger.Printf("hostcall: background call failed: %v", err)
		}
	}()
	return done
}

// Close cancels every in-flight execution and freezes State. Later hooks
// other than OnFinished are suppressed, and later Executes fail immediately.
func (c *Call[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.stop()
}

func (c *Call[T]) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// apply runs ev through Transition unless the call site was closed or a newer
// execution superseded gen, and queues the new state for OnState.
//
// Snapshots are delivered in transition order by whichever goroutine finds the
// queue idle. A hook that re-enters the call site only queues its transitions,
// so it never waits on itself.
func (c *Call[T]) apply(gen uint64, ev Event[T]) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = Transition(c.state, ev)
	if len(c.onState) == 0 {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, c.state)
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	c.mu.Unlock()

	c.drain()
}

func (c *Call[T]) drain() {
	for {
		c.mu.Lock()
		if c.closed || len(c.pending) == 0 {
			c.pending = nil
			c.draining = false
			c.mu.Unlock()
			return
		}
		snapshot := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		for _, h := range c.onState {
			h(snapshot)
		}
	}
}

func closedEnvelope(command string) result.ErrorEnvelope {
	return result.ErrorEnvelope{
		Category:  result.CategoryOperation,
		ErrorType: "CallSiteClosed",
		Severity:  result.SeverityLow,
		Message:   fmt.Sprintf("Call site for %s is closed", command),
		Code:      result.CodeCallSiteClosed,
	}
}
