// Package invoke dispatches commands to a host and turns every reply into a
// result.Result: it races the optional timeout, classifies failures, retries the
// ones the host marked retryable and keeps per-call-site state.
package invoke

import (
	"context"
	"log"
	"time"

	"github.com/aponysus/hostcall/budget"
	"github.com/aponysus/hostcall/circuit"
	"github.com/aponysus/hostcall/classify"
	"github.com/aponysus/hostcall/host"
	"github.com/aponysus/hostcall/observe"
	"github.com/aponysus/hostcall/policy"
)

// Executor runs host calls under per-command policies. It is safe for
// concurrent use and holds no per-call state.
type Executor struct {
	host              host.Host
	provider          policy.Provider
	observer          observe.Observer
	logger            *log.Logger
	clock             func() time.Time
	sleep             func(context.Context, time.Duration) error
	classifiers       *classify.Registry
	defaultClassifier classify.Classifier
	budgets           *budget.Registry
	circuits          *circuit.Registry
	recoverPanics     bool
}

type executorConfig struct {
	opts           ExecutorOptions
	staticPolicies map[string]policy.Policy
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Host              host.Host
	Provider          policy.Provider
	Observer          observe.Observer
	Logger            *log.Logger
	Clock             func() time.Time
	Sleep             func(context.Context, time.Duration) error
	Classifiers       *classify.Registry
	DefaultClassifier classify.Classifier
	Budgets           *budget.Registry
	Circuits          *circuit.Registry

	// RecoverPanics also recovers panics raised by providers, classifiers and
	// budgets. Host panics are always recovered.
	RecoverPanics bool
}

// NewExecutor creates an Executor from functional options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	cfg := &executorConfig{}

	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	if cfg.opts.Provider == nil && len(cfg.staticPolicies) > 0 {
		p := policy.NewStaticProvider()
		for command, pol := range cfg.staticPolicies {
			p.Set(command, pol)
		}
		cfg.opts.Provider = p
	}

	return NewExecutorFromOptions(cfg.opts)
}

// NewExecutorFromOptions creates an Executor from a config struct, filling every
// unset collaborator with its default.
func NewExecutorFromOptions(opts ExecutorOptions) *Executor {
	e := &Executor{
		host:              opts.Host,
		provider:          opts.Provider,
		observer:          opts.Observer,
		logger:            opts.Logger,
		clock:             opts.Clock,
		sleep:             opts.Sleep,
		classifiers:       opts.Classifiers,
		defaultClassifier: opts.DefaultClassifier,
		budgets:           opts.Budgets,
		circuits:          opts.Circuits,
		recoverPanics:     opts.RecoverPanics,
	}

	if e.provider == nil {
		e.provider = policy.NewStaticProvider()
	}
	if e.observer == nil {
		e.observer = observe.NoopObserver{}
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.sleep == nil {
		e.sleep = sleepWithContext
	}
	if e.classifiers == nil {
		e.classifiers = classify.NewRegistry()
		classify.RegisterBuiltins(e.classifiers)
	}
	if e.defaultClassifier == nil {
		e.defaultClassifier = classify.ExplicitRetry{}
	}
	if e.circuits == nil {
		e.circuits = circuit.NewRegistry(circuit.WithClock(e.clock))
	}

	return e
}

// ready returns an executor whose collaborators are all set.
func (e *Executor) ready() *Executor {
	if e == nil {
		return DefaultExecutor()
	}
	if e.provider != nil && e.observer != nil && e.logger != nil && e.clock != nil &&
		e.sleep != nil && e.classifiers != nil && e.defaultClassifier != nil && e.circuits != nil {
		return e
	}
	return NewExecutorFromOptions(e.options())
}

func (e *Executor) options() ExecutorOptions {
	return ExecutorOptions{
		Host:              e.host,
		Provider:          e.provider,
		Observer:          e.observer,
		Logger:            e.logger,
		Clock:             e.clock,
		Sleep:             e.sleep,
		Classifiers:       e.classifiers,
		DefaultClassifier: e.defaultClassifier,
		Budgets:           e.budgets,
		Circuits:          e.circuits,
		RecoverPanics:     e.recoverPanics,
	}
}

// Host returns the host the executor dispatches to.
func (e *Executor) Host() host.Host {
	if e == nil {
		return nil
	}
	return e.host
}

// Circuits returns a snapshot of every breaker the executor has created.
func (e *Executor) Circuits() []circuit.Status {
	if e == nil {
		return nil
	}
	return e.circuits.Snapshot()
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorConfig)

// WithHost sets the host commands are dispatched to.
func WithHost(h host.Host) ExecutorOption {
	return func(c *executorConfig) {
		c.opts.Host = h
	}
}

// WithProvider sets the policy provider.
func WithProvider(p policy.Provider) ExecutorOption {
	return func(c *executorConfig) {
		c.opts.Provider = p
	}
}

// WithObserver sets the observer.
func WithObserver(o observe.Observer) ExecutorOption {
	return func(c *executorConfig) {
		c.opts.Observer = o
	}
}

// WithLogger sets the logger used for retry notices and host error envelopes.
func WithLogger(l *log.Logger) ExecutorOption {
	return func(c *executorConfig) {
		c.opts.Logger = l
	}
}

// WithClock sets the clock function.
func WithClock(f func() time.Time) ExecutorOption {
	return func(c *executorConfig) {
		c.opts.Clock = f
	}
}

// WithSleep replaces the backoff sleep. The function must honour ctx.
func WithSleep(f func(context.Context, time.Duration) error) ExecutorOption {
	return func(c *executorConfig) {
		c.opts.Sleep = f
	}
}

// WithClassifiers sets the classifier registry.
func WithClassifiers(r *classify.Registry) ExecutorOption {
	return func(c *executorConfig) {
		c.opts.Classifiers = r
	}
}

// WithDefaultClassifier sets the classifier used when a policy names none.
func WithDefaultClassifier(cls classify.Classifier) ExecutorOption {
	return func(c *executorConfig) {
		c.opts.DefaultClassifier = cls
	}
}

// WithBudgetRegistry sets the budget registry.
func WithBudgetRegistry(r *budget.Registry) ExecutorOption {
	return func(c *executorConfig) {
		c.opts.Budgets = r
	}
}

// WithCircuitRegistry sets the circuit breaker registry.
func WithCircuitRegistry(r *circuit.Registry) ExecutorOption {
	return func(c *executorConfig) {
		c.opts.Circuits = r
	}
}

// WithRecoverPanics sets whether to capture and report panics in user code.
func WithRecoverPanics(recover bool) ExecutorOption {
	return func(c *executorConfig) {
		c.opts.RecoverPanics = recover
	}
}

// WithPolicy adds a static policy for command.
func WithPolicy(command string, opts ...policy.Option) ExecutorOption {
	return func(c *executorConfig) {
		if c.staticPolicies == nil {
			c.staticPolicies = make(map[string]policy.Policy)
		}
		c.staticPolicies[command] = policy.New(command, opts...)
	}
}
