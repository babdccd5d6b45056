package invoke

import (
	"log"
	"sync"

	"github.com/aponysus/hostcall/budget"
	"github.com/aponysus/hostcall/classify"
	"github.com/aponysus/hostcall/observe"
)

var (
	globalMu   sync.Mutex
	globalExec *Executor
)

// DefaultExecutor returns the process-wide executor, building one with
// NewDefaultExecutor on first use unless SetGlobal installed one.
func DefaultExecutor() *Executor {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalExec == nil {
		globalExec = NewDefaultExecutor()
	}
	return globalExec
}

// SetGlobal installs exec as the process-wide executor. Only the first
// installation wins: once DefaultExecutor has handed out an executor, later
// calls log a warning and change nothing.
func SetGlobal(exec *Executor) {
	if exec == nil {
		return
	}

	globalMu.Lock()
	defer globalMu.Unlock()

	if globalExec != nil {
		log.Printf("invoke: SetGlobal called after the global executor was initialized; ignoring")
		return
	}
	globalExec = exec
}

// NewDefaultExecutor creates an Executor with the stock registries.
//
// Defaults:
// - Host: none; calls fail with ErrNoHost until one is given.
// - Classifiers: "explicit" and "never", with explicit as the default.
// - Budgets: "unlimited" registered.
// - Observer: NoopObserver.
func NewDefaultExecutor(opts ...ExecutorOption) *Executor {
	classifierReg := classify.NewRegistry()
	classify.RegisterBuiltins(classifierReg)

	budgetReg := budget.NewRegistry()
	budgetReg.MustRegister("unlimited", budget.Unlimited{})

	defaultOpts := []ExecutorOption{
		WithObserver(observe.NoopObserver{}),
		WithClassifiers(classifierReg),
		WithDefaultClassifier(classify.ExplicitRetry{}),
		WithBudgetRegistry(budgetReg),
	}
	return NewExecutor(append(defaultOpts, opts...)...)
}
