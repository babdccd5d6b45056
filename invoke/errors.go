package invoke

import (
	"errors"
	"fmt"

	"github.com/aponysus/hostcall/result"
)

var (
	// ErrNoHost is returned when an executor has no host to dispatch to.
	ErrNoHost = errors.New("hostcall: no host configured")

	// ErrCircuitOpen is the cause of a call rejected by an open breaker.
	ErrCircuitOpen = errors.New("hostcall: circuit open")

	// ErrBudgetDenied is the cause of a retry refused by its budget.
	ErrBudgetDenied = errors.New("hostcall: retry budget denied")

	// ErrClosed is the cause of an Execute on a closed Call.
	ErrClosed = errors.New("hostcall: call site closed")
)

// Error is the error returned alongside every Failure. It unwraps to both the
// normalized envelope and the original cause, if there was one.
type Error struct {
	Command  string
	Envelope result.ErrorEnvelope
	Cause    error
}

func (e *Error) Error() string {
	env := e.Envelope
	return fmt.Sprintf("hostcall: %s: %s", e.Command, env.Error())
}

func (e *Error) Unwrap() []error {
	env := e.Envelope
	errs := []error{&env}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

