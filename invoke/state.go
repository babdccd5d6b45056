package invoke

import "github.com/aponysus/hostcall/result"

// State is the observable state of a call site.
type State[T any] struct {
	// Data is the last success envelope. A later failure keeps it.
	Data *result.SuccessEnvelope[T]

	Loading bool

	// Err is the last failure, cleared when a new call starts.
	Err *result.ErrorEnvelope

	// RetryCount is the number of retries made by the current call so far. It is
	// reset by a success or by Reset, never by a failure.
	RetryCount int
}

// EventKind names a state transition.
type EventKind int

const (
	EventStarted EventKind = iota
	EventSucceeded
	EventFailed
	EventRetried
	EventFinished
	EventReset
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventSucceeded:
		return "succeeded"
	case EventFailed:
		return "failed"
	case EventRetried:
		return "retried"
	case EventFinished:
		return "finished"
	case EventReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Event drives Transition. Data is read for EventSucceeded, Err for EventFailed
// and RetryCount for EventRetried.
type Event[T any] struct {
	Kind       EventKind
	Data       result.SuccessEnvelope[T]
	Err        result.ErrorEnvelope
	RetryCount int
}

// Transition is the only way call-site state changes. It is pure: prev is never
// modified.
func Transition[T any](prev State[T], ev Event[T]) State[T] {
	next := prev

	switch ev.Kind {
	case EventStarted:
		next.Loading = true
		next.Err = nil
	case EventSucceeded:
		data := ev.Data
		next.Data = &data
		next.Err = nil
		next.RetryCount = 0
	case EventFailed:
		env := ev.Err
		next.Err = &env
	case EventRetried:
		next.RetryCount = ev.RetryCount
	case EventFinished:
		next.Loading = false
	case EventReset:
		return State[T]{}
	}
	return next
}
