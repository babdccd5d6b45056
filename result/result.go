// Package result defines the outcome of a host call: a sealed container holding
// either a success envelope or an error envelope, never both and never neither.
package result

import "fmt"

// Result is an immutable two-variant container.
//
// The zero value is a Failure carrying DefaultMessage, so every Result answers
// exactly one of IsOk / IsErr.
type Result[T any] struct {
	ok    bool
	value SuccessEnvelope[T]
	err   ErrorEnvelope
}

// Success wraps a success envelope.
func Success[T any](env SuccessEnvelope[T]) Result[T] {
	return Result[T]{ok: true, value: env}
}

// Failure wraps an error envelope.
func Failure[T any](env ErrorEnvelope) Result[T] {
	return Result[T]{err: env}
}

// Ok is shorthand for a Success holding only data.
func Ok[T any](data T) Result[T] {
	return Success(SuccessEnvelope[T]{Data: data})
}

// UnwrapError is the panic value of Unwrap on a Failure.
type UnwrapError struct {
	Envelope ErrorEnvelope
}

func (e *UnwrapError) Error() string {
	return fmt.Sprintf("result: called Unwrap on error: %s", e.Envelope.Message)
}

func (r Result[T]) IsOk() bool  { return r.ok }
func (r Result[T]) IsErr() bool { return !r.ok }

// Unwrap returns the success envelope and panics with *UnwrapError on a Failure.
// Only call it after checking IsOk.
func (r Result[T]) Unwrap() SuccessEnvelope[T] {
	if !r.ok {
		panic(&UnwrapError{Envelope: r.errEnvelope()})
	}
	return r.value
}

func (r Result[T]) UnwrapOr(def SuccessEnvelope[T]) SuccessEnvelope[T] {
	if !r.ok {
		return def
	}
	return r.value
}

func (r Result[T]) UnwrapOrElse(f func(ErrorEnvelope) SuccessEnvelope[T]) SuccessEnvelope[T] {
	if !r.ok {
		return f(r.errEnvelope())
	}
	return r.value
}

// Map transforms the success envelope. A Failure passes through unchanged.
func (r Result[T]) Map(f func(SuccessEnvelope[T]) SuccessEnvelope[T]) Result[T] {
	if !r.ok {
		return r
	}
	return Success(f(r.value))
}

// MapErr transforms the error envelope. A Success passes through unchanged.
func (r Result[T]) MapErr(f func(ErrorEnvelope) ErrorEnvelope) Result[T] {
	if r.ok {
		return r
	}
	return Failure[T](f(r.errEnvelope()))
}

// AndThen chains a step that itself may fail. Failures short-circuit.
func (r Result[T]) AndThen(f func(SuccessEnvelope[T]) Result[T]) Result[T] {
	if !r.ok {
		return r
	}
	return f(r.value)
}

// Value returns the success envelope, if any.
func (r Result[T]) Value() (SuccessEnvelope[T], bool) {
	return r.value, r.ok
}

// Err returns the error envelope, if any.
func (r Result[T]) Err() (ErrorEnvelope, bool) {
	if r.ok {
		return ErrorEnvelope{}, false
	}
	return r.errEnvelope(), true
}

// Get is the Go-style accessor: the envelope or a non-nil *ErrorEnvelope.
func (r Result[T]) Get() (SuccessEnvelope[T], error) {
	if !r.ok {
		env := r.errEnvelope()
		return SuccessEnvelope[T]{}, &env
	}
	return r.value, nil
}

func (r Result[T]) String() string {
	if r.ok {
		return fmt.Sprintf("Success(%+v)", r.value.Data)
	}
	return fmt.Sprintf("Failure(%s)", r.errEnvelope().Message)
}

func (r Result[T]) errEnvelope() ErrorEnvelope {
	if r.err.Message == "" {
		return r.err.WithDefaults()
	}
	return r.err
}

// MapTo transforms a Result[T] into a Result[U]. The error is carried unchanged.
func MapTo[T, U any](r Result[T], f func(SuccessEnvelope[T]) SuccessEnvelope[U]) Result[U] {
	if !r.ok {
		return Result[U]{err: r.err}
	}
	return Success(f(r.value))
}

// AndThenTo chains a step producing a Result of a different type.
func AndThenTo[T, U any](r Result[T], f func(SuccessEnvelope[T]) Result[U]) Result[U] {
	if !r.ok {
		return Result[U]{err: r.err}
	}
	return f(r.value)
}

// Match projects r onto a caller-chosen type. Exactly one branch runs.
func Match[T, U any](r Result[T], onOk func(SuccessEnvelope[T]) U, onErr func(ErrorEnvelope) U) U {
	if r.ok {
		return onOk(r.value)
	}
	return onErr(r.errEnvelope())
}
