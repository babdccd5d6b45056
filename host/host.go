// Package host defines the process that executes commands on behalf of a
// caller, plus an in-process implementation.
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aponysus/hostcall/bus"
	"github.com/aponysus/hostcall/result"
)

// Host executes a named command and returns the raw reply bytes in one of the
// wire shapes. A non-nil error means no reply was produced.
type Host interface {
	Invoke(ctx context.Context, command string, args map[string]any) ([]byte, error)
}

// Func adapts a function to Host.
type Func func(ctx context.Context, command string, args map[string]any) ([]byte, error)

func (f Func) Invoke(ctx context.Context, command string, args map[string]any) ([]byte, error) {
	return f(ctx, command, args)
}

// Request is what a command handler sees.
type Request struct {
	Command string
	Args    map[string]any

	// Attempt is 0 for the first dispatch and n for the nth retry, when known.
	Attempt int

	// Events publishes side-channel events. It is never nil.
	Events bus.Emitter
}

// Bind decodes the request arguments into v.
func (r *Request) Bind(v any) error {
	raw, err := json.Marshal(r.Args)
	if err != nil {
		return fmt.Errorf("host: encode args: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("host: bind args for %s: %w", r.Command, err)
	}
	return nil
}

// Handler executes one command. A returned error is reported to the caller as an
// error envelope; see apperr for categorized errors.
type Handler func(ctx context.Context, req *Request) (any, error)

// Reply lets a handler set envelope metadata alongside its data.
type Reply struct {
	Code     string
	Message  string
	Data     any
	Metadata map[string]any
}

// UnknownCommandError is returned by Local for commands with no handler.
type UnknownCommandError struct {
	Command    string
	Suggestion string
}

func (e *UnknownCommandError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Suggestion != "" {
		return fmt.Sprintf("host: unknown command %q (did you mean %q?)", e.Command, e.Suggestion)
	}
	return fmt.Sprintf("host: unknown command %q", e.Command)
}

func (e *UnknownCommandError) StatusCode() int { return http.StatusNotFound }

func (e *UnknownCommandError) Envelope() result.ErrorEnvelope {
	return result.ErrorEnvelope{
		Category:    result.CategoryNotFound,
		ErrorType:   "UnknownCommand",
		Severity:    result.SeverityLow,
		Code:        result.CodeUnknownCommand,
		StatusCode:  http.StatusNotFound,
		Message:     e.Error(),
		FullMessage: e.Error(),
	}
}

type nopEmitter struct{}

func (nopEmitter) Emit(string, any) error           { return nil }
func (nopEmitter) EmitTo(string, string, any) error { return nil }
