// Package stdio carries host calls as newline-delimited JSON frames over a pair
// of streams, typically the stdin and stdout of a child process.
//
// Requests:  {"id": "...", "command": "...", "args": {...}}
// Responses: {"id": "...", "reply": <wire-encoded result>}
//
//	| {"id": "...", "error": <error envelope>}
//	| {"event": <bus event>}
//
// A response with an error field means the host could not produce a reply at
// all, for example for an unknown command.
package stdio

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aponysus/hostcall/bus"
	"github.com/aponysus/hostcall/result"
)

// maxFrame bounds a single line on the wire.
const maxFrame = 4 << 20

// ErrClosed is returned by calls made on, or interrupted by, a closed connection.
var ErrClosed = errors.New("stdio: connection closed")

type request struct {
	ID      string         `json:"id"`
	Command string         `json:"command"`
	Args    map[string]any `json:"args,omitempty"`
}

type response struct {
	ID    string                `json:"id,omitempty"`
	Reply json.RawMessage       `json:"reply,omitempty"`
	Error *result.ErrorEnvelope `json:"error,omitempty"`
	Event *bus.Event            `json:"event,omitempty"`
}

// RemoteError is a failure reported by the serving side instead of a reply.
type RemoteError struct {
	Command string
	Reply   result.ErrorEnvelope
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("stdio: %s: %s", e.Command, e.Reply.Message)
}

func (e *RemoteError) StatusCode() int { return e.Reply.StatusCode }

func (e *RemoteError) Envelope() result.ErrorEnvelope { return e.Reply.WithDefaults() }

// TransportError is a broken connection: the request could not be written or
// the response never arrived.
type TransportError struct {
	Command string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stdio: %s: %v", e.Command, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Envelope() result.ErrorEnvelope {
	return result.ErrorEnvelope{
		Category:    result.CategoryNetwork,
		ErrorType:   "TransportFailed",
		Severity:    result.SeverityMedium,
		Message:     e.Error(),
		FullMessage: e.Error(),
		Code:        result.CodeNetworkError,
	}
}
