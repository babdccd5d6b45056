// Package wire converts host replies to and from result.Result.
//
// Two reply shapes are accepted:
//
//	tagged:  {"type": "success"|"error", "answer": <envelope>}
//	sniffed: {"Ok": <envelope>} | {"Err": <envelope>}
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aponysus/hostcall/classify"
	"github.com/aponysus/hostcall/result"
)

// Shape selects the reply encoding a host produces.
type Shape int

const (
	ShapeTagged Shape = iota
	ShapeSniffed
)

func (s Shape) String() string {
	switch s {
	case ShapeTagged:
		return "tagged"
	case ShapeSniffed:
		return "sniffed"
	default:
		return "unknown"
	}
}

// ParseShape accepts "tagged" and "sniffed"; empty means tagged.
func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tagged":
		return ShapeTagged, nil
	case "sniffed":
		return ShapeSniffed, nil
	default:
		return 0, fmt.Errorf("wire: unknown reply shape %q", s)
	}
}

// Logger receives the raw error envelopes a host returns.
type Logger interface {
	Printf(format string, v ...any)
}

// DecodeError reports a reply that matches neither shape.
type DecodeError struct {
	Reason string
	Raw    []byte
	Err    error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("wire: malformed reply: %s: %v", e.Reason, e.Err)
	}
	return "wire: malformed reply: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Envelope classifies a malformed reply as a parsing failure.
func (e *DecodeError) Envelope() result.ErrorEnvelope {
	return result.ErrorEnvelope{
		Category:    result.CategoryParsing,
		ErrorType:   "MalformedReply",
		Severity:    result.SeverityMedium,
		Code:        result.CodeMalformedReply,
		Message:     "Malformed reply from host",
		FullMessage: e.Error(),
	}
}

const (
	tagSuccess = "success"
	tagError   = "error"
)

// Decode turns a raw host reply into a Result. A reply in the error branch is
// logged through logger (if non-nil) before it is wrapped. Replies that match
// neither shape yield a *DecodeError.
func Decode[T any](raw []byte, logger Logger) (result.Result[T], error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return result.Result[T]{}, &DecodeError{Reason: "reply is not a JSON object", Raw: raw, Err: err}
	}

	if rawType, ok := obj["type"]; ok {
		var typ string
		if err := json.Unmarshal(rawType, &typ); err != nil {
			return result.Result[T]{}, &DecodeError{Reason: "type is not a string", Raw: raw, Err: err}
		}
		answer, ok := obj["answer"]
		if !ok {
			return result.Result[T]{}, &DecodeError{Reason: "tagged reply without answer", Raw: raw}
		}
		switch typ {
		case tagSuccess:
			return decodeSuccess[T](answer, raw)
		case tagError:
			return decodeError[T](answer, logger), nil
		default:
			return result.Result[T]{}, &DecodeError{Reason: fmt.Sprintf("unknown type %q", typ), Raw: raw}
		}
	}

	if ok, found := obj["Ok"]; found {
		return decodeSuccess[T](ok, raw)
	}
	if errRaw, found := obj["Err"]; found {
		return decodeError[T](errRaw, logger), nil
	}

	return result.Result[T]{}, &DecodeError{Reason: "no type, Ok or Err key", Raw: raw}
}

func decodeSuccess[T any](payload, raw []byte) (result.Result[T], error) {
	var env result.SuccessEnvelope[T]
	if err := json.Unmarshal(payload, &env); err != nil {
		return result.Result[T]{}, &DecodeError{Reason: "success payload", Raw: raw, Err: err}
	}
	return result.Success(env), nil
}

func decodeError[T any](payload []byte, logger Logger) result.Result[T] {
	if logger != nil {
		logger.Printf("wire: host returned error: %s", payload)
	}

	if trimmed := bytes.TrimSpace(payload); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return result.Failure[T](classify.Normalize(nil))
	}

	var env result.ErrorEnvelope
	if err := json.Unmarshal(payload, &env); err == nil {
		return result.Failure[T](env.WithDefaults())
	}

	// Not an envelope object: classify whatever the host sent.
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return result.Failure[T](classify.Normalize(string(payload)))
	}
	return result.Failure[T](classify.Normalize(v))
}

type taggedReply struct {
	Type   string `json:"type"`
	Answer any    `json:"answer"`
}

// Encode renders r in the given shape.
func Encode[T any](shape Shape, r result.Result[T]) ([]byte, error) {
	var payload any
	ok := r.IsOk()
	if ok {
		payload, _ = r.Value()
	} else {
		payload, _ = r.Err()
	}

	switch shape {
	case ShapeTagged:
		typ := tagError
		if ok {
			typ = tagSuccess
		}
		return json.Marshal(taggedReply{Type: typ, Answer: payload})
	case ShapeSniffed:
		key := "Err"
		if ok {
			key = "Ok"
		}
		return json.Marshal(map[string]any{key: payload})
	default:
		return nil, fmt.Errorf("wire: unknown reply shape %d", shape)
	}
}
