package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/aponysus/hostcall/internal"
	"github.com/aponysus/hostcall/result"
)

var (
	// ErrTimeout marks an attempt that lost the race against its timer.
	ErrTimeout = errors.New("hostcall: timeout")
	// ErrCanceled marks an attempt abandoned through its cancellation token.
	ErrCanceled = errors.New("hostcall: canceled")
)

// Messages produced by Normalize for inputs without usable text.
const (
	MessageNull     = "Null or undefined error"
	MessageTimeout  = "Timeout"
	MessageCanceled = "Operation cancelled"
)

// StatusFault is a structured fault: a textual message plus a numeric status.
type StatusFault interface {
	error
	StatusCode() int
}

// Enveloper is implemented by errors that already know their envelope.
type Enveloper interface {
	Envelope() result.ErrorEnvelope
}

// Normalize maps an arbitrary caught value onto an ErrorEnvelope. It is total:
// every input yields an envelope with a non-empty message, and it never panics.
//
// Order, first match wins: nil, text, structured fault, object with a message,
// anything else.
func Normalize(v any) result.ErrorEnvelope {
	if internal.IsTypedNil(v) {
		return envelope(MessageNull)
	}

	switch x := v.(type) {
	case string:
		return fromText(x)
	case []byte:
		return fromText(string(x))
	case result.ErrorEnvelope:
		return x.WithDefaults()
	case *result.ErrorEnvelope:
		return x.WithDefaults()
	case map[string]any:
		return fromMap(x)
	case error:
		return fromError(x)
	case fmt.Stringer:
		return fromText(x.String())
	default:
		if msg, ok := messageField(v); ok {
			return fromText(msg)
		}
		return envelope(result.DefaultMessage)
	}
}

// Timeout is the envelope every timed-out attempt resolves to.
func Timeout() result.ErrorEnvelope {
	env := envelope(MessageTimeout)
	env.Category = result.CategoryNetwork
	env.ErrorType = "Timeout"
	env.Code = result.CodeTimeout
	env.StatusCode = http.StatusRequestTimeout
	return env
}

// Canceled is the envelope of an attempt abandoned by its caller.
func Canceled() result.ErrorEnvelope {
	env := envelope(MessageCanceled)
	env.Category = result.CategoryOperation
	env.ErrorType = "Cancelled"
	env.Code = result.CodeCancelled
	return env
}

func IsNetwork(env result.ErrorEnvelope) bool {
	return env.Category == result.CategoryNetwork
}

func IsFileSystem(env result.ErrorEnvelope) bool {
	return env.Category == result.CategoryFileSystem
}

// IsRetryable reports the host's explicit retry signal.
func IsRetryable(env result.ErrorEnvelope) bool {
	return env.Retryable
}

func envelope(msg string) result.ErrorEnvelope {
	return result.ErrorEnvelope{
		Category: result.CategoryGeneral,
		Severity: result.SeverityGeneral,
		Message:  msg,
	}
}

func fromText(s string) result.ErrorEnvelope {
	if strings.TrimSpace(s) == "" {
		return envelope(result.DefaultMessage)
	}
	return envelope(s)
}

func fromError(err error) result.ErrorEnvelope {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		env := Timeout()
		env.FullMessage = err.Error()
		return env
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		env := Canceled()
		env.FullMessage = err.Error()
		return env
	}

	var env *result.ErrorEnvelope
	if errors.As(err, &env) && env != nil {
		return env.WithDefaults()
	}

	var en Enveloper
	if errors.As(err, &en) && !internal.IsTypedNil(en) {
		return en.Envelope().WithDefaults()
	}

	var sf StatusFault
	if errors.As(err, &sf) && !internal.IsTypedNil(sf) {
		out := fromText(sf.Error())
		out.StatusCode = sf.StatusCode()
		return out
	}

	out := fromText(err.Error())
	out.FullMessage = err.Error()
	return out
}

func fromMap(m map[string]any) result.ErrorEnvelope {
	msg, hasMsg := m["message"].(string)
	_, hasStatus := number(m["statusCode"])

	if hasMsg && hasStatus {
		// Structured fault: keep every field it carries.
		raw, err := json.Marshal(m)
		if err == nil {
			var env result.ErrorEnvelope
			if err := json.Unmarshal(raw, &env); err == nil {
				return env.WithDefaults()
			}
		}
		out := fromText(msg)
		if status, ok := number(m["statusCode"]); ok {
			out.StatusCode = int(status)
		}
		return out
	}

	if hasMsg {
		return fromText(msg)
	}
	return envelope(result.DefaultMessage)
}

// messageField reads the exported string field named Message, or tagged
// json:"message", of a struct or pointer to struct.
func messageField(v any) (string, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return "", false
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() || f.Type.Kind() != reflect.String {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "message" || (name == "" && f.Name == "Message") {
			return rv.Field(i).String(), true
		}
	}
	return "", false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
