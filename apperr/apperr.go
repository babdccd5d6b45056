// Package apperr is the host-side error taxonomy. Handlers return *Error values
// and the host turns them into result.ErrorEnvelope replies through Details.
package apperr

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/aponysus/hostcall/result"
)

// Error is a categorized host failure.
type Error struct {
	Category string
	Type     string
	Code     string
	Message  string
	Details  map[string]any
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = result.DefaultMessage
	}
	return fmt.Sprintf("%s error: %s", label(e.Category), msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Envelope renders e without a trace id or timestamp.
func (e *Error) Envelope() result.ErrorEnvelope {
	category := e.Category
	if category == "" {
		category = result.CategoryGeneral
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return result.ErrorEnvelope{
		Category:      category,
		ErrorType:     e.Type,
		Severity:      Severity(category),
		Retryable:     Retryable(category),
		Message:       msg,
		FullMessage:   e.Error(),
		Code:          e.Code,
		NestedDetails: e.Details,
	}.WithDefaults()
}

// Severity is the advisory severity hosts attach to a category.
func Severity(category string) string {
	switch category {
	case result.CategoryValidation, result.CategoryNotFound:
		return result.SeverityLow
	case result.CategoryFileSystem, result.CategoryOperation:
		return result.SeverityHigh
	case result.CategorySystem:
		return result.SeverityCritical
	default:
		return result.SeverityMedium
	}
}

// Retryable reports whether failures of category are worth resubmitting.
func Retryable(category string) bool {
	return category == result.CategoryNetwork || category == result.CategoryOperation
}

func New(category, typ, msg string) *Error {
	return &Error{Category: category, Type: typ, Message: msg}
}

// Wrap attaches a cause. A nil err yields nil.
func Wrap(category, typ string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Category: category, Type: typ, Err: err}
}

func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

func (e *Error) WithDetail(key string, v any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = v
	return e
}

func Network(typ, msg string) *Error {
	return New(result.CategoryNetwork, typ, msg).WithCode(result.CodeNetworkError)
}

func FileSystem(typ, msg string) *Error {
	return New(result.CategoryFileSystem, typ, msg)
}

func Parsing(typ, msg string) *Error {
	return New(result.CategoryParsing, typ, msg)
}

func Validation(typ, msg string) *Error {
	return New(result.CategoryValidation, typ, msg).WithCode(result.CodeValidationFailed)
}

func NotFound(typ, msg string) *Error {
	return New(result.CategoryNotFound, typ, msg).WithCode(result.CodeNotFound)
}

func Operation(typ, msg string) *Error {
	return New(result.CategoryOperation, typ, msg).WithCode(result.CodeOperationFailed)
}

func System(typ, msg string) *Error {
	return New(result.CategorySystem, typ, msg).WithCode(result.CodeInternalError)
}

func General(msg string) *Error {
	return New(result.CategoryGeneral, "Unknown", msg)
}

// FromIO maps a filesystem error onto the file_system category.
func FromIO(err error) *Error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Wrap(result.CategoryFileSystem, "FileNotFound", err).WithCode(result.CodeFileNotFound)
	case errors.Is(err, fs.ErrPermission):
		return Wrap(result.CategoryFileSystem, "AccessDenied", err).WithCode(result.CodeFileAccessDenied)
	default:
		return Wrap(result.CategoryFileSystem, "IoError", err)
	}
}

// Details builds the envelope a host replies with. Errors that are not *Error
// are reported as general failures. An empty traceID gets a fresh ULID.
func Details(err error, traceID string) result.ErrorEnvelope {
	var env result.ErrorEnvelope

	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		env = ae.Envelope()
	} else {
		env = General("").Envelope()
		if err != nil {
			env.Message = err.Error()
			env.FullMessage = err.Error()
		}
	}

	if traceID == "" {
		traceID = ulid.Make().String()
	}
	env.TraceID = traceID
	env.Timestamp = result.Timestamp(time.Now())
	return env
}

func label(category string) string {
	switch category {
	case result.CategoryNetwork:
		return "Network"
	case result.CategoryFileSystem:
		return "File system"
	case result.CategoryParsing:
		return "Parsing"
	case result.CategoryValidation:
		return "Validation"
	case result.CategoryNotFound:
		return "Not found"
	case result.CategoryOperation:
		return "Operation"
	case result.CategorySystem:
		return "System"
	default:
		return "General"
	}
}
