package result

import (
	"fmt"
	"time"
)

// Category groups errors for presentation and retry decisions.
type Category = string

// Error categories reported by the host. The set is open: hosts may send others.
const (
	CategoryGeneral    Category = "general"
	CategoryNetwork    Category = "network"
	CategoryFileSystem Category = "file_system"
	CategoryParsing    Category = "parsing"
	CategoryValidation Category = "validation"
	CategoryNotFound   Category = "not_found"
	CategoryOperation  Category = "operation"
	CategorySystem     Category = "system"
)

// Severity is advisory metadata. It never drives control flow.
type Severity = string

const (
	SeverityGeneral  Severity = "general"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SuccessEnvelope carries the payload of a successful host call.
// Everything besides Data is observability metadata.
type SuccessEnvelope[T any] struct {
	Code            string         `json:"code,omitempty"`
	Message         string         `json:"message,omitempty"`
	Data            T              `json:"data"`
	Timestamp       string         `json:"timestamp,omitempty"`
	ExecutionTimeMs float64        `json:"executionTimeMs,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// ErrorEnvelope is the normalized description of a failed host call.
//
// Message is always non-empty once the envelope passed through Normalize.
// Retryable is an explicit signal from the host; absent means false.
type ErrorEnvelope struct {
	Category      string         `json:"category"`
	ErrorType     string         `json:"errorType,omitempty"`
	Severity      string         `json:"severity,omitempty"`
	Retryable     bool           `json:"retryable,omitempty"`
	Message       string         `json:"message"`
	FullMessage   string         `json:"fullMessage,omitempty"`
	Timestamp     string         `json:"timestamp,omitempty"`
	TraceID       string         `json:"traceId,omitempty"`
	NestedDetails map[string]any `json:"nestedDetails,omitempty"`

	// Code and StatusCode are carried through from structured faults.
	Code       string `json:"code,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// DefaultMessage is used when a failure carries no readable text.
const DefaultMessage = "Unknown error occurred"

// Error implements error so envelopes can travel through ordinary error returns.
func (e *ErrorEnvelope) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Category != "" && e.Category != CategoryGeneral {
		return fmt.Sprintf("%s: %s", e.Category, e.Message)
	}
	return e.Message
}

// WithDefaults fills the fields every envelope must carry.
func (e ErrorEnvelope) WithDefaults() ErrorEnvelope {
	if e.Message == "" {
		if e.FullMessage != "" {
			e.Message = e.FullMessage
		} else {
			e.Message = DefaultMessage
		}
	}
	if e.Category == "" {
		e.Category = CategoryGeneral
	}
	if e.Severity == "" {
		e.Severity = SeverityGeneral
	}
	return e
}

// Timestamp formats t the way envelopes carry it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
