package invoke

import (
	"fmt"

	"github.com/aponysus/hostcall/result"
)

// PanicError reports a panic recovered from a host, provider, classifier or budget.
type PanicError struct {
	Component string
	Command   string
	Value     any
	Stack     []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("hostcall: panic in %s for %s: %v", e.Component, e.Command, e.Value)
}

// Envelope classifies the panic as a critical system failure.
func (e *PanicError) Envelope() result.ErrorEnvelope {
	return result.ErrorEnvelope{
		Category:    result.CategorySystem,
		ErrorType:   "Panic",
		Severity:    result.SeverityCritical,
		Message:     fmt.Sprintf("panic in %s: %v", e.Component, e.Value),
		FullMessage: e.Error(),
		Code:        result.CodeInternalError,
	}
}
