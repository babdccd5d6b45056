package policy

import (
	"errors"
	"fmt"
)

// ErrProviderUnavailable indicates the provider could not be used.
var ErrProviderUnavailable = errors.New("hostcall: policy provider unavailable")

// NormalizeError indicates a fundamentally invalid policy configuration.
type NormalizeError struct {
	Field string
	Value string
}

func (e *NormalizeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("hostcall: invalid policy config: %s=%q", e.Field, e.Value)
}
