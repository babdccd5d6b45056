package budget

import (
	"context"

	"github.com/aponysus/hostcall/policy"
)

// Standard Decision.Reason strings.
const (
	ReasonAllowed        = "allowed"
	ReasonNoBudget       = "no_budget"
	ReasonBudgetNil      = "budget_nil"
	ReasonBudgetNotFound = "budget_not_found"
	ReasonBudgetDenied   = "budget_denied"
	ReasonPanicInBudget  = "panic_in_budget"
)

// Decision is the result of a budget check.
type Decision struct {
	Allowed bool
	Reason  string

	// Release, when non-nil, is called exactly once after the allowed retry finishes.
	Release func()
}

// Budget gates retries so a failing host is not hammered by every call site at once.
// Only retries are gated; the first attempt of a call always proceeds.
type Budget interface {
	AllowRetry(ctx context.Context, command string, retry int, ref policy.BudgetRef) Decision
}
