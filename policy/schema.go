package policy

import (
	"time"
)

type JitterKind string

const (
	JitterNone  JitterKind = "none"
	JitterFull  JitterKind = "full"
	JitterEqual JitterKind = "equal"
)

// BudgetRef names a retry budget registered with the executor.
type BudgetRef struct {
	Name string `json:"name,omitempty"`
	Cost int    `json:"cost,omitempty"`
}

// RetryPolicy drives the resubmission loop.
//
// The delay before retry n (0-based) is RetryDelay * Multiplier^n, capped by MaxDelay
// when MaxDelay > 0.
type RetryPolicy struct {
	// MaxRetries is clamped to [0, MaxRetriesLimit] by Normalize.
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`
	Multiplier float64       `json:"multiplier"`
	MaxDelay   time.Duration `json:"max_delay,omitempty"`
	Jitter     JitterKind    `json:"jitter"`

	Classifier string    `json:"classifier,omitempty"`
	Budget     BudgetRef `json:"budget,omitempty"`
}

type CircuitPolicy struct {
	Enabled   bool          `json:"enabled"`
	Threshold int           `json:"threshold"` // Consecutive failures
	Cooldown  time.Duration `json:"cooldown"`
}

type PolicySource string

const (
	PolicySourceUnknown PolicySource = "unknown"
	PolicySourceStatic  PolicySource = "static"
	PolicySourceCall    PolicySource = "call"
	PolicySourceDefault PolicySource = "default"
)

type NormalizationInfo struct {
	Changed       bool     `json:"-"`
	ChangedFields []string `json:"-"`
}

type Metadata struct {
	Source        PolicySource      `json:"-"`
	Normalization NormalizationInfo `json:"-"`
}

// Policy is the effective invocation policy for one command.
//
// Timeout is the per-attempt race; zero disables it.
type Policy struct {
	Command string        `json:"command"`
	ID      string        `json:"id,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`
	Retry   RetryPolicy   `json:"retry"`
	Circuit CircuitPolicy `json:"circuit"`

	Meta Metadata `json:"-"`
}

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1 * time.Second
	DefaultMultiplier = 2.0
)

// Default returns the policy used when nothing else is configured:
// three retries starting at one second and doubling, no timeout, no circuit.
func Default(command string) Policy {
	return Policy{
		Command: command,
		Retry: RetryPolicy{
			MaxRetries: DefaultMaxRetries,
			RetryDelay: DefaultRetryDelay,
			Multiplier: DefaultMultiplier,
			Jitter:     JitterNone,
			Budget: BudgetRef{
				Cost: 1,
			},
		},
		Meta: Metadata{
			Source: PolicySourceDefault,
		},
	}
}

// MaxRetriesLimit is the largest retry count Normalize lets through.
const MaxRetriesLimit = 10

const (
	minDelayFloor       = 1 * time.Millisecond
	maxDelayCeiling     = 5 * time.Minute
	minTimeoutFloor     = 1 * time.Millisecond
	maxMultiplier       = 10.0
	minCircuitThreshold = 1
	minCircuitCooldown  = 100 * time.Millisecond
)

// Normalize fills defaults and clamps out-of-range values. The returned policy
// records which fields changed. An unknown jitter kind is a hard error.
func (p Policy) Normalize() (Policy, error) {
	normalized := p
	normalized.Meta.Normalization.ChangedFields = append([]string(nil), p.Meta.Normalization.ChangedFields...)
	norm := &normalized.Meta.Normalization

	markChanged := func(field string) {
		norm.Changed = true
		for _, f := range norm.ChangedFields {
			if f == field {
				return
			}
		}
		norm.ChangedFields = append(norm.ChangedFields, field)
	}

	if normalized.Retry.MaxRetries < 0 {
		normalized.Retry.MaxRetries = 0
		markChanged("retry.max_retries")
	} else if normalized.Retry.MaxRetries > MaxRetriesLimit {
		normalized.Retry.MaxRetries = MaxRetriesLimit
		markChanged("retry.max_retries")
	}

	if normalized.Retry.RetryDelay <= 0 {
		normalized.Retry.RetryDelay = DefaultRetryDelay
		markChanged("retry.retry_delay")
	}
	if normalized.Retry.RetryDelay < minDelayFloor {
		normalized.Retry.RetryDelay = minDelayFloor
		markChanged("retry.retry_delay")
	}

	if normalized.Retry.MaxDelay < 0 {
		normalized.Retry.MaxDelay = 0
		markChanged("retry.max_delay")
	}
	if normalized.Retry.MaxDelay > maxDelayCeiling {
		normalized.Retry.MaxDelay = maxDelayCeiling
		markChanged("retry.max_delay")
	}
	if normalized.Retry.MaxDelay > 0 && normalized.Retry.MaxDelay < normalized.Retry.RetryDelay {
		normalized.Retry.MaxDelay = normalized.Retry.RetryDelay
		markChanged("retry.max_delay")
	}

	if normalized.Retry.Multiplier == 0 {
		normalized.Retry.Multiplier = DefaultMultiplier
		markChanged("retry.multiplier")
	}
	if normalized.Retry.Multiplier < 1 {
		normalized.Retry.Multiplier = 1
		markChanged("retry.multiplier")
	} else if normalized.Retry.Multiplier > maxMultiplier {
		normalized.Retry.Multiplier = maxMultiplier
		markChanged("retry.multiplier")
	}

	switch normalized.Retry.Jitter {
	case "":
		normalized.Retry.Jitter = JitterNone
		markChanged("retry.jitter")
	case JitterNone, JitterFull, JitterEqual:
	default:
		return Policy{}, &NormalizeError{Field: "retry.jitter", Value: string(normalized.Retry.Jitter)}
	}

	if normalized.Timeout < 0 {
		normalized.Timeout = 0
		markChanged("timeout")
	}
	if normalized.Timeout > 0 && normalized.Timeout < minTimeoutFloor {
		normalized.Timeout = minTimeoutFloor
		markChanged("timeout")
	}

	if normalized.Retry.Budget.Cost < 1 {
		normalized.Retry.Budget.Cost = 1
		markChanged("retry.budget.cost")
	}

	if !normalized.Circuit.Enabled {
		return normalized, nil
	}

	if normalized.Circuit.Threshold <= 0 {
		normalized.Circuit.Threshold = 5
		markChanged("circuit.threshold")
	}
	if normalized.Circuit.Threshold < minCircuitThreshold {
		normalized.Circuit.Threshold = minCircuitThreshold
		markChanged("circuit.threshold")
	}

	if normalized.Circuit.Cooldown <= 0 {
		normalized.Circuit.Cooldown = 10 * time.Second
		markChanged("circuit.cooldown")
	}
	if normalized.Circuit.Cooldown < minCircuitCooldown {
		normalized.Circuit.Cooldown = minCircuitCooldown
		markChanged("circuit.cooldown")
	}

	return normalized, nil
}

// ParseJitter accepts the textual jitter kinds used in config files.
func ParseJitter(s string) (JitterKind, error) {
	switch k := JitterKind(s); k {
	case "":
		return JitterNone, nil
	case JitterNone, JitterFull, JitterEqual:
		return k, nil
	default:
		return "", &NormalizeError{Field: "retry.jitter", Value: s}
	}
}
