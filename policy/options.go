package policy

import "time"

// Option mutates a policy under construction.
type Option func(*Policy)

// New builds a normalized policy for command. If the options produce an invalid
// policy, the default policy is returned instead.
func New(command string, opts ...Option) Policy {
	p := Default(command)
	p.Meta.Source = PolicySourceCall
	for _, opt := range opts {
		if opt != nil {
			opt(&p)
		}
	}
	normalized, err := p.Normalize()
	if err != nil {
		def, _ := Default(command).Normalize()
		return def
	}
	return normalized
}

func Timeout(d time.Duration) Option {
	return func(p *Policy) { p.Timeout = d }
}

// MaxRetries sets the retry count. Normalize clamps it to MaxRetriesLimit, so
// MaxRetries(20) retries ten times.
func MaxRetries(n int) Option {
	return func(p *Policy) { p.Retry.MaxRetries = n }
}

func RetryDelay(d time.Duration) Option {
	return func(p *Policy) { p.Retry.RetryDelay = d }
}

func Multiplier(m float64) Option {
	return func(p *Policy) { p.Retry.Multiplier = m }
}

func MaxDelay(d time.Duration) Option {
	return func(p *Policy) { p.Retry.MaxDelay = d }
}

func Jitter(k JitterKind) Option {
	return func(p *Policy) { p.Retry.Jitter = k }
}

func Classifier(name string) Option {
	return func(p *Policy) { p.Retry.Classifier = name }
}

func Budget(name string, cost int) Option {
	return func(p *Policy) { p.Retry.Budget = BudgetRef{Name: name, Cost: cost} }
}

// Circuit enables a consecutive-failure breaker for the command.
func Circuit(threshold int, cooldown time.Duration) Option {
	return func(p *Policy) {
		p.Circuit = CircuitPolicy{Enabled: true, Threshold: threshold, Cooldown: cooldown}
	}
}

// NoRetry disables resubmission entirely.
func NoRetry() Option {
	return MaxRetries(0)
}
