package policy

import (
	"context"
	"strings"
	"sync"
)

// Provider supplies the effective policy for a command.
type Provider interface {
	// PolicyFor returns the policy for command.
	//
	// Providers may return a usable policy alongside a non-nil error to signal
	// a fallback.
	PolicyFor(ctx context.Context, command string) (Policy, error)
}

// StaticProvider is an in-process Provider backed by a map and an optional default.
type StaticProvider struct {
	mu       sync.RWMutex
	policies map[string]Policy
	def      *Policy
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{policies: make(map[string]Policy)}
}

// Set installs the policy for command, replacing any previous one.
func (p *StaticProvider) Set(command string, pol Policy) {
	command = strings.TrimSpace(command)
	if command == "" {
		return
	}
	p.mu.Lock()
	if p.policies == nil {
		p.policies = make(map[string]Policy)
	}
	p.policies[command] = pol
	p.mu.Unlock()
}

// SetDefault installs the policy used for commands without their own entry.
func (p *StaticProvider) SetDefault(pol Policy) {
	p.mu.Lock()
	p.def = &pol
	p.mu.Unlock()
}

func (p *StaticProvider) PolicyFor(_ context.Context, command string) (Policy, error) {
	if p != nil {
		p.mu.RLock()
		pol, ok := p.policies[command]
		def := p.def
		p.mu.RUnlock()

		if ok {
			return stamp(pol, command).Normalize()
		}
		if def != nil {
			return stamp(*def, command).Normalize()
		}
	}
	return Default(command).Normalize()
}

func stamp(pol Policy, command string) Policy {
	pol.Command = command
	if pol.Meta.Source == "" || pol.Meta.Source == PolicySourceUnknown {
		pol.Meta.Source = PolicySourceStatic
	}
	return pol
}
