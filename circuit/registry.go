package circuit

import (
	"sort"
	"sync"

	"github.com/aponysus/hostcall/policy"
)

// Registry holds one breaker per host command.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	opts     []Option
}

// NewRegistry creates an empty registry. opts are applied to every breaker it creates.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		opts:     opts,
	}
}

// Get returns the breaker for command, creating it from cfg on first use.
// It returns nil when cfg is disabled.
func (r *Registry) Get(command string, cfg policy.CircuitPolicy) CircuitBreaker {
	if r == nil || !cfg.Enabled {
		return nil
	}

	r.mu.RLock()
	b, ok := r.breakers[command]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[command]; ok {
		return b
	}
	if r.breakers == nil {
		r.breakers = make(map[string]*Breaker)
	}
	b = NewBreaker(cfg.Threshold, cfg.Cooldown, r.opts...)
	r.breakers[command] = b
	return b
}

// Reset closes the breaker for command, if one exists.
func (r *Registry) Reset(command string) {
	if r == nil {
		return
	}
	r.mu.RLock()
	b, ok := r.breakers[command]
	r.mu.RUnlock()
	if ok {
		b.Reset()
	}
}

// Status is a point-in-time view of one breaker.
type Status struct {
	Command  string
	State    State
	Failures int
}

// Snapshot lists every known breaker ordered by command.
func (r *Registry) Snapshot() []Status {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	out := make([]Status, 0, len(r.breakers))
	for cmd, b := range r.breakers {
		out = append(out, Status{Command: cmd, State: b.State(), Failures: b.Failures()})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}
