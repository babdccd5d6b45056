// Package bus is the in-process event side-channel between a host and its
// callers: fire-and-forget named events with optional target labels.
package bus

import (
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Wildcard subscribes to every event name.
const Wildcard = "*"

// Event is a delivered message. Target is empty for broadcasts.
type Event struct {
	ID      uint64          `json:"id"`
	Name    string          `json:"event"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Time    time.Time       `json:"ts"`
}

type Handler func(Event)

// Emitter is the publishing half of a Bus, handed to host handlers.
type Emitter interface {
	Emit(name string, payload any) error
	EmitTo(target, name string, payload any) error
}

type subscription struct {
	id      uint64
	target  string
	handler Handler
	once    bool
	fired   atomic.Bool
}

// Bus fans events out to listeners. Delivery is synchronous on the emitting
// goroutine; handler panics are recovered and logged.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	nextID atomic.Uint64
	seq    atomic.Uint64

	logger *log.Logger
	now    func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

func WithLogger(l *log.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[string][]*subscription),
		logger: log.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// ListenOption configures a single subscription.
type ListenOption func(*subscription)

// WithTarget restricts a listener to broadcasts and events sent to label.
func WithTarget(label string) ListenOption {
	return func(s *subscription) { s.target = label }
}

// Listen registers h for name and returns the function that removes it.
// The returned function is idempotent.
func (b *Bus) Listen(name string, h Handler, opts ...ListenOption) func() {
	return b.add(name, h, false, opts)
}

// Once is Listen for a single delivery. The handler runs at most once even
// under concurrent emits.
func (b *Bus) Once(name string, h Handler, opts ...ListenOption) func() {
	return b.add(name, h, true, opts)
}

func (b *Bus) Emit(name string, payload any) error {
	return b.publish("", name, payload)
}

// EmitTo delivers only to listeners registered with WithTarget(target).
func (b *Bus) EmitTo(target, name string, payload any) error {
	if target == "" {
		return fmt.Errorf("bus: empty target for event %q", name)
	}
	return b.publish(target, name, payload)
}

// Publish delivers an already-built event, keeping its payload bytes.
// Transports use it to re-emit events received from a remote host.
func (b *Bus) Publish(ev Event) {
	if ev.ID == 0 {
		ev.ID = b.seq.Add(1)
	}
	if ev.Time.IsZero() {
		ev.Time = b.now()
	}
	b.dispatch(ev)
}

func (b *Bus) add(name string, h Handler, once bool, opts []ListenOption) func() {
	if h == nil || name == "" {
		return func() {}
	}
	s := &subscription{id: b.nextID.Add(1), handler: h, once: once}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	b.mu.Lock()
	b.subs[name] = append(b.subs[name], s)
	b.mu.Unlock()

	var done atomic.Bool
	return func() {
		if done.CompareAndSwap(false, true) {
			b.remove(name, s.id)
		}
	}
}

func (b *Bus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[name]
	for i, s := range list {
		if s.id == id {
			b.subs[name] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[name]) == 0 {
		delete(b.subs, name)
	}
}

func (b *Bus) publish(target, name string, payload any) error {
	raw, err := encode(payload)
	if err != nil {
		return fmt.Errorf("bus: encode %q payload: %w", name, err)
	}
	b.Publish(Event{Name: name, Target: target, Payload: raw})
	return nil
}

func (b *Bus) dispatch(ev Event) {
	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.subs[ev.Name])+len(b.subs[Wildcard]))
	targets = append(targets, b.subs[ev.Name]...)
	if ev.Name != Wildcard {
		targets = append(targets, b.subs[Wildcard]...)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if ev.Target != "" && s.target != ev.Target {
			continue
		}
		if s.once {
			if !s.fired.CompareAndSwap(false, true) {
				continue
			}
			b.remove(ev.Name, s.id)
			b.remove(Wildcard, s.id)
		}
		b.call(s, ev)
	}
}

func (b *Bus) call(s *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("bus: listener panic on %q: %v\n%s", ev.Name, r, debug.Stack())
		}
	}()
	s.handler(ev)
}

func encode(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(p)
	}
}

// Subscribe returns a channel receiving events for name, buffered to buf.
// Events are dropped when the channel is full. The returned function
// unsubscribes and closes the channel.
func (b *Bus) Subscribe(name string, buf int) (<-chan Event, func()) {
	ch := make(chan Event, buf)
	var mu sync.Mutex
	closed := false

	unlisten := b.Listen(name, func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- ev:
		default:
		}
	})
	return ch, func() {
		unlisten()
		mu.Lock()
		if !closed {
			closed = true
			close(ch)
		}
		mu.Unlock()
	}
}

// Decode unmarshals an event payload into T.
func Decode[T any](ev Event) (T, error) {
	var v T
	if len(ev.Payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(ev.Payload, &v); err != nil {
		return v, fmt.Errorf("bus: decode %q payload: %w", ev.Name, err)
	}
	return v, nil
}
