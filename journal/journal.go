// Package journal keeps a history of finished host calls.
package journal

import (
	"context"
	"crypto/rand"
	"io"
	"log"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/aponysus/hostcall/observe"
)

// Entry is one finished call.
type Entry struct {
	ID         string            `json:"id" yaml:"id"`
	Command    string            `json:"command" yaml:"command"`
	PolicyID   string            `json:"policyId,omitempty" yaml:"policy_id,omitempty"`
	Start      time.Time         `json:"start" yaml:"start"`
	DurationMs int64             `json:"durationMs" yaml:"duration_ms"`
	Attempts   int               `json:"attempts" yaml:"attempts"`
	OK         bool              `json:"ok" yaml:"ok"`
	Category   string            `json:"category,omitempty" yaml:"category,omitempty"`
	ErrorType  string            `json:"errorType,omitempty" yaml:"error_type,omitempty"`
	Code       string            `json:"code,omitempty" yaml:"code,omitempty"`
	Message    string            `json:"message,omitempty" yaml:"message,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Retries is the number of resubmissions the call made.
func (e Entry) Retries() int {
	if e.Attempts == 0 {
		return 0
	}
	return e.Attempts - 1
}

// Sink stores entries.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// Reader lists stored entries, newest first. n <= 0 means all of them.
type Reader interface {
	Recent(ctx context.Context, n int) ([]Entry, error)
}

// Store is a Sink that can be read back.
type Store interface {
	Sink
	Reader
	io.Closer
}

// FromTimeline builds the entry for a finished call. ID is left empty.
func FromTimeline(tl observe.Timeline) Entry {
	e := Entry{
		Command:    tl.Command,
		PolicyID:   tl.PolicyID,
		Start:      tl.Start.UTC(),
		DurationMs: tl.Duration().Milliseconds(),
		Attempts:   len(tl.Attempts),
		OK:         tl.Final == nil && tl.FinalErr == nil,
	}
	if len(tl.Attributes) > 0 {
		e.Attributes = make(map[string]string, len(tl.Attributes))
		for k, v := range tl.Attributes {
			e.Attributes[k] = v
		}
	}
	switch {
	case tl.Final != nil:
		e.Category = tl.Final.Category
		e.ErrorType = tl.Final.ErrorType
		e.Code = tl.Final.Code
		e.Message = tl.Final.Message
	case tl.FinalErr != nil:
		e.Message = tl.FinalErr.Error()
	}
	return e
}

// IDs hands out monotonic ULIDs. It is safe for concurrent use.
type IDs struct {
	mu      sync.Mutex
	entropy io.Reader
}

func NewIDs() *IDs {
	return &IDs{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *IDs) New(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

// Observer records every finished call into a Sink. Write errors are logged
// and never reach the caller.
type Observer struct {
	observe.BaseObserver

	sink   Sink
	ids    *IDs
	logger *log.Logger
}

// NewObserver returns an observer writing to sink. A nil logger means
// log.Default().
func NewObserver(sink Sink, logger *log.Logger) *Observer {
	if logger == nil {
		logger = log.Default()
	}
	return &Observer{sink: sink, ids: NewIDs(), logger: logger}
}

func (o *Observer) OnSuccess(ctx context.Context, _ string, tl observe.Timeline) {
	o.record(ctx, tl)
}

func (o *Observer) OnFailure(ctx context.Context, _ string, tl observe.Timeline) {
	o.record(ctx, tl)
}

func (o *Observer) record(ctx context.Context, tl observe.Timeline) {
	e := FromTimeline(tl)
	stamp := tl.Start
	if stamp.IsZero() {
		stamp = time.Now()
	}
	e.ID = o.ids.New(stamp)

	// The call's own context may already be canceled; the entry is still wanted.
	if err := o.sink.Write(context.WithoutCancel(ctx), e); err != nil {
		o.logger.Printf("journal: write %s: %v", e.Command, err)
	}
}
