package host

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/aponysus/hostcall/apperr"
	"github.com/aponysus/hostcall/bus"
	"github.com/aponysus/hostcall/observe"
	"github.com/aponysus/hostcall/result"
	"github.com/aponysus/hostcall/wire"
)

// Local is an in-process Host backed by a command registry.
type Local struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	shape  wire.Shape
	events bus.Emitter
	logger *log.Logger
	now    func() time.Time
}

type LocalOption func(*Local)

// WithShape selects the reply shape. The default is wire.ShapeTagged.
func WithShape(s wire.Shape) LocalOption {
	return func(l *Local) { l.shape = s }
}

// WithEvents hands e to every handler as Request.Events.
func WithEvents(e bus.Emitter) LocalOption {
	return func(l *Local) {
		if e != nil {
			l.events = e
		}
	}
}

func WithLogger(logger *log.Logger) LocalOption {
	return func(l *Local) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithClock(now func() time.Time) LocalOption {
	return func(l *Local) {
		if now != nil {
			l.now = now
		}
	}
}

func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		handlers: make(map[string]Handler),
		shape:    wire.ShapeTagged,
		events:   nopEmitter{},
		logger:   log.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Register installs h for command, replacing any previous handler.
func (l *Local) Register(command string, h Handler) {
	command = strings.TrimSpace(command)
	if command == "" || h == nil {
		return
	}
	l.mu.Lock()
	l.handlers[command] = h
	l.mu.Unlock()
}

// Commands lists registered command names in order.
func (l *Local) Commands() []string {
	l.mu.RLock()
	out := make([]string, 0, len(l.handlers))
	for name := range l.handlers {
		out = append(out, name)
	}
	l.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Invoke runs the handler for command and encodes its outcome in the
// configured shape. Handler errors and panics become error replies; only an
// unknown command or an encoding failure is returned as an error.
func (l *Local) Invoke(ctx context.Context, command string, args map[string]any) ([]byte, error) {
	l.mu.RLock()
	h, ok := l.handlers[command]
	l.mu.RUnlock()
	if !ok {
		return nil, &UnknownCommandError{Command: command, Suggestion: l.suggest(command)}
	}

	req := &Request{Command: command, Args: args, Events: l.events}
	if req.Args == nil {
		req.Args = map[string]any{}
	}
	if info, ok := observe.AttemptFromContext(ctx); ok {
		req.Attempt = info.Attempt
	}

	start := l.now()
	data, err := l.run(ctx, h, req)
	elapsed := l.now().Sub(start)

	var r result.Result[any]
	if err != nil {
		r = result.Failure[any](apperr.Details(err, ""))
	} else {
		r = result.Success(l.success(data, start, elapsed))
	}

	raw, encErr := wire.Encode(l.shape, r)
	if encErr != nil {
		return nil, fmt.Errorf("host: encode reply for %s: %w", command, encErr)
	}
	return raw, nil
}

func (l *Local) run(ctx context.Context, h Handler, req *Request) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Printf("host: panic in %s: %v\n%s", req.Command, r, debug.Stack())
			data = nil
			err = apperr.System("Panic", fmt.Sprintf("command %s panicked: %v", req.Command, r))
		}
	}()
	return h(ctx, req)
}

func (l *Local) success(data any, start time.Time, elapsed time.Duration) result.SuccessEnvelope[any] {
	env := result.SuccessEnvelope[any]{
		Code:            result.CodeOperationSuccessful,
		Data:            data,
		Timestamp:       result.Timestamp(start),
		ExecutionTimeMs: float64(elapsed) / float64(time.Millisecond),
	}
	if p, ok := data.(*Reply); ok && p != nil {
		data = *p
	}
	if rep, ok := data.(Reply); ok {
		env.Data = rep.Data
		env.Message = rep.Message
		env.Metadata = rep.Metadata
		if rep.Code != "" {
			env.Code = rep.Code
		}
	}
	return env
}

// suggest returns the closest registered command within a small edit distance.
func (l *Local) suggest(command string) string {
	if command == "" {
		return ""
	}
	best, bestDist := "", -1
	for _, name := range l.Commands() {
		d := levenshtein.ComputeDistance(command, name)
		if bestDist < 0 || d < bestDist {
			best, bestDist = name, d
		}
	}
	limit := len(command) / 3
	if limit < 2 {
		limit = 2
	}
	if bestDist < 0 || bestDist > limit {
		return ""
	}
	return best
}
