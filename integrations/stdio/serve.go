package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/aponysus/hostcall/bus"
	"github.com/aponysus/hostcall/classify"
	"github.com/aponysus/hostcall/host"
)

type server struct {
	h      host.Host
	w      io.Writer
	wmu    sync.Mutex
	logger *log.Logger

	events *bus.Bus
	target string
}

// ServeOption configures Serve.
type ServeOption func(*server)

// ForwardEvents writes every broadcast published on b, plus the events
// addressed to target, as event frames.
func ForwardEvents(b *bus.Bus, target string) ServeOption {
	return func(s *server) {
		s.events = b
		s.target = target
	}
}

func ServeLogger(l *log.Logger) ServeOption {
	return func(s *server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Serve answers requests read from r by invoking h, writing responses to w.
// Requests are handled concurrently. Serve returns when r reaches EOF, after
// every in-flight request has been answered; the contexts handed to h are
// canceled when ctx is.
func Serve(ctx context.Context, h host.Host, r io.Reader, w io.Writer, opts ...ServeOption) error {
	s := &server{h: h, w: w, logger: log.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.events != nil {
		var listenOpts []bus.ListenOption
		if s.target != "" {
			listenOpts = append(listenOpts, bus.WithTarget(s.target))
		}
		unlisten := s.events.Listen(bus.Wildcard, func(ev bus.Event) {
			if err := s.send(response{Event: &ev}); err != nil {
				s.logger.Printf("stdio: forward event %q: %v", ev.Name, err)
			}
		}, listenOpts...)
		defer unlisten()
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrame)
	for sc.Scan() {
		var req request
		if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
			s.logger.Printf("stdio: dropping malformed request: %v", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, req)
		}()
	}

	if err := sc.Err(); err != nil {
		return fmt.Errorf("stdio: read requests: %w", err)
	}
	return nil
}

func (s *server) handle(ctx context.Context, req request) {
	resp := response{ID: req.ID}

	raw, err := s.h.Invoke(ctx, req.Command, req.Args)
	if err != nil {
		env := classify.Normalize(err)
		resp.Error = &env
	} else {
		resp.Reply = raw
	}

	if err := s.send(resp); err != nil {
		s.logger.Printf("stdio: answer %s: %v", req.Command, err)
	}
}

func (s *server) send(resp response) error {
	line, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err = s.w.Write(line)
	return err
}
