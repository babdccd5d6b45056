package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"

	"github.com/google/uuid"

	"github.com/aponysus/hostcall/bus"
)

// Client is a host.Host speaking the frame protocol. Requests are correlated
// with responses by a random id, so any number of calls may be in flight.
type Client struct {
	w      io.Writer
	wmu    sync.Mutex
	closer io.Closer

	events *bus.Bus
	logger *log.Logger

	mu      sync.Mutex
	pending map[string]chan response
	err     error

	done chan struct{}
	cmd  *exec.Cmd
}

// Option configures a Client.
type Option func(*Client)

// WithEvents publishes event frames received from the host on b.
func WithEvents(b *bus.Bus) Option {
	return func(c *Client) {
		c.events = b
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient starts reading responses from r. Requests are written to w, which
// is closed by Close.
func NewClient(r io.Reader, w io.WriteCloser, opts ...Option) *Client {
	c := &Client{
		w:       w,
		closer:  w,
		logger:  log.Default(),
		pending: make(map[string]chan response),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	go c.readLoop(r)
	return c
}

// Spawn starts name as a child process serving frames on its stdio.
func Spawn(ctx context.Context, name string, args []string, opts ...Option) (*Client, error) {
	return Start(exec.CommandContext(ctx, name, args...), opts...)
}

// Start runs cmd and connects to its stdin and stdout. The child's stderr is
// passed through unless cmd.Stderr is already set.
func Start(cmd *exec.Cmd, opts ...Option) (*Client, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio: stdout pipe: %w", err)
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("stdio: start %s: %w", cmd.Path, err)
	}

	c := NewClient(stdout, stdin, opts...)
	c.cmd = cmd
	return c, nil
}

// Invoke sends one request and waits for its response, ctx, or the connection
// to end, whichever comes first.
func (c *Client) Invoke(ctx context.Context, command string, args map[string]any) ([]byte, error) {
	id := uuid.NewString()
	ch := make(chan response, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, &TransportError{Command: command, Err: err}
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(request{ID: id, Command: command, Args: args}); err != nil {
		c.forget(id)
		return nil, &TransportError{Command: command, Err: err}
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, &RemoteError{Command: command, Reply: *resp.Error}
		}
		return resp.Reply, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case <-c.done:
		return nil, &TransportError{Command: command, Err: c.readErr()}
	}
}

// Close closes the request stream and waits for the host to hang up. For a
// spawned child it also waits for the process to exit.
func (c *Client) Close() error {
	c.wmu.Lock()
	err := c.closer.Close()
	c.wmu.Unlock()

	<-c.done
	if c.cmd != nil {
		if werr := c.cmd.Wait(); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func (c *Client) write(req request) error {
	line, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	line = append(line, '\n')

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err = c.w.Write(line)
	return err
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) readLoop(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrame)

	for sc.Scan() {
		var resp response
		if err := json.Unmarshal(sc.Bytes(), &resp); err != nil {
			c.logger.Printf("stdio: dropping malformed frame: %v", err)
			continue
		}

		if resp.Event != nil {
			if c.events != nil {
				c.events.Publish(*resp.Event)
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}

	err := sc.Err()
	if err == nil || errors.Is(err, io.EOF) {
		err = ErrClosed
	}
	c.mu.Lock()
	c.err = err
	c.pending = make(map[string]chan response)
	c.mu.Unlock()
	close(c.done)
}
