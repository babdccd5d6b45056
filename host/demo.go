package host

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/aponysus/hostcall/apperr"
	"github.com/aponysus/hostcall/result"
)

// Profile is the payload of the get_profile demo command.
type Profile struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Demo is a set of sample commands used by the CLI host and in tests.
type Demo struct {
	fs afero.Fs

	mu       sync.Mutex
	profiles map[int]Profile
	calls    map[string]int
}

// NewDemo creates the demo command set. fs backs read_file; nil means a
// read-only view of the OS filesystem.
func NewDemo(fs afero.Fs) *Demo {
	if fs == nil {
		fs = afero.NewReadOnlyFs(afero.NewOsFs())
	}
	return &Demo{
		fs: fs,
		profiles: map[int]Profile{
			1: {ID: 1, Name: "Ada"},
			7: {ID: 7, Name: "A"},
		},
		calls: make(map[string]int),
	}
}

// Register installs every demo command on l.
func (d *Demo) Register(l *Local) {
	l.Register("get_profile", d.getProfile)
	l.Register("test_command", d.testCommand)
	l.Register("flaky", d.flaky)
	l.Register("slow", d.slow)
	l.Register("echo", d.echo)
	l.Register("read_file", d.readFile)
}

func (d *Demo) getProfile(_ context.Context, req *Request) (any, error) {
	var args struct {
		ID int `json:"id"`
	}
	if err := req.Bind(&args); err != nil {
		return nil, apperr.Wrap(result.CategoryParsing, "DeserializationError", err)
	}
	if args.ID <= 0 {
		return nil, apperr.Validation("MissingField", "id must be a positive integer").WithDetail("field", "id")
	}

	d.mu.Lock()
	p, ok := d.profiles[args.ID]
	d.mu.Unlock()
	if !ok {
		return nil, apperr.NotFound("ResourceNotFound", "profile not found").WithDetail("id", args.ID)
	}
	return Reply{Code: result.CodeDataRetrieved, Data: p}, nil
}

func (d *Demo) testCommand(context.Context, *Request) (any, error) {
	return nil, apperr.NotFound("CategoriesNotFound", "Categories not found")
}

// flaky fails with a retryable network error for the first `failures` calls
// sharing `key`, then succeeds.
func (d *Demo) flaky(_ context.Context, req *Request) (any, error) {
	var args struct {
		Key      string `json:"key"`
		Failures int    `json:"failures"`
	}
	if err := req.Bind(&args); err != nil {
		return nil, apperr.Wrap(result.CategoryParsing, "DeserializationError", err)
	}
	if args.Key == "" {
		args.Key = "default"
	}

	d.mu.Lock()
	d.calls[args.Key]++
	n := d.calls[args.Key]
	d.mu.Unlock()

	_ = req.Events.Emit("flaky://attempt", map[string]any{"key": args.Key, "call": n, "attempt": req.Attempt})

	if n <= args.Failures {
		return nil, apperr.Network("RequestFailed", "temporarily unavailable").WithDetail("call", n)
	}
	return map[string]any{"key": args.Key, "calls": n}, nil
}

func (d *Demo) slow(ctx context.Context, req *Request) (any, error) {
	var args struct {
		Ms int `json:"ms"`
	}
	if err := req.Bind(&args); err != nil {
		return nil, apperr.Wrap(result.CategoryParsing, "DeserializationError", err)
	}

	timer := time.NewTimer(time.Duration(args.Ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return "done", nil
	case <-ctx.Done():
		return nil, apperr.Wrap(result.CategoryGeneral, "Cancelled", ctx.Err())
	}
}

func (d *Demo) echo(_ context.Context, req *Request) (any, error) {
	return req.Args, nil
}

func (d *Demo) readFile(_ context.Context, req *Request) (any, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := req.Bind(&args); err != nil {
		return nil, apperr.Wrap(result.CategoryParsing, "DeserializationError", err)
	}
	if strings.TrimSpace(args.Path) == "" {
		return nil, apperr.Validation("MissingField", "path is required").WithDetail("field", "path")
	}

	data, err := afero.ReadFile(d.fs, args.Path)
	if err != nil {
		return nil, apperr.FromIO(err)
	}
	return Reply{Code: result.CodeFileDownloaded, Data: string(data)}, nil
}
