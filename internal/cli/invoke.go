package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aponysus/hostcall/bus"
	"github.com/aponysus/hostcall/invoke"
	"github.com/aponysus/hostcall/journal"
	"github.com/aponysus/hostcall/observe"
	"github.com/aponysus/hostcall/result"
)

// errCallFailed marks a call whose failure was already rendered.
var errCallFailed = errors.New("call failed")

type invokeFlags struct {
	pairs      []string
	argsJSON   string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	output     string
	events     bool

	transport string
	endpoint  string
	hostCmd   string
}

// outcome is what `hostcall invoke` prints.
type outcome struct {
	OK         bool                         `json:"ok"`
	Command    string                       `json:"command"`
	Retries    int                          `json:"retries"`
	DurationMs int64                        `json:"durationMs"`
	Success    *result.SuccessEnvelope[any] `json:"success,omitempty"`
	Error      *result.ErrorEnvelope        `json:"error,omitempty"`
}

func newInvokeCmd(a *app) *cobra.Command {
	f := &invokeFlags{}

	cmd := &cobra.Command{
		Use:   "invoke <command>",
		Short: "Invoke a host command and print its outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runInvoke(c, a, f, args[0])
		},
	}

	cmd.Flags().StringArrayVar(&f.pairs, "arg", nil, "argument as key=value; values are parsed as JSON when possible")
	cmd.Flags().StringVar(&f.argsJSON, "args", "", "arguments as a JSON object")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "per-attempt timeout (0 uses the configured policy)")
	cmd.Flags().IntVar(&f.retries, "retries", -1, "maximum retries (-1 uses the configured policy)")
	cmd.Flags().DurationVar(&f.retryDelay, "retry-delay", 0, "delay before the first retry")
	cmd.Flags().StringVarP(&f.output, "output", "o", "json", "output format: json or yaml")
	cmd.Flags().BoolVar(&f.events, "events", false, "print host events to stderr")
	cmd.Flags().StringVar(&f.transport, "transport", "", "local, http or stdio")
	cmd.Flags().StringVar(&f.endpoint, "endpoint", "", "base URL of an http host")
	cmd.Flags().StringVar(&f.hostCmd, "host-cmd", "", "command line of a stdio host")
	return cmd
}

func runInvoke(c *cobra.Command, a *app, f *invokeFlags, command string) error {
	if err := a.overrideTransport(f.transport, f.endpoint, f.hostCmd); err != nil {
		return err
	}
	args, err := parseArgs(f.argsJSON, f.pairs)
	if err != nil {
		return err
	}

	ctx := c.Context()
	events := bus.New(bus.WithLogger(a.logger))
	if f.events {
		errOut := c.ErrOrStderr()
		events.Listen(bus.Wildcard, func(ev bus.Event) {
			fmt.Fprintf(errOut, "event %s %s\n", ev.Name, ev.Payload)
		})
	}

	h, release, err := a.connect(ctx, events)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			a.logger.Printf("hostcall: release host: %v", err)
		}
	}()

	observers := []observe.Observer{observe.LogObserver{Logger: a.logger}}
	store, err := a.cfg.OpenJournal(a.fs)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		observers = append(observers, journal.NewObserver(store, a.logger))
	}

	exec := invoke.NewDefaultExecutor(
		invoke.WithHost(h),
		invoke.WithProvider(a.cfg.Provider()),
		invoke.WithObserver(observe.MultiObserver{Observers: observers}),
		invoke.WithLogger(a.logger),
	)

	var opts []invoke.Option
	if configured := a.cfg.Args(command); configured != nil {
		opts = append(opts, invoke.WithArgs(configured))
	}
	if f.timeout > 0 {
		opts = append(opts, invoke.WithTimeout(f.timeout))
	}
	if f.retries >= 0 {
		delay := f.retryDelay
		if delay <= 0 {
			delay = a.cfg.Policy(command).Retry.RetryDelay
		}
		opts = append(opts, invoke.WithRetry(f.retries, delay))
	} else if f.retryDelay > 0 {
		opts = append(opts, invoke.WithRetry(a.cfg.Policy(command).Retry.MaxRetries, f.retryDelay))
	}

	r, tl, callErr := invoke.InvokeWithTimeline[any](ctx, exec, command, args, opts...)

	out := outcome{
		OK:         r.IsOk(),
		Command:    command,
		Retries:    tl.Retries(),
		DurationMs: tl.Duration().Milliseconds(),
	}
	if env, ok := r.Value(); ok {
		out.Success = &env
	}
	if env, ok := r.Err(); ok {
		out.Error = &env
	}
	if err := render(c.OutOrStdout(), f.output, out); err != nil {
		return err
	}
	if callErr != nil {
		return fmt.Errorf("%s: %w", command, errCallFailed)
	}
	return nil
}

// parseArgs merges --args and --arg; --arg wins on conflicts.
func parseArgs(raw string, pairs []string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, fmt.Errorf("--args: %w", err)
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--arg %q: want key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		args[key] = v
	}
	return args, nil
}
