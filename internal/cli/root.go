// Package cli implements the hostcall command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aponysus/hostcall/bus"
	"github.com/aponysus/hostcall/config"
	"github.com/aponysus/hostcall/host"
	hchttp "github.com/aponysus/hostcall/integrations/http"
	"github.com/aponysus/hostcall/integrations/stdio"
)

type app struct {
	configPath string
	verbose    bool

	cfg    config.Config
	fs     afero.Fs
	logger *log.Logger
}

// NewRoot builds the hostcall command tree.
func NewRoot() *cobra.Command {
	a := &app{fs: afero.NewOsFs()}

	cmd := &cobra.Command{
		Use:          "hostcall",
		Short:        "Invoke host commands with timeouts, retries and normalized errors",
		SilenceUsage: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.LoadFs(a.fs, a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg

			out := io.Discard
			if a.verbose {
				out = c.ErrOrStderr()
			}
			a.logger = log.New(out, "", log.LstdFlags)
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log lifecycle events to stderr")

	cmd.AddCommand(newInvokeCmd(a))
	cmd.AddCommand(newHostCmd(a))
	cmd.AddCommand(newJournalCmd(a))
	return cmd
}

// localHost is the in-process demo host, publishing its events on events.
func (a *app) localHost(events *bus.Bus) *host.Local {
	l := host.NewLocal(
		host.WithShape(a.cfg.ReplyShape()),
		host.WithEvents(events),
		host.WithLogger(a.logger),
	)
	host.NewDemo(nil).Register(l)
	return l
}

// connect returns the configured host and the function releasing it.
func (a *app) connect(ctx context.Context, events *bus.Bus) (host.Host, func() error, error) {
	noop := func() error { return nil }

	switch a.cfg.Transport {
	case config.TransportHTTP:
		return hchttp.NewClient(a.cfg.Endpoint), noop, nil
	case config.TransportStdio:
		client, err := stdio.Spawn(ctx, a.cfg.HostCmd[0], a.cfg.HostCmd[1:],
			stdio.WithEvents(events), stdio.WithLogger(a.logger))
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	case config.TransportLocal:
		return a.localHost(events), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", a.cfg.Transport)
	}
}

// overrideTransport applies --transport, --endpoint and --host-cmd.
func (a *app) overrideTransport(transport, endpoint, hostCmd string) error {
	if transport != "" {
		a.cfg.Transport = transport
	}
	if endpoint != "" {
		a.cfg.Endpoint = endpoint
	}
	if hostCmd != "" {
		a.cfg.HostCmd = strings.Fields(hostCmd)
	}
	return a.cfg.Validate()
}
