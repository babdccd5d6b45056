package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/aponysus/hostcall/bus"
	"github.com/aponysus/hostcall/host"
	"github.com/aponysus/hostcall/integrations/stdio"
)

func newHostCmd(a *app) *cobra.Command {
	var (
		listen  string
		onStdio bool
	)

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Serve the demo commands over HTTP or stdio",
		RunE: func(c *cobra.Command, _ []string) error {
			events := bus.New(bus.WithLogger(a.logger))
			local := a.localHost(events)

			if onStdio {
				return stdio.Serve(c.Context(), local, c.InOrStdin(), c.OutOrStdout(),
					stdio.ForwardEvents(events, ""), stdio.ServeLogger(a.logger))
			}
			return serveHTTP(c.Context(), listen, local, func(addr string) {
				fmt.Fprintf(c.ErrOrStderr(), "hostcall: serving on http://%s\n", addr)
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8700", "HTTP listen address")
	cmd.Flags().BoolVar(&onStdio, "stdio", false, "serve frames on stdin/stdout instead of HTTP")
	return cmd
}

// serveHTTP runs until ctx is done, then shuts down gracefully.
func serveHTTP(ctx context.Context, addr string, h host.Host, ready func(string)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: host.NewHandler(h), ReadHeaderTimeout: 10 * time.Second}
	if ready != nil {
		ready(ln.Addr().String())
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
