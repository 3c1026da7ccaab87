package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/engage/internal/api"
)

// shutdownGrace bounds how long in-flight requests get after a signal.
const shutdownGrace = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reaction HTTP API",
		Long: `Serve the reaction HTTP API and run the background healer that recounts
posts whose counter write failed.

Example:
  engage serve --config engage.yaml
  ENGAGE_HTTP_JWT_SECRET=s3cret engage serve --addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides http.addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	return withBackend(opts.RootOptions, cmd, func(parentCtx context.Context, b *backend) error {
		ctx, cancel := context.WithCancel(parentCtx)
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		go func() {
			select {
			case sig := <-sigChan:
				b.logger.Info("received signal, shutting down", "signal", sig)
				cancel()
			case <-ctx.Done():
			}
		}()

		addr := opts.Addr
		if addr == "" {
			addr = b.cfg.HTTP.Addr
		}

		srv := api.New(b.svc,
			api.WithJWTSecret(b.cfg.HTTP.JWTSecret),
			api.WithRequestTimeout(b.cfg.HTTP.RequestTimeout),
			api.WithLogger(b.logger),
		)

		healerDone := make(chan struct{})
		go func() {
			defer close(healerDone)
			_ = b.svc.RunHealer(ctx, b.cfg.Heal.Interval)
		}()

		listenErr := make(chan error, 1)
		go func() {
			listenErr <- srv.Listen(addr)
		}()
		fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s. Press Ctrl-C to stop.\n", addr)

		var serveErr error
		select {
		case err := <-listenErr:
			if err != nil {
				serveErr = WrapExitError(ExitCommandError, "http server error", err)
			}
			cancel()
		case <-ctx.Done():
			shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				serveErr = WrapExitError(ExitFailure, "shutdown error", err)
			}
		}

		<-healerDone
		b.logger.Info("server stopped gracefully")
		return serveErr
	})
}
