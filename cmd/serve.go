package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BDNK1/plugrun/internal/runstate"
	"github.com/BDNK1/plugrun/internal/scheduler"
	"github.com/BDNK1/plugrun/internal/server"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr        string
		noScheduler bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin API and run subscribed plugs on schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withEnvironment(ctx, opts, func(env *environment) error {
				if addr != "" {
					env.cfg.Server.Addr = addr
				}
				if noScheduler {
					env.cfg.Scheduler.Enabled = false
				}
				return serve(ctx, env)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Override the configured listen address")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Serve the API without running subscriptions")
	return cmd
}

func serve(ctx context.Context, env *environment) error {
	l := env.l

	store, err := runstate.Open(ctx, env.cfg.Store, l)
	if err != nil {
		return fmt.Errorf("failed to open run state store: %w", err)
	}
	defer store.Close()

	var driver *scheduler.Driver
	if env.cfg.Scheduler.Enabled {
		driver, err = scheduler.New(env.app.Registry, env.app.Executor, store, env.cfg.Subscriptions, l)
		if err != nil {
			return err
		}
		if err := driver.Start(ctx, env.cfg.Scheduler.Spec); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              env.cfg.Server.Addr,
		Handler:           server.New(env.app.Registry, env.app.Executor, store, l).Router(env.cfg.Server.Mode),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("Starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		l.Info("Shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if driver != nil {
		if err := driver.Stop(shutdownCtx); err != nil {
			l.Error("Scheduler did not stop cleanly", "error", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Join(serveErr, fmt.Errorf("http shutdown: %w", err))
	}
	return serveErr
}
