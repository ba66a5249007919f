package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fetchplan-registry/internal/app"
	"fetchplan-registry/internal/httpapi"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	var (
		addr     string
		noWatch  bool
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve fetch plans over HTTP and reload them on change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}

			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Repository.Init(); err != nil {
				return err
			}

			srv := &http.Server{
				Addr: cfg.HTTP.Addr,
				Handler: httpapi.New(a.Repository, a, httpapi.Config{
					Logger:     a.Log,
					Registerer: a.Registry,
					Gatherer:   a.Registry,
				}),
				ReadHeaderTimeout: 5 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				a.Log.WithField("addr", srv.Addr).Info("http server listening")

				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}

				return nil
			})

			if !noWatch {
				g.Go(func() error {
					return a.Watch(gctx, debounce)
				})
			}

			g.Go(func() error {
				<-gctx.Done()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()

				return srv.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "don't reload definitions on file changes")
	cmd.Flags().DurationVar(&debounce, "debounce", app.DefaultDebounce, "delay before reloading changed files")

	return cmd
}
