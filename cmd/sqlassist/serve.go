package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ruslano69/sqlassist/internal/api"
	"github.com/ruslano69/sqlassist/internal/infra"
	"github.com/ruslano69/sqlassist/pkg/security"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the report scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Graceful shutdown on SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			inf, err := open(ctx, g, infra.Options{Scheduler: true})
			if err != nil {
				return err
			}
			defer inf.Close()

			cfg := inf.Config
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if g.dev {
				log.Warn().Msg("DEV MODE: in-process miniredis, history is lost on exit")
			}
			if security.IsAdmin() {
				log.Warn().Msg("running as root: sqlassist only needs read access to its sources")
			}

			if inf.Scheduler != nil {
				if err := inf.Scheduler.Start(ctx); err != nil {
					return fmt.Errorf("scheduler: %w", err)
				}
			}

			srv := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      api.NewRouter(inf.Deps()),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().
					Str("addr", cfg.Server.Addr).
					Bool("dev", g.dev).
					Str("config", g.configPath).
					Msg("sqlassist started")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				return fmt.Errorf("server error: %w", err)
			}
			log.Info().Msg("shutting down...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("graceful shutdown error")
			}
			log.Info().Msg("stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address override (e.g. :3000)")
	return cmd
}
