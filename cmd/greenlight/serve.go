// cmd/greenlight/serve.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FairForge/greenlight/internal/api"
	"github.com/FairForge/greenlight/internal/config"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API for switches, status and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			return serve(cmd.Context(), a, listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":8080", "address for the HTTP API")

	return cmd
}

func serve(ctx context.Context, a *app, listen string) error {
	// Startup hygiene: clear every lock left behind by a crashed run,
	// then compare persisted state with the proxy's live view.
	expired, err := a.locks.ForceExpireAll()
	if err != nil {
		a.logger.Warn("could not clear stale locks", zap.Error(err))
	} else if expired > 0 {
		a.logger.Info("cleared leftover locks", zap.Int("count", expired))
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	for _, problem := range a.orch.VerifyConsistency(checkCtx, a.cfg.Teams) {
		a.logger.Warn("consistency check", zap.String("problem", problem.Error()))
	}
	cancel()

	server := api.NewServer(a.cfg, a.orch, a.logger)

	watcher, err := config.Watch(cfgPath, a.logger)
	if err != nil {
		a.logger.Warn("config watching disabled", zap.Error(err))
	} else {
		defer func() { _ = watcher.Close() }()
		go func() {
			for cfg := range watcher.Updates() {
				server.UpdateConfig(cfg)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("api listening", zap.String("addr", listen))
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info("shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// In-flight switches run under the request context; give them time
	// to reach a terminal state before pulling the listener.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
