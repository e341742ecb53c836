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
	"go.uber.org/zap"

	"dream-push-backend/internal/api"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic processing loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	// The loop must stop whenever serve returns, not only on a signal.
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		a.processor.Run(loopCtx)
	}()

	router := api.NewRouter(a.cfg.Server, a.store, a.processor, a.cfg.Push.PublicKey, a.log)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.Info("HTTP server starting", zap.Int("port", a.cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var err error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received, stopping services")
	case err = <-serveErr:
		a.log.Error("HTTP server stopped unexpectedly", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		a.log.Error("HTTP server shutdown", zap.Error(shutdownErr))
	}
	stopLoop()
	<-loopDone

	a.log.Info("server gracefully stopped")
	return err
}
