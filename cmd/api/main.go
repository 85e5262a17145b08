package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inkwell/internal/api"
	"inkwell/internal/config"
	"inkwell/internal/pkg/logger"
)

func main() {
	cfg := config.LoadOrDefault()
	log := logger.NewDefault(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := api.NewServer(cfg, log)
	if err != nil {
		log.Error("server init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer srv.Close()

	srv.StartBackground(ctx)

	if err := srv.SeedDemoData(ctx); err != nil {
		log.Warn("seed demo data failed", slog.String("error", err.Error()))
	}

	httpSrv := &http.Server{
		Addr:    cfg.App.HTTPAddr,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api server listening", slog.String("addr", cfg.App.HTTPAddr), slog.String("env", cfg.App.Env))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("http server failed", slog.String("error", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", slog.String("error", err.Error()))
	}
	log.Info("api server stopped")
}
