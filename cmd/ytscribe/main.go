package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jo-hoe/ytscribe/internal/app"
	appcfg "github.com/jo-hoe/ytscribe/internal/config"
	"github.com/jo-hoe/ytscribe/internal/server"
)

func main() {
	// Bootstrap logger until the configured one exists
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	path := ""
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := appcfg.Load(path)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	logger = app.NewLogger(os.Stdout, cfg.Server)
	slog.SetDefault(logger)

	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Error("init app", "err", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	httpSrv := server.NewHTTPServer(&server.Service{
		Log:     logger,
		Cfg:     cfg,
		Handler: a.Handler,
	})

	// Run server in background
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "address", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "err", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	logger.Info("server stopped")
}
