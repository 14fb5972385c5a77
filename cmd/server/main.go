package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neurondb/NeuronQuery/api/internal/config"
	"github.com/neurondb/NeuronQuery/api/internal/handlers"
	"github.com/neurondb/NeuronQuery/api/internal/initialization"
	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"github.com/neurondb/NeuronQuery/api/internal/metrics"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "neuronquery: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	logger.Info("Starting NeuronQuery API server", nil)

	// The root context lives until SIGINT/SIGTERM; the LLM token source refreshes with it
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := initialization.NewBootstrap(cfg, logger).Initialize(ctx)
	if err != nil {
		logger.Error("Failed to bootstrap application", err, nil)
		return err
	}
	defer app.Close()

	router, err := handlers.NewRouter(handlers.RouterDeps{
		Config:    cfg,
		Logger:    logger,
		Chat:      app.Chat,
		Data:      app.Executor,
		Gate:      app.Gate,
		Health:    app.Health,
		Scanner:   app.Scanner,
		Tokens:    app.Tokens,
		Events:    app.Events,
		Allowlist: app.Allowlist,
		Metrics:   metrics.Handler(),
	})
	if err != nil {
		logger.Error("Failed to build router", err, nil)
		return err
	}
	defer router.Close()

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", map[string]interface{}{
			"address": addr,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server failed", err, nil)
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", err, nil)
		return err
	}

	logger.Info("Server stopped", nil)
	return nil
}
