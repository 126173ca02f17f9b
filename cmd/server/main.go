package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/config"
	"github.com/faultline/faultline/internal/database"
	"github.com/faultline/faultline/pkg/validator"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize application with Wire-generated dependency injection
	app, err := InitializeApplication(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer app.Cleanup()
	defer app.Logger.Sync()

	// Initialize request validator
	validator.Init()
	app.Logger.Info("request validator initialized")

	app.Logger.Info("starting Faultline server",
		zap.String("environment", cfg.Server.Environment),
		zap.Int("port", cfg.Server.Port),
	)

	// Run PostgreSQL migrations
	if err := database.RunMigrations(&database.MigrateConfig{
		DatabaseURL: cfg.Postgres.URL(),
		Logger:      app.Logger,
	}); err != nil {
		app.Logger.Fatal("failed to run migrations", zap.Error(err))
	}

	app.Logger.Info("connected to PostgreSQL")
	app.Logger.Info("connected to ClickHouse")

	// Ensure the occurrence schema, restore notification state and start
	// the digest and retention schedulers
	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := app.Start(startCtx); err != nil {
		startCancel()
		app.Logger.Fatal("failed to start background services", zap.Error(err))
	}
	startCancel()

	app.Logger.Info("notification engine initialized",
		zap.String("state_driver", cfg.Alerting.StateDriver),
		zap.Duration("aggregation_window", cfg.Alerting.AggregationWindow()),
	)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      app.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start HTTP server in a goroutine
	go func() {
		app.Logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		app.Logger.Fatal("HTTP server forced shutdown", zap.Error(err))
	}

	// Stop schedulers and pending alert timers before closing connections
	app.Stop()

	app.Logger.Info("server stopped")
}
