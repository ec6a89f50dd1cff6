package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"carbon-scribe/ghg-disclosure-backend/internal/app"
	"carbon-scribe/ghg-disclosure-backend/internal/config"
	"carbon-scribe/ghg-disclosure-backend/internal/disclosure"
	"carbon-scribe/ghg-disclosure-backend/internal/reports/scheduler"
)

func main() {
	configPath := os.Getenv("GHG_CONFIG_FILE")
	if configPath == "" {
		configPath = "config.json"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if !cfg.Scheduler.Enabled {
		logger.Info("Disclosure scheduler disabled, exiting")
		return
	}

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := app.OpenStores(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer stores.Close()

	logger.Info("Connected to database")

	serviceConfig, err := app.ServiceConfig(cfg)
	if err != nil {
		logger.Fatal("Invalid calculation settings", zap.Error(err))
	}
	publisher, err := app.NewPublisher(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("Failed to configure publishing", zap.Error(err))
	}
	service := disclosure.NewService(stores.Activities, stores.FactorSource(cfg.Calculation.FactorCacheTTL), publisher, serviceConfig, logger)

	managerConfig := scheduler.DefaultManagerConfig()
	managerConfig.Cron = cfg.Scheduler.Cron
	managerConfig.Recipients = cfg.Scheduler.Recipients
	period := func(now time.Time) (time.Time, time.Time, error) {
		return app.PreviousPeriod(now, cfg.Scheduler.Period)
	}
	manager := scheduler.NewManager(service, stores.Activities, period, managerConfig, logger)

	// Start worker
	if err := manager.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}
	logger.Info("Disclosure worker started", zap.Time("next_run", manager.NextRun()))

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received")

	cancel()
	manager.Stop()
	logger.Info("Disclosure worker stopped")
}
