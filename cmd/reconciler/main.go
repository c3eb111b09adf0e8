package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/ticketrush/reservation-core/internal/config"
	"github.com/ticketrush/reservation-core/internal/di"
	"github.com/ticketrush/reservation-core/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCfg := &logger.Config{
		Level:       "info",
		ServiceName: "expiry-reconciler",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting expiry reconciler...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to build container: %v", err))
	}
	defer container.Close()

	if err := container.Reconciler.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start reconciler: %v", err))
	}

	<-ctx.Done()
	appLog.Info("Shutting down...")
	container.Reconciler.Stop()
	appLog.Info("Reconciler stopped")
}
