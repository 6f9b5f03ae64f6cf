// cmd/devapi/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/eid-storefront/internal/config"
	"github.com/your-org/eid-storefront/internal/devapi"
	"github.com/your-org/eid-storefront/internal/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logr := logger.New(cfg)
	logr.Infof("Starting %s dev API v%s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Environment)

	server, err := devapi.NewServer(cfg, logr)
	if err != nil {
		logr.WithError(err).Fatal("Failed to create dev API")
	}

	go func() {
		if err := server.Start(); err != nil {
			logr.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logr.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		logr.WithError(err).Error("Failed to shutdown HTTP server gracefully")
	}

	logr.Info("Server shutdown completed")
}
