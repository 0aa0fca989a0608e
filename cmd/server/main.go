package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	v16 "github.com/seu-repo/ocpp-central/internal/adapter/ocpp/v16"
	"github.com/seu-repo/ocpp-central/internal/adapter/queue"
	"github.com/seu-repo/ocpp-central/internal/adapter/storage/postgres"
	"github.com/seu-repo/ocpp-central/internal/service/health"
	"github.com/seu-repo/ocpp-central/pkg/config"
)

const (
	serviceName    = "ocpp-central"
	serviceVersion = "v1.0.0"
)

func main() {
	// 1. Initialize Logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting OCPP Central System",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
	)

	// 2. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// 3. Initialize PostgreSQL Connection Pool
	db, err := postgres.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer postgres.Close(db)

	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(db); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	// 4. Initialize Message Queue (NATS, optional)
	var messageQueue queue.MessageQueue
	if cfg.NATS.Enabled {
		messageQueue, err = queue.NewNATSQueue(cfg.NATS.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer messageQueue.Close()
	}

	// 5. Initialize Telemetry Repository
	telemetryRepo := postgres.NewTelemetryRepository(db, logger)

	// 6. Initialize OCPP 1.6 Central System
	ocppServer := v16.NewServer(cfg, telemetryRepo, messageQueue, logger)
	go func() {
		if err := ocppServer.Start(); err != nil {
			logger.Fatal("OCPP server failed", zap.Error(err))
		}
	}()

	// 7. Initialize Health Service
	healthService := health.NewService(serviceVersion, db, logger)
	if nq, ok := messageQueue.(*queue.NATSQueue); ok {
		healthService.RegisterChecker("nats", health.StaticChecker("nats", func() (bool, string) {
			if nq.IsConnected() {
				return true, "connection ok"
			}
			return false, "disconnected"
		}))
	}
	healthService.RegisterChecker("ocpp", health.StaticChecker("ocpp", func() (bool, string) {
		return true, fmt.Sprintf("%d chargers connected", ocppServer.Registry().Connected())
	}))

	// 8. Start Ops HTTP Server (health + Prometheus metrics)
	opsMux := http.NewServeMux()
	health.NewHTTPHandler(healthService).RegisterRoutes(opsMux)
	opsMux.Handle("/metrics", promhttp.Handler())

	opsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Ops.Port),
		Handler: opsMux,
	}
	go func() {
		logger.Info("Starting ops HTTP server", zap.Int("port", cfg.Ops.Port))
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Ops server failed", zap.Error(err))
		}
	}()

	// 9. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := ocppServer.Stop(ctx); err != nil {
		logger.Error("OCPP server shutdown error", zap.Error(err))
	}
	if err := opsServer.Shutdown(ctx); err != nil {
		logger.Error("Ops server shutdown error", zap.Error(err))
	}

	logger.Info("Server exited gracefully")
}
