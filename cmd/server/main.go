package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/internal/api"
	"github.com/runevault/storefront-backend/internal/audit"
	"github.com/runevault/storefront-backend/internal/backend"
	"github.com/runevault/storefront-backend/internal/notify"
	"github.com/runevault/storefront-backend/internal/service"
	"github.com/runevault/storefront-backend/pkg/config"
	"github.com/runevault/storefront-backend/pkg/logging"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")
	version    = "dev"
	buildTime  = "unknown"
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Storefront Backend Server",
		zap.String("version", version),
		zap.String("build_time", buildTime),
	)

	// Initialize storage backend
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := backend.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("Failed to initialize storage backend", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	logger.Info("Storage backend initialized",
		zap.String("type", cfg.Storage.Type),
		zap.String("session_store", cfg.SessionStore.Type),
	)

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		logger.Fatal("Failed to ping storage", zap.Error(err))
	}

	sink, err := notify.New(cfg.Notifier, logger)
	if err != nil {
		logger.Fatal("Failed to initialize notifier", zap.Error(err))
	}
	if cfg.Notifier.Type == "log" {
		logger.Warn("Admin keys and codes are written to the log; configure a webhook notifier for production")
	}

	auditor, stopAuditor := initAuditor(cfg.Audit, logger)
	defer stopAuditor()

	services := service.NewServices(store, cfg, sink, auditor, logger)
	services.Start()
	defer services.Stop()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(cfg, services, store, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server listening", zap.String("address", cfg.Server.Address()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// initAuditor ships audit events to Kafka when enabled, to the log otherwise
func initAuditor(cfg config.AuditConfig, logger *zap.Logger) (audit.Auditor, func()) {
	if !cfg.Kafka.Enabled {
		return audit.NewLogAuditor(logger), func() {}
	}

	shipper, err := audit.NewKafkaShipper(cfg.Kafka, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka audit shipper", zap.Error(err))
	}
	shipper.Start()
	logger.Info("Auditing to Kafka",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
	)
	return shipper, shipper.Stop
}
