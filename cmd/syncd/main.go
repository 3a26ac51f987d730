package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"xui-sync/internal/config"
	"xui-sync/internal/constants"
	"xui-sync/internal/database"
	"xui-sync/internal/handlers"
	"xui-sync/internal/models"
	"xui-sync/internal/repository"
	"xui-sync/internal/services"
	"xui-sync/pkg/xuiclient"
)

func main() {
	// Setup logger
	logger := setupLogger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: ", err)
	}

	// Connect persistence
	db, rdb, err := database.Connect(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect storage: ", err)
	}
	defer database.Close(db, rdb)

	if err := models.Migrate(db); err != nil {
		logger.Fatal("Failed to migrate mirror tables: ", err)
	}

	// Repositories
	serverRepo := repository.NewServerRepo(db)
	mirrorRepo := repository.NewMirrorRepo(db)
	subRepo := repository.NewSubscriptionRepo(db)
	logRepo := repository.NewSyncLogRepo(db)
	descriptorCache := repository.NewDescriptorCache(rdb)

	// Gateway registry and services
	policy := xuiclient.RetryPolicy{
		MaxAttempts: cfg.Sync.MaxAttempts,
		Backoff:     xuiclient.FixedBackoff(time.Duration(cfg.Sync.RetryWaitSec) * time.Second),
	}
	registry := services.NewGatewayRegistry(policy, logger)
	syncService := services.NewSyncService(registry, serverRepo, mirrorRepo, subRepo, logRepo, logger)
	provisionService := services.NewProvisionService(registry, serverRepo, mirrorRepo, subRepo, logRepo, descriptorCache, logger)
	qrService := services.NewQRService(logger)

	scheduler := services.NewSyncScheduler(
		syncService,
		serverRepo,
		time.Duration(cfg.Sync.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Sync.TimeoutSeconds)*time.Second,
		cfg.Sync.Workers,
		logger,
	)
	watchdog := services.NewWatchdog(
		logRepo,
		constants.StaleRunThreshold*time.Minute,
		time.Minute,
		logger,
	)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	go scheduler.Start(ctx)
	go watchdog.Start(ctx)

	// HTTP surface for the billing/admin domain
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := handlers.NewHandler(syncService, provisionService, logRepo, qrService, logger)
	handler.Register(router)

	server := &http.Server{
		Addr:    cfg.HTTP.Listen,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Infof("Starting panel sync engine on %s", cfg.HTTP.Listen)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("HTTP server failed: ", err)
	}
}

// setupLogger sets up the logger
func setupLogger() *logrus.Logger {
	logger := logrus.New()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		log.Printf("Invalid log level %s, defaulting to info", logLevel)
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: constants.TimestampFormat,
	})

	return logger
}
