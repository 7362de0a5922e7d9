package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/tilakp839-oss/chaiii/config"
	"github.com/tilakp839-oss/chaiii/internal/api"
	"github.com/tilakp839-oss/chaiii/internal/db"
	"github.com/tilakp839-oss/chaiii/internal/metrics"
	"github.com/tilakp839-oss/chaiii/internal/notification"
	"github.com/tilakp839-oss/chaiii/internal/reaper"
	"github.com/tilakp839-oss/chaiii/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "chaiid ", log.LstdFlags)

	// A local .env may override the environment during development.
	_ = godotenv.Load()

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Println("VAPID keys are not configured; push notifications are disabled")
	}

	// Initialize the backing store: a database by default, or the
	// file-backed offline variant when the driver says so.
	var appStore store.Store
	var gormDB *gorm.DB
	if cfg.Database.Driver == "file" {
		appStore, err = store.NewFileStore(cfg.Database.DSN, cfg.Admin)
		if err != nil {
			logger.Fatalf("failed to open state file %s: %v", cfg.Database.DSN, err)
		}
		logger.Printf("file-backed store initialized at %s", cfg.Database.DSN)
	} else {
		gormDB, err = db.Init(&cfg.Database)
		if err != nil {
			logger.Fatalf("failed to initialize database: %v", err)
		}
		logger.Println("database initialized successfully")
		appStore = store.NewGormStore(gormDB, cfg.Admin)
	}
	logger.Println("data store initialized")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Seed the admin identity so the dashboard works out of the box.
	admin, err := appStore.EnsureAdmin(ctx)
	if err != nil {
		logger.Fatalf("failed to ensure admin user: %v", err)
	}
	logger.Printf("admin identity ready (employee code %s)", admin.EmployeeID)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// Session-start announcements go out through the worker pool. The pool
	// reads subscriptions straight from the database, so it is unavailable
	// with the file-backed store.
	var pool *notification.WorkerPool
	if webpushOptions != nil && gormDB != nil {
		pool = notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions, collector)
		pool.Start(ctx)
	} else if webpushOptions != nil {
		logger.Println("push notifications require a database-backed store; worker pool not started")
	}

	// Optional server-side expiry sweep.
	reaperSvc := reaper.NewService(cfg, appStore, collector)
	go reaperSvc.Run(ctx)

	// Initialize router
	handler := api.NewHandler(appStore, webpushOptions, pool, collector)
	router := api.NewRouter(handler, &cfg.Server, registry)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
