// Package main is the entry point for the listing sync server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/listing-sync/backend/internal/api"
	"github.com/listing-sync/backend/internal/config"
	"github.com/listing-sync/backend/internal/platform"
	"github.com/listing-sync/backend/internal/storage"
	"github.com/listing-sync/backend/internal/supplier"
	"github.com/listing-sync/backend/internal/syncer"
	"github.com/listing-sync/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	// Parse command-line flags
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	addr := flag.String("addr", ":8099", "HTTP server address")
	dataDir := flag.String("data", "/data", "Data directory for SQLite database")
	staticDir := flag.String("static", "./static", "Directory for static frontend files")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Explicit flags win over file and environment values
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Listen = *addr
		case "data":
			cfg.DataDir = *dataDir
		case "static":
			cfg.StaticDir = *staticDir
		}
	})

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Listen); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	// Allow overriding version via environment (e.g., injected by container build/runtime)
	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	log.Printf("Starting listing sync (version: %s)...", version)

	// Initialize database
	db, err := storage.NewDB(filepath.Join(cfg.DataDir, "listing-sync.db"))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run migrations
	if err := storage.RunMigrations(ctx, db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations complete")

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run(ctx)

	// Initialize repositories
	propertyRepo := storage.NewPropertyRepository(db)
	runRepo := storage.NewSyncRunRepository(db)
	snapshotRepo := storage.NewSnapshotRepository(db)

	registry := supplier.NewDefaultRegistry(cfg.FetchTimeout())

	var publisher platform.Publisher
	if cfg.Platform.BaseURL != "" {
		publisher = platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.Token, cfg.PlatformTimeout())
		log.Printf("Publishing to %s", cfg.Platform.BaseURL)
	} else {
		publisher = platform.LogPublisher{}
		log.Println("No platform URL configured, payloads are logged only")
	}

	syncService := syncer.NewService(propertyRepo, runRepo, snapshotRepo, registry, publisher)
	scheduler := syncer.NewScheduler(syncService, propertyRepo, hub, cfg.Sync.DefaultIntervalMin)

	if err := scheduler.Start(ctx); err != nil {
		log.Printf("Warning: Failed to start sync scheduler: %v", err)
	}

	router := api.NewRouter(cfg, db, hub, registry, syncService, scheduler)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("Server listening on %s", cfg.Listen)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	scheduler.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	cancel()

	log.Println("Server stopped")
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}
