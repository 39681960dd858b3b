// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/listing-sync/backend/internal/api/handlers"
	"github.com/listing-sync/backend/internal/api/middleware"
	"github.com/listing-sync/backend/internal/config"
	"github.com/listing-sync/backend/internal/storage"
	"github.com/listing-sync/backend/internal/supplier"
	"github.com/listing-sync/backend/internal/syncer"
	"github.com/listing-sync/backend/internal/websocket"
)

// NewRouter creates and configures the HTTP router with all API routes.
// A nil scheduler runs manual syncs directly on the service.
func NewRouter(
	cfg *config.Config,
	db *storage.DB,
	hub *websocket.Hub,
	registry *supplier.Registry,
	syncService *syncer.Service,
	scheduler *syncer.Scheduler,
) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	properties := storage.NewPropertyRepository(db)
	runs := storage.NewSyncRunRepository(db)
	defaults := handlers.PropertyDefaults{
		HorizonDays:     cfg.Sync.DefaultHorizonDays,
		SyncIntervalMin: cfg.Sync.DefaultIntervalMin,
	}

	// API subrouter
	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(db)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(db, hub, scheduler)).Methods("GET")
	api.HandleFunc("/settings", handlers.GetSettings(cfg, registry)).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(hub)).Methods("GET")

	// Property endpoints
	api.HandleFunc("/properties", handlers.ListProperties(properties)).Methods("GET")
	api.HandleFunc("/properties", handlers.CreateProperty(properties, scheduler, defaults)).Methods("POST")
	api.HandleFunc("/properties/{id}", handlers.GetProperty(properties, scheduler)).Methods("GET")
	api.HandleFunc("/properties/{id}", handlers.UpdateProperty(properties, scheduler)).Methods("PUT")
	api.HandleFunc("/properties/{id}", handlers.DeleteProperty(properties, scheduler)).Methods("DELETE")
	api.HandleFunc("/properties/{id}/sources", handlers.GetPropertySources(properties)).Methods("GET")
	api.HandleFunc("/properties/{id}/sources", handlers.UpdatePropertySources(properties)).Methods("PUT")
	api.HandleFunc("/properties/{id}/sync", handlers.SyncProperty(properties, syncService, scheduler)).Methods("POST")
	api.HandleFunc("/properties/{id}/calendar", handlers.PropertyCalendar(syncService, cfg.Sync.MaxPreviewDays)).Methods("GET")
	api.HandleFunc("/properties/{id}/runs", handlers.ListSyncRuns(properties, runs)).Methods("GET")

	// Serve static frontend files
	if cfg.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return r
}
