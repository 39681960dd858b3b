// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/listing-sync/backend/internal/api/middleware"
	"github.com/listing-sync/backend/internal/storage"
	"github.com/listing-sync/backend/internal/storage/models"
	"github.com/listing-sync/backend/internal/syncer"
	"github.com/listing-sync/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status := "healthy"
		code := http.StatusOK
		if !dbConnected {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		middleware.WriteJSON(w, code, HealthResponse{
			Status:      status,
			DBConnected: dbConnected,
		})
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	SchemaVersion      int        `json:"schema_version"`
	PropertiesCount    int        `json:"properties_count"`
	EnabledProperties  int        `json:"enabled_properties"`
	ScheduledCount     int        `json:"scheduled_count"`
	ErroredProperties  int        `json:"errored_properties"`
	WebSocketClients   int        `json:"websocket_clients"`
	NextSyncAt         *time.Time `json:"next_sync_at,omitempty"`
	NextSyncPropertyID string     `json:"next_sync_property_id,omitempty"`
}

// Status returns a handler that provides system status information.
func Status(db *storage.DB, hub *websocket.Hub, scheduler *syncer.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var response StatusResponse
		if v, err := storage.SchemaVersion(ctx, db); err == nil {
			response.SchemaVersion = v
		}
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM properties").Scan(&response.PropertiesCount)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM properties WHERE enabled = 1").Scan(&response.EnabledProperties)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM properties WHERE sync_status = ?", models.SyncStatusError).
			Scan(&response.ErroredProperties)

		if hub != nil {
			response.WebSocketClients = hub.ClientCount()
		}

		if scheduler != nil {
			ids := scheduler.ScheduledProperties()
			response.ScheduledCount = len(ids)
			for _, id := range ids {
				next := scheduler.NextRun(id)
				if next == nil {
					continue
				}
				if response.NextSyncAt == nil || next.Before(*response.NextSyncAt) {
					response.NextSyncAt = next
					response.NextSyncPropertyID = id
				}
			}
		}

		middleware.WriteJSON(w, http.StatusOK, response)
	}
}
