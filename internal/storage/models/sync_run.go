package models

import (
	"time"
)

// SyncRun records one sync attempt for a property.
type SyncRun struct {
	ID            string    `json:"id"`
	PropertyID    string    `json:"property_id"`
	Status        string    `json:"status"`
	ErrorCode     *string   `json:"error_code,omitempty"`
	Error         *string   `json:"error,omitempty"`
	WindowStart   string    `json:"window_start"`
	WindowEnd     string    `json:"window_end"`
	Days          int       `json:"days"`
	DiffPublished bool      `json:"diff_published"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// SyncResult contains the results of a property sync operation.
type SyncResult struct {
	PropertyID    string    `json:"property_id"`
	PropertyName  string    `json:"property_name"`
	WindowStart   string    `json:"window_start"`
	WindowEnd     string    `json:"window_end"`
	Days          int       `json:"days"`
	Unavailable   int       `json:"unavailable"`
	DiffPublished bool      `json:"diff_published"`
	ErrorCode     string    `json:"error_code,omitempty"`
	Error         error     `json:"-"`
	SyncedAt      time.Time `json:"synced_at"`
}
