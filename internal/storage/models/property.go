// Package models contains the domain models for the application.
package models

import (
	"time"
)

// Property is a listing kept in sync with the platform. ID is the
// identifier the platform knows the property by.
type Property struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	HorizonDays     int        `json:"horizon_days"`
	SyncIntervalMin int        `json:"sync_interval_min"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	SyncStatus      string     `json:"sync_status"`
	SyncError       *string    `json:"sync_error,omitempty"`
	Enabled         bool       `json:"enabled"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SyncStatus constants
const (
	SyncStatusPending = "pending"
	SyncStatusSyncing = "syncing"
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// Defaults applied to new properties.
const (
	DefaultHorizonDays     = 365
	DefaultSyncIntervalMin = 60
)

// PropertySource is one supplier feed contributing to a property's calendar.
// Sources are merged in Position order.
type PropertySource struct {
	ID         string `json:"id"`
	PropertyID string `json:"property_id"`
	Kind       string `json:"kind"`
	URL        string `json:"url"`
	Position   int    `json:"position"`
}

// PropertyWithSources combines a property with its feeds.
type PropertyWithSources struct {
	Property
	Sources []PropertySource `json:"sources"`
}
