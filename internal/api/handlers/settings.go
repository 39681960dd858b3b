package handlers

import (
	"net/http"

	"github.com/listing-sync/backend/internal/api/middleware"
	"github.com/listing-sync/backend/internal/config"
	"github.com/listing-sync/backend/internal/supplier"
)

// SettingsResponse represents the effective configuration in API responses.
// The platform token is never included.
type SettingsResponse struct {
	Platform      config.PlatformConfig `json:"platform"`
	PlatformLive  bool                  `json:"platform_live"`
	Sync          config.SyncConfig     `json:"sync"`
	SupplierKinds []string              `json:"supplier_kinds"`
}

// GetSettings returns the running configuration.
func GetSettings(cfg *config.Config, registry *supplier.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := SettingsResponse{
			Platform:      cfg.Platform,
			PlatformLive:  cfg.Platform.BaseURL != "",
			Sync:          cfg.Sync,
			SupplierKinds: []string{},
		}
		if registry != nil {
			response.SupplierKinds = registry.Kinds()
		}

		middleware.WriteJSON(w, http.StatusOK, response)
	}
}
