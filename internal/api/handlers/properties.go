package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/listing-sync/backend/internal/api/middleware"
	"github.com/listing-sync/backend/internal/apperrors"
	"github.com/listing-sync/backend/internal/calendar"
	"github.com/listing-sync/backend/internal/storage"
	"github.com/listing-sync/backend/internal/storage/models"
	"github.com/listing-sync/backend/internal/syncer"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Property request/response types

type SourceRequest struct {
	Kind string `json:"kind" validate:"required,oneof=ical seasons"`
	URL  string `json:"url" validate:"required,url"`
}

type CreatePropertyRequest struct {
	ID              string          `json:"id" validate:"omitempty,max=100,excludesall=/?#"`
	Name            string          `json:"name" validate:"required,max=200"`
	HorizonDays     int             `json:"horizon_days" validate:"omitempty,gte=1,lte=1095"`
	SyncIntervalMin int             `json:"sync_interval_min" validate:"omitempty,gte=5,lte=1440"`
	Enabled         *bool           `json:"enabled"`
	Sources         []SourceRequest `json:"sources,omitempty" validate:"dive"`
}

type UpdatePropertyRequest struct {
	Name            *string `json:"name" validate:"omitempty,min=1,max=200"`
	HorizonDays     *int    `json:"horizon_days" validate:"omitempty,gte=1,lte=1095"`
	SyncIntervalMin *int    `json:"sync_interval_min" validate:"omitempty,gte=5,lte=1440"`
	Enabled         *bool   `json:"enabled"`
}

type UpdateSourcesRequest struct {
	Sources []SourceRequest `json:"sources" validate:"dive"`
}

type PropertyResponse struct {
	models.Property
	Sources    []models.PropertySource `json:"sources"`
	NextSyncAt *time.Time              `json:"next_sync_at,omitempty"`
}

// PropertyDefaults are applied to new properties that omit them.
type PropertyDefaults struct {
	HorizonDays     int
	SyncIntervalMin int
}

// decodeAndValidate reads a JSON body into v and validates it. It writes
// the error response and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				details[fe.Namespace()] = fe.Tag()
			}
			middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrValidation, "Request validation failed", details)
			return false
		}
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
		return false
	}
	return true
}

func toSources(reqs []SourceRequest) []models.PropertySource {
	sources := make([]models.PropertySource, len(reqs))
	for i, s := range reqs {
		sources[i] = models.PropertySource{Kind: s.Kind, URL: s.URL}
	}
	return sources
}

// loadProperty fetches the property named in the route, writing a 404 if absent.
func loadProperty(w http.ResponseWriter, r *http.Request, repo *storage.PropertyRepository) (*models.Property, bool) {
	id := mux.Vars(r)["id"]
	p, err := repo.GetByID(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query property")
		return nil, false
	}
	if p == nil {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Property not found")
		return nil, false
	}
	return p, true
}

func propertyResponse(ctx context.Context, repo *storage.PropertyRepository, scheduler *syncer.Scheduler, p models.Property) (PropertyResponse, error) {
	sources, err := repo.ListSources(ctx, p.ID)
	if err != nil {
		return PropertyResponse{}, err
	}
	if sources == nil {
		sources = []models.PropertySource{}
	}
	resp := PropertyResponse{Property: p, Sources: sources}
	if scheduler != nil {
		resp.NextSyncAt = scheduler.NextRun(p.ID)
	}
	return resp, nil
}

// ListProperties returns all properties.
func ListProperties(repo *storage.PropertyRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		properties, err := repo.List(r.Context())
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query properties")
			return
		}

		if properties == nil {
			properties = []models.Property{}
		}

		middleware.WriteJSON(w, http.StatusOK, properties)
	}
}

// CreateProperty adds a new property with its sources.
func CreateProperty(repo *storage.PropertyRepository, scheduler *syncer.Scheduler, defaults PropertyDefaults) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePropertyRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		ctx := r.Context()

		if req.ID != "" {
			existing, err := repo.GetByID(ctx, req.ID)
			if err != nil {
				middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query property")
				return
			}
			if existing != nil {
				middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "Property already exists")
				return
			}
		}

		p := &models.Property{
			ID:              req.ID,
			Name:            req.Name,
			HorizonDays:     req.HorizonDays,
			SyncIntervalMin: req.SyncIntervalMin,
			Enabled:         req.Enabled == nil || *req.Enabled,
		}
		if p.HorizonDays == 0 {
			p.HorizonDays = defaults.HorizonDays
		}
		if p.SyncIntervalMin == 0 {
			p.SyncIntervalMin = defaults.SyncIntervalMin
		}

		if err := repo.Create(ctx, p); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create property")
			return
		}
		if err := repo.SetSources(ctx, p.ID, toSources(req.Sources)); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to store sources")
			return
		}

		if scheduler != nil {
			scheduler.ScheduleProperty(*p)
		}

		resp, err := propertyResponse(ctx, repo, scheduler, *p)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query sources")
			return
		}
		middleware.WriteJSON(w, http.StatusCreated, resp)
	}
}

// GetProperty returns a single property with its sources.
func GetProperty(repo *storage.PropertyRepository, scheduler *syncer.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loadProperty(w, r, repo)
		if !ok {
			return
		}

		resp, err := propertyResponse(r.Context(), repo, scheduler, *p)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query sources")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, resp)
	}
}

// UpdateProperty changes a property's settings and reschedules it.
func UpdateProperty(repo *storage.PropertyRepository, scheduler *syncer.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loadProperty(w, r, repo)
		if !ok {
			return
		}

		var req UpdatePropertyRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		if req.Name != nil {
			p.Name = *req.Name
		}
		if req.HorizonDays != nil {
			p.HorizonDays = *req.HorizonDays
		}
		if req.SyncIntervalMin != nil {
			p.SyncIntervalMin = *req.SyncIntervalMin
		}
		if req.Enabled != nil {
			p.Enabled = *req.Enabled
		}

		if err := repo.Update(r.Context(), p); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Property not found")
				return
			}
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to update property")
			return
		}

		if scheduler != nil {
			scheduler.ScheduleProperty(*p)
		}

		middleware.WriteJSON(w, http.StatusOK, p)
	}
}

// DeleteProperty removes a property and stops its schedule.
func DeleteProperty(repo *storage.PropertyRepository, scheduler *syncer.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		if err := repo.Delete(r.Context(), id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Property not found")
				return
			}
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to delete property")
			return
		}

		if scheduler != nil {
			scheduler.UnscheduleProperty(id)
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// GetPropertySources returns a property's feeds in merge order.
func GetPropertySources(repo *storage.PropertyRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loadProperty(w, r, repo)
		if !ok {
			return
		}

		sources, err := repo.ListSources(r.Context(), p.ID)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query sources")
			return
		}
		if sources == nil {
			sources = []models.PropertySource{}
		}
		middleware.WriteJSON(w, http.StatusOK, sources)
	}
}

// UpdatePropertySources replaces a property's feeds.
func UpdatePropertySources(repo *storage.PropertyRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loadProperty(w, r, repo)
		if !ok {
			return
		}

		var req UpdateSourcesRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		sources := toSources(req.Sources)
		if err := repo.SetSources(r.Context(), p.ID, sources); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to store sources")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, sources)
	}
}

// SyncProperty triggers a manual sync. With ?wait=true the sync runs
// inline and its result is returned; otherwise it runs in the background.
func SyncProperty(repo *storage.PropertyRepository, service *syncer.Service, scheduler *syncer.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loadProperty(w, r, repo)
		if !ok {
			return
		}

		if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait {
			if scheduler != nil {
				scheduler.TriggerSync(p.ID)
			} else {
				go func() {
					if _, err := service.SyncProperty(context.Background(), p.ID); err != nil {
						log.Printf("Property sync failed for %s: %v", p.ID, err)
					}
				}()
			}
			middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"status": models.SyncStatusSyncing})
			return
		}

		var (
			result *models.SyncResult
			err    error
		)
		if scheduler != nil {
			var ran bool
			result, ran, err = scheduler.SyncNow(r.Context(), p.ID)
			if !ran {
				middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "A sync is already running for this property")
				return
			}
		} else {
			result, err = service.SyncProperty(r.Context(), p.ID)
		}

		if err != nil {
			if middleware.WriteAppError(w, err) {
				return
			}
			middleware.WriteError(w, http.StatusBadGateway, middleware.ErrSyncFailed, err.Error())
			return
		}
		middleware.WriteJSON(w, http.StatusOK, result)
	}
}

// PropertyCalendar returns the compacted calendar a sync would publish
// for ?from=&to=, or for the property's horizon when both are omitted.
// Explicit windows longer than maxDays are rejected with invalid_window.
func PropertyCalendar(service *syncer.Service, maxDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		from := strings.TrimSpace(r.URL.Query().Get("from"))
		to := strings.TrimSpace(r.URL.Query().Get("to"))

		var window calendar.Window
		if from != "" || to != "" {
			w2, err := calendar.ParseWindow(from, to)
			if err != nil {
				middleware.WriteAppError(w, err)
				return
			}
			if maxDays > 0 && w2.Days() > maxDays {
				middleware.WriteAppError(w, apperrors.Newf(apperrors.CodeInvalidWindow,
					"window of %d days exceeds the %d day limit", w2.Days(), maxDays).
					WithValue(from+".."+to))
				return
			}
			window = w2
		}

		payload, err := service.Preview(r.Context(), id, window)
		if err != nil {
			switch {
			case errors.Is(err, syncer.ErrPropertyNotFound):
				middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Property not found")
			case apperrors.CodeOf(err) != "":
				middleware.WriteAppError(w, err)
			default:
				middleware.WriteError(w, http.StatusBadGateway, middleware.ErrSyncFailed, fmt.Sprintf("Failed to build calendar: %v", err))
			}
			return
		}
		middleware.WriteJSON(w, http.StatusOK, payload)
	}
}

// ListSyncRuns returns a property's recent sync runs, newest first.
func ListSyncRuns(repo *storage.PropertyRepository, runs *storage.SyncRunRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loadProperty(w, r, repo)
		if !ok {
			return
		}

		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 500 {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "limit must be between 1 and 500")
				return
			}
			limit = n
		}

		list, err := runs.ListByProperty(r.Context(), p.ID, limit)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query sync runs")
			return
		}
		if list == nil {
			list = []models.SyncRun{}
		}
		middleware.WriteJSON(w, http.StatusOK, list)
	}
}
