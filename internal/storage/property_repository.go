package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/listing-sync/backend/internal/storage/models"
)

const propertyColumns = `id, name, horizon_days, sync_interval_min, last_sync_at, sync_status,
		       sync_error, enabled, created_at, updated_at`

// PropertyRepository provides data access for properties and their sources.
type PropertyRepository struct {
	BaseRepository
}

// NewPropertyRepository creates a new property repository.
func NewPropertyRepository(db *DB) *PropertyRepository {
	return &PropertyRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProperty(s rowScanner) (*models.Property, error) {
	p := &models.Property{}
	err := s.Scan(
		&p.ID, &p.Name, &p.HorizonDays, &p.SyncIntervalMin,
		&p.LastSyncAt, &p.SyncStatus, &p.SyncError,
		&p.Enabled, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

// Create inserts a new property. An empty ID is replaced with a generated one.
func (r *PropertyRepository) Create(ctx context.Context, p *models.Property) error {
	if p.ID == "" {
		p.ID = GenerateID()
	}
	if p.HorizonDays == 0 {
		p.HorizonDays = models.DefaultHorizonDays
	}
	if p.SyncIntervalMin == 0 {
		p.SyncIntervalMin = models.DefaultSyncIntervalMin
	}
	p.CreatedAt = r.Now()
	p.UpdatedAt = p.CreatedAt
	p.SyncStatus = models.SyncStatusPending

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO properties (
			id, name, horizon_days, sync_interval_min, sync_status, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.Name, p.HorizonDays, p.SyncIntervalMin,
		p.SyncStatus, p.Enabled, p.CreatedAt, p.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("inserting property: %w", err)
	}

	return nil
}

// GetByID retrieves a property by its ID. It returns nil if none exists.
func (r *PropertyRepository) GetByID(ctx context.Context, id string) (*models.Property, error) {
	row := r.DB().QueryRowContext(ctx, `SELECT `+propertyColumns+` FROM properties WHERE id = ?`, id)
	p, err := scanProperty(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying property: %w", err)
	}

	return p, nil
}

// List retrieves all properties ordered by name.
func (r *PropertyRepository) List(ctx context.Context) ([]models.Property, error) {
	return r.query(ctx, `SELECT `+propertyColumns+` FROM properties ORDER BY name`)
}

// ListEnabled retrieves all enabled properties, least recently synced first.
func (r *PropertyRepository) ListEnabled(ctx context.Context) ([]models.Property, error) {
	return r.query(ctx, `
		SELECT `+propertyColumns+`
		FROM properties
		WHERE enabled = 1
		ORDER BY last_sync_at ASC NULLS FIRST
	`)
}

func (r *PropertyRepository) query(ctx context.Context, q string, args ...any) ([]models.Property, error) {
	rows, err := r.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying properties: %w", err)
	}
	defer rows.Close()

	var properties []models.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning property: %w", err)
		}
		properties = append(properties, *p)
	}

	return properties, rows.Err()
}

// Update updates an existing property's settings.
func (r *PropertyRepository) Update(ctx context.Context, p *models.Property) error {
	p.UpdatedAt = r.Now()

	result, err := r.DB().ExecContext(ctx, `
		UPDATE properties SET
			name = ?, horizon_days = ?, sync_interval_min = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`,
		p.Name, p.HorizonDays, p.SyncIntervalMin, p.Enabled, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating property: %w", err)
	}

	if err := checkAffected(result); err != nil {
		return fmt.Errorf("property %s: %w", p.ID, err)
	}

	return nil
}

// UpdateSyncStatus updates the sync status of a property. A successful
// sync also moves last_sync_at forward.
func (r *PropertyRepository) UpdateSyncStatus(ctx context.Context, id string, status string, syncError *string) error {
	now := r.Now()
	var lastSyncAt *time.Time
	if status == models.SyncStatusSuccess {
		lastSyncAt = &now
	}

	_, err := r.DB().ExecContext(ctx, `
		UPDATE properties SET
			sync_status = ?, sync_error = ?, last_sync_at = COALESCE(?, last_sync_at), updated_at = ?
		WHERE id = ?
	`, status, syncError, lastSyncAt, now, id)

	if err != nil {
		return fmt.Errorf("updating sync status: %w", err)
	}

	return nil
}

// Delete removes a property and, through cascades, its sources, runs and snapshot.
func (r *PropertyRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, "DELETE FROM properties WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting property: %w", err)
	}

	if err := checkAffected(result); err != nil {
		return fmt.Errorf("property %s: %w", id, err)
	}

	return nil
}

// ListSources retrieves a property's feeds in merge order.
func (r *PropertyRepository) ListSources(ctx context.Context, propertyID string) ([]models.PropertySource, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, property_id, kind, url, position
		FROM property_sources
		WHERE property_id = ?
		ORDER BY position, id
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	var sources []models.PropertySource
	for rows.Next() {
		var s models.PropertySource
		if err := rows.Scan(&s.ID, &s.PropertyID, &s.Kind, &s.URL, &s.Position); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		sources = append(sources, s)
	}

	return sources, rows.Err()
}

// SetSources replaces all feeds of a property. Positions follow slice order.
func (r *PropertyRepository) SetSources(ctx context.Context, propertyID string, sources []models.PropertySource) error {
	return r.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM property_sources WHERE property_id = ?", propertyID); err != nil {
			return fmt.Errorf("deleting sources: %w", err)
		}

		for i := range sources {
			s := &sources[i]
			s.ID = GenerateID()
			s.PropertyID = propertyID
			s.Position = i
			_, err := tx.ExecContext(ctx, `
				INSERT INTO property_sources (id, property_id, kind, url, position) VALUES (?, ?, ?, ?, ?)
			`, s.ID, s.PropertyID, s.Kind, s.URL, s.Position)
			if err != nil {
				return fmt.Errorf("inserting source: %w", err)
			}
		}

		return nil
	})
}
