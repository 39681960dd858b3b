package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/listing-sync/backend/internal/listing"
)

// SnapshotRepository stores the last listing content published per property.
type SnapshotRepository struct {
	BaseRepository
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Get returns the stored snapshot, or nil if the property has none.
func (r *SnapshotRepository) Get(ctx context.Context, propertyID string) (*listing.Property, error) {
	var content string
	err := r.DB().QueryRowContext(ctx,
		"SELECT content FROM listing_snapshots WHERE property_id = ?", propertyID,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}

	var p listing.Property
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &p, nil
}

// Put replaces the stored snapshot.
func (r *SnapshotRepository) Put(ctx context.Context, propertyID string, p listing.Property) error {
	content, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	_, err = r.DB().ExecContext(ctx, `
		INSERT INTO listing_snapshots (property_id, content, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(property_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at
	`, propertyID, string(content), r.Now())
	if err != nil {
		return fmt.Errorf("storing snapshot: %w", err)
	}

	return nil
}
