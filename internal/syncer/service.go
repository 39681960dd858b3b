// Package syncer turns supplier feeds into platform calendars and listing
// diffs, and runs that sync on a schedule.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/listing-sync/backend/internal/apperrors"
	"github.com/listing-sync/backend/internal/calendar"
	"github.com/listing-sync/backend/internal/diff"
	"github.com/listing-sync/backend/internal/listing"
	"github.com/listing-sync/backend/internal/platform"
	"github.com/listing-sync/backend/internal/storage/models"
	"github.com/listing-sync/backend/internal/supplier"
)

// ErrPropertyNotFound is returned when a sync targets an unknown property.
var ErrPropertyNotFound = errors.New("property not found")

// PropertyStore is the property data the service reads and updates.
type PropertyStore interface {
	GetByID(ctx context.Context, id string) (*models.Property, error)
	ListSources(ctx context.Context, propertyID string) ([]models.PropertySource, error)
	UpdateSyncStatus(ctx context.Context, id string, status string, syncError *string) error
}

// RunStore records sync runs.
type RunStore interface {
	Create(ctx context.Context, run *models.SyncRun) error
}

// SnapshotStore keeps the last published listing content.
type SnapshotStore interface {
	Get(ctx context.Context, propertyID string) (*listing.Property, error)
	Put(ctx context.Context, propertyID string, p listing.Property) error
}

// Service handles property synchronization.
type Service struct {
	properties PropertyStore
	runs       RunStore
	snapshots  SnapshotStore
	adapters   *supplier.Registry
	publisher  platform.Publisher
	now        func() time.Time
}

// NewService creates a new sync service.
func NewService(
	properties PropertyStore,
	runs RunStore,
	snapshots SnapshotStore,
	adapters *supplier.Registry,
	publisher platform.Publisher,
) *Service {
	return &Service{
		properties: properties,
		runs:       runs,
		snapshots:  snapshots,
		adapters:   adapters,
		publisher:  publisher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the service clock.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// prepared is everything a sync publishes, computed before anything is sent.
type prepared struct {
	calendar *calendar.Calendar
	payload  calendar.WirePayload
	listing  *listing.Property
	diff     *diff.Diff
}

// SyncProperty synchronizes a single property and returns the result.
// A failed run publishes nothing.
func (s *Service) SyncProperty(ctx context.Context, propertyID string) (*models.SyncResult, error) {
	p, err := s.properties.GetByID(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("getting property: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, propertyID)
	}

	started := s.now()
	window := calendar.NewWindowFor(calendar.Day(started), p.HorizonDays)
	result := &models.SyncResult{
		PropertyID:   p.ID,
		PropertyName: p.Name,
		WindowStart:  calendar.FormatDate(window.Start),
		WindowEnd:    calendar.FormatDate(window.End),
		SyncedAt:     started,
	}
	run := &models.SyncRun{
		PropertyID:  p.ID,
		WindowStart: result.WindowStart,
		WindowEnd:   result.WindowEnd,
		StartedAt:   started,
	}

	if err := s.properties.UpdateSyncStatus(ctx, p.ID, models.SyncStatusSyncing, nil); err != nil {
		log.Printf("Failed to update sync status: %v", err)
	}

	prep, err := s.prepare(ctx, p, window, true)
	if err != nil {
		return s.fail(ctx, result, run, err)
	}

	if err := s.publisher.PublishCalendar(ctx, prep.payload); err != nil {
		return s.fail(ctx, result, run, fmt.Errorf("publishing calendar: %w", err))
	}
	if prep.diff != nil {
		if err := s.publisher.PublishDiff(ctx, p.ID, prep.diff.Payload()); err != nil {
			return s.fail(ctx, result, run, fmt.Errorf("publishing listing diff: %w", err))
		}
		result.DiffPublished = true
	}
	if prep.listing != nil {
		if err := s.snapshots.Put(ctx, p.ID, *prep.listing); err != nil {
			log.Printf("Failed to store listing snapshot for %s: %v", p.ID, err)
		}
	}

	result.Days = prep.calendar.Len()
	for _, e := range prep.calendar.Entries {
		if !e.IsAvailable() {
			result.Unavailable++
		}
	}

	run.Status = models.SyncStatusSuccess
	run.Days = result.Days
	run.DiffPublished = result.DiffPublished
	s.record(ctx, run)

	if err := s.properties.UpdateSyncStatus(ctx, p.ID, models.SyncStatusSuccess, nil); err != nil {
		log.Printf("Failed to update sync status: %v", err)
	}

	return result, nil
}

// Preview builds and compacts a property's calendar over window without
// publishing it. A zero window means the property's sync horizon.
func (s *Service) Preview(ctx context.Context, propertyID string, window calendar.Window) (*calendar.WirePayload, error) {
	p, err := s.properties.GetByID(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("getting property: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, propertyID)
	}

	if window.Start.IsZero() && window.End.IsZero() {
		window = calendar.NewWindowFor(calendar.Day(s.now()), p.HorizonDays)
	}

	prep, err := s.prepare(ctx, p, window, false)
	if err != nil {
		return nil, err
	}
	return &prep.payload, nil
}

// prepare fetches every source and builds the outputs of a sync.
func (s *Service) prepare(ctx context.Context, p *models.Property, window calendar.Window, withDiff bool) (*prepared, error) {
	feed, err := s.collect(ctx, p.ID, window)
	if err != nil {
		return nil, err
	}

	cal, err := calendar.Build(p.ID, window, feed.Availability, feed.Rates, feed.StayRules)
	if err != nil {
		return nil, err
	}

	prep := &prepared{
		calendar: cal,
		payload:  calendar.Compact(cal),
	}

	if !withDiff || feed.Listing == nil {
		return prep, nil
	}

	next := *feed.Listing
	next.Identifier = p.ID
	if err := listing.ValidateProperty(next); err != nil {
		return nil, err
	}

	var prev listing.Property
	if snap, err := s.snapshots.Get(ctx, p.ID); err != nil {
		return nil, fmt.Errorf("loading listing snapshot: %w", err)
	} else if snap != nil {
		prev = *snap
	}

	d, err := diff.Compare(prev, next)
	if err != nil {
		return nil, err
	}
	prep.listing = &next
	if d.Empty() {
		return prep, nil
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	prep.diff = d
	return prep, nil
}

// collect fetches and merges all of a property's sources in order.
func (s *Service) collect(ctx context.Context, propertyID string, window calendar.Window) (*supplier.Feed, error) {
	sources, err := s.properties.ListSources(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}

	feeds := make([]*supplier.Feed, 0, len(sources))
	for _, src := range sources {
		adapter, err := s.adapters.Get(src.Kind)
		if err != nil {
			return nil, err
		}
		feed, err := adapter.Fetch(ctx, supplier.Request{PropertyID: propertyID, URL: src.URL, Window: window})
		if err != nil {
			return nil, fmt.Errorf("fetching %s source %s: %w", src.Kind, src.URL, err)
		}
		feeds = append(feeds, feed)
	}

	return supplier.Merge(feeds...), nil
}

// fail records a failed run and returns the result alongside err.
func (s *Service) fail(ctx context.Context, result *models.SyncResult, run *models.SyncRun, err error) (*models.SyncResult, error) {
	result.Error = err
	result.ErrorCode = string(apperrors.CodeOf(err))

	msg := err.Error()
	run.Status = models.SyncStatusError
	run.Error = &msg
	if result.ErrorCode != "" {
		run.ErrorCode = &result.ErrorCode
	}
	s.record(ctx, run)

	if uerr := s.properties.UpdateSyncStatus(ctx, result.PropertyID, models.SyncStatusError, &msg); uerr != nil {
		log.Printf("Failed to update sync status: %v", uerr)
	}

	return result, err
}

func (s *Service) record(ctx context.Context, run *models.SyncRun) {
	run.FinishedAt = s.now()
	if err := s.runs.Create(ctx, run); err != nil {
		log.Printf("Failed to record sync run for %s: %v", run.PropertyID, err)
	}
}
