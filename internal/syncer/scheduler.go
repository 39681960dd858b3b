package syncer

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/listing-sync/backend/internal/storage/models"
	"github.com/listing-sync/backend/internal/websocket"
)

// PropertyLister is the property data the scheduler reads.
type PropertyLister interface {
	GetByID(ctx context.Context, id string) (*models.Property, error)
	ListEnabled(ctx context.Context) ([]models.Property, error)
}

// Scheduler manages periodic property sync jobs.
type Scheduler struct {
	cron        *cron.Cron
	service     *Service
	properties  PropertyLister
	broadcaster *websocket.EventBroadcaster

	// Track jobs per property
	jobs   map[string]scheduledJob
	jobsMu sync.RWMutex

	// Properties with a sync in flight
	running   map[string]bool
	runningMu sync.Mutex
	wg        sync.WaitGroup

	// Default sync interval if a property doesn't specify one
	defaultIntervalMin int
}

// scheduledJob is a property's cron entry and the interval it was added with.
type scheduledJob struct {
	entryID     cron.EntryID
	intervalMin int
	name        string
}

// NewScheduler creates a new property sync scheduler. A nil hub disables
// event broadcasting.
func NewScheduler(
	service *Service,
	properties PropertyLister,
	hub *websocket.Hub,
	defaultIntervalMin int,
) *Scheduler {
	if defaultIntervalMin <= 0 {
		defaultIntervalMin = models.DefaultSyncIntervalMin
	}

	var broadcaster *websocket.EventBroadcaster
	if hub != nil {
		broadcaster = websocket.NewEventBroadcaster(hub)
	}

	return &Scheduler{
		cron:               cron.New(),
		service:            service,
		properties:         properties,
		broadcaster:        broadcaster,
		jobs:               make(map[string]scheduledJob),
		running:            make(map[string]bool),
		defaultIntervalMin: defaultIntervalMin,
	}
}

// Start begins the scheduler and loads all enabled properties.
func (s *Scheduler) Start(ctx context.Context) error {
	log.Println("Starting property sync scheduler...")

	properties, err := s.properties.ListEnabled(ctx)
	if err != nil {
		return err
	}

	for _, p := range properties {
		s.ScheduleProperty(p)
	}

	// Refresh schedules every 5 minutes to pick up changed properties
	if _, err := s.cron.AddFunc("@every 5m", func() {
		s.refreshSchedules(context.Background())
	}); err != nil {
		return err
	}

	s.cron.Start()
	log.Printf("Sync scheduler started with %d properties", len(properties))

	return nil
}

// Stop shuts down the scheduler and waits for running syncs.
func (s *Scheduler) Stop() {
	log.Println("Stopping property sync scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	log.Println("Sync scheduler stopped")
}

// ScheduleProperty adds or updates a property's sync schedule. A property
// already scheduled at the same interval keeps its cron entry and next run.
func (s *Scheduler) ScheduleProperty(p models.Property) {
	if !p.Enabled {
		s.UnscheduleProperty(p.ID)
		return
	}

	interval := p.SyncIntervalMin
	if interval <= 0 {
		interval = s.defaultIntervalMin
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if existing, exists := s.jobs[p.ID]; exists {
		if existing.intervalMin == interval {
			existing.name = p.Name
			s.jobs[p.ID] = existing
			return
		}
		s.cron.Remove(existing.entryID)
		delete(s.jobs, p.ID)
	}

	id := p.ID
	entryID, err := s.cron.AddFunc(minutesToCronSpec(interval), func() {
		s.runSync(id, s.jobName(id))
	})
	if err != nil {
		log.Printf("Failed to schedule property %s: %v", p.ID, err)
		return
	}

	s.jobs[p.ID] = scheduledJob{entryID: entryID, intervalMin: interval, name: p.Name}
	log.Printf("Scheduled property %s (%s) every %d minutes", p.ID, p.Name, interval)
}

func (s *Scheduler) jobName(propertyID string) string {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	if job, ok := s.jobs[propertyID]; ok && job.name != "" {
		return job.name
	}
	return propertyID
}

// UnscheduleProperty removes a property from the sync schedule.
func (s *Scheduler) UnscheduleProperty(propertyID string) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if job, exists := s.jobs[propertyID]; exists {
		s.cron.Remove(job.entryID)
		delete(s.jobs, propertyID)
		log.Printf("Unscheduled property %s", propertyID)
	}
}

// TriggerSync starts an immediate sync for a property in the background.
func (s *Scheduler) TriggerSync(propertyID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		p, err := s.properties.GetByID(context.Background(), propertyID)
		if err != nil || p == nil {
			log.Printf("Property not found for sync: %s", propertyID)
			return
		}
		s.runSync(p.ID, p.Name)
	}()
}

// SyncNow runs a sync for a property and waits for it. It returns false
// when a sync for the property is already running.
func (s *Scheduler) SyncNow(ctx context.Context, propertyID string) (*models.SyncResult, bool, error) {
	if !s.acquire(propertyID) {
		return nil, false, nil
	}
	defer s.release(propertyID)

	p, err := s.properties.GetByID(ctx, propertyID)
	if err != nil {
		return nil, true, err
	}
	name := propertyID
	if p != nil {
		name = p.Name
	}
	result, err := s.sync(ctx, propertyID, name)
	return result, true, err
}

// runSync performs a sync unless one is already running for the property.
func (s *Scheduler) runSync(propertyID, propertyName string) {
	if !s.acquire(propertyID) {
		log.Printf("Sync already running for %s, skipping", propertyID)
		return
	}
	defer s.release(propertyID)

	s.sync(context.Background(), propertyID, propertyName)
}

func (s *Scheduler) sync(ctx context.Context, propertyID, propertyName string) (*models.SyncResult, error) {
	log.Printf("Syncing property: %s (%s)", propertyID, propertyName)
	if s.broadcaster != nil {
		s.broadcaster.BroadcastPropertySyncStarted(propertyID, propertyName)
	}

	result, err := s.service.SyncProperty(ctx, propertyID)
	if err != nil {
		log.Printf("Property sync failed for %s: %v", propertyID, err)
		if s.broadcaster != nil {
			s.broadcaster.BroadcastPropertySyncError(propertyID, propertyName, err)
		}
		return result, err
	}

	log.Printf("Property sync completed for %s: %d days, %d unavailable, diff published: %t",
		propertyID, result.Days, result.Unavailable, result.DiffPublished)

	if s.broadcaster != nil {
		s.broadcaster.BroadcastPropertySyncCompleted(*result)
	}
	return result, nil
}

func (s *Scheduler) acquire(propertyID string) bool {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.running[propertyID] {
		return false
	}
	s.running[propertyID] = true
	return true
}

func (s *Scheduler) release(propertyID string) {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	delete(s.running, propertyID)
}

// refreshSchedules reloads property schedules from the database.
func (s *Scheduler) refreshSchedules(ctx context.Context) {
	properties, err := s.properties.ListEnabled(ctx)
	if err != nil {
		log.Printf("Failed to refresh sync schedules: %v", err)
		return
	}

	currentIDs := make(map[string]bool)
	for _, p := range properties {
		currentIDs[p.ID] = true
		s.ScheduleProperty(p)
	}

	// Remove jobs for properties that no longer exist or are disabled
	s.jobsMu.Lock()
	for id, job := range s.jobs {
		if !currentIDs[id] {
			s.cron.Remove(job.entryID)
			delete(s.jobs, id)
			log.Printf("Removed schedule for property %s (no longer enabled)", id)
		}
	}
	s.jobsMu.Unlock()
}

// minutesToCronSpec converts minutes to a cron spec.
func minutesToCronSpec(minutes int) string {
	if minutes <= 0 {
		minutes = models.DefaultSyncIntervalMin
	}
	return "@every " + (time.Duration(minutes) * time.Minute).String()
}

// ScheduledProperties returns the IDs of scheduled properties in sorted order.
func (s *Scheduler) ScheduledProperties() []string {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NextRun returns the next scheduled run time for a property.
func (s *Scheduler) NextRun(propertyID string) *time.Time {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	if job, exists := s.jobs[propertyID]; exists {
		entry := s.cron.Entry(job.entryID)
		if !entry.Next.IsZero() {
			return &entry.Next
		}
	}
	return nil
}
