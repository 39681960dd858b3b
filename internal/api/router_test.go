package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gws "github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/listing-sync/backend/internal/api/middleware"
	"github.com/listing-sync/backend/internal/apperrors"
	"github.com/listing-sync/backend/internal/calendar"
	"github.com/listing-sync/backend/internal/config"
	"github.com/listing-sync/backend/internal/listing"
	"github.com/listing-sync/backend/internal/storage"
	"github.com/listing-sync/backend/internal/storage/models"
	"github.com/listing-sync/backend/internal/supplier"
	"github.com/listing-sync/backend/internal/syncer"
	"github.com/listing-sync/backend/internal/websocket"
)

type stubAdapter struct {
	mu   sync.Mutex
	feed *supplier.Feed
}

func (s *stubAdapter) Kind() string { return supplier.KindICal }

func (s *stubAdapter) Fetch(context.Context, supplier.Request) (*supplier.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feed, nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	calendars []calendar.WirePayload
	diffs     []map[string]any
}

func (p *recordingPublisher) PublishCalendar(_ context.Context, payload calendar.WirePayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calendars = append(p.calendars, payload)
	return nil
}

func (p *recordingPublisher) PublishDiff(_ context.Context, _ string, diff map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.diffs = append(p.diffs, diff)
	return nil
}

type testServer struct {
	*httptest.Server
	adapter   *stubAdapter
	publisher *recordingPublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := storage.NewDB(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := websocket.NewHub()
	go hub.Run(ctx)

	adapter := &stubAdapter{feed: &supplier.Feed{
		Rates: []calendar.RateInterval{{
			DateRange:    calendar.DateRange{From: "2000-01-01", To: "2099-12-31"},
			NightlyPrice: decimal.NewFromInt(120),
		}},
		Availability: []calendar.AvailabilityInterval{{
			DateRange: calendar.DateRange{From: "2030-01-02", To: "2030-01-03"},
		}},
		Listing: &listing.Property{Name: "Lake House", MaxGuests: 4},
	}}
	publisher := &recordingPublisher{}
	registry := supplier.NewRegistry(adapter)

	properties := storage.NewPropertyRepository(db)
	service := syncer.NewService(
		properties,
		storage.NewSyncRunRepository(db),
		storage.NewSnapshotRepository(db),
		registry,
		publisher,
	)
	scheduler := syncer.NewScheduler(service, properties, hub, 60)

	cfg := config.DefaultConfig()
	cfg.StaticDir = ""
	cfg.Sync.DefaultHorizonDays = 30

	srv := httptest.NewServer(NewRouter(cfg, db, hub, registry, service, scheduler))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, adapter: adapter, publisher: publisher}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func createLakeHouse(t *testing.T, s *testServer) {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/properties", map[string]any{
		"id":   "lake-house",
		"name": "Lake House",
		"sources": []map[string]string{
			{"kind": "ical", "url": "https://supplier.test/lake.ics"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get(middleware.RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
	var health struct {
		Status      string `json:"status"`
		DBConnected bool   `json:"db_connected"`
	}
	decode(t, resp, &health)
	if health.Status != "healthy" || !health.DBConnected {
		t.Errorf("health = %+v", health)
	}
}

func TestPropertyCRUD(t *testing.T) {
	s := newTestServer(t)
	createLakeHouse(t, s)

	resp := s.do(t, http.MethodPost, "/api/properties", map[string]any{"id": "lake-house", "name": "Again"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", resp.StatusCode)
	}

	resp = s.do(t, http.MethodGet, "/api/properties/lake-house", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var got struct {
		models.Property
		Sources    []models.PropertySource `json:"sources"`
		NextSyncAt *time.Time              `json:"next_sync_at"`
	}
	decode(t, resp, &got)
	if got.HorizonDays != 30 || got.SyncIntervalMin != 60 || !got.Enabled {
		t.Errorf("defaults not applied: %+v", got.Property)
	}
	if len(got.Sources) != 1 || got.Sources[0].Kind != "ical" {
		t.Errorf("sources = %+v", got.Sources)
	}

	resp = s.do(t, http.MethodPut, "/api/properties/lake-house", map[string]any{"horizon_days": 14})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}

	resp = s.do(t, http.MethodPut, "/api/properties/lake-house/sources", map[string]any{
		"sources": []map[string]string{{"kind": "ftp", "url": "ftp://x"}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid source kind status = %d, want 400", resp.StatusCode)
	}

	resp = s.do(t, http.MethodDelete, "/api/properties/lake-house", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp = s.do(t, http.MethodDelete, "/api/properties/lake-house", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestCreatePropertyValidation(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/properties", map[string]any{"horizon_days": 10})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body middleware.ErrorResponse
	decode(t, resp, &body)
	if body.Error != middleware.ErrValidation {
		t.Errorf("error = %q", body.Error)
	}
}

func TestSyncAndRuns(t *testing.T) {
	s := newTestServer(t)
	createLakeHouse(t, s)

	resp := s.do(t, http.MethodPost, "/api/properties/lake-house/sync?wait=true", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync status = %d", resp.StatusCode)
	}
	var result models.SyncResult
	decode(t, resp, &result)
	if result.Days != 30 || !result.DiffPublished {
		t.Errorf("result = %+v", result)
	}

	if len(s.publisher.calendars) != 1 || s.publisher.calendars[0].Identifier != "lake-house" {
		t.Errorf("published calendars = %+v", s.publisher.calendars)
	}

	resp = s.do(t, http.MethodGet, "/api/properties/lake-house/runs", nil)
	var runs []models.SyncRun
	decode(t, resp, &runs)
	if len(runs) != 1 || runs[0].Status != models.SyncStatusSuccess {
		t.Errorf("runs = %+v", runs)
	}
}

func TestSyncReportsCoreErrors(t *testing.T) {
	s := newTestServer(t)
	createLakeHouse(t, s)

	s.adapter.mu.Lock()
	s.adapter.feed.StayRules = []calendar.StayRuleInterval{{
		DateRange:  calendar.DateRange{From: "2000-01-01", To: "2099-12-31"},
		Changeover: "sundays",
	}}
	s.adapter.mu.Unlock()

	resp := s.do(t, http.MethodPost, "/api/properties/lake-house/sync?wait=true", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	var body middleware.ErrorResponse
	decode(t, resp, &body)
	if body.Error != "unsupported_changeover" {
		t.Errorf("error code = %q", body.Error)
	}
	if len(s.publisher.calendars) != 0 {
		t.Error("failed sync must not publish")
	}
}

func TestCalendarPreview(t *testing.T) {
	s := newTestServer(t)
	createLakeHouse(t, s)

	resp := s.do(t, http.MethodGet, "/api/properties/lake-house/calendar?from=2030-01-01&to=2030-01-05", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload calendar.WirePayload
	decode(t, resp, &payload)
	want := []string{"1", "0", "0", "1", "1"}
	if payload.StartDate != "2030-01-01" || strings.Join(payload.Availabilities, "") != strings.Join(want, "") {
		t.Errorf("payload = %+v", payload)
	}
	if len(s.publisher.calendars) != 0 {
		t.Error("preview must not publish")
	}

	resp = s.do(t, http.MethodGet, "/api/properties/lake-house/calendar?from=2030-01-05&to=2030-01-01", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("reversed window status = %d, want 422", resp.StatusCode)
	}

	resp = s.do(t, http.MethodGet, "/api/properties/lake-house/calendar?from=1700-01-01&to=2100-01-01", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("oversized window status = %d, want 422", resp.StatusCode)
	}
	var body middleware.ErrorResponse
	decode(t, resp, &body)
	if body.Error != string(apperrors.CodeInvalidWindow) {
		t.Errorf("oversized window error = %q, want invalid_window", body.Error)
	}

	resp = s.do(t, http.MethodGet, "/api/properties/missing/calendar", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing property status = %d, want 404", resp.StatusCode)
	}
}

func TestWebSocketCommands(t *testing.T) {
	s := newTestServer(t)

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/ws"
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatal(err)
	}
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "pong" {
		t.Errorf("type = %q, want pong", msg.Type)
	}

	if err := conn.WriteJSON(map[string]any{
		"type":    "subscribe",
		"payload": map[string]any{"property_ids": []string{"b", "a"}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	var ack websocket.SubscribePayload
	if err := json.Unmarshal(msg.Payload, &ack); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "subscribe.ack" || strings.Join(ack.PropertyIDs, ",") != "a,b" {
		t.Errorf("ack = %s %v", msg.Type, ack.PropertyIDs)
	}

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "error" {
		t.Errorf("type = %q, want error", msg.Type)
	}
}
