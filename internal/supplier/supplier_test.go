package supplier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/listing-sync/backend/internal/apperrors"
	"github.com/listing-sync/backend/internal/calendar"
)

const bookingsICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:booking-1\r\n" +
	"DTSTART;VALUE=DATE:20240110\r\n" +
	"DTEND;VALUE=DATE:20240113\r\n" +
	"SUMMARY:Reserved\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:booking-2\r\n" +
	"DTSTART:20240120T060000Z\r\n" +
	"DTEND:20240122T060000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:cancelled\r\n" +
	"STATUS:CANCELLED\r\n" +
	"DTSTART;VALUE=DATE:20240125\r\n" +
	"DTEND;VALUE=DATE:20240126\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

const recurringICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:owner-weekend\r\n" +
	"DTSTART;VALUE=DATE:20240106\r\n" +
	"DTEND;VALUE=DATE:20240108\r\n" +
	"RRULE:FREQ=WEEKLY;COUNT=4\r\n" +
	"EXDATE;VALUE=DATE:20240113\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := calendar.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func januaryWindow(t *testing.T) calendar.Window {
	return calendar.NewWindow(mustDay(t, "2024-01-01"), mustDay(t, "2024-01-31"))
}

func TestICalParseBlocksNights(t *testing.T) {
	feed, err := NewICalAdapter(nil).Parse([]byte(bookingsICS), januaryWindow(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := []calendar.DateRange{
		{From: "2024-01-10", To: "2024-01-12"},
		{From: "2024-01-20", To: "2024-01-21"},
	}
	if len(feed.Availability) != len(want) {
		t.Fatalf("got %d intervals, want %d: %+v", len(feed.Availability), len(want), feed.Availability)
	}
	for i, w := range want {
		got := feed.Availability[i]
		if got.DateRange != w || got.Available {
			t.Errorf("interval %d = %+v, want unavailable %+v", i, got, w)
		}
	}
	if len(feed.Rates) != 0 || feed.Listing != nil {
		t.Error("iCal feeds carry availability only")
	}
}

func TestICalParseExpandsRecurrence(t *testing.T) {
	feed, err := NewICalAdapter(nil).Parse([]byte(recurringICS), januaryWindow(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := []string{"2024-01-06", "2024-01-20", "2024-01-27"}
	if len(feed.Availability) != len(want) {
		t.Fatalf("got %d occurrences, want %d: %+v", len(feed.Availability), len(want), feed.Availability)
	}
	for i, from := range want {
		got := feed.Availability[i]
		if got.From != from || got.To != calendar.FormatDate(mustDay(t, from).AddDate(0, 0, 1)) {
			t.Errorf("occurrence %d = %+v, want two nights from %s", i, got.DateRange, from)
		}
	}
}

func TestICalParseRejectsGarbage(t *testing.T) {
	if _, err := NewICalAdapter(nil).Parse([]byte("   "), januaryWindow(t)); err == nil {
		t.Error("expected error for empty feed")
	}
}

func TestICalFeedFeedsBuilder(t *testing.T) {
	w := januaryWindow(t)
	feed, err := NewICalAdapter(nil).Parse([]byte(bookingsICS), w)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rates := []calendar.RateInterval{{
		DateRange:    calendar.NewDateRange(w.Start, w.End),
		NightlyPrice: decimal.NewFromInt(100),
	}}

	cal, err := calendar.Build("prop-1", w, feed.Availability, rates, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for day, want := range map[string]bool{"2024-01-09": true, "2024-01-10": false, "2024-01-12": false, "2024-01-13": true} {
		e, ok := cal.Entry(mustDay(t, day))
		if !ok {
			t.Fatalf("no entry for %s", day)
		}
		if e.IsAvailable() != want {
			t.Errorf("%s available = %v, want %v", day, e.IsAvailable(), want)
		}
	}
}

func TestSeasonsParse(t *testing.T) {
	body := `{
		"seasons": [
			{"from": "2024-06-01", "to": "2024-06-30", "nightly": "120.50", "minimum_stay": 3, "changeover": "in"},
			{"from": "01.07.2024", "to": "31.07.2024", "nightly": 150, "available": false},
			{"from": "2024-08-01", "to": "2024-08-31", "changeover": "Saturday"}
		],
		"closed": [{"from": "2024-06-10", "to": "2024-06-12"}],
		"listing": {"identifier": "prop-1", "name": "Chalet"}
	}`

	feed, err := NewSeasonsAdapter(nil).Parse([]byte(body))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(feed.Rates) != 2 {
		t.Fatalf("got %d rates, want 2", len(feed.Rates))
	}
	if !feed.Rates[0].NightlyPrice.Equal(decimal.RequireFromString("120.50")) {
		t.Errorf("rate 0 = %s", feed.Rates[0].NightlyPrice)
	}
	if feed.Rates[1].From != "2024-07-01" || feed.Rates[1].To != "2024-07-31" {
		t.Errorf("dotted dates not normalized: %+v", feed.Rates[1].DateRange)
	}

	if len(feed.StayRules) != 2 {
		t.Fatalf("got %d stay rules, want 2", len(feed.StayRules))
	}
	if feed.StayRules[0].Changeover != calendar.ChangeoverCheckinOnly || feed.StayRules[0].MinimumStay != 3 {
		t.Errorf("stay rule 0 = %+v", feed.StayRules[0])
	}
	if feed.StayRules[1].Changeover != "Saturday" {
		t.Errorf("unknown changeover should pass through, got %q", feed.StayRules[1].Changeover)
	}

	if len(feed.Availability) != 2 {
		t.Fatalf("got %d availability intervals, want 2", len(feed.Availability))
	}
	if closed := feed.Availability[1]; closed.Available || closed.From != "2024-06-10" {
		t.Errorf("closed range = %+v", closed)
	}

	if feed.Listing == nil || feed.Listing.Name != "Chalet" {
		t.Errorf("listing = %+v", feed.Listing)
	}
}

func TestOpenSeasonKeepsICalBookings(t *testing.T) {
	w := januaryWindow(t)
	bookings, err := NewICalAdapter(nil).Parse([]byte(bookingsICS), w)
	if err != nil {
		t.Fatalf("ical Parse: %v", err)
	}
	seasons, err := NewSeasonsAdapter(nil).Parse([]byte(`{"seasons": [
		{"from": "2024-01-01", "to": "2024-01-10", "nightly": 80},
		{"from": "2024-01-11", "to": "2024-01-31", "nightly": 95, "available": true, "minimum_stay": 2}
	]}`))
	if err != nil {
		t.Fatalf("seasons Parse: %v", err)
	}
	if len(seasons.Availability) != 0 {
		t.Fatalf("open season emitted availability %+v", seasons.Availability)
	}
	if len(seasons.StayRules) != 1 || seasons.StayRules[0].Changeover != calendar.ChangeoverBoth {
		t.Fatalf("stay rules = %+v, want one rule defaulting to both", seasons.StayRules)
	}

	merged := Merge(bookings, seasons)
	cal, err := calendar.Build("prop-1", w, merged.Availability, merged.Rates, merged.StayRules)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for day, want := range map[string]bool{
		"2024-01-09": true,
		"2024-01-10": false,
		"2024-01-11": false,
		"2024-01-12": false,
		"2024-01-13": true,
	} {
		e, ok := cal.Entry(mustDay(t, day))
		if !ok {
			t.Fatalf("no entry for %s", day)
		}
		if e.IsAvailable() != want {
			t.Errorf("%s available = %v, want %v", day, e.IsAvailable(), want)
		}
	}
}

func TestSeasonsBadDatesReachBuilder(t *testing.T) {
	feed, err := NewSeasonsAdapter(nil).Parse([]byte(`{"seasons":[{"from":"June 1st","to":"2024-06-30","nightly":100}]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if feed.Rates[0].From != "June 1st" {
		t.Fatalf("unparseable date should be kept, got %q", feed.Rates[0].From)
	}

	w := calendar.NewWindow(mustDay(t, "2024-06-01"), mustDay(t, "2024-06-07"))
	_, err = calendar.Build("prop-1", w, nil, feed.Rates, nil)
	if apperrors.CodeOf(err) != apperrors.CodeInvalidDate {
		t.Errorf("Build err = %v, want invalid_date", err)
	}
}

func TestAdaptersFetchOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bookings.ics":
			w.Header().Set("Content-Type", "text/calendar")
			w.Write([]byte(bookingsICS))
		case "/seasons.json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"seasons":[{"from":"2024-01-01","to":"2024-01-31","nightly":90}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	reg := NewDefaultRegistry(5 * time.Second)
	if got := strings.Join(reg.Kinds(), ","); got != "ical,seasons" {
		t.Fatalf("Kinds = %s", got)
	}

	ctx := context.Background()
	w := januaryWindow(t)

	ic, _ := reg.Get(KindICal)
	icalFeed, err := ic.Fetch(ctx, Request{PropertyID: "prop-1", URL: srv.URL + "/bookings.ics", Window: w})
	if err != nil {
		t.Fatalf("ical Fetch: %v", err)
	}

	se, _ := reg.Get(KindSeasons)
	seasonsFeed, err := se.Fetch(ctx, Request{PropertyID: "prop-1", URL: srv.URL + "/seasons.json", Window: w})
	if err != nil {
		t.Fatalf("seasons Fetch: %v", err)
	}

	merged := Merge(icalFeed, nil, seasonsFeed)
	if len(merged.Availability) != 2 || len(merged.Rates) != 1 {
		t.Errorf("merged feed = %+v", merged)
	}

	if _, err := se.Fetch(ctx, Request{URL: srv.URL + "/missing"}); err == nil {
		t.Error("expected error for 404 feed")
	}
	if _, err := reg.Get("airbnb"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
