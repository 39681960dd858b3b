package supplier

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/listing-sync/backend/internal/calendar"
)

// KindICal is the source kind for iCal availability feeds.
const KindICal = "ical"

const defaultMaxOccurrences = 1000

// ICalAdapter reads an iCal feed of bookings and owner blocks. Every
// event is a stay that makes its nights unavailable; the checkout day
// stays free.
type ICalAdapter struct {
	client         *http.Client
	maxOccurrences int
}

// NewICalAdapter creates an iCal adapter using client for downloads.
func NewICalAdapter(client *http.Client) *ICalAdapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ICalAdapter{client: client, maxOccurrences: defaultMaxOccurrences}
}

// Kind implements Adapter.
func (a *ICalAdapter) Kind() string {
	return KindICal
}

// Fetch downloads and parses an iCal feed.
func (a *ICalAdapter) Fetch(ctx context.Context, req Request) (*Feed, error) {
	body, err := download(ctx, a.client, req.URL)
	if err != nil {
		return nil, err
	}
	return a.Parse(body, req.Window)
}

// Parse converts iCal data into unavailable intervals. Recurring events
// are expanded over window.
func (a *ICalAdapter) Parse(body []byte, window calendar.Window) (*Feed, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("empty calendar feed")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing calendar: %w", err)
	}

	feed := &Feed{}
	for _, ev := range cal.Events() {
		if p := ev.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
			continue
		}
		blocks, err := a.eventBlocks(ev, window)
		if err != nil {
			return nil, err
		}
		feed.Availability = append(feed.Availability, blocks...)
	}

	return feed, nil
}

// eventBlocks returns the unavailable intervals for one VEVENT. A date
// the library cannot read is passed through raw so the builder rejects it.
func (a *ICalAdapter) eventBlocks(ev *ical.VEvent, window calendar.Window) ([]calendar.AvailabilityInterval, error) {
	startProp := ev.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return nil, nil
	}
	allDay := isAllDay(startProp)

	var start, end time.Time
	var err error
	if allDay {
		start, err = ev.GetAllDayStartAt()
	} else {
		start, err = ev.GetStartAt()
	}
	if err != nil {
		return []calendar.AvailabilityInterval{blocked(calendar.DateRange{From: startProp.Value, To: startProp.Value})}, nil
	}
	from := calendar.Day(start)

	to := from
	if endProp := ev.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
		if allDay {
			end, err = ev.GetAllDayEndAt()
		} else {
			end, err = ev.GetEndAt()
		}
		if err != nil {
			return []calendar.AvailabilityInterval{blocked(calendar.DateRange{From: calendar.FormatDate(from), To: endProp.Value})}, nil
		}
		// The checkout day is not a booked night.
		if last := calendar.Day(end).AddDate(0, 0, -1); last.After(from) {
			to = last
		}
	}

	rruleProp := ev.GetProperty(ical.ComponentPropertyRrule)
	if rruleProp == nil || rruleProp.Value == "" {
		return []calendar.AvailabilityInterval{blocked(calendar.NewDateRange(from, to))}, nil
	}

	uid := ""
	if p := ev.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		uid = p.Value
	}

	r, err := rrule.StrToRRule(rruleProp.Value)
	if err != nil {
		return nil, fmt.Errorf("event %s: parsing RRULE %q: %w", uid, rruleProp.Value, err)
	}
	r.DTStart(from)

	var set rrule.Set
	set.RRule(r)
	for _, p := range ev.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICalDate(part); err == nil {
				set.ExDate(calendar.Day(t))
			}
		}
	}

	nights := calendar.DaysBetween(from, to)
	rangeStart, rangeEnd := window.Start, window.End
	if window.Validate() != nil {
		rangeStart, rangeEnd = from, from.AddDate(1, 0, 0)
	}
	// Occurrences starting before the window may still reach into it.
	occurrences := set.Between(calendar.Day(rangeStart).AddDate(0, 0, -nights), calendar.Day(rangeEnd), true)
	if len(occurrences) > a.maxOccurrences {
		occurrences = occurrences[:a.maxOccurrences]
	}

	blocks := make([]calendar.AvailabilityInterval, 0, len(occurrences))
	for _, occ := range occurrences {
		d := calendar.Day(occ)
		blocks = append(blocks, blocked(calendar.NewDateRange(d, d.AddDate(0, 0, nights))))
	}
	return blocks, nil
}

func blocked(r calendar.DateRange) calendar.AvailabilityInterval {
	return calendar.AvailabilityInterval{DateRange: r, Available: false}
}

// isAllDay reports whether a DTSTART carries a date rather than a date-time.
func isAllDay(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// parseICalDate parses the DATE and DATE-TIME forms used by EXDATE.
func parseICalDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	layouts := []string{"20060102T150405Z", "20060102T150405", "20060102"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", v)
}
