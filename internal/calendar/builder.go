package calendar

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/listing-sync/backend/internal/apperrors"
)

// Window is the inclusive range of days a calendar is built over.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow creates a window from two days. Times are truncated to their UTC day.
func NewWindow(start, end time.Time) Window {
	return Window{Start: Day(start), End: Day(end)}
}

// NewWindowFor creates a window of n days starting at start.
func NewWindowFor(start time.Time, days int) Window {
	start = Day(start)
	return Window{Start: start, End: start.AddDate(0, 0, days-1)}
}

// ParseWindow parses a window from two YYYY-MM-DD days.
func ParseWindow(start, end string) (Window, error) {
	s, err := ParseDate(start)
	if err != nil {
		return Window{}, apperrors.Wrap(apperrors.CodeInvalidDate, "unparseable window start", err).
			WithField("start_date").
			WithValue(start)
	}
	e, err := ParseDate(end)
	if err != nil {
		return Window{}, apperrors.Wrap(apperrors.CodeInvalidDate, "unparseable window end", err).
			WithField("end_date").
			WithValue(end)
	}
	w := NewWindow(s, e)
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// Validate fails with invalid_window if the window is unset or ends before it starts.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return apperrors.New(apperrors.CodeInvalidWindow, "window start and end are required")
	}
	if Day(w.End).Before(Day(w.Start)) {
		return apperrors.Newf(apperrors.CodeInvalidWindow, "window ends %s before it starts %s",
			FormatDate(w.End), FormatDate(w.Start)).
			WithValue(FormatDate(w.Start) + ".." + FormatDate(w.End))
	}
	return nil
}

// Days returns the number of days in the window, or zero if it is invalid.
func (w Window) Days() int {
	if w.Validate() != nil {
		return 0
	}
	return DaysBetween(w.Start, w.End) + 1
}

// Calendar is the ordered, gap-free sequence of entries for one property.
type Calendar struct {
	PropertyID string
	Entries    []Entry
}

// Len returns the number of entries.
func (c *Calendar) Len() int {
	return len(c.Entries)
}

// Window returns the range covered by the calendar. ok is false for an empty calendar.
func (c *Calendar) Window() (w Window, ok bool) {
	if len(c.Entries) == 0 {
		return Window{}, false
	}
	return Window{Start: c.Entries[0].Date, End: c.Entries[len(c.Entries)-1].Date}, true
}

// Entry returns the entry for date.
func (c *Calendar) Entry(date time.Time) (Entry, bool) {
	if len(c.Entries) == 0 {
		return Entry{}, false
	}
	offset := DaysBetween(c.Entries[0].Date, date)
	if offset < 0 || offset >= len(c.Entries) {
		return Entry{}, false
	}
	return c.Entries[offset], true
}

// Build merges source intervals into one entry per day of window.
//
// For each day the rate interval, availability interval and stay rule
// interval with the latest start that contains the day are applied in that
// order. A day without a rate is always unavailable at zero. A day without
// an availability interval is available only if it is priced. Stay rules
// outrank the optional rules carried on availability intervals.
//
// Every interval is validated before the first entry is built, so an error
// never yields a partial calendar.
func Build(
	propertyID string,
	window Window,
	availability []AvailabilityInterval,
	rates []RateInterval,
	stayRules []StayRuleInterval,
) (*Calendar, error) {
	if propertyID == "" {
		return nil, apperrors.New(apperrors.CodeMissingIdentifier, "property identifier is required").
			WithField("property_identifier")
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}

	rateSpans := make([]span, len(rates))
	for i, r := range rates {
		s, err := parseSpan("rate", i, r.DateRange)
		if err != nil {
			return nil, err
		}
		if r.NightlyPrice.IsNegative() {
			return nil, apperrors.Newf(apperrors.CodeMissingRequiredField, "rate interval %d has a negative nightly price", i).
				WithField("nightly_price").
				WithValue(r.NightlyPrice.String())
		}
		rateSpans[i] = s
	}

	availSpans := make([]span, len(availability))
	availRules := make([]changeoverRule, len(availability))
	for i, a := range availability {
		s, err := parseSpan("availability", i, a.DateRange)
		if err != nil {
			return nil, err
		}
		if a.Changeover != "" {
			checkin, checkout, err := a.Changeover.Rules()
			if err != nil {
				return nil, err
			}
			availRules[i] = changeoverRule{checkin: checkin, checkout: checkout}
		}
		availSpans[i] = s
	}

	ruleSpans := make([]span, len(stayRules))
	stayRulesParsed := make([]changeoverRule, len(stayRules))
	for i, r := range stayRules {
		s, err := parseSpan("stay rule", i, r.DateRange)
		if err != nil {
			return nil, err
		}
		// Stay rules always carry a changeover code.
		checkin, checkout, err := r.Changeover.Rules()
		if err != nil {
			return nil, err
		}
		stayRulesParsed[i] = changeoverRule{checkin: checkin, checkout: checkout}
		ruleSpans[i] = s
	}

	days := window.Days()
	cal := &Calendar{
		PropertyID: propertyID,
		Entries:    make([]Entry, 0, days),
	}

	start := Day(window.Start)
	for n := 0; n < days; n++ {
		d := start.AddDate(0, 0, n)
		entry := NewEntry(d)

		priced := false
		if i := lastMatch(rateSpans, d); i >= 0 {
			entry.NightlyRate = rates[i].NightlyPrice
			priced = true
		}

		availIdx := lastMatch(availSpans, d)
		available := priced
		if availIdx >= 0 {
			available = availability[availIdx].Available
		}

		if i := lastMatch(ruleSpans, d); i >= 0 {
			rule := stayRules[i]
			WithMinimumStay(rule.MinimumStay)(&entry)
			entry.CheckinAllowed = stayRulesParsed[i].checkin
			entry.CheckoutAllowed = stayRulesParsed[i].checkout
		} else if availIdx >= 0 {
			a := availability[availIdx]
			WithMinimumStay(a.MinimumStay)(&entry)
			if a.Changeover != "" {
				entry.CheckinAllowed = availRules[availIdx].checkin
				entry.CheckoutAllowed = availRules[availIdx].checkout
			}
		}

		// A day cannot be sold without a price.
		if !priced {
			available = false
			entry.NightlyRate = decimal.Zero
		}
		entry.Available = &available

		cal.Entries = append(cal.Entries, entry)
	}

	return cal, nil
}
