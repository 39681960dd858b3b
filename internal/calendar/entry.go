// Package calendar builds canonical per-day property calendars from
// overlapping supplier intervals and compacts them into the wire format.
package calendar

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/listing-sync/backend/internal/apperrors"
)

// DateLayout is the canonical day format used by source intervals and the wire payload.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its own calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole days from the UTC day of a to the
// UTC day of b. It is negative when b is before a.
func DaysBetween(a, b time.Time) int {
	return int((Day(b).Unix() - Day(a).Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// ParseDate parses a YYYY-MM-DD day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// FormatDate formats a day as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Entry is one property-day of a calendar.
type Entry struct {
	Date      time.Time
	Available *bool

	NightlyRate decimal.Decimal
	// WeeklyRate and MonthlyRate are nil when the transport layer should
	// derive them from the nightly rate.
	WeeklyRate  *decimal.Decimal
	MonthlyRate *decimal.Decimal

	MinimumStay *int

	CheckinAllowed  bool
	CheckoutAllowed bool
}

// EntryOption sets an optional field on a new Entry.
type EntryOption func(*Entry)

// WithAvailable sets the availability flag.
func WithAvailable(available bool) EntryOption {
	return func(e *Entry) {
		e.Available = &available
	}
}

// WithNightlyRate sets the nightly rate.
func WithNightlyRate(rate decimal.Decimal) EntryOption {
	return func(e *Entry) {
		e.NightlyRate = rate
	}
}

// WithWeeklyRate sets an explicit weekly rate.
func WithWeeklyRate(rate decimal.Decimal) EntryOption {
	return func(e *Entry) {
		e.WeeklyRate = &rate
	}
}

// WithMonthlyRate sets an explicit monthly rate.
func WithMonthlyRate(rate decimal.Decimal) EntryOption {
	return func(e *Entry) {
		e.MonthlyRate = &rate
	}
}

// WithMinimumStay sets the minimum stay in nights. Non-positive values leave it unset.
func WithMinimumStay(nights int) EntryOption {
	return func(e *Entry) {
		if nights > 0 {
			e.MinimumStay = &nights
		}
	}
}

// WithChangeover sets the check-in and check-out flags.
func WithChangeover(checkin, checkout bool) EntryOption {
	return func(e *Entry) {
		e.CheckinAllowed = checkin
		e.CheckoutAllowed = checkout
	}
}

// NewEntry creates an entry for date. Check-in and check-out default to
// allowed and the nightly rate to zero.
func NewEntry(date time.Time, opts ...EntryOption) Entry {
	e := Entry{
		NightlyRate:     decimal.Zero,
		CheckinAllowed:  true,
		CheckoutAllowed: true,
	}
	if !date.IsZero() {
		e.Date = Day(date)
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// IsAvailable reports whether the day is bookable. An unset flag counts as unavailable.
func (e Entry) IsAvailable() bool {
	return e.Available != nil && *e.Available
}

// Validate checks that the required fields are present.
func (e Entry) Validate() error {
	if e.Date.IsZero() {
		return apperrors.New(apperrors.CodeMissingRequiredField, "calendar entry has no date").WithField("date")
	}
	if e.Available == nil {
		return apperrors.Newf(apperrors.CodeMissingRequiredField, "calendar entry %s has no availability", FormatDate(e.Date)).
			WithField("available")
	}
	if e.NightlyRate.IsNegative() {
		return apperrors.Newf(apperrors.CodeMissingRequiredField, "calendar entry %s has a negative nightly rate", FormatDate(e.Date)).
			WithField("nightly_rate").
			WithValue(e.NightlyRate.String())
	}
	return nil
}

// Equal reports whether two entries describe the same day identically.
func (e Entry) Equal(o Entry) bool {
	if !e.Date.Equal(o.Date) {
		return false
	}
	if (e.Available == nil) != (o.Available == nil) {
		return false
	}
	if e.Available != nil && *e.Available != *o.Available {
		return false
	}
	if !e.NightlyRate.Equal(o.NightlyRate) {
		return false
	}
	if !equalOptionalDecimal(e.WeeklyRate, o.WeeklyRate) || !equalOptionalDecimal(e.MonthlyRate, o.MonthlyRate) {
		return false
	}
	if (e.MinimumStay == nil) != (o.MinimumStay == nil) {
		return false
	}
	if e.MinimumStay != nil && *e.MinimumStay != *o.MinimumStay {
		return false
	}
	return e.CheckinAllowed == o.CheckinAllowed && e.CheckoutAllowed == o.CheckoutAllowed
}

func equalOptionalDecimal(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
