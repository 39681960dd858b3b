package calendar

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/listing-sync/backend/internal/apperrors"
)

// Availability flags as encoded on the wire.
const (
	wireAvailable   = "1"
	wireUnavailable = "0"
)

// WirePayload is the compacted calendar handed to the transport layer.
// All sequences are parallel and indexed by day offset from StartDate.
// Optional sequences whose values are all absent, and boolean sequences
// that are entirely true, are left nil and omitted.
type WirePayload struct {
	Identifier string `json:"identifier"`
	// Empty marks a calendar with no entries.
	Empty     bool   `json:"empty,omitempty"`
	StartDate string `json:"start_date,omitempty"`

	Availabilities  []string              `json:"availabilities,omitempty"`
	NightlyRates    []decimal.Decimal     `json:"nightly_rates,omitempty"`
	WeeklyRates     []decimal.NullDecimal `json:"weekly_rates,omitempty"`
	MonthlyRates    []decimal.NullDecimal `json:"monthly_rates,omitempty"`
	MinimumStays    []*int                `json:"minimum_stays,omitempty"`
	CheckinAllowed  []bool                `json:"checkin_allowed,omitempty"`
	CheckoutAllowed []bool                `json:"checkout_allowed,omitempty"`
}

// Days returns the number of days described by the payload.
func (p WirePayload) Days() int {
	return len(p.Availabilities)
}

// Compact serializes the calendar into parallel sequences. A nil calendar
// yields the empty marker.
func Compact(cal *Calendar) WirePayload {
	if cal == nil {
		return WirePayload{Empty: true}
	}
	payload := WirePayload{Identifier: cal.PropertyID}
	n := len(cal.Entries)
	if n == 0 {
		payload.Empty = true
		return payload
	}

	payload.StartDate = FormatDate(cal.Entries[0].Date)
	payload.Availabilities = make([]string, n)
	payload.NightlyRates = make([]decimal.Decimal, n)

	weekly := make([]decimal.NullDecimal, n)
	monthly := make([]decimal.NullDecimal, n)
	minStays := make([]*int, n)
	checkin := make([]bool, n)
	checkout := make([]bool, n)

	var hasWeekly, hasMonthly, hasMinStay bool
	allCheckin, allCheckout := true, true

	for i, e := range cal.Entries {
		if e.IsAvailable() {
			payload.Availabilities[i] = wireAvailable
		} else {
			payload.Availabilities[i] = wireUnavailable
		}
		payload.NightlyRates[i] = e.NightlyRate

		if e.WeeklyRate != nil {
			weekly[i] = decimal.NewNullDecimal(*e.WeeklyRate)
			hasWeekly = true
		}
		if e.MonthlyRate != nil {
			monthly[i] = decimal.NewNullDecimal(*e.MonthlyRate)
			hasMonthly = true
		}
		if e.MinimumStay != nil {
			v := *e.MinimumStay
			minStays[i] = &v
			hasMinStay = true
		}

		checkin[i] = e.CheckinAllowed
		checkout[i] = e.CheckoutAllowed
		allCheckin = allCheckin && e.CheckinAllowed
		allCheckout = allCheckout && e.CheckoutAllowed
	}

	if hasWeekly {
		payload.WeeklyRates = weekly
	}
	if hasMonthly {
		payload.MonthlyRates = monthly
	}
	if hasMinStay {
		payload.MinimumStays = minStays
	}
	// A single false day ships the whole sequence.
	if !allCheckin {
		payload.CheckinAllowed = checkin
	}
	if !allCheckout {
		payload.CheckoutAllowed = checkout
	}

	return payload
}

// Decompact rebuilds a calendar from a payload, restoring the receiver's
// defaults for omitted sequences.
func Decompact(p WirePayload) (*Calendar, error) {
	cal := &Calendar{PropertyID: p.Identifier}
	if p.Empty {
		return cal, nil
	}

	start, err := ParseDate(p.StartDate)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidDate, "unparseable payload start date", err).
			WithField("start_date").
			WithValue(p.StartDate)
	}

	n := len(p.Availabilities)
	if err := checkLength("nightly_rates", len(p.NightlyRates), n, true); err != nil {
		return nil, err
	}
	optional := []struct {
		field string
		n     int
	}{
		{"weekly_rates", len(p.WeeklyRates)},
		{"monthly_rates", len(p.MonthlyRates)},
		{"minimum_stays", len(p.MinimumStays)},
		{"checkin_allowed", len(p.CheckinAllowed)},
		{"checkout_allowed", len(p.CheckoutAllowed)},
	}
	for _, seq := range optional {
		if err := checkLength(seq.field, seq.n, n, false); err != nil {
			return nil, err
		}
	}

	cal.Entries = make([]Entry, n)
	for i := 0; i < n; i++ {
		var available bool
		switch p.Availabilities[i] {
		case wireAvailable:
			available = true
		case wireUnavailable:
			available = false
		default:
			return nil, apperrors.Newf(apperrors.CodeInvalidEntity, "availability %d is not %q or %q", i, wireAvailable, wireUnavailable).
				WithField("availabilities").
				WithValue(p.Availabilities[i])
		}

		e := NewEntry(start.AddDate(0, 0, i), WithAvailable(available), WithNightlyRate(p.NightlyRates[i]))
		if len(p.WeeklyRates) > 0 && p.WeeklyRates[i].Valid {
			WithWeeklyRate(p.WeeklyRates[i].Decimal)(&e)
		}
		if len(p.MonthlyRates) > 0 && p.MonthlyRates[i].Valid {
			WithMonthlyRate(p.MonthlyRates[i].Decimal)(&e)
		}
		if len(p.MinimumStays) > 0 && p.MinimumStays[i] != nil {
			WithMinimumStay(*p.MinimumStays[i])(&e)
		}
		if len(p.CheckinAllowed) > 0 {
			e.CheckinAllowed = p.CheckinAllowed[i]
		}
		if len(p.CheckoutAllowed) > 0 {
			e.CheckoutAllowed = p.CheckoutAllowed[i]
		}
		cal.Entries[i] = e
	}

	return cal, nil
}

func checkLength(field string, got, want int, required bool) error {
	if got == 0 && !required {
		return nil
	}
	if got != want {
		return apperrors.New(apperrors.CodeInvalidEntity,
			fmt.Sprintf("%s has %d values for %d days", field, got, want)).
			WithField(field)
	}
	return nil
}
