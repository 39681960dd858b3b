package calendar

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/listing-sync/backend/internal/apperrors"
)

// ChangeoverCode describes whether a day permits check-in, check-out, both or neither.
type ChangeoverCode string

// Changeover codes
const (
	ChangeoverCheckinOnly  ChangeoverCode = "checkin"
	ChangeoverCheckoutOnly ChangeoverCode = "checkout"
	ChangeoverNeither      ChangeoverCode = "none"
	ChangeoverBoth         ChangeoverCode = "both"
)

type changeoverRule struct {
	checkin  bool
	checkout bool
}

var changeoverRules = map[ChangeoverCode]changeoverRule{
	ChangeoverCheckinOnly:  {checkin: true, checkout: false},
	ChangeoverCheckoutOnly: {checkin: false, checkout: true},
	ChangeoverNeither:      {checkin: false, checkout: false},
	ChangeoverBoth:         {checkin: true, checkout: true},
}

// Rules returns the check-in and check-out permissions for the code.
func (c ChangeoverCode) Rules() (checkin, checkout bool, err error) {
	rule, ok := changeoverRules[c]
	if !ok {
		return false, false, apperrors.Newf(apperrors.CodeUnsupportedChangeover, "unsupported changeover code %q", string(c)).
			WithField("changeover").
			WithValue(string(c))
	}
	return rule.checkin, rule.checkout, nil
}

// DateRange is an inclusive [From, To] range of YYYY-MM-DD days as
// reported by a source adapter.
type DateRange struct {
	From string
	To   string
}

// NewDateRange formats two days into a DateRange.
func NewDateRange(from, to time.Time) DateRange {
	return DateRange{From: FormatDate(from), To: FormatDate(to)}
}

// AvailabilityInterval declares whether a range of days is bookable.
// MinimumStay and Changeover are optional.
type AvailabilityInterval struct {
	DateRange
	Available   bool
	MinimumStay int
	Changeover  ChangeoverCode
}

// RateInterval declares the nightly price for a range of days.
type RateInterval struct {
	DateRange
	NightlyPrice decimal.Decimal
}

// StayRuleInterval declares the minimum stay and changeover rule for a range of days.
type StayRuleInterval struct {
	DateRange
	MinimumStay int
	Changeover  ChangeoverCode
}

// span is a parsed DateRange.
type span struct {
	from time.Time
	to   time.Time
}

func (s span) contains(d time.Time) bool {
	return !d.Before(s.from) && !d.After(s.to)
}

func parseSpan(kind string, index int, r DateRange) (span, error) {
	from, err := ParseDate(r.From)
	if err != nil {
		return span{}, apperrors.Wrap(apperrors.CodeInvalidDate,
			fmt.Sprintf("unparseable date in %s interval %d", kind, index), err).
			WithField("date_from").
			WithValue(r.From)
	}
	to, err := ParseDate(r.To)
	if err != nil {
		return span{}, apperrors.Wrap(apperrors.CodeInvalidDate,
			fmt.Sprintf("unparseable date in %s interval %d", kind, index), err).
			WithField("date_to").
			WithValue(r.To)
	}
	if to.Before(from) {
		return span{}, apperrors.Newf(apperrors.CodeInvalidDate, "%s interval %d ends before it starts", kind, index).
			WithField("date_to").
			WithValue(r.From + ".." + r.To)
	}
	return span{from: from, to: to}, nil
}

// lastMatch returns the index of the span that wins for day d, or -1.
// Among overlapping spans the latest From wins; on equal From the one
// declared last wins.
func lastMatch(spans []span, d time.Time) int {
	best := -1
	for i, s := range spans {
		if !s.contains(d) {
			continue
		}
		if best == -1 || !s.from.Before(spans[best].from) {
			best = i
		}
	}
	return best
}
