package calendar

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/listing-sync/backend/internal/apperrors"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("parsing %q: %v", s, err)
	}
	return d
}

func window(t *testing.T, start, end string) Window {
	t.Helper()
	return NewWindow(day(t, start), day(t, end))
}

func rate(from, to string, price int64) RateInterval {
	return RateInterval{DateRange: DateRange{From: from, To: to}, NightlyPrice: decimal.NewFromInt(price)}
}

func avail(from, to string, available bool) AvailabilityInterval {
	return AvailabilityInterval{DateRange: DateRange{From: from, To: to}, Available: available}
}

func TestBuildUnpricedDayIsClosed(t *testing.T) {
	cal, err := Build("prop-1", window(t, "2024-01-01", "2024-01-03"),
		[]AvailabilityInterval{avail("2024-01-01", "2024-01-03", true)},
		[]RateInterval{rate("2024-01-01", "2024-01-02", 100)},
		nil,
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []struct {
		date      string
		available bool
		rate      int64
	}{
		{"2024-01-01", true, 100},
		{"2024-01-02", true, 100},
		{"2024-01-03", false, 0},
	}
	if cal.Len() != len(want) {
		t.Fatalf("got %d entries, want %d", cal.Len(), len(want))
	}
	for i, w := range want {
		e := cal.Entries[i]
		if FormatDate(e.Date) != w.date {
			t.Errorf("entry %d date = %s, want %s", i, FormatDate(e.Date), w.date)
		}
		if e.IsAvailable() != w.available {
			t.Errorf("%s available = %v, want %v", w.date, e.IsAvailable(), w.available)
		}
		if !e.NightlyRate.Equal(decimal.NewFromInt(w.rate)) {
			t.Errorf("%s rate = %s, want %d", w.date, e.NightlyRate, w.rate)
		}
		if err := e.Validate(); err != nil {
			t.Errorf("%s Validate: %v", w.date, err)
		}
	}
}

func TestBuildLatestStartWins(t *testing.T) {
	rates := []RateInterval{
		rate("2024-01-01", "2024-01-10", 80),
		rate("2024-01-03", "2024-01-06", 120),
	}
	cal, err := Build("prop-1", window(t, "2024-01-01", "2024-01-10"), nil, rates, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	tests := map[string]int64{
		"2024-01-01": 80,
		"2024-01-02": 80,
		"2024-01-03": 120,
		"2024-01-05": 120,
		"2024-01-06": 120,
		"2024-01-07": 80,
		"2024-01-10": 80,
	}
	for date, want := range tests {
		e, ok := cal.Entry(day(t, date))
		if !ok {
			t.Fatalf("no entry for %s", date)
		}
		if !e.NightlyRate.Equal(decimal.NewFromInt(want)) {
			t.Errorf("%s rate = %s, want %d", date, e.NightlyRate, want)
		}
	}

	// Declaration order does not matter, only the start date.
	reversed := []RateInterval{rates[1], rates[0]}
	cal, err = Build("prop-1", window(t, "2024-01-05", "2024-01-05"), nil, reversed, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !cal.Entries[0].NightlyRate.Equal(decimal.NewFromInt(120)) {
		t.Errorf("reversed rate = %s, want 120", cal.Entries[0].NightlyRate)
	}
}

func TestBuildEqualStartLastDeclaredWins(t *testing.T) {
	cal, err := Build("prop-1", window(t, "2024-03-01", "2024-03-01"),
		[]AvailabilityInterval{
			avail("2024-03-01", "2024-03-31", true),
			avail("2024-03-01", "2024-03-02", false),
		},
		[]RateInterval{
			rate("2024-03-01", "2024-03-31", 90),
			rate("2024-03-01", "2024-03-05", 95),
		},
		nil,
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	e := cal.Entries[0]
	if !e.NightlyRate.Equal(decimal.NewFromInt(95)) {
		t.Errorf("rate = %s, want 95", e.NightlyRate)
	}
	if e.IsAvailable() {
		t.Error("expected last declared availability (false) to win")
	}
}

func TestBuildDefaultAvailability(t *testing.T) {
	cal, err := Build("prop-1", window(t, "2024-05-01", "2024-05-04"),
		nil,
		[]RateInterval{rate("2024-05-01", "2024-05-02", 50)},
		nil,
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []bool{true, true, false, false}
	for i, w := range want {
		if got := cal.Entries[i].IsAvailable(); got != w {
			t.Errorf("entry %d available = %v, want %v", i, got, w)
		}
		if cal.Entries[i].Available == nil {
			t.Errorf("entry %d has no availability flag", i)
		}
	}
}

func TestBuildChangeoverTable(t *testing.T) {
	tests := []struct {
		code     ChangeoverCode
		checkin  bool
		checkout bool
	}{
		{ChangeoverCheckinOnly, true, false},
		{ChangeoverCheckoutOnly, false, true},
		{ChangeoverNeither, false, false},
		{ChangeoverBoth, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			cal, err := Build("prop-1", window(t, "2024-06-01", "2024-06-02"),
				nil,
				[]RateInterval{rate("2024-06-01", "2024-06-02", 70)},
				[]StayRuleInterval{{
					DateRange:   DateRange{From: "2024-06-01", To: "2024-06-01"},
					MinimumStay: 3,
					Changeover:  tt.code,
				}},
			)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}

			first := cal.Entries[0]
			if first.CheckinAllowed != tt.checkin || first.CheckoutAllowed != tt.checkout {
				t.Errorf("checkin/checkout = %v/%v, want %v/%v",
					first.CheckinAllowed, first.CheckoutAllowed, tt.checkin, tt.checkout)
			}
			if first.MinimumStay == nil || *first.MinimumStay != 3 {
				t.Errorf("minimum stay = %v, want 3", first.MinimumStay)
			}

			second := cal.Entries[1]
			if !second.CheckinAllowed || !second.CheckoutAllowed {
				t.Error("uncovered day should default to checkin and checkout allowed")
			}
			if second.MinimumStay != nil {
				t.Errorf("uncovered day minimum stay = %d, want unset", *second.MinimumStay)
			}
		})
	}
}

func TestBuildStayRuleOutranksAvailabilityRule(t *testing.T) {
	cal, err := Build("prop-1", window(t, "2024-07-01", "2024-07-02"),
		[]AvailabilityInterval{{
			DateRange:   DateRange{From: "2024-07-01", To: "2024-07-02"},
			Available:   true,
			MinimumStay: 2,
			Changeover:  ChangeoverNeither,
		}},
		[]RateInterval{rate("2024-07-01", "2024-07-02", 60)},
		[]StayRuleInterval{{
			DateRange:   DateRange{From: "2024-07-02", To: "2024-07-02"},
			MinimumStay: 7,
			Changeover:  ChangeoverCheckinOnly,
		}},
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	first := cal.Entries[0]
	if *first.MinimumStay != 2 || first.CheckinAllowed || first.CheckoutAllowed {
		t.Errorf("day 1 should carry the availability rule, got min=%d in=%v out=%v",
			*first.MinimumStay, first.CheckinAllowed, first.CheckoutAllowed)
	}
	second := cal.Entries[1]
	if *second.MinimumStay != 7 || !second.CheckinAllowed || second.CheckoutAllowed {
		t.Errorf("day 2 should carry the stay rule, got min=%d in=%v out=%v",
			*second.MinimumStay, second.CheckinAllowed, second.CheckoutAllowed)
	}
}

func TestBuildErrors(t *testing.T) {
	valid := window(t, "2024-01-01", "2024-01-31")

	tests := []struct {
		name   string
		id     string
		window Window
		avail  []AvailabilityInterval
		rates  []RateInterval
		rules  []StayRuleInterval
		code   apperrors.Code
	}{
		{
			name:   "unsupported changeover",
			id:     "prop-1",
			window: valid,
			rules: []StayRuleInterval{{
				DateRange:  DateRange{From: "2024-01-01", To: "2024-01-02"},
				Changeover: "sometimes",
			}},
			code: apperrors.CodeUnsupportedChangeover,
		},
		{
			name:   "missing stay rule changeover",
			id:     "prop-1",
			window: valid,
			rules: []StayRuleInterval{{
				DateRange:   DateRange{From: "2024-01-01", To: "2024-01-02"},
				MinimumStay: 3,
			}},
			code: apperrors.CodeUnsupportedChangeover,
		},
		{
			name:   "unsupported changeover outside window",
			id:     "prop-1",
			window: valid,
			avail: []AvailabilityInterval{{
				DateRange:  DateRange{From: "2030-01-01", To: "2030-01-02"},
				Changeover: "X",
			}},
			code: apperrors.CodeUnsupportedChangeover,
		},
		{
			name:   "unparseable rate date",
			id:     "prop-1",
			window: valid,
			rates:  []RateInterval{rate("2024-02-30", "2024-03-01", 10)},
			code:   apperrors.CodeInvalidDate,
		},
		{
			name:   "unparseable availability date",
			id:     "prop-1",
			window: valid,
			avail:  []AvailabilityInterval{avail("01/01/2024", "2024-01-05", true)},
			code:   apperrors.CodeInvalidDate,
		},
		{
			name:   "inverted interval",
			id:     "prop-1",
			window: valid,
			rates:  []RateInterval{rate("2024-01-10", "2024-01-01", 10)},
			code:   apperrors.CodeInvalidDate,
		},
		{
			name:   "inverted window",
			id:     "prop-1",
			window: window(t, "2024-01-31", "2024-01-01"),
			code:   apperrors.CodeInvalidWindow,
		},
		{
			name:   "zero window",
			id:     "prop-1",
			window: Window{},
			code:   apperrors.CodeInvalidWindow,
		},
		{
			name:   "missing property identifier",
			window: valid,
			code:   apperrors.CodeMissingIdentifier,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal, err := Build(tt.id, tt.window, tt.avail, tt.rates, tt.rules)
			if err == nil {
				t.Fatal("expected error")
			}
			if cal != nil {
				t.Error("expected no calendar on error")
			}
			if got := apperrors.CodeOf(err); got != tt.code {
				t.Errorf("code = %q, want %q (%v)", got, tt.code, err)
			}
		})
	}
}

func TestBuildEmptySources(t *testing.T) {
	cal, err := Build("prop-1", window(t, "2024-02-27", "2024-03-02"), nil, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cal.Len() != 5 {
		t.Fatalf("got %d entries, want 5 (leap year)", cal.Len())
	}
	for _, e := range cal.Entries {
		if e.IsAvailable() || !e.NightlyRate.IsZero() {
			t.Errorf("%s should be closed at zero", FormatDate(e.Date))
		}
		if !e.CheckinAllowed || !e.CheckoutAllowed {
			t.Errorf("%s should allow checkin and checkout", FormatDate(e.Date))
		}
	}
}

// randomSources produces overlapping intervals around the window, some of
// them extending past either end.
func randomSources(r *rand.Rand, base time.Time) ([]AvailabilityInterval, []RateInterval, []StayRuleInterval) {
	codes := []ChangeoverCode{ChangeoverCheckinOnly, ChangeoverCheckoutOnly, ChangeoverNeither, ChangeoverBoth}
	randomRange := func() DateRange {
		from := base.AddDate(0, 0, r.Intn(60)-10)
		to := from.AddDate(0, 0, r.Intn(20))
		return NewDateRange(from, to)
	}

	var avails []AvailabilityInterval
	for i := r.Intn(6); i > 0; i-- {
		avails = append(avails, AvailabilityInterval{DateRange: randomRange(), Available: r.Intn(2) == 0})
	}
	var rates []RateInterval
	for i := r.Intn(6); i > 0; i-- {
		rates = append(rates, RateInterval{DateRange: randomRange(), NightlyPrice: decimal.NewFromInt(int64(50 + r.Intn(200)))})
	}
	var rules []StayRuleInterval
	for i := r.Intn(4); i > 0; i-- {
		rules = append(rules, StayRuleInterval{DateRange: randomRange(), MinimumStay: r.Intn(8), Changeover: codes[r.Intn(len(codes))]})
	}
	return avails, rates, rules
}

func TestBuildProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for run := 0; run < 200; run++ {
		w := NewWindowFor(base.AddDate(0, 0, r.Intn(10)), 1+r.Intn(45))
		avails, rates, rules := randomSources(r, base)

		first, err := Build("prop-1", w, avails, rates, rules)
		if err != nil {
			t.Fatalf("run %d: Build: %v", run, err)
		}
		second, err := Build("prop-1", w, avails, rates, rules)
		if err != nil {
			t.Fatalf("run %d: second Build: %v", run, err)
		}

		if first.Len() != w.Days() {
			t.Fatalf("run %d: got %d entries, want %d", run, first.Len(), w.Days())
		}

		for i, e := range first.Entries {
			wantDate := w.Start.AddDate(0, 0, i)
			if !e.Date.Equal(wantDate) {
				t.Fatalf("run %d: entry %d date = %s, want %s", run, i, FormatDate(e.Date), FormatDate(wantDate))
			}
			if !e.Equal(second.Entries[i]) {
				t.Fatalf("run %d: entry %d differs between identical builds", run, i)
			}

			covered := false
			for _, rt := range rates {
				from, _ := ParseDate(rt.From)
				to, _ := ParseDate(rt.To)
				if !e.Date.Before(from) && !e.Date.After(to) {
					covered = true
					break
				}
			}
			if !covered && (e.IsAvailable() || !e.NightlyRate.IsZero()) {
				t.Fatalf("run %d: unpriced day %s is available=%v rate=%s",
					run, FormatDate(e.Date), e.IsAvailable(), e.NightlyRate)
			}
		}
	}
}

func TestWindowDays(t *testing.T) {
	if got := window(t, "2024-01-01", "2024-01-01").Days(); got != 1 {
		t.Errorf("single-day window Days = %d, want 1", got)
	}
	if got := window(t, "2024-03-30", "2024-04-02").Days(); got != 4 {
		t.Errorf("Days = %d, want 4", got)
	}
	if got := window(t, "2024-01-02", "2024-01-01").Days(); got != 0 {
		t.Errorf("inverted window Days = %d, want 0", got)
	}
	// Four Gregorian centuries, well past the range of time.Duration.
	if got := window(t, "1700-01-01", "2100-01-01").Days(); got != 146098 {
		t.Errorf("long window Days = %d, want 146098", got)
	}
	cal := &Calendar{PropertyID: "prop-1", Entries: []Entry{NewEntry(day(t, "1700-01-01"))}}
	if _, ok := cal.Entry(day(t, "2100-01-01")); ok {
		t.Error("Entry far past the calendar should not be found")
	}

	if _, err := ParseWindow("2024-01-05", "2024-01-01"); apperrors.CodeOf(err) != apperrors.CodeInvalidWindow {
		t.Errorf("ParseWindow inverted err = %v, want invalid_window", err)
	}
	if _, err := ParseWindow("tomorrow", "2024-01-01"); apperrors.CodeOf(err) != apperrors.CodeInvalidDate {
		t.Errorf("ParseWindow bad date err = %v, want invalid_date", err)
	}
}
