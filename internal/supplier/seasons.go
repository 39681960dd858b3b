package supplier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/listing-sync/backend/internal/calendar"
	"github.com/listing-sync/backend/internal/listing"
)

// KindSeasons is the source kind for JSON season rate sheets.
const KindSeasons = "seasons"

// changeoverAliases maps the spellings suppliers use to changeover codes.
var changeoverAliases = map[string]calendar.ChangeoverCode{
	"checkin":     calendar.ChangeoverCheckinOnly,
	"in":          calendar.ChangeoverCheckinOnly,
	"arrival":     calendar.ChangeoverCheckinOnly,
	"checkout":    calendar.ChangeoverCheckoutOnly,
	"out":         calendar.ChangeoverCheckoutOnly,
	"departure":   calendar.ChangeoverCheckoutOnly,
	"none":        calendar.ChangeoverNeither,
	"closed":      calendar.ChangeoverNeither,
	"both":        calendar.ChangeoverBoth,
	"any":         calendar.ChangeoverBoth,
	"in_out":      calendar.ChangeoverBoth,
	"checkin_out": calendar.ChangeoverBoth,
}

// SeasonsSheet is the JSON document served by a seasons source.
type SeasonsSheet struct {
	Seasons []Season          `json:"seasons"`
	Closed  []ClosedRange     `json:"closed,omitempty"`
	Listing *listing.Property `json:"listing,omitempty"`
}

// Season is one priced period of a rate sheet.
type Season struct {
	From        string           `json:"from"`
	To          string           `json:"to"`
	Nightly     *decimal.Decimal `json:"nightly,omitempty"`
	MinimumStay int              `json:"minimum_stay,omitempty"`
	Changeover  string           `json:"changeover,omitempty"`
	Available   *bool            `json:"available,omitempty"`
}

// ClosedRange is a period the owner has blocked.
type ClosedRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SeasonsAdapter reads JSON season rate sheets.
type SeasonsAdapter struct {
	client *http.Client
}

// NewSeasonsAdapter creates a seasons adapter using client for downloads.
func NewSeasonsAdapter(client *http.Client) *SeasonsAdapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SeasonsAdapter{client: client}
}

// Kind implements Adapter.
func (a *SeasonsAdapter) Kind() string {
	return KindSeasons
}

// Fetch downloads and parses a rate sheet.
func (a *SeasonsAdapter) Fetch(ctx context.Context, req Request) (*Feed, error) {
	body, err := download(ctx, a.client, req.URL)
	if err != nil {
		return nil, err
	}
	return a.Parse(body)
}

// Parse converts a rate sheet into intervals.
func (a *SeasonsAdapter) Parse(body []byte) (*Feed, error) {
	var sheet SeasonsSheet
	if err := json.Unmarshal(body, &sheet); err != nil {
		return nil, fmt.Errorf("decoding rate sheet: %w", err)
	}
	return sheet.Feed(), nil
}

// Feed converts the sheet into builder intervals.
func (s SeasonsSheet) Feed() *Feed {
	feed := &Feed{Listing: s.Listing}

	for _, season := range s.Seasons {
		r := calendar.DateRange{From: normalizeDate(season.From), To: normalizeDate(season.To)}
		changeover := normalizeChangeover(season.Changeover)

		if season.Nightly != nil {
			feed.Rates = append(feed.Rates, calendar.RateInterval{DateRange: r, NightlyPrice: *season.Nightly})
		}
		// Only closures are emitted. An open season never overrides a booking.
		if season.Available != nil && !*season.Available {
			feed.Availability = append(feed.Availability, calendar.AvailabilityInterval{
				DateRange: r,
				Available: false,
			})
		}
		if season.MinimumStay > 0 || changeover != "" {
			if changeover == "" {
				changeover = calendar.ChangeoverBoth
			}
			feed.StayRules = append(feed.StayRules, calendar.StayRuleInterval{
				DateRange:   r,
				MinimumStay: season.MinimumStay,
				Changeover:  changeover,
			})
		}
	}

	for _, c := range s.Closed {
		feed.Availability = append(feed.Availability, calendar.AvailabilityInterval{
			DateRange: calendar.DateRange{From: normalizeDate(c.From), To: normalizeDate(c.To)},
			Available: false,
		})
	}

	return feed
}

// normalizeDate rewrites DD.MM.YYYY to YYYY-MM-DD. Anything else is
// returned unchanged.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("02.01.2006", s); err == nil {
		return calendar.FormatDate(t)
	}
	return s
}

// normalizeChangeover maps an alias to its code. Unknown values pass
// through so the builder can reject them.
func normalizeChangeover(s string) calendar.ChangeoverCode {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if key == "" {
		return ""
	}
	if code, ok := changeoverAliases[key]; ok {
		return code
	}
	return calendar.ChangeoverCode(s)
}
