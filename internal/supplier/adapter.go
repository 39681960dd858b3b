// Package supplier converts supplier feeds into the interval types the
// calendar builder consumes.
package supplier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/listing-sync/backend/internal/calendar"
	"github.com/listing-sync/backend/internal/listing"
)

// maxFeedBytes caps the size of a downloaded supplier feed.
const maxFeedBytes = 16 << 20

// Request describes one feed download.
type Request struct {
	PropertyID string
	URL        string
	// Window bounds recurrence expansion. Intervals outside it may still be returned.
	Window calendar.Window
}

// Feed is the normalized content of one or more supplier feeds.
type Feed struct {
	Availability []calendar.AvailabilityInterval
	Rates        []calendar.RateInterval
	StayRules    []calendar.StayRuleInterval
	Listing      *listing.Property
}

// Merge concatenates feeds in order. The last feed carrying listing content wins.
func Merge(feeds ...*Feed) *Feed {
	out := &Feed{}
	for _, f := range feeds {
		if f == nil {
			continue
		}
		out.Availability = append(out.Availability, f.Availability...)
		out.Rates = append(out.Rates, f.Rates...)
		out.StayRules = append(out.StayRules, f.StayRules...)
		if f.Listing != nil {
			out.Listing = f.Listing
		}
	}
	return out
}

// Adapter fetches and converts one supplier's feed format.
type Adapter interface {
	Kind() string
	Fetch(ctx context.Context, req Request) (*Feed, error)
}

// Registry maps source kinds to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.adapters[a.Kind()] = a
	}
	return r
}

// NewDefaultRegistry creates a registry with every built-in adapter.
func NewDefaultRegistry(timeout time.Duration) *Registry {
	client := &http.Client{Timeout: timeout}
	return NewRegistry(NewICalAdapter(client), NewSeasonsAdapter(client))
}

// Get returns the adapter for kind.
func (r *Registry) Get(kind string) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter for source kind %q", kind)
	}
	return a, nil
}

// Kinds returns the registered source kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// download fetches url and returns its body.
func download(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("reading feed: %w", err)
	}
	return body, nil
}
