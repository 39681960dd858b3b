// Package platform delivers calendars and listing diffs to the listing platform.
package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/listing-sync/backend/internal/calendar"
)

// Publisher sends sync output to the platform.
type Publisher interface {
	PublishCalendar(ctx context.Context, payload calendar.WirePayload) error
	PublishDiff(ctx context.Context, propertyID string, payload map[string]any) error
}

// Client publishes over the platform's HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the API rooted at baseURL. An empty
// token sends no Authorization header.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PublishCalendar posts a compacted calendar.
func (c *Client) PublishCalendar(ctx context.Context, payload calendar.WirePayload) error {
	path := "/properties/" + url.PathEscape(payload.Identifier) + "/calendar"
	return c.send(ctx, http.MethodPost, path, payload)
}

// PublishDiff patches the property with a listing diff.
func (c *Client) PublishDiff(ctx context.Context, propertyID string, payload map[string]any) error {
	return c.send(ctx, http.MethodPatch, "/properties/"+url.PathEscape(propertyID), payload)
}

func (c *Client) send(ctx context.Context, method, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: platform returned status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// LogPublisher logs payloads instead of sending them.
type LogPublisher struct{}

// PublishCalendar implements Publisher.
func (LogPublisher) PublishCalendar(_ context.Context, payload calendar.WirePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	log.Printf("Calendar for %s (%d days): %s", payload.Identifier, payload.Days(), data)
	return nil
}

// PublishDiff implements Publisher.
func (LogPublisher) PublishDiff(_ context.Context, propertyID string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	log.Printf("Listing diff for %s: %s", propertyID, data)
	return nil
}
