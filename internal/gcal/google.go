package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wayfarerlabs/wayfarer/internal/httpkit"
)

// DefaultGoogleBaseURL is the Google Calendar API root. Overridable for tests.
const DefaultGoogleBaseURL = "https://www.googleapis.com"

// GoogleClient creates events through the Google Calendar API.
type GoogleClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGoogleClient creates a Google Calendar backend. baseURL may be empty.
func NewGoogleClient(baseURL string, logger *slog.Logger) *GoogleClient {
	if baseURL == "" {
		baseURL = DefaultGoogleBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger.With("component", "gcal"),
		httpClient: httpkit.NewClient(httpkit.WithTimeout(30 * time.Second)),
	}
}

// CreateTripEvent inserts an all-day event on the user's primary calendar
// with popup reminders 3 days and 1 day out, and an email a week ahead.
func (c *GoogleClient) CreateTripEvent(ctx context.Context, accessToken string, ev TripEvent) (*CreatedEvent, error) {
	start, end, err := ev.Dates()
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"summary":     ev.Summary(),
		"description": ev.Description(),
		"start":       map[string]string{"date": start},
		"end":         map[string]string{"date": end},
		"reminders": map[string]any{
			"useDefault": false,
			"overrides": []map[string]any{
				{"method": "popup", "minutes": 60 * 24 * 3},
				{"method": "popup", "minutes": 60 * 24},
				{"method": "email", "minutes": 60 * 24 * 7},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	url := c.baseURL + "/calendar/v3/calendars/primary/events"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("event insert failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("event insert rejected: %d %s",
			resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 2048))
	}

	var created struct {
		ID       string `json:"id"`
		HTMLLink string `json:"htmlLink"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode event response: %w", err)
	}

	c.logger.Info("calendar event created", "event_id", created.ID)
	return &CreatedEvent{
		ID:      created.ID,
		URL:     created.HTMLLink,
		Summary: ev.Summary(),
	}, nil
}
