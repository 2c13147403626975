// Package gcal creates all-day trip events on the user's calendar.
// Two backends are available: the Google Calendar API (using the
// per-user OAuth access token supplied with each request) and a
// self-hosted CalDAV collection (server-level credentials, no per-user
// token needed).
package gcal

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TripEvent describes the event to create.
type TripEvent struct {
	Origin        string
	Destination   string
	DepartureDate string // YYYY-MM-DD
	ReturnDate    string // YYYY-MM-DD, empty for one-way
	DocURL        string // itinerary document link, optional
	Notes         string
}

// CreatedEvent is the result of a successful creation.
type CreatedEvent struct {
	ID      string `json:"event_id"`
	URL     string `json:"event_url,omitempty"`
	Summary string `json:"summary"`
}

// Creator is implemented by both calendar backends.
type Creator interface {
	// CreateTripEvent creates an all-day event spanning the trip.
	// accessToken is the user's Google token; the CalDAV backend
	// ignores it.
	CreateTripEvent(ctx context.Context, accessToken string, ev TripEvent) (*CreatedEvent, error)
}

// Summary returns the event title.
func (ev TripEvent) Summary() string {
	return "Trip to " + ev.Destination
}

// Description returns the event body text.
func (ev TripEvent) Description() string {
	var b strings.Builder
	b.WriteString("Trip planned by Wayfarer\n\n")
	fmt.Fprintf(&b, "Route: %s → %s", ev.Origin, ev.Destination)
	if ev.ReturnDate != "" {
		fmt.Fprintf(&b, " → %s", ev.Origin)
	}
	b.WriteString("\n")
	if ev.DocURL != "" {
		fmt.Fprintf(&b, "\nFull itinerary: %s\n", ev.DocURL)
	}
	if ev.Notes != "" {
		fmt.Fprintf(&b, "\nNotes: %s\n", ev.Notes)
	}
	return b.String()
}

// Dates returns the all-day start date and the exclusive end date.
// Calendar conventions require the end of an all-day span to be the day
// after the last day. One-way trips produce a single-day event.
func (ev TripEvent) Dates() (start, endExclusive string, err error) {
	startDate, err := time.Parse("2006-01-02", ev.DepartureDate)
	if err != nil {
		return "", "", fmt.Errorf("parse departure date %q: %w", ev.DepartureDate, err)
	}

	last := startDate
	if ev.ReturnDate != "" {
		last, err = time.Parse("2006-01-02", ev.ReturnDate)
		if err != nil {
			return "", "", fmt.Errorf("parse return date %q: %w", ev.ReturnDate, err)
		}
		if last.Before(startDate) {
			return "", "", fmt.Errorf("return date %s precedes departure %s", ev.ReturnDate, ev.DepartureDate)
		}
	}

	return startDate.Format("2006-01-02"), last.AddDate(0, 0, 1).Format("2006-01-02"), nil
}
