package gcal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/wayfarerlabs/wayfarer/internal/httpkit"
)

// CalDAVClient writes trip events to a self-hosted CalDAV collection.
// Unlike the Google backend it authenticates with server-level basic
// credentials from the config, so no per-user capability token is needed.
type CalDAVClient struct {
	client        *caldav.Client
	collectionURL string
	logger        *slog.Logger
}

// NewCalDAVClient connects to a CalDAV calendar collection URL with
// basic-auth credentials.
func NewCalDAVClient(collectionURL, username, password string, logger *slog.Logger) (*CalDAVClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := webdav.HTTPClientWithBasicAuth(
		httpkit.NewClient(httpkit.WithTimeout(30*time.Second)), username, password)

	client, err := caldav.NewClient(httpClient, collectionURL)
	if err != nil {
		return nil, fmt.Errorf("create caldav client: %w", err)
	}

	return &CalDAVClient{
		client:        client,
		collectionURL: collectionURL,
		logger:        logger.With("component", "caldav"),
	}, nil
}

// CreateTripEvent writes an all-day VEVENT into the collection.
// accessToken is ignored.
func (c *CalDAVClient) CreateTripEvent(ctx context.Context, accessToken string, ev TripEvent) (*CreatedEvent, error) {
	start, end, err := ev.Dates()
	if err != nil {
		return nil, err
	}

	uid := uuid.NewString()
	cal, err := buildTripCalendar(uid, ev, start, end)
	if err != nil {
		return nil, err
	}

	path := uid + ".ics"
	if _, err := c.client.PutCalendarObject(ctx, path, cal); err != nil {
		return nil, fmt.Errorf("put calendar object: %w", err)
	}

	c.logger.Info("caldav event created", "uid", uid)
	return &CreatedEvent{ID: uid, Summary: ev.Summary()}, nil
}

// buildTripCalendar assembles the iCalendar document for one trip event.
func buildTripCalendar(uid string, ev TripEvent, start, endExclusive string) (*ical.Calendar, error) {
	startDate, err := time.Parse("2006-01-02", start)
	if err != nil {
		return nil, fmt.Errorf("parse start: %w", err)
	}
	endDate, err := time.Parse("2006-01-02", endExclusive)
	if err != nil {
		return nil, fmt.Errorf("parse end: %w", err)
	}

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetText(ical.PropSummary, ev.Summary())
	event.Props.SetText(ical.PropDescription, ev.Description())
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	event.Props.Set(dateProp(ical.PropDateTimeStart, startDate))
	event.Props.Set(dateProp(ical.PropDateTimeEnd, endDate))

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//wayfarerlabs//wayfarer//EN")
	cal.Children = append(cal.Children, event.Component)
	return cal, nil
}

// dateProp builds an all-day (VALUE=DATE) property.
func dateProp(name string, t time.Time) *ical.Prop {
	p := ical.NewProp(name)
	p.SetValueType(ical.ValueDate)
	p.Value = t.Format("20060102")
	return p
}
