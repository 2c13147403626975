package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/wayfarerlabs/wayfarer/internal/adsbdb"
	"github.com/wayfarerlabs/wayfarer/internal/amadeus"
	"github.com/wayfarerlabs/wayfarer/internal/gcal"
	"github.com/wayfarerlabs/wayfarer/internal/gdocs"
	"github.com/wayfarerlabs/wayfarer/internal/llm"
)

// FlightSearcher is the flight and airport lookup backend.
type FlightSearcher interface {
	SearchFlights(ctx context.Context, q amadeus.FlightQuery) ([]amadeus.FlightOffer, error)
	SearchAirports(ctx context.Context, keyword string) ([]amadeus.Airport, error)
}

// AircraftLookup is the aircraft route/registration backend.
type AircraftLookup interface {
	RouteByCallsign(ctx context.Context, callsign string) (*adsbdb.Route, error)
	AircraftByRegistration(ctx context.Context, registration string) (*adsbdb.Aircraft, error)
}

// DocumentCreator creates shareable trip documents.
type DocumentCreator interface {
	CreateTripDocument(ctx context.Context, accessToken string, trip gdocs.Trip) (*gdocs.Document, error)
}

// Registry holds the tool backends and executes tool calls. The tool
// set is fixed at compile time; see kinds.go.
type Registry struct {
	flights  FlightSearcher
	aircraft AircraftLookup
	docs     DocumentCreator
	calendar gcal.Creator
	logger   *slog.Logger

	schemas [kindCount]*gojsonschema.Schema
}

// NewRegistry wires the tool backends. Any backend may be nil; calls to
// its tools then fail with a ToolError instead of panicking.
func NewRegistry(flights FlightSearcher, aircraft AircraftLookup, docs DocumentCreator, calendar gcal.Creator, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		flights:  flights,
		aircraft: aircraft,
		docs:     docs,
		calendar: calendar,
		logger:   logger.With("component", "tools"),
	}
	for k := Kind(0); k < kindCount; k++ {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(specs[k].Parameters))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", specs[k].Name, err)
		}
		r.schemas[k] = schema
	}
	return r, nil
}

// Definitions returns the tool definitions in the wire format the chat
// completion API expects.
func (r *Registry) Definitions() []map[string]any {
	defs := make([]map[string]any, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		defs = append(defs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        specs[k].Name,
				"description": specs[k].Description,
				"parameters":  specs[k].Parameters,
			},
		})
	}
	return defs
}

// requiresToken reports whether the named tool needs a Google access
// token. Unknown names report false.
func (r *Registry) requiresToken(name string) bool {
	k, ok := ParseKind(name)
	return ok && specs[k].RequiresToken
}

// Execute runs a single tool call and returns its result serialized as
// JSON. accessToken is the session's Google token, empty when the user
// has not connected an account.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall, accessToken string) (string, error) {
	k, ok := ParseKind(call.Function.Name)
	if !ok {
		return "", &ErrToolUnavailable{ToolName: call.Function.Name}
	}
	if r.requiresToken(call.Function.Name) && accessToken == "" {
		return "", &ErrAuthRequired{ToolName: call.Function.Name}
	}

	if err := r.validate(k, call.Function.Arguments); err != nil {
		return "", err
	}

	r.logger.Debug("executing tool", "tool", specs[k].Name)

	switch k {
	case KindSearchFlights:
		return r.searchFlights(ctx, call.Function.Arguments)
	case KindSearchAirport:
		return r.searchAirport(ctx, call.Function.Arguments)
	case KindRouteByCallsign:
		return r.routeByCallsign(ctx, call.Function.Arguments)
	case KindAircraftByRegistration:
		return r.aircraftByRegistration(ctx, call.Function.Arguments)
	case KindCreateTripDocument:
		return r.createTripDocument(ctx, call.Function.Arguments, accessToken)
	case KindCreateCalendarEvent:
		return r.createCalendarEvent(ctx, call.Function.Arguments, accessToken)
	}
	return "", &ErrToolUnavailable{ToolName: call.Function.Name}
}

func (r *Registry) validate(k Kind, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	result, err := r.schemas[k].Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return &ToolError{
			Message: fmt.Sprintf("%s: invalid arguments: %v", specs[k].Name, err),
			Hint:    "send arguments as a JSON object matching the tool definition",
		}
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return &ToolError{
			Message: fmt.Sprintf("%s: invalid arguments: %s", specs[k].Name, strings.Join(problems, "; ")),
			Hint:    "check the argument names and types against the tool definition",
		}
	}
	return nil
}

// decodeArgs converts the loosely-typed argument map into a typed
// struct via a JSON round trip.
func decodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func marshalResult(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(raw), nil
}

type searchFlightsArgs struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"`
	ReturnDate    string `json:"return_date"`
	Adults        int    `json:"adults"`
	MaxResults    int    `json:"max_results"`
}

func (r *Registry) searchFlights(ctx context.Context, args map[string]any) (string, error) {
	if r.flights == nil {
		return "", &ToolError{Message: "flight search is not configured"}
	}
	var a searchFlightsArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", &ToolError{Message: fmt.Sprintf("search_flights: %v", err)}
	}

	offers, err := r.flights.SearchFlights(ctx, amadeus.FlightQuery{
		Origin:        a.Origin,
		Destination:   a.Destination,
		DepartureDate: a.DepartureDate,
		ReturnDate:    a.ReturnDate,
		Adults:        a.Adults,
		MaxResults:    a.MaxResults,
	})
	if err != nil {
		if amadeus.IsInvalidLocation(err) {
			return "", &ToolError{
				Message: fmt.Sprintf("search_flights: %v", err),
				Hint:    "the origin or destination is not a valid IATA code; look it up with search_airport_by_city first",
			}
		}
		return "", fmt.Errorf("search_flights: %w", err)
	}
	return marshalResult(map[string]any{"offers": offers, "count": len(offers)})
}

type searchAirportArgs struct {
	City string `json:"city"`
}

func (r *Registry) searchAirport(ctx context.Context, args map[string]any) (string, error) {
	if r.flights == nil {
		return "", &ToolError{Message: "airport search is not configured"}
	}
	var a searchAirportArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", &ToolError{Message: fmt.Sprintf("search_airport_by_city: %v", err)}
	}

	airports, err := r.flights.SearchAirports(ctx, a.City)
	if err != nil {
		return "", fmt.Errorf("search_airport_by_city: %w", err)
	}
	if len(airports) == 0 {
		return "", &ToolError{
			Message: fmt.Sprintf("no airports found matching %q", a.City),
			Hint:    "try the city's common English name, or a nearby major city",
		}
	}
	return marshalResult(map[string]any{"airports": airports})
}

type callsignArgs struct {
	Callsign string `json:"callsign"`
}

func (r *Registry) routeByCallsign(ctx context.Context, args map[string]any) (string, error) {
	if r.aircraft == nil {
		return "", &ToolError{Message: "aircraft lookup is not configured"}
	}
	var a callsignArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", &ToolError{Message: fmt.Sprintf("aircraft_route_by_callsign: %v", err)}
	}

	route, err := r.aircraft.RouteByCallsign(ctx, a.Callsign)
	if err != nil {
		var nf *adsbdb.ErrNotFound
		if errors.As(err, &nf) {
			return "", &ToolError{
				Message: fmt.Sprintf("no route found for callsign %q", a.Callsign),
				Hint:    "verify the callsign; it is the ICAO flight identifier, like UAL123 rather than UA123",
			}
		}
		return "", fmt.Errorf("aircraft_route_by_callsign: %w", err)
	}
	return marshalResult(route)
}

type registrationArgs struct {
	Registration string `json:"registration"`
}

func (r *Registry) aircraftByRegistration(ctx context.Context, args map[string]any) (string, error) {
	if r.aircraft == nil {
		return "", &ToolError{Message: "aircraft lookup is not configured"}
	}
	var a registrationArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", &ToolError{Message: fmt.Sprintf("aircraft_by_registration: %v", err)}
	}

	ac, err := r.aircraft.AircraftByRegistration(ctx, a.Registration)
	if err != nil {
		var nf *adsbdb.ErrNotFound
		if errors.As(err, &nf) {
			return "", &ToolError{
				Message: fmt.Sprintf("no aircraft found with registration %q", a.Registration),
				Hint:    "verify the tail number is complete, including the country prefix (e.g., N, G-, D-)",
			}
		}
		return "", fmt.Errorf("aircraft_by_registration: %w", err)
	}
	return marshalResult(ac)
}

type tripDocumentArgs struct {
	Origin        string   `json:"origin"`
	Destination   string   `json:"destination"`
	DepartureDate string   `json:"departure_date"`
	ReturnDate    string   `json:"return_date"`
	Adults        int      `json:"adults"`
	Preferences   []string `json:"preferences"`
	Flights       []struct {
		Airline  string `json:"airline"`
		Price    string `json:"price"`
		Duration string `json:"duration"`
		Stops    int    `json:"stops"`
	} `json:"flights"`
}

func (r *Registry) createTripDocument(ctx context.Context, args map[string]any, accessToken string) (string, error) {
	if r.docs == nil {
		return "", &ToolError{Message: "document creation is not configured"}
	}
	var a tripDocumentArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", &ToolError{Message: fmt.Sprintf("create_trip_document: %v", err)}
	}

	trip := gdocs.Trip{
		Origin:        a.Origin,
		Destination:   a.Destination,
		DepartureDate: a.DepartureDate,
		ReturnDate:    a.ReturnDate,
		Adults:        a.Adults,
		Preferences:   strings.Join(a.Preferences, ", "),
	}
	for _, f := range a.Flights {
		trip.Flights = append(trip.Flights, gdocs.FlightOption{
			AirlineCode: f.Airline,
			Price:       f.Price,
			Duration:    f.Duration,
			Stops:       f.Stops,
		})
	}

	doc, err := r.docs.CreateTripDocument(ctx, accessToken, trip)
	if err != nil {
		return "", fmt.Errorf("create_trip_document: %w", err)
	}
	return marshalResult(map[string]any{
		"document_id": doc.ID,
		"url":         doc.URL,
		"title":       doc.Title,
	})
}

type calendarEventArgs struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"`
	ReturnDate    string `json:"return_date"`
	DocURL        string `json:"doc_url"`
	Notes         string `json:"notes"`
}

func (r *Registry) createCalendarEvent(ctx context.Context, args map[string]any, accessToken string) (string, error) {
	if r.calendar == nil {
		return "", &ToolError{Message: "calendar integration is not configured"}
	}
	var a calendarEventArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", &ToolError{Message: fmt.Sprintf("create_calendar_event: %v", err)}
	}

	ev, err := r.calendar.CreateTripEvent(ctx, accessToken, gcal.TripEvent{
		Origin:        a.Origin,
		Destination:   a.Destination,
		DepartureDate: a.DepartureDate,
		ReturnDate:    a.ReturnDate,
		DocURL:        a.DocURL,
		Notes:         a.Notes,
	})
	if err != nil {
		return "", fmt.Errorf("create_calendar_event: %w", err)
	}
	return marshalResult(map[string]any{
		"event_id": ev.ID,
		"url":      ev.URL,
		"summary":  ev.Summary,
	})
}
