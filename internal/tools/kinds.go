package tools

// Kind identifies one of the fixed set of tools. The set is closed:
// dispatch is a table lookup, not a map of registered callbacks, so an
// unknown name can never reach a handler.
type Kind int

const (
	KindSearchFlights Kind = iota
	KindSearchAirport
	KindRouteByCallsign
	KindAircraftByRegistration
	KindCreateTripDocument
	KindCreateCalendarEvent

	kindCount
)

// Spec describes one tool as presented to the model.
type Spec struct {
	Name          string
	Description   string
	Parameters    map[string]any
	RequiresToken bool
}

var specs = [kindCount]Spec{
	KindSearchFlights: {
		Name:        "search_flights",
		Description: "Search for flight offers between two airports. Use IATA airport codes (e.g., SFO, NRT). Returns priced offers with legs, stops, and durations.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"origin": map[string]any{
					"type":        "string",
					"description": "Origin IATA airport code (e.g., SFO)",
				},
				"destination": map[string]any{
					"type":        "string",
					"description": "Destination IATA airport code (e.g., NRT)",
				},
				"departure_date": map[string]any{
					"type":        "string",
					"description": "Departure date in YYYY-MM-DD format",
				},
				"return_date": map[string]any{
					"type":        "string",
					"description": "Return date in YYYY-MM-DD format. Omit for one-way trips.",
				},
				"adults": map[string]any{
					"type":        "integer",
					"description": "Number of adult passengers (default 1)",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum number of offers to return (default 3)",
				},
			},
			"required": []any{"origin", "destination", "departure_date"},
		},
	},
	KindSearchAirport: {
		Name:        "search_airport_by_city",
		Description: "Look up IATA airport codes for a city or airport name. Use this before search_flights when you only know the city.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{
					"type":        "string",
					"description": "City or airport name (e.g., San Francisco)",
				},
			},
			"required": []any{"city"},
		},
	},
	KindRouteByCallsign: {
		Name:        "aircraft_route_by_callsign",
		Description: "Look up the origin and destination airports for a flight by its callsign (e.g., UAL123).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"callsign": map[string]any{
					"type":        "string",
					"description": "Flight callsign (e.g., UAL123)",
				},
			},
			"required": []any{"callsign"},
		},
	},
	KindAircraftByRegistration: {
		Name:        "aircraft_by_registration",
		Description: "Look up aircraft details (type, operator, ICAO codes) by tail registration (e.g., N12345).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"registration": map[string]any{
					"type":        "string",
					"description": "Aircraft registration / tail number (e.g., N12345)",
				},
			},
			"required": []any{"registration"},
		},
	},
	KindCreateTripDocument: {
		Name:        "create_trip_document",
		Description: "Create a shareable Google Doc itinerary for a trip. Requires a connected Google account.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"origin": map[string]any{
					"type":        "string",
					"description": "Origin city or IATA code",
				},
				"destination": map[string]any{
					"type":        "string",
					"description": "Destination city or IATA code",
				},
				"departure_date": map[string]any{
					"type":        "string",
					"description": "Departure date in YYYY-MM-DD format",
				},
				"return_date": map[string]any{
					"type":        "string",
					"description": "Return date in YYYY-MM-DD format. Omit for one-way trips.",
				},
				"adults": map[string]any{
					"type":        "integer",
					"description": "Number of adult travelers",
				},
				"preferences": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Traveler preferences to note in the document",
				},
				"flights": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"airline":  map[string]any{"type": "string"},
							"price":    map[string]any{"type": "string"},
							"duration": map[string]any{"type": "string"},
							"stops":    map[string]any{"type": "integer"},
						},
					},
					"description": "Flight options to include in the itinerary",
				},
			},
			"required": []any{"origin", "destination", "departure_date"},
		},
		RequiresToken: true,
	},
	KindCreateCalendarEvent: {
		Name:        "create_calendar_event",
		Description: "Create a calendar event spanning the trip dates, with reminders. Requires a connected Google account.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"origin": map[string]any{
					"type":        "string",
					"description": "Origin city or IATA code",
				},
				"destination": map[string]any{
					"type":        "string",
					"description": "Destination city or IATA code",
				},
				"departure_date": map[string]any{
					"type":        "string",
					"description": "Departure date in YYYY-MM-DD format",
				},
				"return_date": map[string]any{
					"type":        "string",
					"description": "Return date in YYYY-MM-DD format. Omit for one-way trips.",
				},
				"doc_url": map[string]any{
					"type":        "string",
					"description": "URL of the trip document, if one was created",
				},
				"notes": map[string]any{
					"type":        "string",
					"description": "Extra notes for the event description",
				},
			},
			"required": []any{"origin", "destination", "departure_date"},
		},
		RequiresToken: true,
	},
}

// ParseKind maps a tool name to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k := Kind(0); k < kindCount; k++ {
		if specs[k].Name == name {
			return k, true
		}
	}
	return 0, false
}

// String returns the tool name for the kind.
func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return "unknown"
	}
	return specs[k].Name
}
