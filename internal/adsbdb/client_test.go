package adsbdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRouteByCallsign(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/callsign/DL417" {
			t.Errorf("path = %q (callsign should be upper-trimmed)", r.URL.Path)
		}
		fmt.Fprint(w, `{"response": {"flightroute": {
			"airline": {"name": "Delta Air Lines"},
			"origin": {"iata_code": "SFO"},
			"destination": {"iata_code": "JFK"},
			"aircraft": {"type": "A321", "manufacturer": "Airbus", "registration": "N301DN"}
		}}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	route, err := c.RouteByCallsign(context.Background(), " dl417 ")
	if err != nil {
		t.Fatalf("RouteByCallsign error: %v", err)
	}
	if route.Airline != "Delta Air Lines" || route.Origin != "SFO" || route.Destination != "JFK" {
		t.Errorf("route = %+v", route)
	}
	if route.AircraftType != "A321" {
		t.Errorf("aircraft type = %q", route.AircraftType)
	}
}

func TestRouteByCallsign_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown callsign", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.RouteByCallsign(context.Background(), "ZZ999")
	var nf *ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if nf.Query != "ZZ999" {
		t.Errorf("Query = %q", nf.Query)
	}
}

func TestAircraftByRegistration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response": {"aircraft": {
			"type": "737-800", "manufacturer": "Boeing",
			"registered_owner": "United Airlines", "registered_owner_country_name": "United States"
		}}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	a, err := c.AircraftByRegistration(context.Background(), "n12345")
	if err != nil {
		t.Fatalf("AircraftByRegistration error: %v", err)
	}
	if a.Registration != "N12345" || a.Operator != "United Airlines" {
		t.Errorf("aircraft = %+v", a)
	}
}

func TestAircraftByRegistration_EmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response": {"aircraft": {}}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.AircraftByRegistration(context.Background(), "XX")
	var nf *ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want ErrNotFound for empty aircraft", err)
	}
}
