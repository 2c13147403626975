package amadeus

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestServer serves a token endpoint plus the given handler for
// everything else, counting token fetches.
func newTestServer(t *testing.T, tokenFetches *int, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/security/oauth2/token" {
			if tokenFetches != nil {
				*tokenFetches++
			}
			fmt.Fprint(w, `{"access_token": "tok-1", "expires_in": 1799}`)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		handler(w, r)
	}))
}

func TestSearchFlights(t *testing.T) {
	srv := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/shopping/flight-offers" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("originLocationCode") != "SFO" {
			t.Errorf("origin = %q (should be upper-trimmed)", q.Get("originLocationCode"))
		}
		if q.Get("adults") != "1" {
			t.Errorf("adults = %q, want default 1", q.Get("adults"))
		}
		fmt.Fprint(w, `{"data": [{
			"itineraries": [{"duration": "PT6H30M", "segments": [
				{"departure": {"at": "2025-06-01T08:00"}, "arrival": {"at": "2025-06-01T11:10"}},
				{"departure": {"at": "2025-06-01T12:00"}, "arrival": {"at": "2025-06-01T16:30"}}
			]}],
			"price": {"grandTotal": "312.40", "currency": "USD"},
			"validatingAirlineCodes": ["DL"]
		}]}`)
	})
	defer srv.Close()

	c := NewClient(srv.URL, "id", "secret", nil)
	offers, err := c.SearchFlights(context.Background(), FlightQuery{
		Origin: " sfo ", Destination: "JFK", DepartureDate: "2025-06-01",
	})
	if err != nil {
		t.Fatalf("SearchFlights error: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("offers = %d, want 1", len(offers))
	}
	o := offers[0]
	if o.Price != "$312.40 USD" || o.AirlineCode != "DL" {
		t.Errorf("offer = %+v", o)
	}
	if len(o.Legs) != 1 || o.Legs[0].Stops != 1 || o.Legs[0].Duration != "6h30m" {
		t.Errorf("legs = %+v", o.Legs)
	}
}

func TestSearchFlights_InvalidLocation(t *testing.T) {
	srv := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"errors": [{"status": 400, "code": 477, "title": "INVALID FORMAT",
			"detail": "invalid query parameter format", "source": {"parameter": "originLocationCode"}}]}`)
	})
	defer srv.Close()

	c := NewClient(srv.URL, "id", "secret", nil)
	_, err := c.SearchFlights(context.Background(), FlightQuery{
		Origin: "SAN FRANCISCO", Destination: "JFK", DepartureDate: "2025-06-01",
	})
	if err == nil {
		t.Fatal("expected error for invalid location")
	}
	if !IsInvalidLocation(err) {
		t.Errorf("IsInvalidLocation(%v) = false, want true", err)
	}
}

func TestTokenCaching(t *testing.T) {
	fetches := 0
	srv := newTestServer(t, &fetches, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": []}`)
	})
	defer srv.Close()

	c := NewClient(srv.URL, "id", "secret", nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.SearchAirports(ctx, "Barcelona"); err != nil {
			t.Fatalf("SearchAirports error: %v", err)
		}
	}
	if fetches != 1 {
		t.Errorf("token fetches = %d, want 1 (cached until expiry)", fetches)
	}
}

func TestSearchAirports_CapsAtFive(t *testing.T) {
	srv := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": [
			{"iataCode": "A1"}, {"iataCode": "A2"}, {"iataCode": "A3"},
			{"iataCode": "A4"}, {"iataCode": "A5"}, {"iataCode": "A6"}
		]}`)
	})
	defer srv.Close()

	c := NewClient(srv.URL, "id", "secret", nil)
	airports, err := c.SearchAirports(context.Background(), "Lon")
	if err != nil {
		t.Fatalf("SearchAirports error: %v", err)
	}
	if len(airports) != 5 {
		t.Errorf("airports = %d, want 5", len(airports))
	}
}
