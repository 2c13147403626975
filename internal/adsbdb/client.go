// Package adsbdb queries the free ADSBDB aircraft and flight-route
// database (https://www.adsbdb.com/). No API key is required.
package adsbdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wayfarerlabs/wayfarer/internal/httpkit"
)

// DefaultBaseURL is the public ADSBDB v0 API root.
const DefaultBaseURL = "https://api.adsbdb.com/v0"

// Client queries ADSBDB.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an ADSBDB client. baseURL may be empty for the
// public API.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpkit.NewClient(httpkit.WithTimeout(10 * time.Second)),
	}
}

// ErrNotFound reports a callsign or registration unknown to ADSBDB.
type ErrNotFound struct {
	Query string
}

// Error implements the error interface.
func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("adsbdb: %q not found", e.Query)
}

// Route describes a flight route looked up by callsign.
type Route struct {
	Callsign     string `json:"callsign"`
	Airline      string `json:"airline"`
	Origin       string `json:"origin"`
	Destination  string `json:"destination"`
	AircraftType string `json:"aircraft_type"`
	Manufacturer string `json:"aircraft_manufacturer"`
	Registration string `json:"registration"`
}

// Aircraft describes an airframe looked up by registration.
type Aircraft struct {
	Registration string `json:"registration"`
	Type         string `json:"type"`
	Manufacturer string `json:"manufacturer"`
	Operator     string `json:"operator"`
	Country      string `json:"country"`
}

func (c *Client) get(ctx context.Context, path, query string, out any) error {
	u := c.baseURL + path + "/" + url.PathEscape(query)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	case http.StatusNotFound:
		return &ErrNotFound{Query: query}
	default:
		return fmt.Errorf("adsbdb returned status %d", resp.StatusCode)
	}
}

// RouteByCallsign looks up route and aircraft info for an airline
// callsign such as "DL417".
func (c *Client) RouteByCallsign(ctx context.Context, callsign string) (*Route, error) {
	callsign = strings.ToUpper(strings.TrimSpace(callsign))

	var resp struct {
		Response struct {
			FlightRoute struct {
				Airline struct {
					Name string `json:"name"`
				} `json:"airline"`
				Origin struct {
					IATACode string `json:"iata_code"`
				} `json:"origin"`
				Destination struct {
					IATACode string `json:"iata_code"`
				} `json:"destination"`
				Aircraft struct {
					Type         string `json:"type"`
					Manufacturer string `json:"manufacturer"`
					Registration string `json:"registration"`
				} `json:"aircraft"`
			} `json:"flightroute"`
		} `json:"response"`
	}
	if err := c.get(ctx, "/callsign", callsign, &resp); err != nil {
		return nil, err
	}

	fr := resp.Response.FlightRoute
	if fr.Origin.IATACode == "" && fr.Destination.IATACode == "" {
		return nil, &ErrNotFound{Query: callsign}
	}

	return &Route{
		Callsign:     callsign,
		Airline:      fr.Airline.Name,
		Origin:       fr.Origin.IATACode,
		Destination:  fr.Destination.IATACode,
		AircraftType: fr.Aircraft.Type,
		Manufacturer: fr.Aircraft.Manufacturer,
		Registration: fr.Aircraft.Registration,
	}, nil
}

// AircraftByRegistration looks up airframe details for a tail number
// such as "N12345".
func (c *Client) AircraftByRegistration(ctx context.Context, registration string) (*Aircraft, error) {
	registration = strings.ToUpper(strings.TrimSpace(registration))

	var resp struct {
		Response struct {
			Aircraft struct {
				Type                       string `json:"type"`
				Manufacturer               string `json:"manufacturer"`
				RegisteredOwner            string `json:"registered_owner"`
				RegisteredOwnerCountryName string `json:"registered_owner_country_name"`
			} `json:"aircraft"`
		} `json:"response"`
	}
	if err := c.get(ctx, "/aircraft", registration, &resp); err != nil {
		return nil, err
	}

	a := resp.Response.Aircraft
	if a.Type == "" && a.Manufacturer == "" {
		return nil, &ErrNotFound{Query: registration}
	}

	return &Aircraft{
		Registration: registration,
		Type:         a.Type,
		Manufacturer: a.Manufacturer,
		Operator:     a.RegisteredOwner,
		Country:      a.RegisteredOwnerCountryName,
	}, nil
}
