// Package amadeus is a client for the Amadeus self-service travel APIs.
// It covers the two endpoints Wayfarer needs: flight offers search and
// airport/city location lookup. The test environment (free tier) is the
// default host.
package amadeus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wayfarerlabs/wayfarer/internal/httpkit"
)

// DefaultBaseURL is the Amadeus test environment.
const DefaultBaseURL = "https://test.api.amadeus.com"

// Client talks to the Amadeus REST API. It manages its own OAuth2
// client-credentials token, refreshing it before expiry. Safe for
// concurrent use.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *slog.Logger

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates an Amadeus client. baseURL may be empty for the
// test environment.
func NewClient(baseURL, clientID, clientSecret string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger.With("component", "amadeus"),
		httpClient:   httpkit.NewClient(httpkit.WithTimeout(30 * time.Second)),
	}
}

// APIError is a structured error returned by the Amadeus API.
type APIError struct {
	Status int
	Code   int
	Title  string
	Detail string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("amadeus: %d %s: %s", e.Status, e.Title, e.Detail)
}

// IsInvalidLocation reports whether err is an Amadeus rejection of an
// origin/destination location code. This drives the agent's
// self-correction flow: the model is hinted to resolve the IATA code via
// the airport search tool instead of retrying the same bad code.
func IsInvalidLocation(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	lower := strings.ToLower(apiErr.Detail + " " + apiErr.Title)
	return strings.Contains(lower, "invalid format") || strings.Contains(lower, "locationcode") ||
		strings.Contains(lower, "location code")
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a valid access token, fetching a fresh one when the
// cached token is missing or within a minute of expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.accessToken, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, "POST",
		c.baseURL+"/v1/security/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request rejected: %d %s",
			resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 2048))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	c.accessToken = tr.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	c.logger.Debug("token refreshed", "expires_in", tr.ExpiresIn)
	return c.accessToken, nil
}

// get performs an authenticated GET and decodes the body into out,
// converting Amadeus error envelopes into *APIError.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var envelope struct {
			Errors []struct {
				Status int    `json:"status"`
				Code   int    `json:"code"`
				Title  string `json:"title"`
				Detail string `json:"detail"`
			} `json:"errors"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && len(envelope.Errors) > 0 {
			e := envelope.Errors[0]
			return &APIError{Status: e.Status, Code: e.Code, Title: e.Title, Detail: e.Detail}
		}
		return &APIError{Status: resp.StatusCode, Title: resp.Status}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// FlightQuery describes a flight offers search.
type FlightQuery struct {
	Origin        string // IATA airport code
	Destination   string // IATA airport code
	DepartureDate string // YYYY-MM-DD
	ReturnDate    string // YYYY-MM-DD, empty for one-way
	Adults        int
	MaxResults    int
}

// FlightLeg is one itinerary of an offer.
type FlightLeg struct {
	Departure string `json:"departure"`
	Arrival   string `json:"arrival"`
	Duration  string `json:"duration"`
	Stops     int    `json:"stops"`
	Airline   string `json:"airline"`
}

// FlightOffer is a priced flight option.
type FlightOffer struct {
	Price       string      `json:"price"`
	AirlineCode string      `json:"airline_code"`
	Legs        []FlightLeg `json:"legs"`
}

// SearchFlights runs a flight-offers search. A nil error with zero offers
// means the search was valid but nothing matched.
func (c *Client) SearchFlights(ctx context.Context, q FlightQuery) ([]FlightOffer, error) {
	if q.Adults <= 0 {
		q.Adults = 1
	}
	if q.MaxResults <= 0 {
		q.MaxResults = 3
	}

	query := url.Values{
		"originLocationCode":      {strings.ToUpper(strings.TrimSpace(q.Origin))},
		"destinationLocationCode": {strings.ToUpper(strings.TrimSpace(q.Destination))},
		"departureDate":           {q.DepartureDate},
		"adults":                  {strconv.Itoa(q.Adults)},
		"max":                     {strconv.Itoa(q.MaxResults)},
		"currencyCode":            {"USD"},
	}
	if q.ReturnDate != "" {
		query.Set("returnDate", q.ReturnDate)
	}

	var resp struct {
		Data []struct {
			Itineraries []struct {
				Duration string `json:"duration"`
				Segments []struct {
					Departure struct {
						At string `json:"at"`
					} `json:"departure"`
					Arrival struct {
						At string `json:"at"`
					} `json:"arrival"`
				} `json:"segments"`
			} `json:"itineraries"`
			Price struct {
				GrandTotal string `json:"grandTotal"`
				Currency   string `json:"currency"`
			} `json:"price"`
			ValidatingAirlineCodes []string `json:"validatingAirlineCodes"`
		} `json:"data"`
	}

	if err := c.get(ctx, "/v2/shopping/flight-offers", query, &resp); err != nil {
		return nil, err
	}

	offers := make([]FlightOffer, 0, len(resp.Data))
	for _, d := range resp.Data {
		airline := "?"
		if len(d.ValidatingAirlineCodes) > 0 {
			airline = d.ValidatingAirlineCodes[0]
		}

		offer := FlightOffer{
			Price:       fmt.Sprintf("$%s %s", d.Price.GrandTotal, d.Price.Currency),
			AirlineCode: airline,
		}
		for _, itin := range d.Itineraries {
			leg := FlightLeg{
				Duration: strings.ToLower(strings.TrimPrefix(itin.Duration, "PT")),
				Stops:    max(len(itin.Segments)-1, 0),
				Airline:  airline,
			}
			if n := len(itin.Segments); n > 0 {
				leg.Departure = itin.Segments[0].Departure.At
				leg.Arrival = itin.Segments[n-1].Arrival.At
			}
			offer.Legs = append(offer.Legs, leg)
		}
		offers = append(offers, offer)
	}

	c.logger.Debug("flight search completed",
		"origin", q.Origin, "destination", q.Destination, "offers", len(offers))
	return offers, nil
}

// Airport is a location match from the reference-data lookup.
type Airport struct {
	IATACode string `json:"iata_code"`
	Name     string `json:"name"`
	City     string `json:"city"`
	Country  string `json:"country"`
}

// SearchAirports finds airports and cities matching a keyword, returning
// up to five matches.
func (c *Client) SearchAirports(ctx context.Context, keyword string) ([]Airport, error) {
	query := url.Values{
		"keyword": {keyword},
		"subType": {"AIRPORT,CITY"},
	}

	var resp struct {
		Data []struct {
			IATACode string `json:"iataCode"`
			Name     string `json:"name"`
			Address  struct {
				CityName    string `json:"cityName"`
				CountryName string `json:"countryName"`
			} `json:"address"`
		} `json:"data"`
	}

	if err := c.get(ctx, "/v1/reference-data/locations", query, &resp); err != nil {
		return nil, err
	}

	data := resp.Data
	if len(data) > 5 {
		data = data[:5]
	}

	airports := make([]Airport, 0, len(data))
	for _, d := range data {
		airports = append(airports, Airport{
			IATACode: d.IATACode,
			Name:     d.Name,
			City:     d.Address.CityName,
			Country:  d.Address.CountryName,
		})
	}
	return airports, nil
}
