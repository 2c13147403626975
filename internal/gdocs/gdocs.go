// Package gdocs creates shareable trip itinerary documents in Google
// Drive. The itinerary is composed as markdown, rendered to HTML with
// goldmark, and uploaded with Docs conversion so the user receives a
// native, editable Google Doc.
//
// All calls need a per-user OAuth access token supplied by the caller.
// Token acquisition and refresh live outside this package.
package gdocs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/wayfarerlabs/wayfarer/internal/httpkit"
)

// DefaultBaseURL is the Google API root. Overridable for tests.
const DefaultBaseURL = "https://www.googleapis.com"

// googleDocMIME asks Drive to convert the uploaded HTML into a Doc.
const googleDocMIME = "application/vnd.google-apps.document"

// Client creates trip documents via the Drive API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Drive-backed document client. baseURL may be empty.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger.With("component", "gdocs"),
		httpClient: httpkit.NewClient(httpkit.WithTimeout(30 * time.Second)),
	}
}

// FlightOption is one priced flight choice listed in the itinerary.
type FlightOption struct {
	AirlineCode string `json:"airline_code"`
	Price       string `json:"price"`
	Duration    string `json:"duration"`
	Stops       int    `json:"stops"`
}

// Trip holds everything the itinerary document mentions.
type Trip struct {
	Origin        string
	Destination   string
	DepartureDate string
	ReturnDate    string
	Adults        int
	Preferences   string
	Flights       []FlightOption
}

// Document is the created itinerary doc.
type Document struct {
	ID    string `json:"doc_id"`
	URL   string `json:"doc_url"`
	Title string `json:"title"`
}

// Title returns the document title for a trip.
func (t Trip) Title() string {
	return fmt.Sprintf("Wayfarer Trip: %s → %s (%s)", t.Origin, t.Destination, t.DepartureDate)
}

// Markdown composes the itinerary body.
func (t Trip) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Trip Itinerary: %s → %s\n\n", t.Origin, t.Destination)
	b.WriteString("*Generated by Wayfarer*\n\n")

	b.WriteString("## Trip Details\n\n")
	fmt.Fprintf(&b, "- **Origin:** %s\n", t.Origin)
	fmt.Fprintf(&b, "- **Destination:** %s\n", t.Destination)
	fmt.Fprintf(&b, "- **Departure:** %s\n", t.DepartureDate)
	ret := t.ReturnDate
	if ret == "" {
		ret = "N/A (one-way)"
	}
	fmt.Fprintf(&b, "- **Return:** %s\n", ret)
	adults := t.Adults
	if adults <= 0 {
		adults = 1
	}
	fmt.Fprintf(&b, "- **Travelers:** %d adult(s)\n", adults)
	prefs := t.Preferences
	if prefs == "" {
		prefs = "None specified"
	}
	fmt.Fprintf(&b, "- **Preferences:** %s\n\n", prefs)

	b.WriteString("## Flight Options\n\n")
	if len(t.Flights) == 0 {
		b.WriteString("No flight data available.\n\n")
	} else {
		for i, f := range t.Flights {
			fmt.Fprintf(&b, "%d. **%s** — %s, %s, %d stop(s)\n",
				i+1, f.AirlineCode, f.Price, f.Duration, f.Stops)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Suggested Itinerary\n\n")
	fmt.Fprintf(&b, "- Day 1: Arrive in %s, check in and explore\n", t.Destination)
	b.WriteString("- Day 2–N: Explore local attractions\n")
	fmt.Fprintf(&b, "- Last day: Return flight from %s\n\n", t.Destination)

	b.WriteString("## Tips\n\n")
	b.WriteString("- Book accommodation in advance\n")
	b.WriteString("- Check visa requirements for your passport\n")
	b.WriteString("- Travel insurance is recommended\n")

	return b.String()
}

// renderHTML converts the markdown itinerary into the HTML Drive converts.
func renderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// CreateTripDocument uploads the trip itinerary as a converted Google Doc
// and makes it link-readable. accessToken is the user's OAuth token.
func (c *Client) CreateTripDocument(ctx context.Context, accessToken string, trip Trip) (*Document, error) {
	html, err := renderHTML(trip.Markdown())
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := mw.CreatePart(metaHeader)
	if err != nil {
		return nil, fmt.Errorf("create metadata part: %w", err)
	}
	meta := map[string]string{"name": trip.Title(), "mimeType": googleDocMIME}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	contentHeader := textproto.MIMEHeader{}
	contentHeader.Set("Content-Type", "text/html; charset=UTF-8")
	contentPart, err := mw.CreatePart(contentHeader)
	if err != nil {
		return nil, fmt.Errorf("create content part: %w", err)
	}
	if _, err := contentPart.Write([]byte(html)); err != nil {
		return nil, fmt.Errorf("write content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	url := c.baseURL + "/upload/drive/v3/files?uploadType=multipart&fields=id"
	req, err := http.NewRequestWithContext(ctx, "POST", url, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("drive upload rejected: %d %s",
			resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 2048))
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}

	if err := c.shareAnyoneReader(ctx, accessToken, created.ID); err != nil {
		// The doc exists even if sharing failed; surface the doc anyway
		// and let the model mention the restricted link.
		c.logger.Warn("failed to set link sharing", "doc_id", created.ID, "error", err)
	}

	doc := &Document{
		ID:    created.ID,
		URL:   fmt.Sprintf("https://docs.google.com/document/d/%s/edit", created.ID),
		Title: trip.Title(),
	}
	c.logger.Info("trip document created", "doc_id", doc.ID)
	return doc, nil
}

// shareAnyoneReader adds a link-visible reader permission to the file.
func (c *Client) shareAnyoneReader(ctx context.Context, accessToken, fileID string) error {
	perm, _ := json.Marshal(map[string]string{"type": "anyone", "role": "reader"})

	url := fmt.Sprintf("%s/drive/v3/files/%s/permissions", c.baseURL, fileID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(perm))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("permission request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 2048)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("permission rejected: %d", resp.StatusCode)
	}
	return nil
}
