package gdocs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testTrip() Trip {
	return Trip{
		Origin:        "SFO",
		Destination:   "JFK",
		DepartureDate: "2025-06-01",
		Adults:        2,
		Preferences:   "cheapest option",
		Flights: []FlightOption{
			{AirlineCode: "DL", Price: "$312.40 USD", Duration: "6h30m", Stops: 0},
		},
	}
}

func TestTripMarkdown(t *testing.T) {
	md := testTrip().Markdown()

	for _, want := range []string{
		"# Trip Itinerary: SFO → JFK",
		"**Departure:** 2025-06-01",
		"**Return:** N/A (one-way)",
		"**Travelers:** 2 adult(s)",
		"1. **DL** — $312.40 USD, 6h30m, 0 stop(s)",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := renderHTML("# Title\n\n- item\n")
	if err != nil {
		t.Fatalf("renderHTML error: %v", err)
	}
	if !strings.Contains(html, "<h1>Title</h1>") || !strings.Contains(html, "<li>item</li>") {
		t.Errorf("unexpected html: %s", html)
	}
}

func TestCreateTripDocument(t *testing.T) {
	var uploadContentType, uploadBody, permPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer user-token" {
			t.Errorf("Authorization = %q", got)
		}
		switch {
		case strings.HasPrefix(r.URL.Path, "/upload/drive/v3/files"):
			uploadContentType = r.Header.Get("Content-Type")
			b, _ := io.ReadAll(r.Body)
			uploadBody = string(b)
			fmt.Fprint(w, `{"id": "doc-123"}`)
		case strings.Contains(r.URL.Path, "/permissions"):
			permPath = r.URL.Path
			fmt.Fprint(w, `{"id": "perm-1"}`)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	doc, err := c.CreateTripDocument(context.Background(), "user-token", testTrip())
	if err != nil {
		t.Fatalf("CreateTripDocument error: %v", err)
	}

	if doc.ID != "doc-123" {
		t.Errorf("doc ID = %q", doc.ID)
	}
	if doc.URL != "https://docs.google.com/document/d/doc-123/edit" {
		t.Errorf("doc URL = %q", doc.URL)
	}
	if !strings.HasPrefix(uploadContentType, "multipart/related") {
		t.Errorf("upload Content-Type = %q", uploadContentType)
	}
	if !strings.Contains(uploadBody, "application/vnd.google-apps.document") {
		t.Error("upload metadata missing Docs conversion mime type")
	}
	if !strings.Contains(uploadBody, "<h1>") {
		t.Error("upload body missing rendered HTML")
	}
	if permPath != "/drive/v3/files/doc-123/permissions" {
		t.Errorf("permission path = %q", permPath)
	}
}

func TestCreateTripDocument_UploadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_grant", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.CreateTripDocument(context.Background(), "expired", testTrip())
	if err == nil {
		t.Fatal("expected error for rejected upload")
	}
}
