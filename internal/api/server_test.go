package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wayfarerlabs/wayfarer/internal/agent"
	"github.com/wayfarerlabs/wayfarer/internal/extract"
	"github.com/wayfarerlabs/wayfarer/internal/llm"
	"github.com/wayfarerlabs/wayfarer/internal/memory"
	"github.com/wayfarerlabs/wayfarer/internal/prefs"
	"github.com/wayfarerlabs/wayfarer/internal/session"
	"github.com/wayfarerlabs/wayfarer/internal/tools"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

// staticClient always answers with the same plain reply.
type staticClient struct {
	reply string
	calls int
}

func (c *staticClient) Chat(ctx context.Context, model string, messages []llm.Message, toolDefs []map[string]any) (*llm.ChatResponse, error) {
	return c.ChatStream(ctx, model, messages, toolDefs, nil)
}

func (c *staticClient) ChatStream(ctx context.Context, model string, messages []llm.Message, toolDefs []map[string]any, callback llm.StreamCallback) (*llm.ChatResponse, error) {
	c.calls++
	resp := &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: c.reply}, Done: true}
	if callback != nil {
		callback(llm.StreamEvent{Kind: llm.KindToken, Token: c.reply})
		callback(llm.StreamEvent{Kind: llm.KindDone, Response: resp})
	}
	return resp, nil
}

func (c *staticClient) Ping(ctx context.Context) error { return nil }

type nullRunner struct{}

func (nullRunner) Execute(ctx context.Context, call llm.ToolCall, token string) (string, error) {
	return "", &tools.ErrToolUnavailable{ToolName: call.Function.Name}
}

func (nullRunner) Definitions() []map[string]any { return nil }

func newTestServer(t *testing.T, client llm.Client) (*Server, http.Handler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir := t.TempDir()
	tdb, err := sql.Open("sqlite", filepath.Join(dir, "transcripts.db"))
	if err != nil {
		t.Fatalf("open transcripts db: %v", err)
	}
	t.Cleanup(func() { tdb.Close() })
	transcripts, err := memory.NewStoreWithDB(tdb)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}

	pdb, err := sql.Open("sqlite", filepath.Join(dir, "prefs.db"))
	if err != nil {
		t.Fatalf("open prefs db: %v", err)
	}
	t.Cleanup(func() { pdb.Close() })
	prefsStore, err := prefs.NewStoreWithDB(pdb)
	if err != nil {
		t.Fatalf("prefs store: %v", err)
	}

	sealer, err := session.NewSealer(testKey, time.Hour)
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}

	ctrl := agent.NewController(client, nullRunner{}, prefsStore, "test-model", logger)
	srv := NewServer("", 0, ctrl, transcripts, prefsStore, sealer, logger)
	srv.SetExtractor(extract.NewExtractor(prefsStore, nil, logger))
	return srv, srv.Handler()
}

func postChat(t *testing.T, h http.Handler, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndVersion(t *testing.T) {
	_, h := newTestServer(t, &staticClient{reply: "hi"})

	for _, path := range []string{"/health", "/v1/version"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Errorf("%s body not JSON: %v", path, err)
		}
	}
}

func TestChatStreamsTurnEvents(t *testing.T) {
	_, h := newTestServer(t, &staticClient{reply: "The cheapest nonstop is on JetBlue."})

	rec := postChat(t, h, `{"message":"find me the cheapest nonstop SFO to JFK"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	if rec.Header().Get("X-Thread-Id") == "" {
		t.Error("thread id header missing")
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: text") || !strings.Contains(body, "event: done") {
		t.Errorf("stream missing events:\n%s", body)
	}
	if !strings.Contains(body, "JetBlue") {
		t.Errorf("final text missing:\n%s", body)
	}

	var sawCookie bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie && c.Value != "" {
			sawCookie = true
		}
	}
	if !sawCookie {
		t.Error("no session cookie issued")
	}
}

func TestChatPersistsTranscriptAcrossTurns(t *testing.T) {
	srv, h := newTestServer(t, &staticClient{reply: "noted"})

	rec := postChat(t, h, `{"message":"I want the cheapest flight to Tokyo"}`, nil)
	threadID := rec.Header().Get("X-Thread-Id")
	cookies := rec.Result().Cookies()
	if threadID == "" || len(cookies) == 0 {
		t.Fatalf("first turn incomplete: thread=%q cookies=%d", threadID, len(cookies))
	}

	body := fmt.Sprintf(`{"thread_id":%q,"message":"make it nonstop"}`, threadID)
	rec2 := postChat(t, h, body, cookies)
	if rec2.Code != http.StatusOK {
		t.Fatalf("second turn status = %d", rec2.Code)
	}

	n, err := srv.transcripts.MessageCount(threadID)
	if err != nil {
		t.Fatalf("MessageCount: %v", err)
	}
	if n != 4 {
		t.Errorf("persisted messages = %d, want 4 (two user/assistant pairs)", n)
	}

	// Extraction ran: the thread has a title and the cheapest-flight
	// phrasing became a fact.
	th, err := srv.prefs.Thread(threadID)
	if err != nil || th == nil {
		t.Fatalf("thread row missing: %v", err)
	}
	if th.Title == "" {
		t.Error("thread title empty after extraction")
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	_, h := newTestServer(t, &staticClient{reply: "hi"})

	rec := postChat(t, h, `{"message":""}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestChatBusyThreadConflicts(t *testing.T) {
	srv, h := newTestServer(t, &staticClient{reply: "hi"})

	release, ok := srv.locks.TryAcquire("t1")
	if !ok {
		t.Fatal("setup acquire failed")
	}
	defer release()

	rec := postChat(t, h, `{"thread_id":"t1","message":"hello"}`, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestThreadOwnershipHidesForeignThreads(t *testing.T) {
	_, h := newTestServer(t, &staticClient{reply: "planned"})

	rec := postChat(t, h, `{"message":"plan a trip to Lisbon"}`, nil)
	threadID := rec.Header().Get("X-Thread-Id")
	owner := rec.Result().Cookies()

	// The owner sees the thread.
	req := httptest.NewRequest(http.MethodGet, "/v1/threads/"+threadID, nil)
	for _, c := range owner {
		req.AddCookie(c)
	}
	ownerRec := httptest.NewRecorder()
	h.ServeHTTP(ownerRec, req)
	if ownerRec.Code != http.StatusOK {
		t.Errorf("owner fetch status = %d", ownerRec.Code)
	}

	// A fresh session does not.
	req2 := httptest.NewRequest(http.MethodGet, "/v1/threads/"+threadID, nil)
	strangerRec := httptest.NewRecorder()
	h.ServeHTTP(strangerRec, req2)
	if strangerRec.Code != http.StatusNotFound {
		t.Errorf("stranger fetch status = %d, want 404", strangerRec.Code)
	}

	// Chatting into someone else's thread is also hidden.
	body := fmt.Sprintf(`{"thread_id":%q,"message":"hijack"}`, threadID)
	hijack := postChat(t, h, body, nil)
	if hijack.Code != http.StatusNotFound {
		t.Errorf("foreign chat status = %d, want 404", hijack.Code)
	}
}

func TestThreadListScopedToUser(t *testing.T) {
	_, h := newTestServer(t, &staticClient{reply: "done"})

	rec := postChat(t, h, `{"message":"weekend in Denver"}`, nil)
	owner := rec.Result().Cookies()

	req := httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
	for _, c := range owner {
		req.AddCookie(c)
	}
	listRec := httptest.NewRecorder()
	h.ServeHTTP(listRec, req)

	var listing struct {
		Threads []prefs.Thread `json:"threads"`
	}
	if err := json.Unmarshal(listRec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("listing not JSON: %v", err)
	}
	if len(listing.Threads) != 1 {
		t.Errorf("owner threads = %d, want 1", len(listing.Threads))
	}

	// A new anonymous session sees nothing.
	req2 := httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
	emptyRec := httptest.NewRecorder()
	h.ServeHTTP(emptyRec, req2)
	var empty struct {
		Threads []prefs.Thread `json:"threads"`
	}
	if err := json.Unmarshal(emptyRec.Body.Bytes(), &empty); err != nil {
		t.Fatalf("listing not JSON: %v", err)
	}
	if len(empty.Threads) != 0 {
		t.Errorf("stranger threads = %d, want 0", len(empty.Threads))
	}
}

func TestThreadQR(t *testing.T) {
	_, h := newTestServer(t, &staticClient{reply: "done"})

	rec := postChat(t, h, `{"message":"ski trip to Salt Lake"}`, nil)
	threadID := rec.Header().Get("X-Thread-Id")
	owner := rec.Result().Cookies()

	req := httptest.NewRequest(http.MethodGet, "/v1/threads/"+threadID+"/qr", nil)
	for _, c := range owner {
		req.AddCookie(c)
	}
	qrRec := httptest.NewRecorder()
	h.ServeHTTP(qrRec, req)

	if qrRec.Code != http.StatusOK {
		t.Fatalf("status = %d", qrRec.Code)
	}
	if ct := qrRec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	if qrRec.Body.Len() == 0 {
		t.Error("empty PNG body")
	}
}

func TestAttachGoogleToken(t *testing.T) {
	srv, h := newTestServer(t, &staticClient{reply: "ok"})

	req := httptest.NewRequest(http.MethodPost, "/v1/session/google", strings.NewReader(`{"access_token":"gtok"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var updated *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			updated = c
		}
	}
	if updated == nil {
		t.Fatal("no session cookie set")
	}
	sess, err := srv.sealer.Open(updated.Value)
	if err != nil {
		t.Fatalf("opening reissued cookie: %v", err)
	}
	if sess.GoogleToken != "gtok" {
		t.Errorf("GoogleToken = %q", sess.GoogleToken)
	}
}

func TestPreferencesScopedToUser(t *testing.T) {
	srv, h := newTestServer(t, &staticClient{reply: "noted"})

	rec := postChat(t, h, `{"message":"always book me the cheapest flight"}`, nil)
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("no session cookie issued")
	}
	sess, err := srv.sealer.Open(cookies[0].Value)
	if err != nil {
		t.Fatalf("opening session cookie: %v", err)
	}

	facts := []prefs.Fact{{UserID: sess.UserID, Key: "price_priority", Value: "lowest_price", Source: "explicit", Confidence: 0.9}}
	if err := srv.prefs.ApplyExtraction(sess.UserID, "t-prefs", "Cheap flights", []string{"cheapest option"}, facts); err != nil {
		t.Fatalf("ApplyExtraction: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/preferences", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	listRec := httptest.NewRecorder()
	h.ServeHTTP(listRec, req)
	if listRec.Code != http.StatusOK {
		t.Fatalf("status = %d", listRec.Code)
	}

	var got struct {
		Facts       []prefs.Fact `json:"facts"`
		Preferences []string     `json:"preferences"`
	}
	if err := json.Unmarshal(listRec.Body.Bytes(), &got); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if len(got.Facts) != 1 || got.Facts[0].Key != "price_priority" {
		t.Errorf("facts = %+v, want the stored price_priority fact", got.Facts)
	}
	if len(got.Preferences) != 1 || got.Preferences[0] != "cheapest option" {
		t.Errorf("preferences = %v, want the stored statement", got.Preferences)
	}

	// A fresh anonymous session sees nothing.
	req2 := httptest.NewRequest(http.MethodGet, "/v1/preferences", nil)
	emptyRec := httptest.NewRecorder()
	h.ServeHTTP(emptyRec, req2)
	var empty struct {
		Facts       []prefs.Fact `json:"facts"`
		Preferences []string     `json:"preferences"`
	}
	if err := json.Unmarshal(emptyRec.Body.Bytes(), &empty); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if len(empty.Facts) != 0 || len(empty.Preferences) != 0 {
		t.Errorf("stranger sees facts=%d preferences=%d, want none", len(empty.Facts), len(empty.Preferences))
	}
}
