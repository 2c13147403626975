package memory

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/wayfarerlabs/wayfarer/internal/llm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewStoreWithDB(db)
	if err != nil {
		t.Fatalf("NewStoreWithDB: %v", err)
	}
	return s
}

func TestAppendAndReadBack(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureConversation("c1", "u1"); err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}

	msgs := []llm.Message{
		{Role: "user", Content: "find me a flight to Tokyo"},
		{Role: "assistant", Content: "", ToolCalls: []llm.ToolCall{{
			ID: "call_1",
			Function: llm.FunctionCall{
				Name:      "search_flights",
				Arguments: map[string]any{"origin": "SFO", "destination": "NRT"},
			},
		}}},
		{Role: "tool", Content: `{"offers":[]}`, ToolCallID: "call_1", ToolName: "search_flights"},
		{Role: "assistant", Content: "No offers found for those dates."},
	}
	if err := s.AppendMessages("c1", msgs); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	got, err := s.Messages("c1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d messages, want 4", len(got))
	}
	if got[0].Role != "user" || got[0].Content != "find me a flight to Tokyo" {
		t.Errorf("first message wrong: %+v", got[0])
	}
	if len(got[1].ToolCalls) != 1 {
		t.Fatalf("tool calls not round-tripped: %+v", got[1])
	}
	if got[1].ToolCalls[0].Function.Name != "search_flights" {
		t.Errorf("tool call name = %q", got[1].ToolCalls[0].Function.Name)
	}
	if got[1].ToolCalls[0].Function.Arguments["origin"] != "SFO" {
		t.Errorf("tool call args = %v", got[1].ToolCalls[0].Function.Arguments)
	}
	if got[2].ToolCallID != "call_1" || got[2].ToolName != "search_flights" {
		t.Errorf("tool result fields lost: %+v", got[2])
	}
}

func TestAppendPreservesOrderAcrossBatches(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureConversation("c1", "u1"); err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}

	first := []llm.Message{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
	}
	second := []llm.Message{
		{Role: "user", Content: "three"},
		{Role: "assistant", Content: "four"},
	}
	if err := s.AppendMessages("c1", first); err != nil {
		t.Fatalf("append first: %v", err)
	}
	if err := s.AppendMessages("c1", second); err != nil {
		t.Fatalf("append second: %v", err)
	}

	got, err := s.Messages("c1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	want := []string{"one", "two", "three", "four"}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Content != w {
			t.Errorf("message %d = %q, want %q", i, got[i].Content, w)
		}
	}
}

func TestEnsureConversationIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureConversation("c1", "u1"); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := s.EnsureConversation("c1", "u1"); err != nil {
		t.Fatalf("second ensure: %v", err)
	}

	n, err := s.MessageCount("c1")
	if err != nil {
		t.Fatalf("MessageCount: %v", err)
	}
	if n != 0 {
		t.Errorf("message count = %d, want 0", n)
	}
}

func TestAppendEmptyIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.AppendMessages("c1", nil); err != nil {
		t.Fatalf("AppendMessages(nil): %v", err)
	}
}
