package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/wayfarerlabs/wayfarer/internal/llm"
	"github.com/wayfarerlabs/wayfarer/internal/prefs"
)

type recordingApplier struct {
	calls     int
	userID    string
	threadID  string
	title     string
	textPrefs []string
	facts     []prefs.Fact
	err       error
}

func (r *recordingApplier) ApplyExtraction(userID, threadID, title string, textPrefs []string, facts []prefs.Fact) error {
	r.calls++
	r.userID = userID
	r.threadID = threadID
	r.title = title
	r.textPrefs = textPrefs
	r.facts = facts
	return r.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func factByKey(facts []prefs.Fact, key string) (prefs.Fact, bool) {
	for _, f := range facts {
		if f.Key == key {
			return f, true
		}
	}
	return prefs.Fact{}, false
}

func TestRuleFactsFromUserStatements(t *testing.T) {
	facts := RuleFacts("u1", []string{
		"I only fly Delta and I want the shortest nonstop option",
	}, nil)

	tp, ok := factByKey(facts, "time_priority")
	if !ok || tp.Value != "shortest_duration" {
		t.Errorf("time_priority = %+v, ok=%v", tp, ok)
	}
	sp, ok := factByKey(facts, "stops_priority")
	if !ok || sp.Value != "direct_only" {
		t.Errorf("stops_priority = %+v, ok=%v", sp, ok)
	}
	for _, f := range []prefs.Fact{tp, sp} {
		if f.Source != prefs.SourceExplicit || f.Confidence < 0.8 {
			t.Errorf("fact %s should be explicit with high confidence: %+v", f.Key, f)
		}
	}
}

func TestExplicitOutranksInferred(t *testing.T) {
	facts := RuleFacts("u1",
		[]string{"I always want a window seat"},
		[]string{"prefers the aisle seat on long flights"},
	)

	seat, ok := factByKey(facts, "seat_preference")
	if !ok {
		t.Fatal("no seat_preference fact")
	}
	if seat.Value != "window" || seat.Source != prefs.SourceExplicit {
		t.Errorf("seat_preference = %+v, want explicit window", seat)
	}
}

func TestEqualConfidenceKeepsFirst(t *testing.T) {
	facts := RuleFacts("u1", []string{
		"aisle seat please",
		"actually a window seat works too",
	}, nil)

	seat, ok := factByKey(facts, "seat_preference")
	if !ok {
		t.Fatal("no seat_preference fact")
	}
	if seat.Value != "aisle" {
		t.Errorf("seat_preference = %q, want first match to win ties", seat.Value)
	}
}

func TestInferredFromPreferenceStatements(t *testing.T) {
	facts := RuleFacts("u1", nil, []string{"wants the cheapest fares"})

	price, ok := factByKey(facts, "price_priority")
	if !ok || price.Value != "lowest_price" {
		t.Fatalf("price_priority = %+v, ok=%v", price, ok)
	}
	if price.Source != prefs.SourceInferred || price.Confidence != ConfidenceInferred {
		t.Errorf("inferred fact mislabeled: %+v", price)
	}
}

func TestShouldExtractGate(t *testing.T) {
	e := NewExtractor(&recordingApplier{}, nil, discard())

	if e.ShouldExtract([]llm.Message{{Role: "user", Content: "hi"}}) {
		t.Error("single message passed the gate")
	}
	if !e.ShouldExtract([]llm.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}) {
		t.Error("two-message exchange failed the gate")
	}

	// Tool plumbing doesn't count.
	if e.ShouldExtract([]llm.Message{
		{Role: "user", Content: "hi"},
		{Role: "tool", Content: "{}", ToolCallID: "c1"},
	}) {
		t.Error("tool message counted toward the gate")
	}
}

func TestRunPersistsLLMAndRuleOutput(t *testing.T) {
	applier := &recordingApplier{}
	fn := func(ctx context.Context, window []llm.Message) (*Result, error) {
		return &Result{
			Preferences: []string{"prefers morning departures"},
			Title:       "Tokyo in June",
		}, nil
	}
	e := NewExtractor(applier, fn, discard())

	transcript := []llm.Message{
		{Role: "user", Content: "find me the cheapest flight to Tokyo"},
		{Role: "assistant", Content: "Here are some options."},
	}
	if err := e.Run(context.Background(), "u1", "t1", transcript); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if applier.calls != 1 {
		t.Fatalf("apply calls = %d, want 1", applier.calls)
	}
	if applier.title != "Tokyo in June" {
		t.Errorf("title = %q", applier.title)
	}
	if len(applier.textPrefs) != 1 {
		t.Errorf("textPrefs = %v", applier.textPrefs)
	}
	price, ok := factByKey(applier.facts, "price_priority")
	if !ok || price.Source != prefs.SourceExplicit {
		t.Errorf("rule fact missing or mislabeled: %+v facts=%v", price, applier.facts)
	}
}

func TestRunSurvivesLLMFailure(t *testing.T) {
	applier := &recordingApplier{}
	fn := func(ctx context.Context, window []llm.Message) (*Result, error) {
		return nil, errors.New("model unavailable")
	}
	e := NewExtractor(applier, fn, discard())

	transcript := []llm.Message{
		{Role: "user", Content: "I need a nonstop to Denver"},
		{Role: "assistant", Content: "Looking now."},
	}
	if err := e.Run(context.Background(), "u1", "t1", transcript); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if applier.calls != 1 {
		t.Fatal("rule facts were not persisted after LLM failure")
	}
	if _, ok := factByKey(applier.facts, "stops_priority"); !ok {
		t.Errorf("stops_priority missing: %v", applier.facts)
	}
	if applier.title == "" {
		t.Error("fallback title empty")
	}
}

func TestRunSkipsShortTranscripts(t *testing.T) {
	applier := &recordingApplier{}
	e := NewExtractor(applier, nil, discard())

	err := e.Run(context.Background(), "u1", "t1", []llm.Message{
		{Role: "user", Content: "cheapest flight please"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if applier.calls != 0 {
		t.Error("extraction ran below the message gate")
	}
}

func TestRunUsesRecentWindowOnly(t *testing.T) {
	applier := &recordingApplier{}
	var seen []llm.Message
	fn := func(ctx context.Context, window []llm.Message) (*Result, error) {
		seen = window
		return &Result{Title: "t"}, nil
	}
	e := NewExtractor(applier, fn, discard())

	var transcript []llm.Message
	for i := 0; i < 10; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		transcript = append(transcript, llm.Message{Role: role, Content: "msg"})
	}
	// Only the last window mentions a preference.
	transcript = append(transcript, llm.Message{Role: "user", Content: "window seat please"})
	transcript = append(transcript, llm.Message{Role: "assistant", Content: "Noted."})

	if err := e.Run(context.Background(), "u1", "t1", transcript); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != WindowSize {
		t.Errorf("window size = %d, want %d", len(seen), WindowSize)
	}
	if seat, ok := factByKey(applier.facts, "seat_preference"); !ok || seat.Value != "window" {
		t.Errorf("seat_preference = %+v ok=%v", seat, ok)
	}
}
