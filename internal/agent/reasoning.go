package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wayfarerlabs/wayfarer/internal/llm"
	"github.com/wayfarerlabs/wayfarer/internal/prefs"
)

const systemPrompt = `You are Wayfarer, a travel planning assistant. You help travelers
search flights, look up aircraft and routes, and turn a plan into a
shareable itinerary document and calendar event.

Rules:
- Use IATA airport codes when searching flights. If you only know a
  city name, resolve it with search_airport_by_city first.
- Dates are YYYY-MM-DD.
- When a tool fails, read the error and hint, fix your call, and try
  again rather than apologizing immediately.
- Answer concisely and in the traveler's language.`

// FactProvider supplies the most recently updated preference facts for
// a user. Implemented by prefs.Store.
type FactProvider interface {
	TopFacts(userID string, n int) ([]prefs.Fact, error)
}

// reason runs one reasoning pass: system prompt plus context block plus
// the trailing transcript window, with the tool catalog attached.
// Incremental text is forwarded to the sink as it streams.
func (c *Controller) reason(ctx context.Context, state *TurnState, sink EventSink) (llm.Message, error) {
	messages := []llm.Message{{Role: "system", Content: c.buildSystemPrompt(state)}}
	messages = append(messages, windowTail(state.Transcript, HistoryWindow)...)

	resp, err := c.client.ChatStream(ctx, c.model, messages, c.registry.Definitions(), func(ev llm.StreamEvent) {
		if ev.Kind == llm.KindToken && ev.Token != "" {
			c.emit(sink, Event{Kind: EventText, Text: ev.Token})
		}
	})
	if err != nil {
		return llm.Message{}, fmt.Errorf("reasoning: %w", err)
	}

	msg := resp.Message
	msg.Role = "assistant"
	return msg, nil
}

// windowTail returns the last k messages of transcript.
func windowTail(transcript []llm.Message, k int) []llm.Message {
	if len(transcript) <= k {
		return transcript
	}
	return transcript[len(transcript)-k:]
}

// buildSystemPrompt appends the per-turn context block: known trip
// parameters, the traveler's durable preferences, and a behavioral
// nudge for strong standing preferences.
func (c *Controller) buildSystemPrompt(state *TurnState) string {
	var b strings.Builder
	b.WriteString(systemPrompt)

	if len(state.TripInfo) > 0 {
		b.WriteString("\n\nKnown trip parameters:\n")
		keys := make([]string, 0, len(state.TripInfo))
		for k := range state.TripInfo {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, state.TripInfo[k])
		}
	}

	facts := c.topFacts(state.UserID)
	if len(facts) > 0 {
		b.WriteString("\nTraveler preferences:\n")
		for _, f := range facts {
			fmt.Fprintf(&b, "- %s: %s (%s, confidence %.1f)\n", f.Key, f.Value, f.Source, f.Confidence)
		}
		if hint := behavioralHint(facts); hint != "" {
			b.WriteString("\n" + hint + "\n")
		}
	}

	return b.String()
}

func (c *Controller) topFacts(userID string) []prefs.Fact {
	if c.facts == nil || userID == "" {
		return nil
	}
	facts, err := c.facts.TopFacts(userID, TopFactCount)
	if err != nil {
		c.logger.Warn("loading preference facts failed", "user", userID, "error", err)
		return nil
	}
	return facts
}

// behavioralHint turns a strong global preference into an instruction
// that shapes tool-call arguments, not just the reply tone.
func behavioralHint(facts []prefs.Fact) string {
	for _, f := range facts {
		if f.Key == "price_priority" && f.Value == "lowest_price" && f.Confidence >= 0.8 {
			return "This traveler consistently wants the cheapest option. Sort and present flight results by total price, lowest first."
		}
	}
	return ""
}
