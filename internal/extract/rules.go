package extract

import (
	"strings"

	"github.com/wayfarerlabs/wayfarer/internal/prefs"
)

// Confidence levels assigned by provenance. A fact matched directly in
// a user's own words outranks one inferred from summarized preferences.
const (
	ConfidenceExplicit = 0.9
	ConfidenceInferred = 0.6
)

// rule maps trigger phrases to a keyed preference fact.
type rule struct {
	key      string
	value    string
	patterns []string
}

var rules = []rule{
	{"price_priority", "lowest_price", []string{"cheapest", "lowest price", "lowest fare", "as cheap as possible"}},
	{"time_priority", "shortest_duration", []string{"shortest", "fastest", "quickest"}},
	{"stops_priority", "direct_only", []string{"nonstop", "non-stop", "direct flight", "no layover", "no stops"}},
	{"seat_preference", "aisle", []string{"aisle seat", "aisle"}},
	{"seat_preference", "window", []string{"window seat"}},
}

func matchRules(text string) []rule {
	lower := strings.ToLower(text)
	var matched []rule
	for _, r := range rules {
		for _, p := range r.patterns {
			if strings.Contains(lower, p) {
				matched = append(matched, r)
				break
			}
		}
	}
	return matched
}

// RuleFacts derives keyed preference facts from the user's own messages
// (explicit) and from LLM-extracted preference statements (inferred).
// When the same key matches more than once, the highest-confidence
// match wins; on equal confidence the earliest match is kept.
func RuleFacts(userID string, userMessages, inferred []string) []prefs.Fact {
	byKey := make(map[string]prefs.Fact)
	var order []string

	add := func(f prefs.Fact) {
		prev, seen := byKey[f.Key]
		if !seen {
			byKey[f.Key] = f
			order = append(order, f.Key)
			return
		}
		if f.Confidence > prev.Confidence {
			byKey[f.Key] = f
		}
	}

	for _, msg := range userMessages {
		for _, r := range matchRules(msg) {
			add(prefs.Fact{
				UserID:     userID,
				Key:        r.key,
				Value:      r.value,
				Source:     prefs.SourceExplicit,
				Confidence: ConfidenceExplicit,
				Evidence:   msg,
			})
		}
	}
	for _, stmt := range inferred {
		for _, r := range matchRules(stmt) {
			add(prefs.Fact{
				UserID:     userID,
				Key:        r.key,
				Value:      r.value,
				Source:     prefs.SourceInferred,
				Confidence: ConfidenceInferred,
				Evidence:   stmt,
			})
		}
	}

	facts := make([]prefs.Fact, 0, len(order))
	for _, k := range order {
		facts = append(facts, byKey[k])
	}
	return facts
}
