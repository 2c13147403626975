// Package extract distills durable traveler knowledge from finished
// conversation turns: free-text preference statements and a thread
// title from the LLM, plus keyed facts from phrase rules.
package extract

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/wayfarerlabs/wayfarer/internal/llm"
	"github.com/wayfarerlabs/wayfarer/internal/prefs"
)

// Extraction gates and limits.
const (
	// MinMessages is the transcript length below which extraction is
	// skipped. A single exchange has no context worth keeping.
	MinMessages = 2

	// WindowSize bounds how much recent transcript the LLM sees.
	WindowSize = 6
)

// Result is the structured output of the LLM extraction call.
type Result struct {
	Preferences []string `json:"preferences"`
	Title       string   `json:"title"`
}

// ExtractFunc performs the LLM call over a recent transcript window.
// Wired from main with the actual client.
type ExtractFunc func(ctx context.Context, window []llm.Message) (*Result, error)

// Applier persists an extraction atomically. Implemented by prefs.Store.
type Applier interface {
	ApplyExtraction(userID, threadID, title string, textPrefs []string, facts []prefs.Fact) error
}

// Extractor runs post-turn knowledge extraction. It is best-effort:
// failures are logged and never affect the user-facing reply.
type Extractor struct {
	apply   Applier
	extract ExtractFunc
	logger  *slog.Logger
	timeout time.Duration
}

// NewExtractor creates an extractor. extract may be nil, in which case
// only rule-derived facts are persisted.
func NewExtractor(apply Applier, extract ExtractFunc, logger *slog.Logger) *Extractor {
	return &Extractor{
		apply:   apply,
		extract: extract,
		logger:  logger.With("component", "extract"),
		timeout: 30 * time.Second,
	}
}

// SetTimeout configures the LLM call timeout for extraction.
func (e *Extractor) SetTimeout(d time.Duration) {
	e.timeout = d
}

// ShouldExtract reports whether the transcript is worth extracting
// from. Tool chatter doesn't count toward the gate.
func (e *Extractor) ShouldExtract(transcript []llm.Message) bool {
	n := 0
	for _, m := range transcript {
		if m.Role == "user" || (m.Role == "assistant" && len(m.ToolCalls) == 0) {
			n++
		}
	}
	return n >= MinMessages
}

// Run extracts knowledge from the transcript and persists it in one
// transaction. The returned error is informational; callers log it and
// move on.
func (e *Extractor) Run(ctx context.Context, userID, threadID string, transcript []llm.Message) error {
	if !e.ShouldExtract(transcript) {
		e.logger.Debug("transcript too short, skipping extraction", "thread", threadID)
		return nil
	}

	window := transcript
	if len(window) > WindowSize {
		window = window[len(window)-WindowSize:]
	}

	var result Result
	if e.extract != nil {
		cctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		r, err := e.extract(cctx, window)
		if err != nil {
			// Rule facts still apply. Keep going.
			e.logger.Warn("extraction LLM call failed", "thread", threadID, "error", err)
		} else if r != nil {
			result = *r
		}
	}

	if result.Title == "" {
		result.Title = fallbackTitle(transcript)
	}

	facts := RuleFacts(userID, userMessages(window), result.Preferences)
	if len(result.Preferences) == 0 && len(facts) == 0 && result.Title == "" {
		return nil
	}

	if err := e.apply.ApplyExtraction(userID, threadID, result.Title, result.Preferences, facts); err != nil {
		e.logger.Warn("failed to persist extraction", "thread", threadID, "error", err)
		return err
	}

	e.logger.Debug("extraction persisted",
		"thread", threadID, "preferences", len(result.Preferences), "facts", len(facts))
	return nil
}

func userMessages(window []llm.Message) []string {
	var out []string
	for _, m := range window {
		if m.Role == "user" {
			out = append(out, m.Content)
		}
	}
	return out
}

// fallbackTitle derives a thread title from the first user message when
// the LLM did not supply one.
func fallbackTitle(transcript []llm.Message) string {
	for _, m := range transcript {
		if m.Role != "user" {
			continue
		}
		title := strings.TrimSpace(m.Content)
		if len(title) > 60 {
			title = strings.TrimSpace(title[:60]) + "…"
		}
		return title
	}
	return ""
}
