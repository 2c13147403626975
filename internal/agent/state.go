// Package agent implements the turn state machine: model reasoning,
// sequential tool dispatch, bounded error-driven correction, and the
// ordered turn event stream.
package agent

import (
	"github.com/wayfarerlabs/wayfarer/internal/llm"
)

// Turn budget constants.
const (
	// MaxRetries bounds correction cycles per turn.
	MaxRetries = 2

	// MaxTransitions is the hard ceiling on state transitions per turn.
	// It catches a model that keeps requesting the same failing tool
	// after corrections are exhausted.
	MaxTransitions = 16

	// HistoryWindow is how many trailing transcript messages are sent
	// to the model. Older context is dropped, a known trade-off.
	HistoryWindow = 24

	// TopFactCount is how many preference facts go into the context block.
	TopFactCount = 8
)

// State is a node in the turn state machine.
type State int

const (
	StateReasoning State = iota
	StateDispatching
	StateCorrecting
	StateEnd
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateReasoning:
		return "reasoning"
	case StateDispatching:
		return "dispatching"
	case StateCorrecting:
		return "correcting"
	case StateEnd:
		return "end"
	}
	return "unknown"
}

// ToolOutcome is the structured result of exactly one tool call. It is
// produced once and never mutated.
type ToolOutcome struct {
	CallID  string `json:"call_id"`
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Payload string `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// TurnState carries everything owned by one in-flight turn. It is
// created at turn start and discarded at turn end; durable residue goes
// through the transcript checkpoint and the extractor.
type TurnState struct {
	SessionID string
	UserID    string

	// CapabilityToken is the user's Google access token, empty when no
	// account is connected. It is injected per turn and never persisted.
	CapabilityToken string

	Transcript []llm.Message
	TripInfo   map[string]string

	// Outcomes holds the results of the most recent dispatch batch.
	Outcomes []ToolOutcome

	// Retries counts correction cycles this turn. Reset at turn start.
	Retries int
}
