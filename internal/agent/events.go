package agent

// EventKind labels a turn event.
type EventKind string

// Turn event kinds, emitted in the order the state machine produces
// them. EventDone always carries the full final text, even when it was
// already streamed piecemeal as EventText.
const (
	EventText         EventKind = "text"
	EventToolStarted  EventKind = "tool_started"
	EventToolFinished EventKind = "tool_finished"
	EventCorrection   EventKind = "correction"
	EventDone         EventKind = "done"
	EventError        EventKind = "error"
)

// Event is one entry in the ordered turn event stream.
type Event struct {
	Kind EventKind `json:"kind"`

	// Text is the incremental token for EventText, the accumulated
	// final reply for EventDone, and the user-facing description for
	// EventError.
	Text string `json:"text,omitempty"`

	// Tool and CallID are set for tool lifecycle events.
	Tool   string `json:"tool,omitempty"`
	CallID string `json:"call_id,omitempty"`

	// Success is meaningful for EventToolFinished.
	Success bool `json:"success,omitempty"`

	// Attempt is the correction cycle number for EventCorrection,
	// starting at 1.
	Attempt int `json:"attempt,omitempty"`
}

// EventSink receives turn events in order. A nil sink discards them.
type EventSink func(Event)

func (c *Controller) emit(sink EventSink, ev Event) {
	if sink != nil {
		sink(ev)
	}
}
