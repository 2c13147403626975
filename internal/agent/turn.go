package agent

import (
	"context"
	"log/slog"

	"github.com/wayfarerlabs/wayfarer/internal/llm"
)

const degradedReply = "I ran into repeated problems with my travel tools and couldn't finish this request. Please try again, or rephrase what you need."

const apologyReply = "I'm having trouble reaching my reasoning service right now. Please try again in a moment."

// Controller drives the turn state machine.
type Controller struct {
	client   llm.Client
	registry ToolRunner
	facts    FactProvider
	logger   *slog.Logger
	model    string
}

// NewController wires a turn controller. facts may be nil.
func NewController(client llm.Client, registry ToolRunner, facts FactProvider, model string, logger *slog.Logger) *Controller {
	return &Controller{
		client:   client,
		registry: registry,
		facts:    facts,
		model:    model,
		logger:   logger.With("component", "agent"),
	}
}

// TurnResult is what a finished turn leaves behind for the caller to
// checkpoint and extract from.
type TurnResult struct {
	// FinalText is the assistant's accumulated reply.
	FinalText string

	// Appended is the slice of transcript messages this turn added,
	// starting with the user message.
	Appended []llm.Message

	// Corrections is how many correction cycles ran.
	Corrections int
}

// RunTurn processes one user message to completion. It appends the user
// message to the transcript, walks the state machine until End, and
// emits ordered turn events to sink. A non-nil error means the turn
// failed at the reasoning boundary; tool failures never surface here.
func (c *Controller) RunTurn(ctx context.Context, state *TurnState, userMessage string, sink EventSink) (*TurnResult, error) {
	state.Retries = 0
	state.Outcomes = nil
	if state.TripInfo == nil {
		state.TripInfo = map[string]string{}
	}
	CaptureTripInfo(state.TripInfo, userMessage)

	base := len(state.Transcript)
	state.Transcript = append(state.Transcript, llm.Message{Role: "user", Content: userMessage})

	var (
		st          = StateReasoning
		lastMsg     llm.Message
		finalText   string
		transitions int
	)

	for st != StateEnd {
		transitions++
		if transitions > MaxTransitions {
			c.logger.Warn("transition ceiling reached, ending turn degraded",
				"session", state.SessionID, "transitions", transitions)
			finalText = degradedReply
			state.Transcript = append(state.Transcript, llm.Message{Role: "assistant", Content: finalText})
			break
		}

		c.logger.Debug("turn transition", "session", state.SessionID, "state", st.String(), "n", transitions)

		switch st {
		case StateReasoning:
			msg, err := c.reason(ctx, state, sink)
			if err != nil {
				c.logger.Error("reasoning failed", "session", state.SessionID, "error", err)
				c.emit(sink, Event{Kind: EventError, Text: apologyReply})
				return nil, err
			}
			state.Transcript = append(state.Transcript, msg)
			lastMsg = msg

			if len(msg.ToolCalls) == 0 {
				finalText = msg.Content
				st = StateEnd
				continue
			}
			st = StateDispatching

		case StateDispatching:
			state.Outcomes = c.dispatch(ctx, state, lastMsg.ToolCalls, sink)
			if anyFailed(state.Outcomes) && state.Retries < MaxRetries {
				st = StateCorrecting
			} else {
				st = StateReasoning
			}

		case StateCorrecting:
			attempt := c.applyCorrection(state)
			c.emit(sink, Event{Kind: EventCorrection, Attempt: attempt})

			msg, err := c.reason(ctx, state, sink)
			if err != nil {
				c.logger.Error("correction reasoning failed", "session", state.SessionID, "error", err)
				c.emit(sink, Event{Kind: EventError, Text: apologyReply})
				return nil, err
			}
			state.Transcript = append(state.Transcript, msg)
			lastMsg = msg

			// The corrected message routes like any other assistant
			// message: a plain reply ends the turn instead of running
			// an empty dispatch batch.
			if len(msg.ToolCalls) == 0 {
				finalText = msg.Content
				st = StateEnd
				continue
			}
			st = StateDispatching
		}
	}

	c.emit(sink, Event{Kind: EventDone, Text: finalText})

	return &TurnResult{
		FinalText:   finalText,
		Appended:    state.Transcript[base:],
		Corrections: state.Retries,
	}, nil
}
