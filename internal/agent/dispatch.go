package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wayfarerlabs/wayfarer/internal/llm"
	"github.com/wayfarerlabs/wayfarer/internal/tools"
)

// ToolRunner executes tool calls. Implemented by tools.Registry.
type ToolRunner interface {
	Execute(ctx context.Context, call llm.ToolCall, accessToken string) (string, error)
	Definitions() []map[string]any
}

// dispatch executes every tool call in the batch sequentially, in issue
// order, and appends one ToolResult message per call to the transcript.
// Dispatch is all-complete: a failing call never aborts its siblings.
func (c *Controller) dispatch(ctx context.Context, state *TurnState, calls []llm.ToolCall, sink EventSink) []ToolOutcome {
	outcomes := make([]ToolOutcome, 0, len(calls))

	for _, call := range calls {
		if call.ID == "" {
			call.ID = uuid.NewString()
		}
		c.emit(sink, Event{Kind: EventToolStarted, Tool: call.Function.Name, CallID: call.ID})

		outcome := c.runOne(ctx, call, state.CapabilityToken)
		outcomes = append(outcomes, outcome)

		c.emit(sink, Event{
			Kind:    EventToolFinished,
			Tool:    outcome.Tool,
			CallID:  outcome.CallID,
			Success: outcome.Success,
		})

		state.Transcript = append(state.Transcript, llm.Message{
			Role:       "tool",
			Content:    outcome.resultContent(),
			ToolCallID: outcome.CallID,
			ToolName:   outcome.Tool,
		})
	}

	return outcomes
}

// runOne executes a single call. Panics from tool implementations are
// converted to failure outcomes; nothing crosses this boundary as an
// exception.
func (c *Controller) runOne(ctx context.Context, call llm.ToolCall, token string) (outcome ToolOutcome) {
	outcome = ToolOutcome{CallID: call.ID, Tool: call.Function.Name}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("tool panicked", "tool", call.Function.Name, "panic", r)
			outcome.Success = false
			outcome.Payload = ""
			outcome.Error = fmt.Sprintf("%s failed unexpectedly: %v", call.Function.Name, r)
		}
	}()

	payload, err := c.registry.Execute(ctx, call, token)
	if err != nil {
		outcome.Error, outcome.Hint = classifyToolError(call.Function.Name, err)
		c.logger.Debug("tool call failed", "tool", call.Function.Name, "error", err)
		return outcome
	}

	outcome.Success = true
	outcome.Payload = payload
	return outcome
}

func classifyToolError(name string, err error) (msg, hint string) {
	var unavailable *tools.ErrToolUnavailable
	if errors.As(err, &unavailable) {
		return fmt.Sprintf("unknown tool %q", name), "only use the tools listed in your tool catalog"
	}
	var auth *tools.ErrAuthRequired
	if errors.As(err, &auth) {
		return fmt.Sprintf("%s requires authorization: ask the user to connect their Google account", name), ""
	}
	// ToolError renders its message through Error(); the hint rides
	// alongside when one was attached.
	return err.Error(), tools.HintOf(err)
}

// resultContent is what the model sees as the ToolResult body.
func (o ToolOutcome) resultContent() string {
	if o.Success {
		return o.Payload
	}
	body := map[string]string{"error": o.Error}
	if o.Hint != "" {
		body["hint"] = o.Hint
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, o.Error)
	}
	return string(raw)
}

func anyFailed(outcomes []ToolOutcome) bool {
	for _, o := range outcomes {
		if !o.Success {
			return true
		}
	}
	return false
}
