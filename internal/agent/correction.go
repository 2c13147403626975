package agent

import (
	"fmt"
	"strings"

	"github.com/wayfarerlabs/wayfarer/internal/llm"
)

// correctionMessage summarizes the failed calls of the last dispatch
// batch as an instruction the model can act on. attempt starts at 1.
func correctionMessage(outcomes []ToolOutcome, attempt int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Some of your tool calls failed (retry attempt %d of %d). Fix the calls and try again:\n", attempt, MaxRetries)

	for _, o := range outcomes {
		if o.Success {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s", o.Tool, o.Error)
		if o.Hint != "" {
			fmt.Fprintf(&b, " (%s)", o.Hint)
		}
		b.WriteString("\n")
	}

	b.WriteString("Do not repeat the same arguments that just failed.")
	return b.String()
}

// applyCorrection appends the synthetic correction instruction to the
// transcript and spends one retry. It is the only place the retry
// counter moves.
func (c *Controller) applyCorrection(state *TurnState) int {
	state.Retries++
	state.Transcript = append(state.Transcript, llm.Message{
		Role:    "user",
		Content: correctionMessage(state.Outcomes, state.Retries),
	})
	return state.Retries
}
