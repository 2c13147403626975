// Package llm talks to OpenAI-compatible chat-completions backends and
// defines the provider-neutral message and tool-call types the rest of
// the codebase works with.
package llm

import "context"

// Client is implemented by every chat backend. Both calls block until
// the model finishes; ChatStream additionally forwards incremental
// events to the callback as they arrive on the wire.
type Client interface {
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// ChatStream behaves like Chat. A nil callback is allowed and
	// degrades to a plain buffered completion.
	ChatStream(ctx context.Context, model string, messages []Message, tools []map[string]any, callback StreamCallback) (*ChatResponse, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
