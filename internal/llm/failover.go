package llm

import (
	"context"
	"log/slog"
)

// FailoverClient wraps a primary client and an alternate holding an
// equivalent credential for the same provider. A request that fails with a
// rate-limit error is retried exactly once against the alternate; every
// other error propagates unchanged. When no alternate is configured the
// wrapper is transparent.
type FailoverClient struct {
	primary   Client
	alternate Client
	logger    *slog.Logger
}

// NewFailoverClient creates a failover wrapper. alternate may be nil.
func NewFailoverClient(primary, alternate Client, logger *slog.Logger) *FailoverClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailoverClient{
		primary:   primary,
		alternate: alternate,
		logger:    logger.With("component", "llm-failover"),
	}
}

// Chat sends a request, failing over once on rate limit.
func (f *FailoverClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	resp, err := f.primary.Chat(ctx, model, messages, tools)
	if err == nil || f.alternate == nil || !IsRateLimit(err) {
		return resp, err
	}
	f.logger.Warn("primary credential rate limited, retrying on alternate", "model", model, "error", err)
	return f.alternate.Chat(ctx, model, messages, tools)
}

// ChatStream sends a streaming request, failing over once on rate limit.
// Failover only happens when the primary was rejected before any token was
// delivered; a stream that dies mid-response is not replayable.
func (f *FailoverClient) ChatStream(ctx context.Context, model string, messages []Message, tools []map[string]any, callback StreamCallback) (*ChatResponse, error) {
	if callback == nil {
		return f.Chat(ctx, model, messages, tools)
	}

	delivered := false
	wrapped := func(ev StreamEvent) {
		delivered = true
		callback(ev)
	}

	resp, err := f.primary.ChatStream(ctx, model, messages, tools, wrapped)
	if err == nil || f.alternate == nil || delivered || !IsRateLimit(err) {
		return resp, err
	}
	f.logger.Warn("primary credential rate limited, retrying on alternate", "model", model, "error", err)
	return f.alternate.ChatStream(ctx, model, messages, tools, callback)
}

// Ping checks the primary provider.
func (f *FailoverClient) Ping(ctx context.Context) error {
	return f.primary.Ping(ctx)
}
