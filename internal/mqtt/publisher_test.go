package mqtt

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/wayfarerlabs/wayfarer/internal/agent"
	"github.com/wayfarerlabs/wayfarer/internal/config"
)

func newTestPublisher() *Publisher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(config.MQTTConfig{TopicPrefix: "wayfarer"}, "inst1", logger)
}

func TestTopicLayout(t *testing.T) {
	p := newTestPublisher()

	if got, want := p.availabilityTopic(), "wayfarer/inst1/availability"; got != want {
		t.Errorf("availability topic = %q, want %q", got, want)
	}
	if got, want := p.turnTopic("t1", "done"), "wayfarer/inst1/turns/t1/done"; got != want {
		t.Errorf("turn topic = %q, want %q", got, want)
	}
}

func TestPublishBeforeStartIsNoop(t *testing.T) {
	p := newTestPublisher()
	// Must not panic without a connection.
	p.PublishTurnEvent("t1", agent.Event{Kind: agent.EventDone, Text: "done"})
	p.PublishTurnEvent("t1", agent.Event{Kind: agent.EventText, Text: "tok"})
}

func TestPublishConcurrentWithStart(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(config.MQTTConfig{
		Broker:      "mqtt://127.0.0.1:1", // nothing listens here
		TopicPrefix: "wayfarer",
	}, "inst1", logger)
	p.publishTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		defer close(started)
		_ = p.Start(ctx)
	}()

	// Handler goroutines publish while Start is wiring the connection.
	// The broker is unreachable; publishes time out or no-op, but none
	// of this may race or panic.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.PublishTurnEvent("t1", agent.Event{Kind: agent.EventDone})
		}()
	}
	wg.Wait()

	cancel()
	<-started

	if err := p.Stop(context.Background()); err != nil {
		t.Logf("stop after cancel: %v", err)
	}
}
