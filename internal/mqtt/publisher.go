// Package mqtt is the optional turn-event bridge: turn lifecycle events
// are published to an MQTT broker so dashboards or automations can
// follow conversations without polling the API.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/wayfarerlabs/wayfarer/internal/agent"
	"github.com/wayfarerlabs/wayfarer/internal/config"
)

// Publisher manages the broker connection and publishes turn events. It
// is fire-and-forget: publish failures are logged, never surfaced to
// the turn.
type Publisher struct {
	cfg        config.MQTTConfig
	instanceID string
	logger     *slog.Logger

	// cm is stored by the Start goroutine and read from request
	// handlers, so access goes through the atomic pointer.
	cm atomic.Pointer[autopaho.ConnectionManager]

	publishTimeout time.Duration
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection.
func New(cfg config.MQTTConfig, instanceID string, logger *slog.Logger) *Publisher {
	return &Publisher{
		cfg:            cfg,
		instanceID:     instanceID,
		logger:         logger.With("component", "mqtt"),
		publishTimeout: 5 * time.Second,
	}
}

// Start connects to the MQTT broker and blocks until ctx is cancelled.
// On every (re-)connect it publishes a birth message; the broker sends
// the will message if we vanish.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := p.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "wayfarer-" + p.instanceID,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: p.cfg.TLSInsecure,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm.Store(cm)

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	<-ctx.Done()
	return nil
}

// Stop gracefully disconnects, publishing an "offline" availability
// message first.
func (p *Publisher) Stop(ctx context.Context) error {
	cm := p.cm.Load()
	if cm == nil {
		return nil
	}
	p.publishAvailability(ctx, cm, "offline")
	return cm.Disconnect(ctx)
}

// PublishTurnEvent pushes one turn event to the thread's topic. Token
// deltas are skipped; subscribers follow turn structure, not the text
// stream.
func (p *Publisher) PublishTurnEvent(threadID string, ev agent.Event) {
	cm := p.cm.Load()
	if cm == nil || ev.Kind == agent.EventText {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("mqtt marshal turn event", "kind", ev.Kind, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.publishTimeout)
	defer cancel()
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.turnTopic(threadID, string(ev.Kind)),
		Payload: payload,
		QoS:     0,
	}); err != nil {
		p.logger.Debug("mqtt turn event publish failed",
			"thread", threadID, "kind", ev.Kind, "error", err)
	}
}

func (p *Publisher) baseTopic() string {
	return p.cfg.TopicPrefix + "/" + p.instanceID
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) turnTopic(threadID, kind string) string {
	return p.baseTopic() + "/turns/" + threadID + "/" + kind
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	}
}
