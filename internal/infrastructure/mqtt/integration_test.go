//go:build integration

package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-pubsub/internal/codec"
	"github.com/nerrad567/gray-logic-pubsub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-pubsub/internal/session"
)

// Integration tests against a real broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host: "127.0.0.1",
			Port: 1883,
		},
		Reconnect: config.MQTTReconnectConfig{
			Enabled:      true,
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func connectSession(t *testing.T, clientID string, opts *session.ConnectOptions) *session.Session {
	t.Helper()

	if opts == nil {
		opts = &session.ConnectOptions{}
	}
	opts.ClientID = clientID
	opts.CleanSession = true

	cfg := integrationConfig()
	s, err := session.Connect(context.Background(), New(cfg), cfg.BrokerURL(), opts)
	if err != nil {
		t.Fatalf("Connect(%s) error = %v", clientID, err)
	}
	t.Cleanup(func() { _ = s.End(context.Background(), false) })
	return s
}

// TestIntegration_MessageRoundtrip verifies pub/sub works end-to-end.
func TestIntegration_MessageRoundtrip(t *testing.T) {
	ctx := context.Background()
	pub := connectSession(t, "pubsub-int-pub", &session.ConnectOptions{Encoder: codec.JSON})
	sub := connectSession(t, "pubsub-int-sub", &session.ConnectOptions{Decoder: codec.JSON})

	received := make(chan any, 1)
	grant, err := sub.Subscribe(ctx, "pubsub/int/+/roundtrip", func(payload any, _ session.Metadata) error {
		received <- payload
		return nil
	}, &session.SubscribeOptions{QoS: 1})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if grant.QoS != 1 {
		t.Errorf("granted QoS = %d, want 1", grant.QoS)
	}

	if err := pub.Publish(ctx, "pubsub/int/a/roundtrip", map[string]any{"n": 1.0}, &session.PublishOptions{QoS: 1}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		m, ok := msg.(map[string]any)
		if !ok || m["n"] != 1.0 {
			t.Errorf("Received = %v, want map[n:1]", msg)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}
}

// TestIntegration_UnsubscribeStopsDelivery verifies the broker subscription
// is removed with the last listener.
func TestIntegration_UnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	s := connectSession(t, "pubsub-int-unsub", nil)

	received := make(chan string, 4)
	listener := func(payload any, _ session.Metadata) error {
		received <- payload.(string)
		return nil
	}

	subA, err := s.Subscribe(ctx, "pubsub/int/unsub", listener, nil)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	unsubscribed, err := s.Unsubscribe(ctx, "pubsub/int/unsub", &subA)
	if err != nil || !unsubscribed {
		t.Fatalf("Unsubscribe() = %v, %v, want true, nil", unsubscribed, err)
	}

	if err := s.Publish(ctx, "pubsub/int/unsub", "late", &session.PublishOptions{QoS: 1}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		t.Errorf("received %q after unsubscribe", msg)
	case <-time.After(500 * time.Millisecond):
	}
}

// TestIntegration_HealthCheck verifies the transport reports a live link.
func TestIntegration_HealthCheck(t *testing.T) {
	cfg := integrationConfig()
	tr := New(cfg)

	s, err := session.Connect(context.Background(), tr, "", &session.ConnectOptions{ClientID: "pubsub-int-health", CleanSession: true})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !tr.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := s.End(context.Background(), false); err != nil {
		t.Errorf("End() error = %v", err)
	}
	if tr.IsConnected() {
		t.Error("IsConnected() = true after End")
	}
}
