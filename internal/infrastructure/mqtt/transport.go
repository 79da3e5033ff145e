package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/nerrad567/gray-logic-pubsub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-pubsub/internal/transport"
)

// Transport carries a session over paho.mqtt.golang.
//
// Every inbound PUBLISH is handed to the transport.Handler through paho's
// default publish handler; subscriptions are made without per-filter
// callbacks, so routing stays with the session registry.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Transport struct {
	cfg config.MQTTConfig

	client  pahomqtt.Client
	handler transport.Handler
	mu      sync.RWMutex

	// Link bookkeeping. paho reports connection loss and reconnection on
	// separate goroutines, so the two can arrive out of order.
	linkMu    sync.Mutex
	connects  int
	linkUp    bool
	lostSkips int

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

var _ transport.Transport = (*Transport)(nil)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// New creates a transport for the broker described by cfg.
// Connection parameters that vary per session come from Connect.
func New(cfg config.MQTTConfig) *Transport {
	return &Transport{cfg: cfg}
}

// Connect establishes a connection to the MQTT broker.
//
// It blocks until the broker's CONNACK arrives, the attempt fails or ctx is
// done. Auto-reconnect, if enabled, only applies after this first success.
//
// Parameters:
//   - ctx: Context bounding the connection attempt
//   - address: Broker URL; empty uses the configured broker
//   - opts: Session-level CONNECT parameters
//   - h: Receives inbound messages and link events
//
// Returns:
//   - transport.ConnAck: Carries the broker's session-present flag
//   - error: Wrapping ErrConnectionFailed (and transport.ErrConnectRefused
//     when the broker answered with a refusal)
func (t *Transport) Connect(ctx context.Context, address string, opts transport.Options, h transport.Handler) (transport.ConnAck, error) {
	t.mu.Lock()
	if t.client != nil && t.client.IsConnected() {
		t.mu.Unlock()
		return transport.ConnAck{}, ErrAlreadyConnected
	}

	po := buildClientOptions(t.cfg, address, opts, connectTimeout(ctx))
	po.SetDefaultPublishHandler(t.onMessage)
	po.SetOnConnectHandler(t.onConnect)
	po.SetConnectionLostHandler(t.onConnectionLost)
	po.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		if logger := t.getLogger(); logger != nil {
			logger.Info("MQTT reconnecting", "client_id", opts.ClientID)
		}
	})

	client := pahomqtt.NewClient(po)
	t.client = client
	t.handler = h
	t.mu.Unlock()

	t.linkMu.Lock()
	t.connects, t.linkUp, t.lostSkips = 0, false, 0
	t.linkMu.Unlock()

	token := client.Connect()
	if err := wait(ctx, token); err != nil {
		client.Disconnect(0)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return transport.ConnAck{}, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
		if ct, ok := token.(*pahomqtt.ConnectToken); ok && isRefusal(ct.ReturnCode()) {
			return transport.ConnAck{}, fmt.Errorf("%w: %w: %w", ErrConnectionFailed, transport.ErrConnectRefused, err)
		}
		return transport.ConnAck{}, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	t.linkMu.Lock()
	t.linkUp = true
	t.linkMu.Unlock()

	var ack transport.ConnAck
	if ct, ok := token.(*pahomqtt.ConnectToken); ok {
		ack.SessionPresent = ct.SessionPresent()
	}
	return ack, nil
}

// Disconnect closes the link. Disconnecting an unconnected transport is a
// no-op. Auto-reconnect stops.
func (t *Transport) Disconnect(ctx context.Context, force bool) error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()

	if client == nil {
		return nil
	}

	t.linkMu.Lock()
	t.linkUp = false
	t.linkMu.Unlock()

	// paho's Disconnect has no error result; it logs and returns when the
	// link is already down.
	client.Disconnect(disconnectQuiesce(ctx, force))
	return nil
}

// IsConnected returns the current connection state as paho sees it.
func (t *Transport) IsConnected() bool {
	client := t.getClient()
	return client != nil && client.IsConnected()
}

// SetLogger sets a logger for error and panic logging.
// If not set, handler panics are recovered silently.
func (t *Transport) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	t.logger = logger
	t.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (t *Transport) getLogger() Logger {
	t.loggerMu.RLock()
	defer t.loggerMu.RUnlock()
	return t.logger
}

func (t *Transport) getClient() pahomqtt.Client {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.client
}

func (t *Transport) getHandler() transport.Handler {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.handler
}

// liveClient returns the client or an error wrapping transport.ErrNotConnected.
func (t *Transport) liveClient() (pahomqtt.Client, error) {
	client := t.getClient()
	if client == nil || !client.IsConnectionOpen() {
		return nil, fmt.Errorf("mqtt: %w", transport.ErrNotConnected)
	}
	return client, nil
}

// onMessage converts a paho message and hands it to the handler, with
// panic recovery.
func (t *Transport) onMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	h := t.getHandler()
	if h == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			if logger := t.getLogger(); logger != nil {
				logger.Error("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}
	}()

	h.HandleMessage(convertMessage(msg))
}

// onConnect fires on the initial connect and on every automatic reconnect.
//
// paho does not expose the CONNACK of an automatic reconnect, so reconnects
// are reported with SessionPresent=false and the session restores its
// subscriptions.
func (t *Transport) onConnect(_ pahomqtt.Client) {
	h := t.getHandler()
	if h == nil {
		return
	}

	t.linkMu.Lock()
	defer t.linkMu.Unlock()

	t.connects++
	if t.connects == 1 {
		return
	}

	if t.linkUp {
		// The loss callback for this reconnect has not run yet.
		t.lostSkips++
		h.HandleConnectionLost(errLinkReplaced)
	}
	t.linkUp = true

	if logger := t.getLogger(); logger != nil {
		logger.Info("MQTT reconnected")
	}
	h.HandleReconnect(transport.ConnAck{SessionPresent: false, Reconnect: true})
}

func (t *Transport) onConnectionLost(_ pahomqtt.Client, err error) {
	h := t.getHandler()
	if h == nil {
		return
	}

	t.linkMu.Lock()
	defer t.linkMu.Unlock()

	if t.lostSkips > 0 {
		t.lostSkips--
		return
	}
	if !t.linkUp {
		return
	}
	t.linkUp = false

	if logger := t.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}
	h.HandleConnectionLost(err)
}

func convertMessage(msg pahomqtt.Message) transport.Message {
	return transport.Message{
		Topic:     msg.Topic(),
		Payload:   msg.Payload(),
		QoS:       msg.Qos(),
		Retain:    msg.Retained(),
		Duplicate: msg.Duplicate(),
		MessageID: msg.MessageID(),
	}
}

// isRefusal reports whether rc is a CONNACK refusal rather than a network
// or protocol failure.
func isRefusal(rc byte) bool {
	return rc >= packets.ErrRefusedBadProtocolVersion && rc <= packets.ErrRefusedNotAuthorised
}

// wait blocks until token completes or ctx is done.
func wait(ctx context.Context, token pahomqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classify wraps a paho token error, mapping paho's not-connected error
// onto transport.ErrNotConnected.
func classify(sentinel, err error) error {
	if errors.Is(err, pahomqtt.ErrNotConnected) {
		return fmt.Errorf("%w: %w: %w", sentinel, transport.ErrNotConnected, err)
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
