package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/nerrad567/gray-logic-pubsub/internal/codec"
	"github.com/nerrad567/gray-logic-pubsub/internal/transport"
)

// Default tunables.
const (
	// DefaultConnectTimeout bounds the wait for the connect ack.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultAckTimeout bounds the wait for subscribe, unsubscribe and publish acks.
	DefaultAckTimeout = 5 * time.Second

	// DefaultListenerTimeout bounds a single listener invocation.
	DefaultListenerTimeout = 5 * time.Second

	// DefaultDispatchBuffer is the inbound queue depth between transport and dispatcher.
	DefaultDispatchBuffer = 256

	// DefaultEventBuffer is the capacity of the Events channel.
	DefaultEventBuffer = 64

	// maxQoS is the highest QoS level.
	maxQoS = 2

	// maxPayloadSize caps encoded outbound payloads (1MB).
	maxPayloadSize = 1 << 20

	clientIDPrefix = "pubsub-"
)

// Logger is the logging interface used by a Session.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ConnectOptions configures a Session. The zero value is usable.
type ConnectOptions struct {
	// Broker CONNECT parameters. An empty ClientID is replaced with a
	// generated one.
	ClientID     string
	Username     string
	Password     string
	CleanSession bool
	KeepAlive    time.Duration

	// Connection-level codec defaults: a codec name or function.
	// Unset fields fall back to codec.Default.
	Encoder any
	Decoder any

	ConnectTimeout time.Duration
	AckTimeout     time.Duration

	// ListenerTimeout bounds each listener invocation; zero or negative
	// selects DefaultListenerTimeout. A listener that overruns keeps
	// running, and later messages for it wait within the same bound, so one
	// listener never runs twice at once and sees messages in arrival order.
	// A message that finds the listener still busy is skipped with
	// ErrListenerBusy.
	ListenerTimeout time.Duration

	DispatchBuffer int
	EventBuffer    int

	// PublishRate limits outbound publishes per second. Zero disables limiting.
	PublishRate  float64
	PublishBurst int

	Logger        Logger
	MeterProvider metric.MeterProvider
}

// SubscribeOptions are per-call subscribe options. A nil value uses defaults.
type SubscribeOptions struct {
	QoS     byte
	Decoder any
}

// PublishOptions are per-call publish options. A nil value uses defaults.
type PublishOptions struct {
	QoS     byte
	Retain  bool
	Encoder any
}

// withDefaults returns a copy of o with zero fields filled in.
func (o *ConnectOptions) withDefaults() ConnectOptions {
	var out ConnectOptions
	if o != nil {
		out = *o
	}
	if out.ClientID == "" {
		out.ClientID = GenerateClientID()
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = DefaultConnectTimeout
	}
	if out.AckTimeout <= 0 {
		out.AckTimeout = DefaultAckTimeout
	}
	if out.ListenerTimeout <= 0 {
		out.ListenerTimeout = DefaultListenerTimeout
	}
	if out.DispatchBuffer <= 0 {
		out.DispatchBuffer = DefaultDispatchBuffer
	}
	if out.EventBuffer <= 0 {
		out.EventBuffer = DefaultEventBuffer
	}
	if out.PublishRate > 0 && out.PublishBurst <= 0 {
		out.PublishBurst = 1
	}
	if out.Logger == nil {
		out.Logger = noopLogger{}
	}
	return out
}

func (o ConnectOptions) transportOptions() transport.Options {
	return transport.Options{
		ClientID:     o.ClientID,
		Username:     o.Username,
		Password:     o.Password,
		CleanSession: o.CleanSession,
		KeepAlive:    o.KeepAlive,
	}
}

func (o ConnectOptions) codecs() codec.Config {
	return codec.Config{Encoder: o.Encoder, Decoder: o.Decoder}
}

// GenerateClientID returns a random 23-character client identifier, the
// longest every MQTT 3.1.1 broker is required to accept.
func GenerateClientID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return clientIDPrefix + id[:23-len(clientIDPrefix)]
}
