// Package transport defines the contract between the session coordinator and
// the component that owns the broker link.
//
// A Transport performs socket I/O, packet framing and QoS handshakes. It
// reports link events and inbound messages to a Handler supplied at connect
// time. Implementations live in internal/infrastructure (paho-backed MQTT and
// an in-process broker).
package transport

import (
	"context"
	"errors"
	"time"
)

// SubackFailure is the granted-QoS value a broker returns for a rejected filter.
const SubackFailure byte = 0x80

// Transport errors.
var (
	// ErrNotConnected is returned by operations issued while the link is down.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrConnectRefused is returned when the broker refuses the connection.
	ErrConnectRefused = errors.New("transport: connection refused")
)

// Options carries per-connection parameters for the broker CONNECT.
type Options struct {
	ClientID     string
	Username     string
	Password     string
	CleanSession bool
	KeepAlive    time.Duration
}

// ConnAck describes an accepted connection.
type ConnAck struct {
	// SessionPresent is false when the broker started a clean session and
	// discarded prior subscription state.
	SessionPresent bool

	// Reconnect is true when the ack follows an automatic reconnect.
	Reconnect bool
}

// Message is an inbound application message.
type Message struct {
	Topic     string
	Payload   []byte
	QoS       byte
	Retain    bool
	Duplicate bool
	MessageID uint16
}

// Handler receives link events and inbound messages from a Transport.
//
// HandleMessage is called once per message in broker delivery order and
// must not block for long; implementations queue the message and return.
type Handler interface {
	HandleMessage(msg Message)
	HandleReconnect(ack ConnAck)
	HandleConnectionLost(err error)
}

// Transport is the broker link used by a session.
type Transport interface {
	// Connect opens the link and blocks until the broker acknowledges or the
	// attempt fails. Exactly one of a ConnAck or an error is returned.
	Connect(ctx context.Context, address string, opts Options, h Handler) (ConnAck, error)

	// Subscribe requests filter at qos and returns the broker-granted QoS,
	// which may be lower than requested or SubackFailure.
	Subscribe(ctx context.Context, filter string, qos byte) (byte, error)

	// Unsubscribe removes filter at the broker.
	Unsubscribe(ctx context.Context, filter string) error

	// Publish sends a message and returns once the QoS tier is satisfied.
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error

	// Disconnect closes the link. When force is true pending work is dropped.
	Disconnect(ctx context.Context, force bool) error
}
