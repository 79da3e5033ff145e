package membroker

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-pubsub/internal/topic"
	"github.com/nerrad567/gray-logic-pubsub/internal/transport"
)

// Transport is a client link to a Broker. It implements transport.Transport.
type Transport struct {
	broker *Broker

	// Guarded by broker.mu.
	clientID  string
	opts      transport.Options
	handler   transport.Handler
	connected bool
}

var _ transport.Transport = (*Transport)(nil)

// ClientID returns the client identifier of the last CONNECT.
func (t *Transport) ClientID() string {
	t.broker.mu.Lock()
	defer t.broker.mu.Unlock()
	return t.clientID
}

// Connect attaches the transport to the broker.
func (t *Transport) Connect(ctx context.Context, address string, opts transport.Options, h transport.Handler) (transport.ConnAck, error) {
	if err := ctx.Err(); err != nil {
		return transport.ConnAck{}, err
	}

	b := t.broker
	b.mu.Lock()
	b.record(Frame{ClientID: opts.ClientID, Kind: FrameConnect, Topic: address})

	if b.connectErr != nil {
		err := b.connectErr
		b.mu.Unlock()
		return transport.ConnAck{}, fmt.Errorf("%w: %w", transport.ErrConnectRefused, err)
	}

	t.clientID = opts.ClientID
	t.opts = opts
	t.handler = h
	present := b.attach(t)
	b.mu.Unlock()

	b.logger.Debug("client connected", "client_id", opts.ClientID, "session_present", present)
	return transport.ConnAck{SessionPresent: present}, nil
}

// Subscribe records a subscription and delivers matching retained messages
// after the grant.
func (t *Transport) Subscribe(ctx context.Context, filter string, qos byte) (byte, error) {
	b := t.broker
	if err := b.await(ctx); err != nil {
		return 0, err
	}

	b.mu.Lock()
	if !t.connected {
		b.mu.Unlock()
		return 0, b.connErr(t.clientID)
	}
	b.record(Frame{ClientID: t.clientID, Kind: FrameSubscribe, Topic: filter, QoS: qos})

	if b.rejected[filter] {
		b.mu.Unlock()
		b.logger.Warn("subscribe rejected", "client_id", t.clientID, "filter", filter)
		return transport.SubackFailure, nil
	}

	granted := min(qos, b.maxQoS)
	b.session(t.clientID).subs[filter] = granted

	var retained []transport.Message
	for name, msg := range b.retained {
		if topic.Match(filter, name) {
			retained = append(retained, b.message(name, msg.Payload, min(msg.QoS, granted), true))
		}
	}
	h := t.handler
	b.mu.Unlock()

	for _, msg := range retained {
		h.HandleMessage(msg)
	}
	return granted, nil
}

// Unsubscribe removes filter from the client's session.
func (t *Transport) Unsubscribe(ctx context.Context, filter string) error {
	b := t.broker
	if err := b.await(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !t.connected {
		return b.connErr(t.clientID)
	}
	b.record(Frame{ClientID: t.clientID, Kind: FrameUnsubscribe, Topic: filter})
	delete(b.session(t.clientID).subs, filter)
	return nil
}

// Publish routes payload to every connected client with a matching
// subscription. An empty retained payload clears the retained message.
func (t *Transport) Publish(ctx context.Context, topicName string, payload []byte, qos byte, retain bool) error {
	b := t.broker
	if qos > 0 {
		if err := b.await(ctx); err != nil {
			return err
		}
	}

	b.mu.Lock()
	if !t.connected {
		b.mu.Unlock()
		return b.connErr(t.clientID)
	}
	b.record(Frame{
		ClientID: t.clientID,
		Kind:     FramePublish,
		Topic:    topicName,
		QoS:      qos,
		Payload:  append([]byte(nil), payload...),
		Retain:   retain,
	})

	if retain {
		if len(payload) == 0 {
			delete(b.retained, topicName)
		} else {
			b.retained[topicName] = transport.Message{
				Topic:   topicName,
				Payload: append([]byte(nil), payload...),
				QoS:     qos,
			}
		}
	}

	deliveries := b.route(topicName, payload, qos)
	b.mu.Unlock()

	for _, d := range deliveries {
		d.handler.HandleMessage(d.msg)
	}
	return nil
}

// Disconnect detaches the transport. A clean session is discarded.
// Disconnecting an unconnected transport is a no-op.
func (t *Transport) Disconnect(_ context.Context, force bool) error {
	b := t.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if !t.connected {
		return nil
	}
	b.record(Frame{ClientID: t.clientID, Kind: FrameDisconnect})

	t.connected = false
	if b.clients[t.clientID] == t {
		delete(b.clients, t.clientID)
	}
	if t.opts.CleanSession {
		delete(b.sessions, t.clientID)
	}

	b.logger.Debug("client disconnected", "client_id", t.clientID, "force", force)
	return nil
}
