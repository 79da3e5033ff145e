// Package session coordinates a client's broker session.
//
// It ties the topic registry, the codec layer and a transport.Transport
// together behind an explicit Session type:
//   - Connect captures the session-present flag from the connect ack
//   - Subscribe registers a listener and performs the broker subscribe only
//     when the filter goes from zero to one listener
//   - Unsubscribe reference-counts listeners and performs the broker
//     unsubscribe only when the last one is removed
//   - Publish encodes and forwards to the transport
//   - End disconnects; it is idempotent
//
// # Error Taxonomy
//
// Every operation error is a *Error with a Kind:
//   - KindValidation: bad topic, listener, QoS or codec; returned before any I/O
//   - KindProtocol:   the broker rejected or failed to acknowledge an operation
//   - KindLink:       the link is down or the session has ended
//
// Use errors.Is with the sentinel errors, or IsValidation/IsProtocol/IsLink.
//
// # Dispatch
//
// Inbound messages are queued and dispatched by a single goroutine in
// arrival order. For each message, matched listeners run in specificity order
// (exact, +, #), then registration order. Each invocation is bounded by
// ListenerTimeout; a listener that panics, errors, or overruns is reported on
// the Events channel and does not stop delivery to the others.
//
// # Link Events
//
// Link state changes (lost, reconnected) and listener failures are reported
// on Events(), a channel separate from topic dispatch. When a reconnect ack
// reports no session present, every registered filter is subscribed again.
//
// # Usage
//
//	s, err := session.Connect(ctx, transport, "tcp://localhost:1883", &session.ConnectOptions{
//	    ClientID: "sensor-reader",
//	    Decoder:  codec.JSON,
//	})
//	if err != nil {
//	    return err
//	}
//	defer s.End(context.Background(), false)
//
//	sub, err := s.Subscribe(ctx, "sensors/+/temp", func(payload any, meta session.Metadata) error {
//	    log.Printf("%s = %v", meta.Topic, payload)
//	    return nil
//	}, &session.SubscribeOptions{QoS: 1})
//
// Callers must use sub.QoS, which is the QoS the broker granted.
package session
