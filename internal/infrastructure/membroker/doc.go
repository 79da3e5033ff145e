// Package membroker provides an in-process MQTT-style broker and a matching
// transport.Transport implementation.
//
// It routes publishes between transports attached to the same Broker using
// the topic package's matching rules, keeps per-client session state for
// clients that connect with CleanSession=false, and stores retained
// messages. Every frame a client sends is recorded so callers can assert
// exactly what reached the broker.
//
// The broker can be steered into failure modes:
//
//   - RejectFilter: SUBSCRIBE for a filter is refused with return code 0x80
//   - SetMaxQoS: grants are capped (QoS downgrade)
//   - FailConnect: CONNECT is refused
//   - SetAckDelay: acknowledgements are delayed, or withheld entirely
//   - DropLink / Restore: the link is severed and re-established
//
// Usage:
//
//	broker := membroker.New()
//	t := broker.NewTransport()
//	s, err := session.Connect(ctx, t, "mem://local", nil)
//	...
//	broker.SubscribeCount("sensors/#") // 1
//
// membroker backs the session tests and the CLI's -mem mode; it does not
// implement wire encoding or QoS retransmission.
package membroker
