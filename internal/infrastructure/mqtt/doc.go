// Package mqtt provides a transport.Transport backed by paho.mqtt.golang.
//
// This package manages:
//   - Connection to an MQTT 3.1.1 broker, with optional auto-reconnect
//   - SUBSCRIBE / UNSUBSCRIBE / PUBLISH with acknowledgement waits bounded
//     by the caller's context
//   - Last Will and Testament (LWT) for offline detection
//   - Translation of paho callbacks into transport.Handler events
//
// # Architecture
//
// The transport owns the socket and packet encoding only. Topic routing,
// reference counting of subscriptions and payload codecs live in the
// session package:
//
//	session.Session ↔ mqtt.Transport ↔ MQTT Broker
//
// Subscriptions are made without per-filter paho callbacks. Every inbound
// PUBLISH reaches the handler through paho's default publish handler, in
// arrival order.
//
// # Reconnection
//
// Auto-reconnect is paho's. paho does not surface the CONNACK of an
// automatic reconnect, so reconnects are reported with SessionPresent=false
// and the session re-subscribes every registered filter.
//
// # Security Considerations
//
//   - Use ssl:// (or broker.tls: true) for anything beyond local development
//   - Credentials are validated against the broker ACL
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	t := mqtt.New(cfg.MQTT)
//	t.SetLogger(logger)
//
//	s, err := session.Connect(ctx, t, cfg.MQTT.BrokerURL(), &session.ConnectOptions{
//	    ClientID: cfg.MQTT.Broker.ClientID,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.End(context.Background(), false)
package mqtt
