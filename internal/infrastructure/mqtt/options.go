package mqtt

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-pubsub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-pubsub/internal/transport"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when Connect's context has no deadline.
	defaultConnectTimeout = 10 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho MQTT options for one connection.
//
// This configures:
//   - Broker URL (address, or the configured broker when empty)
//   - Client ID, credentials, clean session and keepalive from opts
//   - Auto-reconnect with exponential backoff (if enabled)
//   - Last Will and Testament (if a will topic is configured)
//   - TLS for ssl://, tls:// and mqtts:// brokers
//
// Initial connection retry is always off so a failed first connect is
// reported to the caller.
func buildClientOptions(cfg config.MQTTConfig, address string, opts transport.Options, connectTimeout time.Duration) *pahomqtt.ClientOptions {
	po := pahomqtt.NewClientOptions()

	if address == "" {
		address = cfg.BrokerURL()
	}
	po.AddBroker(address)

	po.SetClientID(opts.ClientID)

	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}

	po.SetCleanSession(opts.CleanSession)
	if opts.KeepAlive > 0 {
		po.SetKeepAlive(opts.KeepAlive)
	}

	po.SetAutoReconnect(cfg.Reconnect.Enabled)
	po.SetConnectRetry(false)
	if d := cfg.GetMaxReconnectDelay(); d > 0 {
		po.SetMaxReconnectInterval(d)
	}
	if d := cfg.GetInitialReconnectDelay(); d > 0 {
		po.SetConnectRetryInterval(d)
	}

	po.SetConnectTimeout(connectTimeout)

	// Deliver in arrival order; the session queues before dispatch.
	po.SetOrderMatters(true)

	if cfg.Will.Topic != "" {
		po.SetWill(cfg.Will.Topic, cfg.Will.Payload, byte(cfg.Will.QoS), cfg.Will.Retain)
	}

	if cfg.Broker.TLS || isTLSAddress(address) {
		po.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return po
}

func isTLSAddress(address string) bool {
	for _, scheme := range []string{"ssl://", "tls://", "mqtts://", "wss://"} {
		if strings.HasPrefix(address, scheme) {
			return true
		}
	}
	return false
}

// connectTimeout derives the paho connect timeout from ctx.
func connectTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			return d
		}
	}
	return defaultConnectTimeout
}

// disconnectQuiesce returns the paho quiesce period in milliseconds.
// A forced disconnect does not wait; otherwise the wait is capped by ctx.
func disconnectQuiesce(ctx context.Context, force bool) uint {
	if force {
		return 0
	}
	quiesce := uint(defaultDisconnectQuiesce)
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline).Milliseconds()
		if remaining <= 0 {
			return 0
		}
		if uint(remaining) < quiesce {
			quiesce = uint(remaining)
		}
	}
	return quiesce
}
