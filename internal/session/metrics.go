package session

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/nerrad567/gray-logic-pubsub/internal/session"

// metrics holds the session instruments. With no MeterProvider configured
// the instruments are no-ops.
type metrics struct {
	received       metric.Int64Counter
	invocations    metric.Int64Counter
	listenerErrors metric.Int64Counter
	published      metric.Int64Counter
	brokerOps      metric.Int64Counter
}

func newMetrics(provider metric.MeterProvider, logger Logger) *metrics {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(meterName)

	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Warn("metric instrument unavailable", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &metrics{
		received:       counter("pubsub.messages.received", "Inbound messages accepted for dispatch"),
		invocations:    counter("pubsub.listener.invocations", "Listener invocations"),
		listenerErrors: counter("pubsub.listener.errors", "Listener invocations that failed, panicked or timed out"),
		published:      counter("pubsub.messages.published", "Outbound messages confirmed by the transport"),
		brokerOps:      counter("pubsub.broker.operations", "Broker subscribe and unsubscribe requests"),
	}
}

func (m *metrics) brokerOp(ctx context.Context, op string, ok bool) {
	m.brokerOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("ok", ok),
	))
}
