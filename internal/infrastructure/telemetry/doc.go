// Package telemetry sets up OpenTelemetry metric export for the pub/sub client.
//
// When metrics are enabled, session counters (messages received and
// published, listener invocations and errors, broker operations) are
// exported over OTLP/gRPC on a fixed interval:
//
//	metrics:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  insecure: true
//	  interval: 10s
//
// When disabled, a no-op provider is returned and nothing is exported.
package telemetry
