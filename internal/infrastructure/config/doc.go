// Package config handles loading and validating pub/sub client configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (PUBSUB_ prefix)
//   - Validation of broker, client, subscription and logging settings
//   - Default value handling
//
// Security Considerations:
//   - Broker credentials should be set via PUBSUB_MQTT_USERNAME and
//     PUBSUB_MQTT_PASSWORD rather than written to the file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/pubsub.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.BrokerURL())
//
// A minimal file:
//
//	mqtt:
//	  broker:
//	    host: "localhost"
//	    port: 1883
//	client:
//	  qos: 1
//	  decoder: "json"
//	subscriptions:
//	  - filter: "sensors/+/temperature"
//	    qos: 1
package config
