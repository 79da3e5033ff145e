package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-pubsub/internal/codec"
	"github.com/nerrad567/gray-logic-pubsub/internal/topic"
)

// envPrefix is prepended to every environment override.
const envPrefix = "PUBSUB_"

// Config is the root configuration structure for the pub/sub client.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT          MQTTConfig           `yaml:"mqtt"`
	Client        ClientConfig         `yaml:"client"`
	Logging       LoggingConfig        `yaml:"logging"`
	Metrics       MetricsConfig        `yaml:"metrics"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Will      MQTTWillConfig      `yaml:"will"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
// Delays are in seconds.
type MQTTReconnectConfig struct {
	Enabled      bool `yaml:"enabled"`
	InitialDelay int  `yaml:"initial_delay"`
	MaxDelay     int  `yaml:"max_delay"`
}

// MQTTWillConfig is the Last Will and Testament the broker publishes if the
// client drops without a DISCONNECT. An empty Topic disables it.
type MQTTWillConfig struct {
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	QoS     int    `yaml:"qos"`
	Retain  bool   `yaml:"retain"`
}

// ClientConfig contains session behaviour settings.
type ClientConfig struct {
	// QoS is the default level for subscriptions and publishes.
	QoS int `yaml:"qos"`

	// Encoder and Decoder name the connection-level codecs.
	Encoder string `yaml:"encoder"`
	Decoder string `yaml:"decoder"`

	CleanSession bool          `yaml:"clean_session"`
	KeepAlive    time.Duration `yaml:"keep_alive"`

	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	AckTimeout      time.Duration `yaml:"ack_timeout"`
	ListenerTimeout time.Duration `yaml:"listener_timeout"`

	DispatchBuffer int `yaml:"dispatch_buffer"`

	// PublishRate is messages per second; 0 disables limiting.
	PublishRate  float64 `yaml:"publish_rate"`
	PublishBurst int     `yaml:"publish_burst"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig controls OTLP metric export.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP/gRPC collector address (host:port).
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`

	// Interval is the export period.
	Interval time.Duration `yaml:"interval"`
}

// SubscriptionConfig is a filter subscribed at startup.
type SubscriptionConfig struct {
	Filter  string `yaml:"filter"`
	QoS     int    `yaml:"qos"`
	Decoder string `yaml:"decoder"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PUBSUB_SECTION_KEY
// For example: PUBSUB_MQTT_HOST, PUBSUB_LOG_LEVEL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
// Environment overrides are not applied.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			Reconnect: MQTTReconnectConfig{
				Enabled:      true,
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Client: ClientConfig{
			QoS:             0,
			Encoder:         codec.Default,
			Decoder:         codec.Default,
			KeepAlive:       60 * time.Second,
			ConnectTimeout:  10 * time.Second,
			AckTimeout:      5 * time.Second,
			ListenerTimeout: 5 * time.Second,
			DispatchBuffer:  256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Endpoint: "localhost:4317",
			Insecure: true,
			Interval: 10 * time.Second,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PUBSUB_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv(envPrefix + "MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv(envPrefix + "MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv(envPrefix + "MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv(envPrefix + "MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	// Credentials should come from the environment rather than the file.
	if v := os.Getenv(envPrefix + "MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Logging
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Metrics
	if v := os.Getenv(envPrefix + "METRICS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = enabled
		}
	}
	if v := os.Getenv(envPrefix + "METRICS_ENDPOINT"); v != "" {
		cfg.Metrics.Endpoint = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Reconnect.InitialDelay < 0 || c.MQTT.Reconnect.MaxDelay < 0 {
		errs = append(errs, "mqtt.reconnect delays cannot be negative")
	} else if c.MQTT.Reconnect.MaxDelay < c.MQTT.Reconnect.InitialDelay {
		errs = append(errs, "mqtt.reconnect.max_delay must not be less than initial_delay")
	}
	if c.MQTT.Will.Topic != "" {
		if err := topic.ValidateTopic(c.MQTT.Will.Topic); err != nil {
			errs = append(errs, fmt.Sprintf("mqtt.will.topic: %v", err))
		}
		if !validQoS(c.MQTT.Will.QoS) {
			errs = append(errs, "mqtt.will.qos must be 0, 1, or 2")
		}
	}

	// Client validation
	if !validQoS(c.Client.QoS) {
		errs = append(errs, "client.qos must be 0, 1, or 2")
	}
	if !validCodec(c.Client.Encoder) {
		errs = append(errs, fmt.Sprintf("client.encoder must be one of %s", strings.Join(codec.Names(), ", ")))
	}
	if !validCodec(c.Client.Decoder) {
		errs = append(errs, fmt.Sprintf("client.decoder must be one of %s", strings.Join(codec.Names(), ", ")))
	}
	if c.Client.PublishRate < 0 {
		errs = append(errs, "client.publish_rate cannot be negative")
	}
	if c.Client.DispatchBuffer < 0 {
		errs = append(errs, "client.dispatch_buffer cannot be negative")
	}

	// Subscription validation
	for i, sub := range c.Subscriptions {
		if err := topic.ValidateFilter(sub.Filter); err != nil {
			errs = append(errs, fmt.Sprintf("subscriptions[%d].filter: %v", i, err))
		}
		if !validQoS(sub.QoS) {
			errs = append(errs, fmt.Sprintf("subscriptions[%d].qos must be 0, 1, or 2", i))
		}
		if !validCodec(sub.Decoder) {
			errs = append(errs, fmt.Sprintf("subscriptions[%d].decoder is not a known codec", i))
		}
	}

	// Logging validation
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text", "console":
	default:
		errs = append(errs, "logging.format must be json, text or console")
	}

	// Metrics validation
	if c.Metrics.Enabled {
		if c.Metrics.Endpoint == "" {
			errs = append(errs, "metrics.endpoint is required when metrics are enabled")
		}
		if c.Metrics.Interval <= 0 {
			errs = append(errs, "metrics.interval must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BrokerURL returns the broker address in paho form (tcp:// or ssl://).
func (c MQTTConfig) BrokerURL() string {
	scheme := "tcp"
	if c.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Broker.Host, c.Broker.Port)
}

// GetInitialReconnectDelay returns the first reconnect delay as a Duration.
func (c MQTTConfig) GetInitialReconnectDelay() time.Duration {
	return time.Duration(c.Reconnect.InitialDelay) * time.Second
}

// GetMaxReconnectDelay returns the reconnect backoff ceiling as a Duration.
func (c MQTTConfig) GetMaxReconnectDelay() time.Duration {
	return time.Duration(c.Reconnect.MaxDelay) * time.Second
}

func validQoS(q int) bool {
	return q >= 0 && q <= 2
}

// validCodec accepts an empty name (inherit) or a built-in codec.
func validCodec(name string) bool {
	return name == "" || slices.Contains(codec.Names(), name)
}
