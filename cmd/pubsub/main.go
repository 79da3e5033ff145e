// Pub/Sub Client - topic-routed MQTT subscriber and publisher
//
// This is the main entry point for the pubsub command. It connects a
// session to an MQTT broker, subscribes to the filters listed in the
// configuration file and prints every message routed to them. With
// -publish it sends a single message first; with no configured
// subscriptions it exits once that message is acknowledged.
//
// The -mem flag swaps the broker link for an in-process broker, which is
// useful for trying out filters and codecs without a running broker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/nerrad567/gray-logic-pubsub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-pubsub/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-pubsub/internal/infrastructure/membroker"
	"github.com/nerrad567/gray-logic-pubsub/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-pubsub/internal/infrastructure/telemetry"
	"github.com/nerrad567/gray-logic-pubsub/internal/session"
	"github.com/nerrad567/gray-logic-pubsub/internal/transport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/pubsub.yaml"

	// configEnv overrides defaultConfigPath when -config is not given.
	configEnv = "PUBSUB_CONFIG"

	// memAddress is the address reported for the in-process broker.
	memAddress = "mem://local"

	// shutdownTimeout bounds End once the run context is cancelled.
	shutdownTimeout = 5 * time.Second
)

// flags holds the parsed command line.
type flags struct {
	configPath string
	mem        bool
	publish    string
	message    string
	qos        int
	retain     bool
}

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command line arguments without the program name
//   - out: Destination for printed messages
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, out io.Writer) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting pubsub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath(f.configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	meterProvider, shutdownMetrics, err := telemetry.InitMeterProvider(ctx, cfg.Metrics, version)
	if err != nil {
		return fmt.Errorf("initialising metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := shutdownMetrics(shutdownCtx); shutdownErr != nil {
			log.Error("error flushing metrics", "error", shutdownErr)
		}
	}()
	if cfg.Metrics.Enabled {
		log.Info("metrics export enabled", "endpoint", cfg.Metrics.Endpoint, "interval", cfg.Metrics.Interval)
	}

	t, address := newTransport(cfg, f.mem, log)

	s, err := session.Connect(ctx, t, address, connectOptions(cfg, log, meterProvider))
	if err != nil {
		return fmt.Errorf("connecting session: %w", err)
	}
	log.Info("session connected",
		"address", address,
		"client_id", s.ClientID(),
		"session_present", s.SessionPresent(),
	)

	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		watchEvents(s.Events(), log)
	}()

	defer func() {
		endCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info("ending session")
		if endErr := s.End(endCtx, false); endErr != nil {
			log.Error("error ending session", "error", endErr)
		}
		<-eventsDone
	}()

	if err := healthCheck(ctx, s); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	p := newPrinter(out)
	for _, sub := range cfg.Subscriptions {
		qos := byte(sub.QoS)
		granted, err := s.Subscribe(ctx, sub.Filter, p.listener, &session.SubscribeOptions{
			QoS:     qos,
			Decoder: codecOption(sub.Decoder),
		})
		if err != nil {
			return fmt.Errorf("subscribing to %q: %w", sub.Filter, err)
		}
		log.Info("subscribed", "filter", sub.Filter, "requested_qos", qos, "granted_qos", granted.QoS)
	}

	if f.publish != "" {
		qos := byte(cfg.Client.QoS)
		if f.qos >= 0 {
			qos = byte(f.qos)
		}
		if err := s.Publish(ctx, f.publish, f.message, &session.PublishOptions{
			QoS:    qos,
			Retain: f.retain,
		}); err != nil {
			return fmt.Errorf("publishing to %q: %w", f.publish, err)
		}
		log.Info("published", "topic", f.publish, "qos", qos, "retain", f.retain)

		if len(cfg.Subscriptions) == 0 {
			return nil
		}
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// parseFlags parses the command line into flags.
func parseFlags(args []string) (flags, error) {
	var f flags

	fs := flag.NewFlagSet("pubsub", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "configuration file (default $"+configEnv+" or "+defaultConfigPath+")")
	fs.BoolVar(&f.mem, "mem", false, "use an in-process broker instead of the configured MQTT broker")
	fs.StringVar(&f.publish, "publish", "", "topic to publish -message to after subscribing")
	fs.StringVar(&f.message, "message", "", "payload for -publish")
	fs.IntVar(&f.qos, "qos", -1, "QoS for -publish (default client.qos)")
	fs.BoolVar(&f.retain, "retain", false, "set the retain flag on -publish")

	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	if fs.NArg() > 0 {
		return flags{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if f.qos > 2 {
		return flags{}, errors.New("-qos must be 0, 1, or 2")
	}
	return f, nil
}

// getConfigPath returns the configuration file path.
// The -config flag wins, then the PUBSUB_CONFIG environment variable, then the default.
func getConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// newTransport returns the broker link and the address to connect it to.
func newTransport(cfg *config.Config, mem bool, log *logging.Logger) (transport.Transport, string) {
	if mem {
		broker := membroker.New()
		broker.SetLogger(log.Component("membroker"))
		return broker.NewTransport(), memAddress
	}

	t := mqtt.New(cfg.MQTT)
	t.SetLogger(log.Component("mqtt"))
	return t, cfg.MQTT.BrokerURL()
}

// connectOptions maps the configuration onto session options.
func connectOptions(cfg *config.Config, log *logging.Logger, mp metric.MeterProvider) *session.ConnectOptions {
	return &session.ConnectOptions{
		ClientID:        cfg.MQTT.Broker.ClientID,
		Username:        cfg.MQTT.Auth.Username,
		Password:        cfg.MQTT.Auth.Password,
		CleanSession:    cfg.Client.CleanSession,
		KeepAlive:       cfg.Client.KeepAlive,
		Encoder:         codecOption(cfg.Client.Encoder),
		Decoder:         codecOption(cfg.Client.Decoder),
		ConnectTimeout:  cfg.Client.ConnectTimeout,
		AckTimeout:      cfg.Client.AckTimeout,
		ListenerTimeout: cfg.Client.ListenerTimeout,
		DispatchBuffer:  cfg.Client.DispatchBuffer,
		PublishRate:     cfg.Client.PublishRate,
		PublishBurst:    cfg.Client.PublishBurst,
		Logger:          log.Component("session"),
		MeterProvider:   mp,
	}
}

// codecOption turns a configured codec name into a codec option.
// An empty name is unset so the next level of precedence applies.
func codecOption(name string) any {
	if name == "" {
		return nil
	}
	return name
}

// watchEvents logs session events until the channel is closed by End.
func watchEvents(events <-chan session.Event, log *logging.Logger) {
	for ev := range events {
		switch ev.Type {
		case session.EventLinkLost, session.EventRestoreFailed:
			log.Warn("session event", "event", ev.Type.String(), "filter", ev.Filter, "error", ev.Err)
		case session.EventListenerError:
			log.Warn("session event", "event", ev.Type.String(), "topic", ev.Topic, "filter", ev.Filter, "error", ev.Err)
		default:
			log.Info("session event", "event", ev.Type.String(), "session_present", ev.SessionPresent)
		}
	}
}

// healthCheck verifies the session is usable.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - s: Connected session to check
//
// Returns:
//   - error: Health check failure, or nil if healthy
func healthCheck(ctx context.Context, s *session.Session) error {
	if err := s.HealthCheck(ctx); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return nil
}
