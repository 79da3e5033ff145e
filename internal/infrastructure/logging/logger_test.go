package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-pubsub/internal/infrastructure/config"
)

func TestNew_JSONFormat(t *testing.T) {
	cfg := config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}

	logger := New(cfg, "1.0.0")

	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.LoggingConfig{
		Level:  "debug",
		Format: "text",
	}

	logger := NewWithWriter(cfg, "1.0.0", &buf)
	logger.Debug("subscribed", "filter", "a/#")

	output := buf.String()
	if !strings.Contains(output, "msg=subscribed") {
		t.Errorf("expected text output, got %q", output)
	}
	if !strings.Contains(output, "service=pubsub") {
		t.Errorf("expected service field, got %q", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"info level", "info", slog.LevelInfo},
		{"warn level", "warn", slog.LevelWarn},
		{"warning level", "warning", slog.LevelWarn},
		{"error level", "error", slog.LevelError},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
		{"case insensitive", "DEBUG", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestOutputFor(t *testing.T) {
	tests := []struct {
		output string
		want   io.Writer
	}{
		{"stdout", os.Stdout},
		{"STDERR", os.Stderr},
		{"", os.Stderr},
		{"discard", io.Discard},
	}

	for _, tt := range tests {
		if got := outputFor(tt.output); got != tt.want {
			t.Errorf("outputFor(%q) returned unexpected writer", tt.output)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "warn"}, "test", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Error("info entry written at warn level")
	}
	if !strings.Contains(output, "shown") {
		t.Error("warn entry missing at warn level")
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info"}, "1.0.0", &buf)

	child := logger.Component("session")
	if child == logger {
		t.Error("expected child logger to be different from parent")
	}

	child.Info("connected")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	if entry["component"] != "session" {
		t.Errorf("expected component='session', got %v", entry["component"])
	}
}

func TestDefault(t *testing.T) {
	logger := Default()

	if logger == nil {
		t.Fatal("expected non-nil default logger")
	}
}

func TestLogger_OutputContainsDefaultFields(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "test", &buf)
	logger.Info("test message", "key", "value")

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}

	if logEntry["service"] != "pubsub" {
		t.Errorf("expected service='pubsub', got %v", logEntry["service"])
	}
	if logEntry["version"] != "test" {
		t.Errorf("expected version='test', got %v", logEntry["version"])
	}
	if logEntry["msg"] != "test message" {
		t.Errorf("expected msg='test message', got %v", logEntry["msg"])
	}
	if logEntry["key"] != "value" {
		t.Errorf("expected key='value', got %v", logEntry["key"])
	}
}
