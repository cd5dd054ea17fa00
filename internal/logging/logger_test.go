package logging

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"jauscore/component/internal/config"
)

func TestNewWritesStructuredJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "component.log")

	logger, err := New(config.LoggingConfig{
		Level:      "debug",
		Path:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
		Compress:   false,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("subscription created", String("event_id", "12"), Int("instance_id", 0))
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	var payload map[string]any
	lines := splitLines(data)
	if len(lines) == 0 {
		t.Fatalf("expected at least one log line")
	}
	if err := json.Unmarshal(lines[0], &payload); err != nil {
		t.Fatalf("unmarshaling log line: %v", err)
	}
	if payload["message"] != "subscription created" {
		t.Fatalf("unexpected message field: %#v", payload["message"])
	}
	if payload["event_id"] != "12" {
		t.Fatalf("unexpected event_id field: %#v", payload["event_id"])
	}
	if payload["level"] != "info" {
		t.Fatalf("unexpected level field: %#v", payload["level"])
	}
}

func TestNewRejectsEmptyPath(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "info"}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestWithAppendsFieldsWithoutMutatingParent(t *testing.T) {
	base := NewTestLogger()
	derived := base.With(String("component", "event-manager"))
	if len(base.fields) != 0 {
		t.Fatalf("expected base logger fields untouched, got %#v", base.fields)
	}
	if derived.fields["component"] != "event-manager" {
		t.Fatalf("expected derived logger to carry new field")
	}
}

func TestContextRoundTrip(t *testing.T) {
	logger := NewTestLogger()
	ctx := ContextWithLogger(context.Background(), logger)
	if LoggerFromContext(ctx) != logger {
		t.Fatalf("expected logger to round-trip through context")
	}

	ctx, derived, traceID := WithTrace(context.Background(), logger, "")
	if traceID == "" {
		t.Fatalf("expected generated trace id")
	}
	if TraceIDFromContext(ctx) != traceID {
		t.Fatalf("expected trace id to round-trip through context")
	}
	if derived == logger {
		t.Fatalf("expected WithTrace to derive a new logger instance")
	}
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	return lines
}
