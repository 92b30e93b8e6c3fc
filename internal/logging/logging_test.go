package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "WARN", Output: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Info().Msg("hidden")
	log.Warn().Str("k", "v").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["message"] != "shown" || entry["service"] != "trustgate" || entry["k"] != "v" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Fatal("expected timestamp")
	}
}

func TestNewConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Info().Msg("hello")
	if strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected console output, got %q", buf.String())
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("expected level error")
	}
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Fatal("expected format error")
	}
}
