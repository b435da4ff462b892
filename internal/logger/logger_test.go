package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("warn", "text", &buf)

	Debug("debug message")
	Info("info message")
	Warn("warn %d", 1)
	Error("error %s", "two")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("Expected debug and info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] warn 1") {
		t.Errorf("Expected warn line, got %q", out)
	}
	if !strings.Contains(out, "[ERROR] error two") {
		t.Errorf("Expected error line, got %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("debug", "json", &buf)

	Info("cycle completed in %s", "1.2s")

	var entry map[string]string
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Expected one JSON object, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "info" {
		t.Errorf("Expected level info, got %s", entry["level"])
	}
	if entry["msg"] != "cycle completed in 1.2s" {
		t.Errorf("Unexpected msg: %s", entry["msg"])
	}
	if entry["time"] == "" {
		t.Error("Expected time to be set")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"bogus", InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}
