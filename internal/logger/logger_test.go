package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, c := range cases {
		if got := ParseLevel(c.in); got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestTextLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := Text(&buf, slog.LevelWarn)

	log.Debug("dropped")
	log.Info("dropped too")
	log.Warn("kept", "key", "value")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("below-level messages logged: %q", out)
	}
	if !strings.Contains(out, "kept") || !strings.Contains(out, "key=value") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)

	log.Info("event", "count", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["msg"] != "event" {
		t.Errorf("msg = %v", rec["msg"])
	}
	if rec["count"] != float64(3) {
		t.Errorf("count = %v", rec["count"])
	}
}

func TestWithAttachesAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := Text(&buf, slog.LevelInfo).With("component", "batcher")

	log.Info("hello")

	if !strings.Contains(buf.String(), "component=batcher") {
		t.Errorf("bound attr missing: %q", buf.String())
	}
}
