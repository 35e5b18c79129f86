package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "api", "warn")

	logger.Info("hidden")
	logger.Warn("shown", "job_id", "job-1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "job_id=job-1") {
		t.Fatalf("expected warn line with key/value, got %q", out)
	}
	if !strings.Contains(out, "api") {
		t.Fatalf("expected prefix in output, got %q", out)
	}
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "worker", "chatty")

	logger.Debug("debug line")
	logger.Info("info line")

	out := buf.String()
	if strings.Contains(out, "debug line") {
		t.Fatalf("debug should be filtered, got %q", out)
	}
	if !strings.Contains(out, "info line") {
		t.Fatalf("expected info line, got %q", out)
	}
}
