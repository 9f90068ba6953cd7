package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/torosent/crankbench/internal/logging"
)

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Config{Level: "warn", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown", zap.String("workload", "sleep"))
	_ = logger.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["msg"] != "shown" || entry["workload"] != "sleep" || entry["level"] != "warn" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Config{Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Debug("hidden")
	logger.Info("run started")
	_ = logger.Sync()

	out := buf.String()
	if !strings.Contains(out, "INFO") || !strings.Contains(out, "run started") {
		t.Errorf("console output = %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug entry leaked at info level: %q", out)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := logging.New(logging.Config{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := logging.New(logging.Config{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestNop(t *testing.T) {
	logging.Nop().Info("discarded")
}
