package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/crankbench/internal/config"
	"github.com/torosent/crankbench/internal/runner"
	"github.com/torosent/crankbench/internal/workload"
)

func runArgs(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestRunHelp(t *testing.T) {
	if _, _, err := runArgs(t); err != nil {
		t.Fatalf("run() without args error = %v", err)
	}
}

func TestRunSleepJSON(t *testing.T) {
	stdout, _, err := runArgs(t, "--sleep", "1ms", "-n", "3", "--warmups", "0", "-o", "json", "--log-level", "error")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	var doc struct {
		Results []struct {
			Name    string `json:"name"`
			Total   int64  `json:"total"`
			Samples int64  `json:"samples"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout)
	}
	if len(doc.Results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(doc.Results))
	}
	if doc.Results[0].Total != 3 || doc.Results[0].Samples != 3 {
		t.Errorf("result = %+v, want 3 invocations sampled", doc.Results[0])
	}
	if doc.Results[0].Name != "sleep 1ms" {
		t.Errorf("name = %q, want default label", doc.Results[0].Name)
	}
}

func TestRunTextReportWithName(t *testing.T) {
	stdout, _, err := runArgs(t, "--name", "nap", "--sleep", "1ms", "-n", "2", "-w", "2", "-c", "2", "--warmups", "1")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	for _, want := range []string{"--- Benchmark Results: nap ---", "Total Invocations: 4", "95% CI:"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestRunHTTPFailuresExitNonZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	stdout, _, err := runArgs(t, "--target", server.URL, "-n", "2", "--warmups", "0", "-o", "table")
	if err == nil || !strings.Contains(err.Error(), "2 invocations failed") {
		t.Fatalf("run() error = %v, want failures reported", err)
	}
	if !strings.Contains(stdout, "Benchmark Results") || !strings.Contains(stdout, "Workload") {
		t.Errorf("table output missing:\n%s", stdout)
	}
}

func TestRunThresholdFailure(t *testing.T) {
	stdout, _, err := runArgs(t, "--sleep", "2ms", "-n", "2", "--warmups", "0",
		"--threshold", "duration:avg < 0.001", "--threshold", "failed:count < 1")
	if err == nil || !strings.Contains(err.Error(), "1 threshold(s) failed") {
		t.Fatalf("run() error = %v, want one failed threshold", err)
	}
	if !strings.Contains(stdout, "[FAIL]") || !strings.Contains(stdout, "[PASS]") {
		t.Errorf("threshold lines missing:\n%s", stdout)
	}
}

func TestRunInvalidThreshold(t *testing.T) {
	if _, _, err := runArgs(t, "--sleep", "1ms", "--threshold", "latency:p95 < 1"); err == nil {
		t.Fatal("run() accepted an invalid threshold")
	}
}

func TestRunValidationError(t *testing.T) {
	_, _, err := runArgs(t, "--sleep", "1ms", "--workers", "0")
	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("run() error = %v, want ValidationError", err)
	}
}

func TestRunInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var stdout, stderr bytes.Buffer
	err := run(ctx, []string{"--sleep", "1ms", "-n", "1"}, &stdout, &stderr)
	if !errors.Is(err, errInterrupted) {
		t.Fatalf("run() error = %v, want errInterrupted", err)
	}
}

func TestRunHistoryAndHTML(t *testing.T) {
	dir := t.TempDir()
	historyFile := filepath.Join(dir, "history.jsonl")
	htmlFile := filepath.Join(dir, "report.html")
	args := []string{"--sleep", "1ms", "-n", "2", "--warmups", "0", "--history-file", historyFile, "--html-output", htmlFile}

	if _, _, err := runArgs(t, args...); err != nil {
		t.Fatalf("first run() error = %v", err)
	}
	stdout, _, err := runArgs(t, args...)
	if err != nil {
		t.Fatalf("second run() error = %v", err)
	}
	if !strings.Contains(stdout, "vs previous sleep 1ms run: avg") {
		t.Errorf("stdout missing comparison:\n%s", stdout)
	}

	data, err := os.ReadFile(historyFile)
	if err != nil {
		t.Fatalf("ReadFile(history) error = %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 2 {
		t.Errorf("history has %d lines, want 2", lines)
	}

	html, err := os.ReadFile(htmlFile)
	if err != nil {
		t.Fatalf("ReadFile(html) error = %v", err)
	}
	for _, want := range []string{"Crankbench Benchmark Report", "sleep 1ms", "Strategy: fixed-count/single"} {
		if !strings.Contains(string(html), want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestRunMultipleWorkloadsFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	cfg := fmt.Sprintf(`
iterations: 2
warmups: 0
output: yaml
metrics_addr: %q
workloads:
  - name: short
    kind: sleep
    sleep: 1ms
  - name: long
    kind: sleep
    sleep: 2ms
`, "127.0.0.1:0")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	stdout, _, err := runArgs(t, "--config", path)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(stdout, "name: short") || !strings.Contains(stdout, "name: long") {
		t.Errorf("yaml output missing workloads:\n%s", stdout)
	}
}

func TestRunnerOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Workers = 4
	cfg.Concurrency = 2
	cfg.Duration = config.Seconds(3)
	cfg.Rate = 50
	cfg.Arrival = config.ArrivalModelPoisson
	cfg.Refresh = config.RefreshConfig{Enabled: true, InitialDelay: time.Second, Delay: 2 * time.Second}
	wc := config.WorkloadConfig{Name: "api", Kind: config.WorkloadSleep}

	opt := runnerOptions(&cfg, wc, nil)
	if opt.Name != "api" || opt.Workers != 4 || opt.Concurrency != 2 {
		t.Errorf("options = %+v", opt)
	}
	if opt.Duration != 3*time.Second || opt.Iterations != 0 {
		t.Errorf("bound = %v/%d, want 3s timed run", opt.Duration, opt.Iterations)
	}
	if opt.ArrivalModel != runner.ArrivalModelPoisson || opt.RatePerSecond != 50 {
		t.Errorf("pacing = %v at %v", opt.ArrivalModel, opt.RatePerSecond)
	}
	if !opt.Refresh.Enabled || opt.Refresh.Delay != 2*time.Second {
		t.Errorf("refresh = %+v", opt.Refresh)
	}
	if err := opt.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestNewRetryPolicy(t *testing.T) {
	policy := newRetryPolicy(3, 0)
	if policy.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want 4", policy.MaxAttempts)
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), false},
		{"server error", &workload.StatusError{StatusCode: 503}, true},
		{"too many requests", &workload.StatusError{StatusCode: 429}, true},
		{"client error", &workload.StatusError{StatusCode: 404}, false},
		{"expectation", &workload.ExpectationError{Path: "a"}, true},
		{"other", errors.New("boom"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.ShouldRetry(tt.err); got != tt.want {
				t.Errorf("ShouldRetry(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	for attempt := 1; attempt <= 10; attempt++ {
		d := policy.DelayFunc(attempt, nil)
		if d < baseRetryDelay || d > maxRetryDelay+maxRetryDelay/2 {
			t.Errorf("DelayFunc(%d) = %v out of bounds", attempt, d)
		}
	}
	if d := newRetryPolicy(1, time.Second).DelayFunc(1, nil); d < time.Second || d >= 1500*time.Millisecond {
		t.Errorf("custom base delay = %v, want [1s, 1.5s)", d)
	}
}
