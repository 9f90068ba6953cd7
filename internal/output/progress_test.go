package output

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/crankbench/internal/metrics"
)

type countingSource struct {
	calls atomic.Int64
}

func (c *countingSource) Snapshot() metrics.Snapshot {
	n := c.calls.Add(1)
	return metrics.Snapshot{Name: "sleep", Total: n, Success: n, Throughput: 12.5, Avg: 2 * time.Millisecond}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestProgressReporterStopWithoutStart(t *testing.T) {
	src := &countingSource{}
	var buf bytes.Buffer
	reporter := NewProgressReporter(src, 100*time.Millisecond, &buf)
	reporter.Stop()
	if buf.Len() != 0 {
		t.Errorf("unexpected output %q", buf.String())
	}
	if src.calls.Load() != 0 {
		t.Errorf("source polled %d times without Start", src.calls.Load())
	}
}

func TestProgressReporterFormatting(t *testing.T) {
	src := &countingSource{}
	buf := &syncBuffer{}
	reporter := NewProgressReporter(src, 20*time.Millisecond, buf)
	reporter.Start()
	reporter.Start()

	time.Sleep(100 * time.Millisecond)
	reporter.Stop()
	reporter.Stop()

	output := buf.String()
	if !strings.Contains(output, "Invocations:") {
		t.Errorf("Expected 'Invocations:' in progress output, got %q", output)
	}
	if !strings.Contains(output, "[sleep]") {
		t.Errorf("Expected workload name in progress output, got %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Errorf("Expected final line to end with newline, got %q", output)
	}
}

func TestProgressLine(t *testing.T) {
	line := ProgressLine(metrics.Snapshot{Total: 3, Success: 2, Failure: 1, Throughput: 1.5, Avg: time.Second})
	want := "\rInvocations: 3 | Successes: 2 | Failures: 1 | Throughput: 1.50/s | Avg: 1 s"
	if line != want {
		t.Errorf("ProgressLine() = %q, want %q", line, want)
	}
}
