package output_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/torosent/crankbench/internal/metrics"
	"github.com/torosent/crankbench/internal/output"
	"github.com/torosent/crankbench/internal/threshold"
)

func htmlSnapshot() metrics.Snapshot {
	return metrics.Snapshot{
		Name:       "checkout",
		Total:      100,
		Success:    95,
		Failure:    5,
		Costs:      2 * time.Second,
		Throughput: 50,
		Avg:        50 * time.Millisecond,
		Min:        10 * time.Millisecond,
		Max:        100 * time.Millisecond,
		P50:        45 * time.Millisecond,
		P90:        80 * time.Millisecond,
		P95:        90 * time.Millisecond,
		P99:        95 * time.Millisecond,
		StdDev:     12e6,
		LowerCI:    47.6e6,
		UpperCI:    52.4e6,
		P95Ms:      90,
		Errors:     map[string]int64{"Workload panic": 5},
	}
}

func TestGenerateHTMLReport(t *testing.T) {
	var recorder output.HistoryRecorder
	recorder.Record(metrics.Snapshot{Costs: time.Second, Total: 50, Throughput: 50, P50Ms: 45, P95Ms: 85, P99Ms: 90})
	recorder.Record(metrics.Snapshot{Costs: 2 * time.Second, Total: 100, Throughput: 50, P50Ms: 45, P95Ms: 90, P99Ms: 95})

	thresholds, err := threshold.ParseMultiple([]string{"duration:p95 < 100", "failed:count < 1"})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}
	results := threshold.NewEvaluator(thresholds).Evaluate(htmlSnapshot())

	var buf bytes.Buffer
	err = output.GenerateHTMLReport(&buf, []metrics.Snapshot{htmlSnapshot()}, recorder.Points(), results, output.ReportMetadata{
		Strategy:    "fixed-count/single",
		Workers:     4,
		Concurrency: 1,
	})
	if err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}

	html := buf.String()
	for _, elem := range []string{
		"<!DOCTYPE html>",
		"Crankbench Benchmark Report",
		"checkout",
		"Total Invocations",
		"50.00/s",
		"StdDev",
		"12 ms",
		"95% LC",
		"Workload panic",
		"uPlot",
		"rps-chart",
		"latency-chart",
		"Performance Over Time",
		"Thresholds (1/2 Passed)",
		"duration:p95 &lt; 100",
		"Strategy: fixed-count/single",
	} {
		if !strings.Contains(html, elem) {
			t.Errorf("HTML report missing %q", elem)
		}
	}
}

func TestGenerateHTMLReport_NoHistory(t *testing.T) {
	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, []metrics.Snapshot{htmlSnapshot()}, nil, nil, output.ReportMetadata{}); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}

	html := buf.String()
	if strings.Contains(html, "Performance Over Time") {
		t.Error("charts rendered without history")
	}
	if strings.Contains(html, "Thresholds (") {
		t.Error("threshold section rendered without thresholds")
	}
}

func TestGenerateHTMLReport_NoResults(t *testing.T) {
	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, nil, nil, nil, output.ReportMetadata{}); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No results recorded") {
		t.Error("expected empty-state message")
	}
}

func TestGenerateHTMLReport_EscapesHTMLInData(t *testing.T) {
	s := htmlSnapshot()
	s.Name = "<script>alert('xss')</script>"

	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, []metrics.Snapshot{s}, nil, nil, output.ReportMetadata{}); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}

	html := buf.String()
	if strings.Contains(html, "<script>alert('xss')</script>") {
		t.Error("workload name was not escaped")
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Error("expected escaped script tag")
	}
}

func TestGenerateHTMLReport_WithMetadata(t *testing.T) {
	meta := output.ReportMetadata{
		Workloads: []output.WorkloadInfo{
			{Name: "login", Kind: "http", Target: "POST https://api.example.com/login"},
			{Kind: "exec", Target: "ls -la"},
		},
	}

	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, []metrics.Snapshot{htmlSnapshot()}, nil, nil, meta); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}

	html := buf.String()
	for _, elem := range []string{"Workloads", "login", "https://api.example.com/login", "ls -la", "(default)"} {
		if !strings.Contains(html, elem) {
			t.Errorf("HTML report missing %q", elem)
		}
	}
}

func TestSummarizeThresholds(t *testing.T) {
	if output.SummarizeThresholds(nil) != nil {
		t.Error("expected nil summary without results")
	}
	summary := output.SummarizeThresholds([]threshold.Result{
		{Threshold: threshold.Threshold{Raw: "a"}, Pass: true},
		{Threshold: threshold.Threshold{Raw: "b"}, Pass: false},
		{Threshold: threshold.Threshold{Raw: "c"}, Pass: true},
	})
	if summary.Total != 3 || summary.Passed != 2 || summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
}
