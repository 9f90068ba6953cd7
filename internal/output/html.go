package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"sync"
	"time"

	"github.com/torosent/crankbench/internal/metrics"
	"github.com/torosent/crankbench/internal/threshold"
)

// HistoryPoint is one sample of a run's live statistics, taken while it ran.
type HistoryPoint struct {
	ElapsedSec float64 `json:"elapsed_s"`
	Total      int64   `json:"total"`
	Throughput float64 `json:"throughput"`
	AvgMs      float64 `json:"avg_ms"`
	P50Ms      float64 `json:"p50_ms"`
	P95Ms      float64 `json:"p95_ms"`
	P99Ms      float64 `json:"p99_ms"`
}

// HistoryRecorder collects HistoryPoints; Record fits runner.Handle.Watch.
type HistoryRecorder struct {
	mu     sync.Mutex
	points []HistoryPoint
}

// Record appends a point built from s.
func (r *HistoryRecorder) Record(s metrics.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, HistoryPoint{
		ElapsedSec: s.Costs.Seconds(),
		Total:      s.Total,
		Throughput: s.Throughput,
		AvgMs:      s.AvgMs,
		P50Ms:      s.P50Ms,
		P95Ms:      s.P95Ms,
		P99Ms:      s.P99Ms,
	})
}

// Points returns a copy of the recorded history.
func (r *HistoryRecorder) Points() []HistoryPoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]HistoryPoint(nil), r.points...)
}

// ThresholdSummary aggregates threshold outcomes for reports.
type ThresholdSummary struct {
	Total   int                   `json:"total"`
	Passed  int                   `json:"passed"`
	Failed  int                   `json:"failed"`
	Results []ThresholdResultJSON `json:"results"`
}

// ThresholdResultJSON is a flattened threshold.Result.
type ThresholdResultJSON struct {
	Threshold string  `json:"threshold"`
	Metric    string  `json:"metric"`
	Aggregate string  `json:"aggregate"`
	Operator  string  `json:"operator"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Pass      bool    `json:"pass"`
}

// SummarizeThresholds flattens results, or returns nil when there are none.
func SummarizeThresholds(results []threshold.Result) *ThresholdSummary {
	if len(results) == 0 {
		return nil
	}
	summary := &ThresholdSummary{
		Total:   len(results),
		Results: make([]ThresholdResultJSON, len(results)),
	}
	for i, tr := range results {
		summary.Results[i] = ThresholdResultJSON{
			Threshold: tr.Threshold.Raw,
			Metric:    tr.Threshold.Metric,
			Aggregate: tr.Threshold.Aggregate,
			Operator:  tr.Threshold.Operator,
			Expected:  tr.Threshold.Value,
			Actual:    tr.Actual,
			Pass:      tr.Pass,
		}
		if tr.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	return summary
}

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt      string
	Results          []metrics.Snapshot
	History          []HistoryPoint
	ThresholdSummary *ThresholdSummary
	HistoryJSON      string
	Metadata         ReportMetadata
}

// ReportMetadata contains configuration information about the run.
type ReportMetadata struct {
	Strategy    string
	Workers     int
	Concurrency int
	Workloads   []WorkloadInfo
}

// WorkloadInfo describes one measured workload.
type WorkloadInfo struct {
	Name   string
	Kind   string
	Target string
}

// GenerateHTMLReport generates a standalone HTML report with embedded charts.
func GenerateHTMLReport(w io.Writer, results []metrics.Snapshot, history []HistoryPoint, thresholdResults []threshold.Result, metadata ReportMetadata) error {
	// Convert history to JSON for embedding in HTML
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Results:          results,
		History:          history,
		ThresholdSummary: SummarizeThresholds(thresholdResults),
		HistoryJSON:      string(historyJSON),
		Metadata:         metadata,
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": metrics.FormatDuration,
		"formatNanos":    metrics.FormatNanos,
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"formatPercent": func(part, total int64) string {
			if total == 0 {
				return "0.0"
			}
			return fmt.Sprintf("%.1f", (float64(part)/float64(total))*100)
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Crankbench Benchmark Report</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 {
            font-size: 2rem;
            margin-bottom: 10px;
        }
        header .meta {
            opacity: 0.9;
            font-size: 0.9rem;
        }
        .content {
            padding: 40px;
        }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #667eea;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value {
            font-size: 2rem;
            font-weight: bold;
            color: #2c3e50;
        }
        .card .subvalue {
            font-size: 0.85rem;
            color: #6c757d;
            margin-top: 5px;
        }
        .card.success {
            border-left-color: #10b981;
        }
        .card.error {
            border-left-color: #ef4444;
        }
        .card.warning {
            border-left-color: #f59e0b;
        }
        .section {
            margin-bottom: 40px;
        }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        .chart-container {
            background: white;
            border-radius: 8px;
            padding: 20px;
            margin-bottom: 30px;
            border: 1px solid #e5e7eb;
        }
        .chart-container h3 {
            font-size: 1.1rem;
            margin-bottom: 15px;
            color: #4b5563;
        }
        .chart {
            width: 100%;
            height: 300px;
        }
        table {
            width: 100%;
            border-collapse: collapse;
            background: white;
        }
        th, td {
            text-align: left;
            padding: 12px;
            border-bottom: 1px solid #e5e7eb;
        }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.9rem;
            text-transform: uppercase;
            letter-spacing: 0.5px;
        }
        tr:hover {
            background: #f8f9fa;
        }
        .badge {
            display: inline-block;
            padding: 4px 12px;
            border-radius: 12px;
            font-size: 0.85rem;
            font-weight: 600;
        }
        .badge-success {
            background: #d1fae5;
            color: #065f46;
        }
        .badge-error {
            background: #fee2e2;
            color: #991b1b;
        }
        .latency-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(150px, 1fr));
            gap: 15px;
            margin-top: 20px;
        }
        .latency-item {
            background: #f8f9fa;
            padding: 15px;
            border-radius: 6px;
            text-align: center;
        }
        .latency-item .label {
            font-size: 0.85rem;
            color: #6c757d;
            margin-bottom: 5px;
        }
        .latency-item .value {
            font-size: 1.3rem;
            font-weight: bold;
            color: #2c3e50;
        }
        .no-data {
            text-align: center;
            padding: 40px;
            color: #6c757d;
            font-style: italic;
        }
    </style>
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
</head>
<body>
    <div class="container">
        <header>
            <h1>Crankbench Benchmark Report</h1>
            {{if .Metadata.Strategy}}
            <div class="meta" style="margin-top: 5px;">Strategy: {{.Metadata.Strategy}} | Workers: {{.Metadata.Workers}} | Concurrency: {{.Metadata.Concurrency}}</div>
            {{end}}
            <div class="meta">Generated: {{.GeneratedAt}}</div>
        </header>
        
        <div class="content">
            {{range .Results}}
            <!-- Summary Cards -->
            <div class="section">
                <h2>{{if .Name}}{{.Name}}{{else}}Results{{end}}{{if .Cancelled}} <span class="badge badge-error">cancelled</span>{{end}}</h2>
                <div class="grid">
                    <div class="card">
                        <h3>Total Invocations</h3>
                        <div class="value">{{.Total}}</div>
                        <div class="subvalue">in {{formatDuration .Costs}}</div>
                    </div>
                    <div class="card success">
                        <h3>Successful</h3>
                        <div class="value">{{.Success}}</div>
                        <div class="subvalue">{{formatPercent .Success .Total}}%</div>
                    </div>
                    <div class="card error">
                        <h3>Failed</h3>
                        <div class="value">{{.Failure}}</div>
                        <div class="subvalue">{{formatPercent .Failure .Total}}%</div>
                    </div>
                    <div class="card">
                        <h3>Throughput</h3>
                        <div class="value">{{formatFloat .Throughput}}/s</div>
                    </div>
                </div>

                <!-- Latency Statistics -->
                <div class="latency-grid">
                    <div class="latency-item">
                        <div class="label">Avg</div>
                        <div class="value">{{formatDuration .Avg}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">Min</div>
                        <div class="value">{{formatDuration .Min}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">Max</div>
                        <div class="value">{{formatDuration .Max}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">StdDev</div>
                        <div class="value">{{formatNanos .StdDev}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">95% LC</div>
                        <div class="value">{{formatNanos .LowerCI}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">95% UC</div>
                        <div class="value">{{formatNanos .UpperCI}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">P50</div>
                        <div class="value">{{formatDuration .P50}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">P90</div>
                        <div class="value">{{formatDuration .P90}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">P95</div>
                        <div class="value">{{formatDuration .P95}}</div>
                    </div>
                    <div class="latency-item">
                        <div class="label">P99</div>
                        <div class="value">{{formatDuration .P99}}</div>
                    </div>
                </div>
                {{if .Errors}}
                <table>
                    <thead>
                        <tr>
                            <th>Error</th>
                            <th>Count</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range $label, $count := .Errors}}
                        <tr>
                            <td>{{$label}}</td>
                            <td>{{$count}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
                {{end}}
            </div>
            {{else}}
            <div class="no-data">No results recorded</div>
            {{end}}

            <!-- Charts Section -->
            {{if .History}}
            <div class="section">
                <h2>Performance Over Time</h2>
                
                <div class="chart-container">
                    <h3>Throughput</h3>
                    <div id="rps-chart" class="chart"></div>
                </div>
                
                <div class="chart-container">
                    <h3>Latency Percentiles (ms)</h3>
                    <div id="latency-chart" class="chart"></div>
                </div>
            </div>
            {{end}}

            <!-- Thresholds -->
            {{if .ThresholdSummary}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Threshold</th>
                            <th>Metric</th>
                            <th>Expected</th>
                            <th>Actual</th>
                            <th>Status</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .ThresholdSummary.Results}}
                        <tr>
                            <td>{{.Threshold}}</td>
                            <td>{{.Metric}} ({{.Aggregate}})</td>
                            <td>{{.Operator}} {{formatFloat .Expected}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>
                                {{if .Pass}}
                                <span class="badge badge-success">✓ PASS</span>
                                {{else}}
                                <span class="badge badge-error">✗ FAIL</span>
                                {{end}}
                            </td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            <!-- Configuration Details -->
            {{if .Metadata.Workloads}}
            <div class="section">
                <h2>Workloads</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Name</th>
                            <th>Kind</th>
                            <th>Target</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .Metadata.Workloads}}
                        <tr>
                            <td>{{if .Name}}<strong>{{.Name}}</strong>{{else}}<em>(default)</em>{{end}}</td>
                            <td><span class="badge">{{.Kind}}</span></td>
                            <td>{{.Target}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>

    {{if .History}}
    <script>
        // Prepare data for charts
        const historyJSON = {{.HistoryJSON}};
        const history = JSON.parse(historyJSON);
        
        if (history && history.length > 0) {
            const timestamps = history.map(d => d.elapsed_s);
            
            // Throughput Chart
            const rpsData = [
                timestamps,
                history.map(d => d.throughput)
            ];
            
            new uPlot({
                title: "Throughput",
                width: document.getElementById('rps-chart').offsetWidth,
                height: 300,
                scales: { x: { time: false } },
                series: [
                    { label: "Time (s)" },
                    { 
                        label: "Invocations/sec",
                        stroke: "#667eea",
                        fill: "rgba(102, 126, 234, 0.1)",
                        width: 2
                    }
                ],
                axes: [
                    { label: "Time (seconds)" },
                    { label: "Invocations/sec" }
                ]
            }, rpsData, document.getElementById('rps-chart'));
            
            // Latency Chart
            const latencyData = [
                timestamps,
                history.map(d => d.p50_ms),
                history.map(d => d.p95_ms),
                history.map(d => d.p99_ms)
            ];
            
            new uPlot({
                title: "Latency Percentiles",
                width: document.getElementById('latency-chart').offsetWidth,
                height: 300,
                scales: { x: { time: false } },
                series: [
                    { label: "Time (s)" },
                    { 
                        label: "P50",
                        stroke: "#10b981",
                        width: 2
                    },
                    { 
                        label: "P95",
                        stroke: "#f59e0b",
                        width: 2
                    },
                    { 
                        label: "P99",
                        stroke: "#ef4444",
                        width: 2
                    }
                ],
                axes: [
                    { label: "Time (seconds)" },
                    { label: "Latency (ms)" }
                ]
            }, latencyData, document.getElementById('latency-chart'));
        }
    </script>
    {{end}}
</body>
</html>
`
