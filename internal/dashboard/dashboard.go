// Package dashboard renders a live terminal view of a running benchmark.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/crankbench/internal/metrics"
)

// Source yields the current statistics of the tracked run.
type Source interface {
	Snapshot() metrics.Snapshot
}

// RunConfig holds run parameters for display.
type RunConfig struct {
	Name        string        // Workload label
	Target      string        // What the workload exercises
	Strategy    string        // Execution strategy name
	Workers     int           // Logical workers
	Concurrency int           // Max workers executing at once
	Warmups     int           // Unmeasured invocations
	Iterations  int           // Invocations per worker (0 = timed run)
	Duration    time.Duration // Run duration (0 = counted run)
	Rate        float64       // Invocations per second (0 = unlimited)
	Retries     int           // Retries per failed invocation
	ConfigFile  string        // Path to config file if used
}

// Dashboard renders a live terminal UI for benchmark statistics.
type Dashboard struct {
	src          Source
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid           *ui.Grid
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	rpsGauge       *widgets.Gauge
	progressGauge  *widgets.Gauge
	errorList      *widgets.List
	completedList  *widgets.List
	summaryPara    *widgets.Paragraph
	metricsPara    *widgets.Paragraph
	latencyHistory []float64
	peakRPS        float64
	runConfig      RunConfig
	completed      []metrics.Snapshot
}

// New initializes the terminal. shutdownFunc is called when the user
// presses q or Ctrl-C.
func New(shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "Avg (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Average Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = "Waiting for samples..."
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.rpsGauge = widgets.NewGauge()
	d.rpsGauge.Title = "Throughput"
	d.rpsGauge.BarColor = ui.ColorBlue
	d.rpsGauge.BorderStyle.Fg = ui.ColorCyan
	d.rpsGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.progressGauge = widgets.NewGauge()
	d.progressGauge.Title = "Progress"
	d.progressGauge.BarColor = ui.ColorGreen
	d.progressGauge.BorderStyle.Fg = ui.ColorCyan
	d.progressGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.errorList = widgets.NewList()
	d.errorList.Title = "Errors"
	d.errorList.Rows = []string{"No failures"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan

	d.completedList = widgets.NewList()
	d.completedList.Title = "Completed"
	d.completedList.Rows = []string{"None yet"}
	d.completedList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.completedList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Benchmark"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Invocations"
	d.metricsPara.Text = "Waiting for data..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.10,
			ui.NewCol(0.5, d.progressGauge),
			ui.NewCol(0.5, d.rpsGauge),
		),
		ui.NewRow(0.20,
			ui.NewCol(1.0, d.metricsPara),
		),
		ui.NewRow(0.28,
			ui.NewCol(0.6, d.latencySparkle),
			ui.NewCol(0.4, d.latencyPara),
		),
		ui.NewRow(0.28,
			ui.NewCol(0.5, d.completedList),
			ui.NewCol(0.5, d.errorList),
		),
	)
}

// Track switches the live view to src.
func (d *Dashboard) Track(src Source, cfg RunConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.src = src
	d.runConfig = cfg
	d.latencyHistory = d.latencyHistory[:0]
	d.peakRPS = 0
}

// Complete records the final result of a tracked run.
func (d *Dashboard) Complete(s metrics.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completed = append(d.completed, s)
	d.completedList.Rows = formatCompletedRows(d.completed)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and cleans up.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// run is the main dashboard update loop.
func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop() ends the loop once the run has wound down.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// update refreshes all widget data from the tracked source.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src == nil {
		return
	}
	d.apply(d.src.Snapshot())
}

// apply renders s into the widgets. Callers hold d.mu.
func (d *Dashboard) apply(s metrics.Snapshot) {
	if s.Samples > 0 {
		d.latencyHistory = append(d.latencyHistory, s.AvgMs)
		if len(d.latencyHistory) > 100 {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"Average Latency | Current: %s | Min: %s | Max: %s",
			metrics.FormatDuration(s.Avg),
			metrics.FormatDuration(s.Min),
			metrics.FormatDuration(s.Max),
		)
	}

	if s.Throughput > d.peakRPS {
		d.peakRPS = s.Throughput
	}
	d.rpsGauge.Percent = percentOf(s.Throughput, d.peakRPS)
	d.rpsGauge.Label = fmt.Sprintf("%s/s (peak %s/s)", metrics.FormatRate(s.Throughput), metrics.FormatRate(d.peakRPS))

	d.progressGauge.Percent = progressPercent(d.runConfig, s)
	d.progressGauge.Label = fmt.Sprintf("%d%%", d.progressGauge.Percent)

	successRate := 0.0
	if s.Total > 0 {
		successRate = float64(s.Success) / float64(s.Total) * 100
	}

	name := d.runConfig.Name
	if name == "" {
		name = d.runConfig.Target
	}
	d.summaryPara.Text = fmt.Sprintf(
		"Workload: %s\n%s\nElapsed: %s | Total: %d | Success Rate: %.1f%%",
		name,
		d.formatRunParams(),
		s.Costs.Round(time.Second),
		s.Total,
		successRate,
	)

	d.metricsPara.Text = fmt.Sprintf(
		"Total:       %d\nSuccessful:  %d\nFailed:      %d\nSamples:     %d\nThroughput:  %s/s",
		s.Total,
		s.Success,
		s.Failure,
		s.Samples,
		metrics.FormatRate(s.Throughput),
	)

	d.latencyPara.Text = joinLines([]string{
		"Avg:    " + metrics.FormatDuration(s.Avg),
		"StdDev: " + metrics.FormatNanos(s.StdDev),
		fmt.Sprintf("95%% CI: [%s, %s]", metrics.FormatNanos(s.LowerCI), metrics.FormatNanos(s.UpperCI)),
		"P50:    " + metrics.FormatDuration(s.P50),
		"P90:    " + metrics.FormatDuration(s.P90),
		"P99:    " + metrics.FormatDuration(s.P99),
	})

	d.errorList.Rows = formatErrorRows(s.Errors)
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func percentOf(v, ceiling float64) int {
	if ceiling <= 0 {
		return 0
	}
	p := int(v / ceiling * 100)
	if p > 100 {
		p = 100
	}
	return p
}

// progressPercent estimates completion from the run bound.
func progressPercent(cfg RunConfig, s metrics.Snapshot) int {
	switch {
	case cfg.Iterations > 0 && cfg.Workers > 0:
		return percentOf(float64(s.Total), float64(cfg.Iterations*cfg.Workers))
	case cfg.Duration > 0:
		return percentOf(float64(s.Costs), float64(cfg.Duration))
	default:
		return 0
	}
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	result := lines[0]
	for i := 1; i < len(lines); i++ {
		result += "\n" + lines[i]
	}
	return result
}

func formatErrorRows(errs map[string]int64) []string {
	rows := metrics.SortedErrors(errs)
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	maxRows := len(rows)
	if maxRows > 10 {
		maxRows = 10
	}
	formatted := make([]string, 0, maxRows)
	for i := 0; i < maxRows; i++ {
		formatted = append(formatted, fmt.Sprintf("[%s](fg:red) %d", rows[i].Label, rows[i].Count))
	}
	return formatted
}

func formatCompletedRows(results []metrics.Snapshot) []string {
	if len(results) == 0 {
		return []string{"None yet"}
	}
	rows := make([]string, 0, len(results))
	for _, s := range results {
		status := ""
		if s.Cancelled {
			status = " (cancelled)"
		}
		rows = append(rows, fmt.Sprintf("[%s](fg:cyan)%s | Avg %s | %s/s | Err %d",
			s.Name,
			status,
			metrics.FormatDuration(s.Avg),
			metrics.FormatRate(s.Throughput),
			s.Failure,
		))
	}
	return rows
}

// formatRunParams formats the run parameters for display.
func (d *Dashboard) formatRunParams() string {
	cfg := d.runConfig
	var parts []string

	if cfg.Strategy != "" {
		parts = append(parts, fmt.Sprintf("Strategy: %s", cfg.Strategy))
	}

	if cfg.Workers > 0 {
		parts = append(parts, fmt.Sprintf("Workers: %d", cfg.Workers))
	}

	// Concurrency (only show when limiting)
	if cfg.Concurrency > 1 {
		parts = append(parts, fmt.Sprintf("Concurrency: %d", cfg.Concurrency))
	}

	if cfg.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %s/s", metrics.FormatRate(cfg.Rate)))
	} else {
		parts = append(parts, "Rate: unlimited")
	}

	if cfg.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", cfg.Duration))
	}

	if cfg.Iterations > 0 {
		parts = append(parts, fmt.Sprintf("Iterations: %d", cfg.Iterations))
	}

	if cfg.Warmups > 0 {
		parts = append(parts, fmt.Sprintf("Warmups: %d", cfg.Warmups))
	}

	if cfg.Retries > 0 {
		parts = append(parts, fmt.Sprintf("Retries: %d", cfg.Retries))
	}

	if cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", cfg.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
