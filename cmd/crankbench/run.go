package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/crankbench/internal/config"
	"github.com/torosent/crankbench/internal/dashboard"
	"github.com/torosent/crankbench/internal/logging"
	"github.com/torosent/crankbench/internal/metrics"
	"github.com/torosent/crankbench/internal/output"
	"github.com/torosent/crankbench/internal/promstats"
	"github.com/torosent/crankbench/internal/runner"
	"github.com/torosent/crankbench/internal/session"
	"github.com/torosent/crankbench/internal/threshold"
	"github.com/torosent/crankbench/internal/tracing"
	"github.com/torosent/crankbench/internal/workload"
)

const (
	progressInterval = time.Second
	historyInterval  = time.Second
	shutdownTimeout  = 5 * time.Second
)

var errInterrupted = errors.New("benchmark interrupted")

// preparedWorkload is a configured workload ready to be measured.
type preparedWorkload struct {
	cfg   config.WorkloadConfig
	work  runner.Workload
	opt   runner.Options
	close func() error
}

// outcome is what a finished run hands to the reporters.
type outcome struct {
	results  []metrics.Snapshot
	strategy string
	history  []output.HistoryPoint
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: stderr})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	prepared, err := prepareWorkloads(cfg, provider, logger)
	if err != nil {
		return err
	}
	defer closeWorkloads(prepared, logger)

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	var collector *promstats.Collector
	if cfg.MetricsAddr != "" {
		collector = promstats.NewCollector("crankbench")
		srv, err := promstats.Listen(cfg.MetricsAddr, promstats.NewRegistry(collector), logger)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		metricsCtx, stopMetrics := context.WithCancel(context.Background())
		served := make(chan struct{})
		go func() {
			defer close(served)
			if err := srv.Serve(metricsCtx); err != nil {
				logger.Warn("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			stopMetrics()
			<-served
		}()
	}

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(stopRun)
		if err != nil {
			return err
		}
		dash.Start()
	}

	out, runErr := measure(runCtx, cfg, prepared, collector, dash, stderr, logger)
	if dash != nil {
		dash.Stop()
	}
	if runErr != nil {
		return runErr
	}

	if err := report(cfg, out, stdout); err != nil {
		return err
	}

	failedThresholds := printThresholds(cfg, out.results, thresholds, stdout, stderr)

	if cfg.HistoryFile != "" {
		if err := recordHistory(cfg, out, stdout, stderr); err != nil {
			logger.Warn("history not recorded", zap.String("path", cfg.HistoryFile), zap.Error(err))
		}
	}

	if cfg.HTMLOutput != "" {
		if err := writeHTMLReport(cfg, out, thresholds); err != nil {
			return err
		}
		logger.Info("html report written", zap.String("path", cfg.HTMLOutput))
	}

	if ctx.Err() != nil {
		return errInterrupted
	}
	if failedThresholds > 0 {
		return fmt.Errorf("%d threshold(s) failed", failedThresholds)
	}
	var failures int64
	for _, s := range out.results {
		failures += s.Failure
	}
	if failures > 0 {
		return fmt.Errorf("%d invocations failed", failures)
	}
	return nil
}

func prepareWorkloads(cfg *config.Config, provider *tracing.Provider, logger *zap.Logger) ([]preparedWorkload, error) {
	prepared := make([]preparedWorkload, 0, len(cfg.Workloads))
	for _, wc := range cfg.Workloads {
		w, err := workload.New(wc, workload.WithTracing(provider))
		if err != nil {
			closeWorkloads(prepared, logger)
			return nil, err
		}
		closeFn := func() error { return nil }
		if c, ok := w.(io.Closer); ok {
			closeFn = c.Close
		}
		if cfg.Retries > 0 {
			w = runner.WithRetry(w, newRetryPolicy(cfg.Retries, cfg.RetryDelay))
		}
		prepared = append(prepared, preparedWorkload{
			cfg:   wc,
			work:  w,
			opt:   runnerOptions(cfg, wc, logger),
			close: closeFn,
		})
	}
	return prepared, nil
}

// closeWorkloads releases connections held by gRPC workloads.
func closeWorkloads(prepared []preparedWorkload, logger *zap.Logger) {
	for _, p := range prepared {
		if err := p.close(); err != nil {
			logger.Warn("workload close failed", zap.String("workload", p.opt.Name), zap.Error(err))
		}
	}
}

func runnerOptions(cfg *config.Config, wc config.WorkloadConfig, logger *zap.Logger) runner.Options {
	return runner.Options{
		Name:          wc.Label(),
		Workers:       cfg.Workers,
		Concurrency:   cfg.Concurrency,
		Warmups:       cfg.Warmups,
		Iterations:    cfg.Iterations,
		Duration:      cfg.Duration.Duration(),
		PrintErrorLog: cfg.PrintErrorLog,
		RatePerSecond: cfg.Rate,
		ArrivalModel:  runner.ArrivalModel(cfg.Arrival),
		Refresh: runner.RefreshPolicy{
			Enabled:      cfg.Refresh.Enabled,
			InitialDelay: cfg.Refresh.InitialDelay,
			Delay:        cfg.Refresh.Delay,
		},
		Logger: logger,
	}
}

// measure runs the workloads one after another. Once ctx is cancelled the
// current run ends cancelled and the remaining workloads are skipped.
func measure(ctx context.Context, cfg *config.Config, prepared []preparedWorkload, collector *promstats.Collector, dash *dashboard.Dashboard, stderr io.Writer, logger *zap.Logger) (outcome, error) {
	registry := session.NewRegistry(session.DefaultRetention, logger)
	defer registry.Clear()

	var out outcome
	for _, p := range prepared {
		if ctx.Err() != nil {
			logger.Warn("workload skipped", zap.String("workload", p.opt.Name))
			continue
		}

		id, h, err := registry.Submit(ctx, p.opt, p.work)
		if err != nil {
			return out, err
		}
		if out.strategy == "" {
			out.strategy = h.Plan().String()
		}
		logger.Info("workload started",
			zap.String("workload", p.opt.Name),
			zap.String("session", id),
			zap.Stringer("strategy", h.Plan()),
		)

		if collector != nil {
			collector.Add(p.opt.Name, h)
		}
		if dash != nil {
			dash.Track(h, dashboardConfig(cfg, p, h.Plan()))
		}

		var progress *output.ProgressReporter
		if cfg.Progress {
			progress = output.NewProgressReporter(h, progressInterval, stderr)
			progress.Start()
		}

		// Watch returns after recording the final snapshot.
		var recorder output.HistoryRecorder
		_ = h.Watch(context.Background(), historyInterval, recorder.Record)
		if progress != nil {
			progress.Stop()
		}

		snap := h.Refresh()
		if len(prepared) == 1 {
			out.history = recorder.Points()
		}
		if dash != nil {
			dash.Complete(snap)
		}
		out.results = append(out.results, snap)
		logger.Info("workload finished",
			zap.String("workload", p.opt.Name),
			zap.Stringer("status", h.Status()),
			zap.Int64("total", snap.Total),
			zap.Int64("failures", snap.Failure),
			zap.Duration("avg", snap.Avg),
		)
	}
	return out, nil
}

func dashboardConfig(cfg *config.Config, p preparedWorkload, plan runner.Plan) dashboard.RunConfig {
	return dashboard.RunConfig{
		Name:        p.opt.Name,
		Target:      workload.Target(p.cfg),
		Strategy:    plan.String(),
		Workers:     p.opt.Workers,
		Concurrency: p.opt.Concurrency,
		Warmups:     p.opt.Warmups,
		Iterations:  p.opt.Iterations,
		Duration:    p.opt.Duration,
		Rate:        p.opt.RatePerSecond,
		Retries:     cfg.Retries,
		ConfigFile:  cfg.ConfigFile,
	}
}

func report(cfg *config.Config, out outcome, stdout io.Writer) error {
	switch cfg.Output {
	case config.OutputJSON:
		return output.PrintJSONReport(stdout, out.results...)
	case config.OutputYAML:
		return output.PrintYAMLReport(stdout, out.results...)
	case config.OutputTable:
		output.PrintTable(stdout, "Benchmark Results", out.results...)
	default:
		output.PrintReport(stdout, out.results...)
	}
	return nil
}

// humanOutput reports whether stdout carries text rather than a document.
func humanOutput(cfg *config.Config) bool {
	return cfg.Output != config.OutputJSON && cfg.Output != config.OutputYAML
}

// printThresholds evaluates thresholds per result and returns the failures.
func printThresholds(cfg *config.Config, results []metrics.Snapshot, thresholds []threshold.Threshold, stdout, stderr io.Writer) int {
	if len(thresholds) == 0 {
		return 0
	}
	w := stdout
	if !humanOutput(cfg) {
		w = stderr
	}
	evaluator := threshold.NewEvaluator(thresholds)
	failed := 0
	fmt.Fprintln(w, "\nThresholds:")
	for _, s := range results {
		for _, r := range evaluator.Evaluate(s) {
			mark := "PASS"
			if !r.Pass {
				mark = "FAIL"
				failed++
			}
			fmt.Fprintf(w, "  [%s] %s: %s (actual %.2f)\n", mark, s.Name, r.Threshold.Raw, r.Actual)
		}
	}
	return failed
}

func writeHTMLReport(cfg *config.Config, out outcome, thresholds []threshold.Threshold) error {
	f, err := os.Create(cfg.HTMLOutput)
	if err != nil {
		return fmt.Errorf("html report: %w", err)
	}

	var results []threshold.Result
	if len(out.results) > 0 {
		evaluator := threshold.NewEvaluator(thresholds)
		for _, s := range out.results {
			results = append(results, evaluator.Evaluate(s)...)
		}
	}

	meta := output.ReportMetadata{
		Strategy:    out.strategy,
		Workers:     cfg.Workers,
		Concurrency: cfg.Concurrency,
	}
	for _, wc := range cfg.Workloads {
		meta.Workloads = append(meta.Workloads, output.WorkloadInfo{
			Name:   wc.Name,
			Kind:   string(wc.Kind),
			Target: workload.Target(wc),
		})
	}

	if err := output.GenerateHTMLReport(f, out.results, out.history, results, meta); err != nil {
		_ = f.Close()
		return fmt.Errorf("html report: %w", err)
	}
	return f.Close()
}
