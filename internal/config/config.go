package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// OutputFormat selects how results are rendered on stdout.
type OutputFormat string

const (
	OutputText  OutputFormat = "text"
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputYAML  OutputFormat = "yaml"
)

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// WorkloadKind selects the unit of work being measured.
type WorkloadKind string

const (
	WorkloadHTTP  WorkloadKind = "http"
	WorkloadExec  WorkloadKind = "exec"
	WorkloadSleep WorkloadKind = "sleep"
	// WorkloadWebSocket times one send-and-await-reply round trip.
	WorkloadWebSocket WorkloadKind = "websocket"
	// WorkloadGRPC times one unary call described by a .proto file.
	WorkloadGRPC WorkloadKind = "grpc"
)

type Config struct {
	Name          string           `mapstructure:"name"`
	Workers       int              `mapstructure:"workers"`
	Concurrency   int              `mapstructure:"concurrency"`
	Warmups       int              `mapstructure:"warmups"`
	Iterations    int              `mapstructure:"iterations"`
	Duration      RunDuration      `mapstructure:"duration"`
	PrintErrorLog bool             `mapstructure:"print_error_log"`
	Rate          float64          `mapstructure:"rate"`
	Arrival       ArrivalModel     `mapstructure:"arrival_model"`
	Retries       int              `mapstructure:"retries"`
	RetryDelay    time.Duration    `mapstructure:"retry_delay"`
	Refresh       RefreshConfig    `mapstructure:"refresh"`
	Output        OutputFormat     `mapstructure:"output"`
	HTMLOutput    string           `mapstructure:"html_output"`
	HistoryFile   string           `mapstructure:"history_file"`
	Dashboard     bool             `mapstructure:"dashboard"`
	Progress      bool             `mapstructure:"progress"`
	Thresholds    []string         `mapstructure:"thresholds"`
	MetricsAddr   string           `mapstructure:"metrics_addr"`
	Log           LogConfig        `mapstructure:"log"`
	Tracing       TracingConfig    `mapstructure:"tracing"`
	Workloads     []WorkloadConfig `mapstructure:"workloads"`
	ConfigFile    string           `mapstructure:"-"`
}

// RefreshConfig schedules background statistic folds while a run is live.
type RefreshConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	Delay        time.Duration `mapstructure:"delay"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

type TracingConfig struct {
	Endpoint    string            `mapstructure:"endpoint"`     // OTLP collector endpoint; empty disables tracing
	Protocol    string            `mapstructure:"protocol"`     // grpc or http
	Insecure    bool              `mapstructure:"insecure"`     // plaintext connection to the collector
	ServiceName string            `mapstructure:"service_name"` // resource service.name
	SampleRate  float64           `mapstructure:"sample_rate"`  // 0..1
	Headers     map[string]string `mapstructure:"headers"`      // exporter headers
	Propagate   *bool             `mapstructure:"propagate"`    // inject W3C trace context; defaults to Enabled()
}

// Enabled reports whether an exporter endpoint is configured.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate reports whether trace context headers are sent to targets.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type WorkloadConfig struct {
	Name         string            `mapstructure:"name"`
	Kind         WorkloadKind      `mapstructure:"kind"`
	URL          string            `mapstructure:"url"`
	Method       string            `mapstructure:"method"`
	Headers      map[string]string `mapstructure:"headers"`
	Body         string            `mapstructure:"body"`
	BodyFile     string            `mapstructure:"body_file"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	ExpectStatus int               `mapstructure:"expect_status"` // 0 accepts any status below 400
	ExpectJSON   map[string]string `mapstructure:"expect_json"`   // gjson path -> expected value
	Command      []string          `mapstructure:"command"`
	Sleep        time.Duration     `mapstructure:"sleep"`
	ProtoFile    string            `mapstructure:"proto_file"` // grpc: service definition
	Service      string            `mapstructure:"service"`    // grpc: service name, package-qualified or not
	RPC          string            `mapstructure:"rpc"`        // grpc: method name
	TLS          bool              `mapstructure:"tls"`        // grpc: dial with TLS
	Insecure     bool              `mapstructure:"insecure"`   // grpc: skip certificate verification
}

// Label is the workload's name, or a description derived from its kind.
func (w WorkloadConfig) Label() string {
	if strings.TrimSpace(w.Name) != "" {
		return w.Name
	}
	switch w.Kind {
	case WorkloadHTTP:
		return strings.ToUpper(w.Method) + " " + w.URL
	case WorkloadExec:
		return strings.Join(w.Command, " ")
	case WorkloadSleep:
		return "sleep " + w.Sleep.String()
	case WorkloadWebSocket:
		return "WS " + w.URL
	case WorkloadGRPC:
		return w.Service + "/" + w.RPC
	default:
		return string(w.Kind)
	}
}

// Default returns the configuration used before files and flags are applied.
func Default() Config {
	return Config{
		Workers:     1,
		Concurrency: 1,
		Warmups:     5,
		Arrival:     ArrivalModelUniform,
		Refresh:     RefreshConfig{InitialDelay: 10 * time.Second, Delay: 10 * time.Second},
		Output:      OutputText,
		Log:         LogConfig{Level: "info", Format: "console"},
		Tracing:     TracingConfig{Protocol: "grpc", ServiceName: "crankbench", SampleRate: 1},
	}
}

// DefaultIterations applies when neither iterations nor a duration is set.
const DefaultIterations = 10

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string
	var warnings []string

	if len(c.Workloads) == 0 {
		issues = append(issues, "at least one workload is required: --target, --exec or --sleep (use --help for usage information)")
	}

	if c.Workers > 1024 {
		warnings = append(warnings, fmt.Sprintf("WARNING: %d workers configured; at most 1024 run in parallel.", c.Workers))
	}
	if c.Concurrency > 500 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High concurrency configured (%d workers). Results will include scheduler contention.", c.Concurrency))
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}

	if c.Workers < 1 {
		issues = append(issues, "workers must be >= 1")
	}
	if c.Concurrency < 1 {
		issues = append(issues, "concurrency must be >= 1")
	}
	if c.Warmups < 0 {
		issues = append(issues, "warmups must be >= 0")
	}
	if c.Iterations < 0 {
		issues = append(issues, "iterations must be >= 0")
	}
	if c.Iterations > 0 && !c.Duration.IsZero() {
		issues = append(issues, "iterations and duration are mutually exclusive")
	}
	if c.Iterations == 0 && c.Duration.IsZero() {
		issues = append(issues, "either iterations or duration is required")
	}
	if !c.Duration.IsZero() {
		if err := c.Duration.Validate(); err != nil {
			issues = append(issues, fmt.Sprintf("duration: %v", err))
		}
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.Retries < 0 {
		issues = append(issues, "retries must be >= 0")
	}
	if c.RetryDelay < 0 {
		issues = append(issues, "retry delay must be >= 0")
	}
	switch c.Arrival {
	case "", ArrivalModelUniform, ArrivalModelPoisson:
	default:
		issues = append(issues, fmt.Sprintf("arrival model %q is not supported", c.Arrival))
	}

	issues = append(issues, validateRefresh(c.Refresh)...)

	switch c.Output {
	case "", OutputText, OutputTable, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output %q is not supported (text, table, json, yaml)", c.Output))
	}
	if c.Dashboard && (c.Output == OutputJSON || c.Output == OutputYAML) {
		issues = append(issues, "dashboard and structured output are mutually exclusive")
	}
	if c.Dashboard && c.Progress {
		issues = append(issues, "dashboard and progress are mutually exclusive")
	}

	issues = append(issues, validateLog(c.Log)...)
	issues = append(issues, validateTracing(c.Tracing)...)

	seenNames := map[string]int{}
	for idx, w := range c.Workloads {
		issues = append(issues, validateWorkload(idx, w)...)
		name := strings.ToLower(strings.TrimSpace(w.Name))
		if name == "" {
			continue
		}
		if prev, ok := seenNames[name]; ok {
			issues = append(issues, fmt.Sprintf("workloads[%d]: duplicate name also defined at index %d", idx, prev))
		} else {
			seenNames[name] = idx
		}
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

func validateRefresh(r RefreshConfig) []string {
	if !r.Enabled {
		return nil
	}
	var issues []string
	if r.InitialDelay < 0 {
		issues = append(issues, "refresh: initial delay must be >= 0")
	}
	if r.Delay < time.Second {
		issues = append(issues, "refresh: delay must be at least 1s")
	}
	return issues
}

func validateLog(l LogConfig) []string {
	var issues []string
	if l.Level != "" {
		if _, err := zapcore.ParseLevel(l.Level); err != nil {
			issues = append(issues, fmt.Sprintf("log: %v", err))
		}
	}
	switch l.Format {
	case "", "console", "json":
	default:
		issues = append(issues, fmt.Sprintf("log: format %q is not supported (console, json)", l.Format))
	}
	return issues
}

func validateTracing(t TracingConfig) []string {
	if !t.Enabled() {
		return nil
	}
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol %q is not supported (grpc, http)", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing: sample rate must be between 0 and 1")
	}
	return issues
}

func validateWorkload(idx int, w WorkloadConfig) []string {
	var issues []string
	switch w.Kind {
	case WorkloadHTTP, WorkloadWebSocket, WorkloadGRPC:
		if strings.TrimSpace(w.URL) == "" {
			issues = append(issues, fmt.Sprintf("workloads[%d]: url is required for %s", idx, w.Kind))
		}
		if w.Body != "" && strings.TrimSpace(w.BodyFile) != "" {
			issues = append(issues, fmt.Sprintf("workloads[%d]: body and body_file are mutually exclusive", idx))
		}
		if w.Timeout < 0 {
			issues = append(issues, fmt.Sprintf("workloads[%d]: timeout must be >= 0", idx))
		}
	}
	switch w.Kind {
	case WorkloadHTTP:
		if w.ExpectStatus != 0 && (w.ExpectStatus < 100 || w.ExpectStatus > 599) {
			issues = append(issues, fmt.Sprintf("workloads[%d]: expect_status %d is not a valid HTTP status", idx, w.ExpectStatus))
		}
	case WorkloadWebSocket:
		if u := strings.ToLower(strings.TrimSpace(w.URL)); u != "" && !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
			issues = append(issues, fmt.Sprintf("workloads[%d]: websocket url must use ws:// or wss://", idx))
		}
	case WorkloadGRPC:
		if strings.TrimSpace(w.ProtoFile) == "" {
			issues = append(issues, fmt.Sprintf("workloads[%d]: proto_file is required for grpc", idx))
		}
		if strings.TrimSpace(w.Service) == "" || strings.TrimSpace(w.RPC) == "" {
			issues = append(issues, fmt.Sprintf("workloads[%d]: service and rpc are required for grpc", idx))
		}
	case WorkloadExec:
		if len(w.Command) == 0 || strings.TrimSpace(w.Command[0]) == "" {
			issues = append(issues, fmt.Sprintf("workloads[%d]: command is required for exec", idx))
		}
	case WorkloadSleep:
		if w.Sleep < 0 {
			issues = append(issues, fmt.Sprintf("workloads[%d]: sleep must be >= 0", idx))
		}
	default:
		issues = append(issues, fmt.Sprintf("workloads[%d]: unsupported kind %q", idx, w.Kind))
	}
	return issues
}
