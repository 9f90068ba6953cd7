package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "crankbench",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Run shape flags
	flags.String("name", "", "Label for the measured workload")
	flags.IntP("workers", "w", 1, "Number of logical workers")
	flags.IntP("concurrency", "c", 1, "Maximum workers executing at once")
	flags.Int("warmups", 5, "Unmeasured invocations before measurement starts")
	flags.IntP("iterations", "n", 0, "Invocations per worker (exclusive with --duration)")
	flags.StringP("duration", "d", "", "How long to run (e.g. 30, 45s, 5m, 2d5h23m1s)")
	flags.Float64P("rate", "r", 0, "Invocations per second across all workers (0 means unlimited)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model used when pacing (uniform or poisson)")
	flags.Int("retries", 0, "Retries per failed invocation")
	flags.Duration("retry-delay", 0, "Base delay between retries")
	flags.Bool("print-error-log", false, "Log each failed invocation")

	// Refresh flags
	flags.Bool("refresh", false, "Fold statistics in the background while running")
	flags.Duration("refresh-initial-delay", 10*time.Second, "Delay before the first background fold")
	flags.Duration("refresh-delay", 10*time.Second, "Delay between background folds (at least 1s)")

	// Output flags
	flags.StringP("output", "o", string(OutputText), "Output format: text, table, json or yaml")
	flags.String("html-output", "", "Generate HTML report to the specified file path")
	flags.String("history-file", "", "Append results to this JSON lines file")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.Bool("progress", false, "Print periodic progress to stderr")
	flags.StringSlice("threshold", nil, "Pass/fail thresholds (repeatable, e.g. 'duration:p95 < 500')")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Logging flags
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "console", "Log format: console or json")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (empty disables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Use a plaintext connection to the collector")
	flags.String("tracing-service-name", "crankbench", "service.name reported with spans")
	flags.Float64("tracing-sample-rate", 1, "Fraction of invocations traced (0..1)")
	flags.Bool("tracing-propagate", true, "Inject W3C trace context headers into HTTP requests when tracing")

	// Workload flags
	flags.String("target", "", "URL or gRPC address to benchmark")
	flags.String("protocol", string(WorkloadHTTP), "Protocol used against --target: http, websocket or grpc")
	flags.String("proto-file", "", "gRPC: .proto file describing the service")
	flags.String("service", "", "gRPC: service name")
	flags.String("rpc", "", "gRPC: method name")
	flags.Bool("grpc-tls", false, "gRPC: dial with TLS")
	flags.Bool("grpc-insecure", false, "gRPC: skip TLS certificate verification")
	flags.String("method", "GET", "HTTP method to use")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.String("body", "", "Inline request body payload")
	flags.String("body-file", "", "Path to file containing the request body")
	flags.Duration("timeout", 30*time.Second, "Per-request timeout")
	flags.Int("expect-status", 0, "Required HTTP status (0 accepts any status below 400)")
	flags.StringToString("expect-json", nil, "Required JSON values as path=value pairs")
	flags.StringSlice("exec", nil, "Command and arguments to benchmark")
	flags.Duration("sleep", 0, "Benchmark a plain sleep of this length")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("name") {
		val, err := fs.GetString("name")
		if err != nil {
			return err
		}
		cfg.Name = strings.TrimSpace(val)
	}
	if fs.Changed("workers") {
		val, err := fs.GetInt("workers")
		if err != nil {
			return err
		}
		cfg.Workers = val
	}
	if fs.Changed("concurrency") {
		val, err := fs.GetInt("concurrency")
		if err != nil {
			return err
		}
		cfg.Concurrency = val
	}
	if fs.Changed("warmups") {
		val, err := fs.GetInt("warmups")
		if err != nil {
			return err
		}
		cfg.Warmups = val
	}
	if fs.Changed("iterations") {
		val, err := fs.GetInt("iterations")
		if err != nil {
			return err
		}
		cfg.Iterations = val
		if val > 0 {
			cfg.Duration = RunDuration{}
		}
	}
	if fs.Changed("duration") {
		val, err := fs.GetString("duration")
		if err != nil {
			return err
		}
		dur, err := ParseRunDuration(val)
		if err != nil {
			return err
		}
		cfg.Duration = dur
		if !dur.IsZero() && !fs.Changed("iterations") {
			cfg.Iterations = 0
		}
	}
	if fs.Changed("rate") {
		val, err := fs.GetFloat64("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("retries") {
		val, err := fs.GetInt("retries")
		if err != nil {
			return err
		}
		cfg.Retries = val
	}
	if fs.Changed("retry-delay") {
		val, err := fs.GetDuration("retry-delay")
		if err != nil {
			return err
		}
		cfg.RetryDelay = val
	}
	if fs.Changed("print-error-log") {
		val, err := fs.GetBool("print-error-log")
		if err != nil {
			return err
		}
		cfg.PrintErrorLog = val
	}
	if fs.Changed("refresh") {
		val, err := fs.GetBool("refresh")
		if err != nil {
			return err
		}
		cfg.Refresh.Enabled = val
	}
	if fs.Changed("refresh-initial-delay") {
		val, err := fs.GetDuration("refresh-initial-delay")
		if err != nil {
			return err
		}
		cfg.Refresh.InitialDelay = val
	}
	if fs.Changed("refresh-delay") {
		val, err := fs.GetDuration("refresh-delay")
		if err != nil {
			return err
		}
		cfg.Refresh.Delay = val
	}
	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("html-output") {
		val, err := fs.GetString("html-output")
		if err != nil {
			return err
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}
	if fs.Changed("history-file") {
		val, err := fs.GetString("history-file")
		if err != nil {
			return err
		}
		cfg.HistoryFile = strings.TrimSpace(val)
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("progress") {
		val, err := fs.GetBool("progress")
		if err != nil {
			return err
		}
		cfg.Progress = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("metrics-addr") {
		val, err := fs.GetString("metrics-addr")
		if err != nil {
			return err
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("log-format") {
		val, err := fs.GetString("log-format")
		if err != nil {
			return err
		}
		cfg.Log.Format = strings.ToLower(strings.TrimSpace(val))
	}
	if err := applyTracingFlags(&cfg.Tracing, fs); err != nil {
		return err
	}
	return applyWorkloadFlags(cfg, fs)
}

func applyTracingFlags(t *TracingConfig, fs *pflag.FlagSet) error {
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		t.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		t.Insecure = val
	}
	if fs.Changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		t.ServiceName = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		t.SampleRate = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		t.Propagate = &val
	}
	return nil
}

// applyWorkloadFlags turns --target, --exec and --sleep into workloads. A
// workload given on the command line replaces those from the config file.
func applyWorkloadFlags(cfg *Config, fs *pflag.FlagSet) error {
	var fromFlags []WorkloadConfig

	if fs.Changed("target") {
		target, err := fs.GetString("target")
		if err != nil {
			return err
		}
		w := WorkloadConfig{Kind: WorkloadHTTP, URL: strings.TrimSpace(target), Method: http.MethodGet, Timeout: 30 * time.Second}
		protocol, err := fs.GetString("protocol")
		if err != nil {
			return err
		}
		w.Kind = WorkloadKind(strings.ToLower(strings.TrimSpace(protocol)))
		if w.Method, err = fs.GetString("method"); err != nil {
			return err
		}
		w.Method = strings.ToUpper(strings.TrimSpace(w.Method))
		if err := applyGRPCFlags(&w, fs); err != nil {
			return err
		}
		if w.Body, err = fs.GetString("body"); err != nil {
			return err
		}
		if w.BodyFile, err = fs.GetString("body-file"); err != nil {
			return err
		}
		w.BodyFile = strings.TrimSpace(w.BodyFile)
		if w.Timeout, err = fs.GetDuration("timeout"); err != nil {
			return err
		}
		if w.ExpectStatus, err = fs.GetInt("expect-status"); err != nil {
			return err
		}
		if w.ExpectJSON, err = fs.GetStringToString("expect-json"); err != nil {
			return err
		}
		headers, err := fs.GetStringSlice("header")
		if err != nil {
			return err
		}
		if w.Headers, err = parseHeaderFlags(headers); err != nil {
			return err
		}
		fromFlags = append(fromFlags, w)
	}
	if fs.Changed("exec") {
		command, err := fs.GetStringSlice("exec")
		if err != nil {
			return err
		}
		fromFlags = append(fromFlags, WorkloadConfig{Kind: WorkloadExec, Command: command})
	}
	if fs.Changed("sleep") {
		d, err := fs.GetDuration("sleep")
		if err != nil {
			return err
		}
		fromFlags = append(fromFlags, WorkloadConfig{Kind: WorkloadSleep, Sleep: d})
	}

	if len(fromFlags) == 0 {
		return nil
	}
	if len(fromFlags) == 1 && cfg.Name != "" {
		fromFlags[0].Name = cfg.Name
	}
	cfg.Workloads = fromFlags
	return nil
}

func applyGRPCFlags(w *WorkloadConfig, fs *pflag.FlagSet) error {
	var err error
	if w.ProtoFile, err = fs.GetString("proto-file"); err != nil {
		return err
	}
	if w.Service, err = fs.GetString("service"); err != nil {
		return err
	}
	if w.RPC, err = fs.GetString("rpc"); err != nil {
		return err
	}
	if w.TLS, err = fs.GetBool("grpc-tls"); err != nil {
		return err
	}
	w.Insecure, err = fs.GetBool("grpc-insecure")
	return err
}

func parseHeaderFlags(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(values))
	for _, raw := range values {
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid header %q: expected key=value", raw)
		}
		key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
		if key == "" {
			return nil, fmt.Errorf("invalid header %q: empty key", raw)
		}
		headers[key] = strings.TrimSpace(parts[1])
	}
	return headers, nil
}
