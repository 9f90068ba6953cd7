package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	// If no arguments provided and no config file, show help/usage
	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(&cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	if cfg.Iterations == 0 && cfg.Duration.IsZero() {
		cfg.Iterations = DefaultIterations
	}
	for i := range cfg.Workloads {
		normalizeWorkload(&cfg.Workloads[i])
	}

	return &cfg, nil
}

func normalizeWorkload(w *WorkloadConfig) {
	w.Name = strings.TrimSpace(w.Name)
	w.Kind = WorkloadKind(strings.ToLower(strings.TrimSpace(string(w.Kind))))
	switch w.Kind {
	case WorkloadHTTP:
		w.Method = strings.ToUpper(strings.TrimSpace(w.Method))
		if w.Method == "" {
			w.Method = http.MethodGet
		}
	case WorkloadWebSocket, WorkloadGRPC:
		w.Service = strings.TrimSpace(w.Service)
		w.RPC = strings.TrimSpace(w.RPC)
	default:
		return
	}
	w.URL = strings.TrimSpace(w.URL)
	if w.Timeout == 0 {
		w.Timeout = 30 * time.Second
	}
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("name: %w", err)
		}
		cfg.Name = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "workers"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("workers: %w", err)
		}
		cfg.Workers = val
	}

	if raw, ok := lookupSetting(settings, "concurrency"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("concurrency: %w", err)
		}
		cfg.Concurrency = val
	}

	if raw, ok := lookupSetting(settings, "warmups"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("warmups: %w", err)
		}
		cfg.Warmups = val
	}

	if raw, ok := lookupSetting(settings, "iterations"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("iterations: %w", err)
		}
		cfg.Iterations = val
	}

	if raw, ok := lookupSetting(settings, "duration"); ok {
		dur, err := asRunDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = dur
	}

	if raw, ok := lookupSetting(settings, "printerrorlog", "print_error_log", "print-error-log"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("printErrorLog: %w", err)
		}
		cfg.PrintErrorLog = val
	}

	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}

	if raw, ok := lookupSetting(settings, "arrivalmodel", "arrival_model", "arrival-model"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("arrivalModel: %w", err)
		}
		cfg.Arrival = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "retries"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("retries: %w", err)
		}
		cfg.Retries = val
	}

	if raw, ok := lookupSetting(settings, "retrydelay", "retry_delay", "retry-delay"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("retryDelay: %w", err)
		}
		cfg.RetryDelay = dur
	}

	if raw, ok := lookupSetting(settings, "refresh"); ok {
		refresh, err := parseRefresh(raw, cfg.Refresh)
		if err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
		cfg.Refresh = refresh
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		if val = strings.ToLower(strings.TrimSpace(val)); val != "" {
			cfg.Output = OutputFormat(val)
		}
	}

	if raw, ok := lookupSetting(settings, "htmloutput", "html_output", "html-output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("htmlOutput: %w", err)
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "historyfile", "history_file", "history-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("historyFile: %w", err)
		}
		cfg.HistoryFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "progress"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("progress: %w", err)
		}
		cfg.Progress = val
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "metricsaddr", "metrics_addr", "metrics-addr"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("metricsAddr: %w", err)
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "log"); ok {
		logCfg, err := parseLog(raw, cfg.Log)
		if err != nil {
			return fmt.Errorf("log: %w", err)
		}
		cfg.Log = logCfg
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	if raw, ok := lookupSetting(settings, "workloads"); ok {
		workloads, err := parseWorkloads(raw)
		if err != nil {
			return fmt.Errorf("workloads: %w", err)
		}
		cfg.Workloads = workloads
	}

	return nil
}

// asRunDuration accepts run-duration strings, or numbers interpreted as
// seconds.
func asRunDuration(value interface{}) (RunDuration, error) {
	switch v := value.(type) {
	case nil:
		return RunDuration{}, nil
	case string:
		return ParseRunDuration(v)
	case time.Duration:
		return Seconds(int64(v / time.Second)), nil
	default:
		n, err := asInt(v)
		if err != nil {
			return RunDuration{}, err
		}
		return Seconds(int64(n)), nil
	}
}

func parseRefresh(value interface{}, base RefreshConfig) (RefreshConfig, error) {
	if b, ok := value.(bool); ok {
		base.Enabled = b
		return base, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return RefreshConfig{}, err
	}
	if raw, ok := lookupSetting(settings, "enabled"); ok {
		val, err := asBool(raw)
		if err != nil {
			return RefreshConfig{}, fmt.Errorf("enabled: %w", err)
		}
		base.Enabled = val
	}
	if raw, ok := lookupSetting(settings, "initialdelay", "initial_delay", "initial-delay"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return RefreshConfig{}, fmt.Errorf("initialDelay: %w", err)
		}
		base.InitialDelay = val
	}
	if raw, ok := lookupSetting(settings, "delay"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return RefreshConfig{}, fmt.Errorf("delay: %w", err)
		}
		base.Delay = val
	}
	return base, nil
}

func parseLog(value interface{}, base LogConfig) (LogConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return LogConfig{}, err
	}
	if raw, ok := lookupSetting(settings, "level"); ok {
		val, err := asString(raw)
		if err != nil {
			return LogConfig{}, fmt.Errorf("level: %w", err)
		}
		base.Level = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "format"); ok {
		val, err := asString(raw)
		if err != nil {
			return LogConfig{}, fmt.Errorf("format: %w", err)
		}
		base.Format = strings.ToLower(strings.TrimSpace(val))
	}
	return base, nil
}

func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		base.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		base.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		base.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("serviceName: %w", err)
		}
		base.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sampleRate: %w", err)
		}
		base.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("headers: %w", err)
		}
		base.Headers = hdrs
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		base.Propagate = &val
	}
	return base, nil
}

func parseWorkloads(value interface{}) ([]WorkloadConfig, error) {
	if value == nil {
		return nil, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	workloads := make([]WorkloadConfig, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		w, err := buildWorkload(entry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		workloads = append(workloads, w)
	}
	return workloads, nil
}

func buildWorkload(settings map[string]interface{}) (WorkloadConfig, error) {
	var w WorkloadConfig
	if raw, ok := lookupSetting(settings, "name"); ok {
		val, err := asString(raw)
		if err != nil {
			return WorkloadConfig{}, fmt.Errorf("name: %w", err)
		}
		w.Name = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "kind", "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return WorkloadConfig{}, fmt.Errorf("kind: %w", err)
		}
		w.Kind = WorkloadKind(strings.ToLower(strings.TrimSpace(val)))
	}
	if raw, ok := lookupSetting(settings, "url", "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return WorkloadConfig{}, fmt.Errorf("url: %w", err)
		}
		w.URL = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "method"); ok {
		val, err := asString(raw)
		if err != nil {
			return WorkloadConfig{}, fmt.Errorf("method: %w", err)
		}
		w.Method = strings.ToUpper(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return WorkloadConfig{}, fmt.Errorf("headers: %w", err)
		}
		if len(hdrs) > 0 {
			w.Headers = map[string]string{}
			for key, value := range hdrs {
				trimmedKey := strings.TrimSpace(key)
				if trimmedKey == "" {
					return WorkloadConfig{}, fmt.Errorf("headers: key cannot be empty")
				}
				w.Headers[http.CanonicalHeaderKey(trimmedKey)] = value
			}
		}
	}
	if raw, ok := lookupSetting(settings, "body"); ok {
		val, err := asString(raw)
		if err != nil {
			return WorkloadConfig{}, fmt.Errorf("body: %w", err)
		}
		w.Body = val
	}
	if raw, ok := lookupSetting(settings, "bodyfile", "body_file", "body-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return WorkloadConfig{}, fmt.Errorf("bodyFile: %w", err)
		}
		w.BodyFile = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "timeout"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return WorkloadConfig{}, fmt.Errorf("timeout: %w", err)
		}
		w.Timeout = val
	}
	if raw, ok := lookupSetting(settings, "expectstatus", "expect_status", "expect-status"); ok {
		val, err := asInt(raw)
		if err != nil {
			return WorkloadConfig{}, fmt.Errorf("expectStatus: %w", err)
		}
		w.ExpectStatus = val
	}
	if raw, ok := lookupSetting(settings, "expectjson", "expect_json", "expect-json"); ok {
		val, err := asStringMap(raw)
		if err != nil {
			return WorkloadConfig{}, fmt.Errorf("expectJSON: %w", err)
		}
		w.ExpectJSON = val
	}
	if raw, ok := lookupSetting(settings, "command", "exec"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return WorkloadConfig{}, fmt.Errorf("command: %w", err)
		}
		w.Command = val
	}
	if raw, ok := lookupSetting(settings, "sleep"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return WorkloadConfig{}, fmt.Errorf("sleep: %w", err)
		}
		w.Sleep = val
	}
	if raw, ok := lookupSetting(settings, "protofile", "proto_file", "proto-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return WorkloadConfig{}, fmt.Errorf("protoFile: %w", err)
		}
		w.ProtoFile = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "service"); ok {
		val, err := asString(raw)
		if err != nil {
			return WorkloadConfig{}, fmt.Errorf("service: %w", err)
		}
		w.Service = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "rpc"); ok {
		val, err := asString(raw)
		if err != nil {
			return WorkloadConfig{}, fmt.Errorf("rpc: %w", err)
		}
		w.RPC = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "tls"); ok {
		val, err := asBool(raw)
		if err != nil {
			return WorkloadConfig{}, fmt.Errorf("tls: %w", err)
		}
		w.TLS = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return WorkloadConfig{}, fmt.Errorf("insecure: %w", err)
		}
		w.Insecure = val
	}
	if w.Kind == "" {
		w.Kind = inferKind(w)
	}
	return w, nil
}

func inferKind(w WorkloadConfig) WorkloadKind {
	url := strings.ToLower(w.URL)
	switch {
	case w.ProtoFile != "":
		return WorkloadGRPC
	case strings.HasPrefix(url, "ws://"), strings.HasPrefix(url, "wss://"):
		return WorkloadWebSocket
	case w.URL != "":
		return WorkloadHTTP
	case len(w.Command) > 0:
		return WorkloadExec
	default:
		return WorkloadSleep
	}
}
