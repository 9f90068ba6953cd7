package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/crankbench/internal/config"
)

func TestLoadWithoutArgsRequestsHelp(t *testing.T) {
	_, err := config.NewLoader().Load([]string{})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load() error = %v, want ErrHelpRequested", err)
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{
		"name": "api",
		"workers": 8,
		"concurrency": 4,
		"duration": "2d5h23m1s",
		"printErrorLog": true,
		"output": "table",
		"workloads": [
			{"url": "https://api.example.com", "method": "put", "expect_status": 204}
		]
	}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path, "--workers", "16"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Workers != 16 {
		t.Errorf("Workers = %d, want flag override 16", cfg.Workers)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Concurrency)
	}
	want := 2*24*time.Hour + 5*time.Hour + 23*time.Minute + time.Second
	if cfg.Duration.Duration() != want {
		t.Errorf("Duration = %v, want %v", cfg.Duration.Duration(), want)
	}
	if cfg.Iterations != 0 {
		t.Errorf("Iterations = %d, want 0 for a timed run", cfg.Iterations)
	}
	if !cfg.PrintErrorLog {
		t.Error("PrintErrorLog = false, want true")
	}
	if cfg.Output != config.OutputTable {
		t.Errorf("Output = %q, want table", cfg.Output)
	}
	if len(cfg.Workloads) != 1 {
		t.Fatalf("len(Workloads) = %d, want 1", len(cfg.Workloads))
	}
	w := cfg.Workloads[0]
	if w.Method != "PUT" || w.ExpectStatus != 204 || w.Timeout != 30*time.Second {
		t.Errorf("workload = %+v, want PUT expecting 204 with default timeout", w)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(`
iterations: 100
warmups: 2
refresh:
  enabled: true
  initial_delay: 1s
  delay: 2s
tracing:
  endpoint: localhost:4317
  insecure: true
workloads:
  - name: ls
    kind: exec
    command: [ls, -la]
`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Iterations != 100 || cfg.Warmups != 2 {
		t.Errorf("Iterations/Warmups = %d/%d, want 100/2", cfg.Iterations, cfg.Warmups)
	}
	if !cfg.Refresh.Enabled || cfg.Refresh.InitialDelay != time.Second || cfg.Refresh.Delay != 2*time.Second {
		t.Errorf("Refresh = %+v", cfg.Refresh)
	}
	if !cfg.Tracing.Enabled() || !cfg.Tracing.Insecure || cfg.Tracing.Protocol != "grpc" {
		t.Errorf("Tracing = %+v, want insecure grpc", cfg.Tracing)
	}
	if len(cfg.Workloads) != 1 || cfg.Workloads[0].Kind != config.WorkloadExec {
		t.Fatalf("Workloads = %+v", cfg.Workloads)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func validConfig() config.Config {
	cfg := config.Default()
	cfg.Iterations = 10
	cfg.Workloads = []config.WorkloadConfig{{Kind: config.WorkloadSleep, Sleep: time.Millisecond}}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*config.Config) {}},
		{name: "no workloads", mutate: func(c *config.Config) { c.Workloads = nil }, wantErr: "at least one workload"},
		{name: "zero workers", mutate: func(c *config.Config) { c.Workers = 0 }, wantErr: "workers must be >= 1"},
		{name: "zero concurrency", mutate: func(c *config.Config) { c.Concurrency = 0 }, wantErr: "concurrency must be >= 1"},
		{name: "negative warmups", mutate: func(c *config.Config) { c.Warmups = -1 }, wantErr: "warmups"},
		{name: "both bounds", mutate: func(c *config.Config) { c.Duration = config.Seconds(5) }, wantErr: "mutually exclusive"},
		{name: "no bound", mutate: func(c *config.Config) { c.Iterations = 0 }, wantErr: "either iterations or duration"},
		{name: "sub-second refresh", mutate: func(c *config.Config) {
			c.Refresh = config.RefreshConfig{Enabled: true, Delay: 500 * time.Millisecond}
		}, wantErr: "at least 1s"},
		{name: "disabled refresh ignores delay", mutate: func(c *config.Config) {
			c.Refresh = config.RefreshConfig{Delay: time.Millisecond}
		}},
		{name: "bad output", mutate: func(c *config.Config) { c.Output = "xml" }, wantErr: "output"},
		{name: "dashboard with json", mutate: func(c *config.Config) {
			c.Dashboard = true
			c.Output = config.OutputJSON
		}, wantErr: "dashboard"},
		{name: "bad log level", mutate: func(c *config.Config) { c.Log.Level = "loud" }, wantErr: "log"},
		{name: "bad tracing protocol", mutate: func(c *config.Config) {
			c.Tracing.Endpoint = "localhost:4317"
			c.Tracing.Protocol = "udp"
		}, wantErr: "tracing"},
		{name: "http without url", mutate: func(c *config.Config) {
			c.Workloads = []config.WorkloadConfig{{Kind: config.WorkloadHTTP}}
		}, wantErr: "url is required"},
		{name: "body and body file", mutate: func(c *config.Config) {
			c.Workloads = []config.WorkloadConfig{{Kind: config.WorkloadHTTP, URL: "http://x", Body: "a", BodyFile: "b.json"}}
		}, wantErr: "mutually exclusive"},
		{name: "websocket with http url", mutate: func(c *config.Config) {
			c.Workloads = []config.WorkloadConfig{{Kind: config.WorkloadWebSocket, URL: "http://x"}}
		}, wantErr: "ws:// or wss://"},
		{name: "valid websocket", mutate: func(c *config.Config) {
			c.Workloads = []config.WorkloadConfig{{Kind: config.WorkloadWebSocket, URL: "wss://x/echo"}}
		}},
		{name: "grpc without proto", mutate: func(c *config.Config) {
			c.Workloads = []config.WorkloadConfig{{Kind: config.WorkloadGRPC, URL: "x:50051", Service: "echo.Echo", RPC: "Say"}}
		}, wantErr: "proto_file is required"},
		{name: "grpc without rpc", mutate: func(c *config.Config) {
			c.Workloads = []config.WorkloadConfig{{Kind: config.WorkloadGRPC, URL: "x:50051", ProtoFile: "echo.proto", Service: "echo.Echo"}}
		}, wantErr: "service and rpc"},
		{name: "grpc without url", mutate: func(c *config.Config) {
			c.Workloads = []config.WorkloadConfig{{Kind: config.WorkloadGRPC, ProtoFile: "echo.proto", Service: "echo.Echo", RPC: "Say"}}
		}, wantErr: "url is required for grpc"},
		{name: "exec without command", mutate: func(c *config.Config) {
			c.Workloads = []config.WorkloadConfig{{Kind: config.WorkloadExec}}
		}, wantErr: "command is required"},
		{name: "duplicate names", mutate: func(c *config.Config) {
			c.Workloads = []config.WorkloadConfig{
				{Name: "a", Kind: config.WorkloadSleep},
				{Name: "A", Kind: config.WorkloadSleep},
			}
		}, wantErr: "duplicate name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
			var verr config.ValidationError
			if !errors.As(err, &verr) || len(verr.Issues()) == 0 {
				t.Errorf("error %T does not carry issues", err)
			}
		})
	}
}

func TestParseRunDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    config.RunDuration
		wantErr bool
	}{
		{in: "", want: config.RunDuration{}},
		{in: "30", want: config.Seconds(30)},
		{in: "45s", want: config.Seconds(45)},
		{in: "5m", want: config.RunDuration{Amount: 5, Unit: config.UnitMinutes}},
		{in: "2H", want: config.RunDuration{Amount: 2, Unit: config.UnitHours}},
		{in: "3d", want: config.RunDuration{Amount: 3, Unit: config.UnitDays}},
		{in: "2d5h23m1s", want: config.Seconds(2*86400 + 5*3600 + 23*60 + 1)},
		{in: "1m 30", want: config.Seconds(90)},
		{in: "10ms", wantErr: true},
		{in: "10x", wantErr: true},
		{in: "m", wantErr: true},
	}

	for _, tt := range tests {
		got, err := config.ParseRunDuration(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRunDuration(%q) = %+v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRunDuration(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRunDuration(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestRunDurationString(t *testing.T) {
	if got := (config.RunDuration{Amount: 5, Unit: config.UnitMinutes}).String(); got != "5m" {
		t.Errorf("String() = %q, want 5m", got)
	}
	if got := config.Seconds(90).Duration(); got != 90*time.Second {
		t.Errorf("Duration() = %v, want 1m30s", got)
	}
	if err := (config.RunDuration{Amount: 1, Unit: "millis"}).Validate(); err == nil {
		t.Error("Validate() accepted a sub-second unit")
	}
}
