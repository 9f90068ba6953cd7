package workload

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/torosent/crankbench/internal/config"
	"github.com/torosent/crankbench/internal/runner"
	"github.com/torosent/crankbench/internal/tracing"
)

type options struct {
	client *http.Client
	tracer *tracing.Provider
}

// Option customizes New.
type Option func(*options)

// WithHTTPClient shares client between HTTP workloads.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.client = client }
}

// WithTracing wraps invocations in spans from p. Network workloads also
// send trace context when p propagates.
func WithTracing(p *tracing.Provider) Option {
	return func(o *options) { o.tracer = p }
}

// New builds the runner workload for cfg.
func New(cfg config.WorkloadConfig, opts ...Option) (runner.Workload, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var w runner.Workload
	switch cfg.Kind {
	case config.WorkloadHTTP:
		h, err := NewHTTP(cfg, o.client)
		if err != nil {
			return nil, fmt.Errorf("workload %s: %w", cfg.Label(), err)
		}
		if o.tracer.ShouldPropagate() {
			h.Builder().WithHeaderInjector(tracing.InjectHTTPHeaders)
		}
		w = h
	case config.WorkloadExec:
		e, err := NewExec(cfg.Command)
		if err != nil {
			return nil, fmt.Errorf("workload %s: %w", cfg.Label(), err)
		}
		w = e
	case config.WorkloadSleep:
		w = NewSleep(cfg.Sleep)
	case config.WorkloadWebSocket:
		ws, err := NewWebSocket(cfg)
		if err != nil {
			return nil, fmt.Errorf("workload %s: %w", cfg.Label(), err)
		}
		if o.tracer.ShouldPropagate() {
			ws.WithHeaderInjector(tracing.InjectHTTPHeaders)
		}
		w = ws
	case config.WorkloadGRPC:
		g, err := NewGRPC(cfg)
		if err != nil {
			return nil, fmt.Errorf("workload %s: %w", cfg.Label(), err)
		}
		if o.tracer.ShouldPropagate() {
			g.WithHeaderInjector(tracing.InjectHTTPHeaders)
		}
		w = g
	default:
		return nil, fmt.Errorf("workload %s: unsupported kind %q", cfg.Label(), cfg.Kind)
	}

	if o.tracer.Enabled() {
		w = tracing.WithSpans(w, o.tracer.Tracer(), string(cfg.Kind), cfg.Name)
	}
	return w, nil
}

// Target describes what cfg exercises, for reports.
func Target(cfg config.WorkloadConfig) string {
	switch cfg.Kind {
	case config.WorkloadHTTP:
		method := cfg.Method
		if method == "" {
			method = http.MethodGet
		}
		return method + " " + cfg.URL
	case config.WorkloadExec:
		return strings.Join(cfg.Command, " ")
	case config.WorkloadSleep:
		return "sleep " + cfg.Sleep.String()
	case config.WorkloadWebSocket:
		return "WS " + cfg.URL
	case config.WorkloadGRPC:
		return "gRPC " + cfg.URL + " " + cfg.Service + "/" + cfg.RPC
	default:
		return ""
	}
}
