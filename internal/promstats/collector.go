// Package promstats exposes live run statistics as Prometheus metrics.
package promstats

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/torosent/crankbench/internal/metrics"
)

// Source yields the current statistics of one run.
type Source interface {
	Snapshot() metrics.Snapshot
}

var latencyStats = []string{"avg", "min", "max", "p50", "p90", "p95", "p99"}

// Collector is a prometheus.Collector reading snapshots of registered runs
// on every scrape.
type Collector struct {
	mu      sync.RWMutex
	sources map[string]Source

	invocations *prometheus.Desc
	samples     *prometheus.Desc
	latency     *prometheus.Desc
	stddev      *prometheus.Desc
	throughput  *prometheus.Desc
	costs       *prometheus.Desc
	cancelled   *prometheus.Desc
	errors      *prometheus.Desc
}

// NewCollector creates a collector with metric names under namespace.
func NewCollector(namespace string) *Collector {
	workload := []string{"workload"}
	return &Collector{
		sources: make(map[string]Source),
		invocations: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "invocations_total"),
			"Measured invocations by result.",
			[]string{"workload", "result"}, nil),
		samples: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "samples"),
			"Successful invocation durations folded into the statistics.",
			workload, nil),
		latency: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "latency_seconds"),
			"Invocation latency statistics.",
			[]string{"workload", "stat"}, nil),
		stddev: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "latency_stddev_seconds"),
			"Standard deviation of invocation latency.",
			workload, nil),
		throughput: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "throughput"),
			"Invocations per second since the run started.",
			workload, nil),
		costs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "costs_seconds"),
			"Elapsed run time.",
			workload, nil),
		cancelled: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "cancelled"),
			"1 when the run was cancelled.",
			workload, nil),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "errors_total"),
			"Failed invocations by error kind.",
			[]string{"workload", "error"}, nil),
	}
}

// Add registers src under name, replacing any previous source.
func (c *Collector) Add(name string, src Source) {
	c.mu.Lock()
	c.sources[name] = src
	c.mu.Unlock()
}

// Remove stops exporting the source registered under name.
func (c *Collector) Remove(name string) {
	c.mu.Lock()
	delete(c.sources, name)
	c.mu.Unlock()
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.invocations
	ch <- c.samples
	ch <- c.latency
	ch <- c.stddev
	ch <- c.throughput
	ch <- c.costs
	ch <- c.cancelled
	ch <- c.errors
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	names := make([]string, 0, len(c.sources))
	for name := range c.sources {
		names = append(names, name)
	}
	sources := make([]Source, len(names))
	sort.Strings(names)
	for i, name := range names {
		sources[i] = c.sources[name]
	}
	c.mu.RUnlock()

	for i, src := range sources {
		c.collectOne(ch, names[i], src.Snapshot())
	}
}

func (c *Collector) collectOne(ch chan<- prometheus.Metric, name string, s metrics.Snapshot) {
	ch <- prometheus.MustNewConstMetric(c.invocations, prometheus.CounterValue, float64(s.Success), name, "success")
	ch <- prometheus.MustNewConstMetric(c.invocations, prometheus.CounterValue, float64(s.Failure), name, "failure")
	ch <- prometheus.MustNewConstMetric(c.samples, prometheus.GaugeValue, float64(s.Samples), name)

	values := []time.Duration{s.Avg, s.Min, s.Max, s.P50, s.P90, s.P95, s.P99}
	for i, stat := range latencyStats {
		ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, values[i].Seconds(), name, stat)
	}
	ch <- prometheus.MustNewConstMetric(c.stddev, prometheus.GaugeValue, s.StdDev/1e9, name)
	ch <- prometheus.MustNewConstMetric(c.throughput, prometheus.GaugeValue, s.Throughput, name)
	ch <- prometheus.MustNewConstMetric(c.costs, prometheus.GaugeValue, s.Costs.Seconds(), name)

	cancelled := 0.0
	if s.Cancelled {
		cancelled = 1
	}
	ch <- prometheus.MustNewConstMetric(c.cancelled, prometheus.GaugeValue, cancelled, name)

	for label, count := range s.Errors {
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(count), name, label)
	}
}
