package metrics

import "time"

// Snapshot is an immutable point-in-time read of a run's aggregate statistics.
// A fresh value is built on every read.
type Snapshot struct {
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Total     int64  `json:"total" yaml:"total"`
	Success   int64  `json:"success" yaml:"success"`
	Failure   int64  `json:"failure" yaml:"failure"`
	Samples   int64  `json:"samples" yaml:"samples"`
	Cancelled bool   `json:"cancelled" yaml:"cancelled"`

	Costs      time.Duration `json:"-" yaml:"-"`
	Throughput float64       `json:"throughput" yaml:"throughput"`
	Sum        time.Duration `json:"-" yaml:"-"`
	Avg        time.Duration `json:"-" yaml:"-"` // Sum / Samples; failed invocations are not folded in
	Min        time.Duration `json:"-" yaml:"-"`
	Max        time.Duration `json:"-" yaml:"-"`
	P50        time.Duration `json:"-" yaml:"-"`
	P90        time.Duration `json:"-" yaml:"-"`
	P95        time.Duration `json:"-" yaml:"-"`
	P99        time.Duration `json:"-" yaml:"-"`

	// Dispersion in nanoseconds.
	StdDev  float64 `json:"-" yaml:"-"`
	LowerCI float64 `json:"-" yaml:"-"`
	UpperCI float64 `json:"-" yaml:"-"`

	// JSON-friendly millisecond fields.
	CostsMs   float64 `json:"costs_ms" yaml:"costs_ms"`
	SumMs     float64 `json:"sum_ms" yaml:"sum_ms"`
	AvgMs     float64 `json:"avg_ms" yaml:"avg_ms"`
	MinMs     float64 `json:"min_ms" yaml:"min_ms"`
	MaxMs     float64 `json:"max_ms" yaml:"max_ms"`
	P50Ms     float64 `json:"p50_ms" yaml:"p50_ms"`
	P90Ms     float64 `json:"p90_ms" yaml:"p90_ms"`
	P95Ms     float64 `json:"p95_ms" yaml:"p95_ms"`
	P99Ms     float64 `json:"p99_ms" yaml:"p99_ms"`
	StdDevMs  float64 `json:"stddev_ms" yaml:"stddev_ms"`
	LowerCIMs float64 `json:"lower_ci_ms" yaml:"lower_ci_ms"`
	UpperCIMs float64 `json:"upper_ci_ms" yaml:"upper_ci_ms"`

	Errors map[string]int64 `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// FailureRate returns failures as a fraction of all invocations.
func (s Snapshot) FailureRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failure) / float64(s.Total)
}

func (s *Snapshot) fillMillis() {
	s.CostsMs = durationMs(s.Costs)
	s.SumMs = durationMs(s.Sum)
	s.AvgMs = durationMs(s.Avg)
	s.MinMs = durationMs(s.Min)
	s.MaxMs = durationMs(s.Max)
	s.P50Ms = durationMs(s.P50)
	s.P90Ms = durationMs(s.P90)
	s.P95Ms = durationMs(s.P95)
	s.P99Ms = durationMs(s.P99)
	s.StdDevMs = s.StdDev / 1e6
	s.LowerCIMs = s.LowerCI / 1e6
	s.UpperCIMs = s.UpperCI / 1e6
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Throughput returns invocations per second over the given costs, or 0 when
// no time has elapsed.
func Throughput(total int64, costs time.Duration) float64 {
	if costs <= 0 {
		return 0
	}
	return float64(total) / (float64(costs) / 1e9)
}
