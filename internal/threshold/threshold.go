// Package threshold asserts limits on a run's statistics.
//
// A threshold reads "metric:aggregate operator value", for example
// "duration:p95 < 250" or "ci:upper <= 12". Latency values are in
// milliseconds. See Metrics for the supported pairs.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/torosent/crankbench/internal/metrics"
)

// Threshold is one parsed assertion.
type Threshold struct {
	Metric    string // e.g. "duration", "ci", "failed"
	Aggregate string // e.g. "p95", "upper", "rate"
	Operator  string // one of <, <=, >, >=, ==, !=
	Value     float64
	Raw       string // as written, for display
}

// Result is the outcome of evaluating one threshold against one snapshot.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

type reader func(metrics.Snapshot) float64

func ms(v float64) float64 { return v / 1e6 }

// table lists every metric:aggregate pair a threshold may name.
var table = map[string]map[string]reader{
	"duration": {
		"avg":    func(s metrics.Snapshot) float64 { return ms(float64(s.Avg)) },
		"mean":   func(s metrics.Snapshot) float64 { return ms(float64(s.Avg)) },
		"min":    func(s metrics.Snapshot) float64 { return ms(float64(s.Min)) },
		"max":    func(s metrics.Snapshot) float64 { return ms(float64(s.Max)) },
		"p50":    func(s metrics.Snapshot) float64 { return ms(float64(s.P50)) },
		"p90":    func(s metrics.Snapshot) float64 { return ms(float64(s.P90)) },
		"p95":    func(s metrics.Snapshot) float64 { return ms(float64(s.P95)) },
		"p99":    func(s metrics.Snapshot) float64 { return ms(float64(s.P99)) },
		"stddev": func(s metrics.Snapshot) float64 { return ms(s.StdDev) },
		"sum":    func(s metrics.Snapshot) float64 { return ms(float64(s.Sum)) },
	},
	// 95% confidence interval of the mean.
	"ci": {
		"lower": func(s metrics.Snapshot) float64 { return ms(s.LowerCI) },
		"upper": func(s metrics.Snapshot) float64 { return ms(s.UpperCI) },
		"width": func(s metrics.Snapshot) float64 { return ms(s.UpperCI - s.LowerCI) },
	},
	"failed": {
		"count": func(s metrics.Snapshot) float64 { return float64(s.Failure) },
		"rate":  metrics.Snapshot.FailureRate,
	},
	"success": {
		"count": func(s metrics.Snapshot) float64 { return float64(s.Success) },
		"rate": func(s metrics.Snapshot) float64 {
			if s.Total == 0 {
				return 0
			}
			return float64(s.Success) / float64(s.Total)
		},
	},
	"invocations": {
		"count": func(s metrics.Snapshot) float64 { return float64(s.Total) },
		"rate":  func(s metrics.Snapshot) float64 { return s.Throughput },
	},
	"total": {
		"count": func(s metrics.Snapshot) float64 { return float64(s.Total) },
	},
	"samples": {
		"count": func(s metrics.Snapshot) float64 { return float64(s.Samples) },
	},
	"costs": {
		"total": func(s metrics.Snapshot) float64 { return ms(float64(s.Costs)) },
	},
}

var (
	pattern   = regexp.MustCompile(`^([a-z_]+):([a-z0-9_]+)\s*([<>=!]+)\s*(\S+)$`)
	operators = []string{"<", "<=", ">", ">=", "==", "!="}
)

// Metrics lists the supported "metric:aggregate" pairs in sorted order.
func Metrics() []string {
	var out []string
	for metric, aggs := range table {
		for agg := range aggs {
			out = append(out, metric+":"+agg)
		}
	}
	sort.Strings(out)
	return out
}

// Value reads metric:aggregate from s.
func Value(metric, aggregate string, s metrics.Snapshot) (float64, error) {
	read, err := lookup(metric, aggregate)
	if err != nil {
		return 0, err
	}
	return read(s), nil
}

func lookup(metric, aggregate string) (reader, error) {
	aggs, ok := table[metric]
	if !ok {
		names := make([]string, 0, len(table))
		for name := range table {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unsupported metric %q (supported: %s)", metric, strings.Join(names, ", "))
	}
	read, ok := aggs[aggregate]
	if !ok {
		names := make([]string, 0, len(aggs))
		for name := range aggs {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(names, ", "))
	}
	return read, nil
}

// Parse parses one threshold, e.g. "duration:p95 < 500" or "failed:rate < 0.01".
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric:aggregate operator value, e.g. 'duration:p95 < 500')", s)
	}
	t := Threshold{Metric: m[1], Aggregate: m[2], Operator: m[3], Raw: s}

	if _, err := lookup(t.Metric, t.Aggregate); err != nil {
		return Threshold{}, err
	}
	if !validOperator(t.Operator) {
		return Threshold{}, fmt.Errorf("unsupported operator %q (supported: %s)", t.Operator, strings.Join(operators, ", "))
	}
	v, err := strconv.ParseFloat(m[4], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Threshold{}, fmt.Errorf("invalid threshold value %q", m[4])
	}
	t.Value = v
	return t, nil
}

// ParseMultiple parses every threshold and reports all failures together.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}
	out := make([]Threshold, 0, len(thresholds))
	var problems []string
	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			problems = append(problems, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		out = append(out, t)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(problems, "; "))
	}
	return out, nil
}

func validOperator(op string) bool {
	for _, v := range operators {
		if op == v {
			return true
		}
	}
	return false
}

// Evaluator checks a fixed set of thresholds against snapshots.
type Evaluator struct {
	thresholds []Threshold
}

func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate returns one Result per threshold, in order.
func (e *Evaluator) Evaluate(s metrics.Snapshot) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}
	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluate(t, s))
	}
	return results
}

func evaluate(t Threshold, s metrics.Snapshot) Result {
	actual, err := Value(t.Metric, t.Aggregate, s)
	if err != nil {
		return Result{Threshold: t, Message: fmt.Sprintf("error: %v", err)}
	}
	pass := compare(actual, t.Operator, t.Value)
	mark := "✓"
	if !pass {
		mark = "✗"
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %s %s %s", mark, t.Raw, formatFloat(actual), t.Operator, formatFloat(t.Value)),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

const epsilon = 1e-9

func compare(actual float64, op string, expected float64) bool {
	equal := math.Abs(actual-expected) < epsilon
	switch op {
	case "<":
		return actual < expected && !equal
	case "<=":
		return actual <= expected || equal
	case ">":
		return actual > expected && !equal
	case ">=":
		return actual >= expected || equal
	case "==":
		return equal
	case "!=":
		return !equal
	default:
		return false
	}
}

// Faster reports whether a's average latency is strictly lower than b's.
func Faster(a, b metrics.Snapshot) bool {
	avg := table["duration"]["avg"]
	return avg(a) < avg(b)
}

// AssertFaster returns an error unless a is Faster than b.
func AssertFaster(a, b metrics.Snapshot) error {
	if Faster(a, b) {
		return nil
	}
	return fmt.Errorf("%s (avg %s) is not faster than %s (avg %s)",
		label(a, "first"), metrics.FormatDuration(a.Avg), label(b, "second"), metrics.FormatDuration(b.Avg))
}

func label(s metrics.Snapshot, fallback string) string {
	if s.Name != "" {
		return s.Name
	}
	return fallback
}
