package history

import (
	"fmt"

	"github.com/torosent/crankbench/internal/metrics"
)

// Delta compares a result against an earlier run of the same workload.
// Only the millisecond fields survive a round trip through the file, so
// both sides are compared on those.
type Delta struct {
	Previous   metrics.Snapshot
	Current    metrics.Snapshot
	AvgChange  float64 // relative change of the average, e.g. -0.1 for 10% faster
	Faster     bool    // current average is below previous
	Overlapped bool    // 95% confidence intervals overlap
}

// Compare computes the change from prev to cur.
func Compare(prev, cur metrics.Snapshot) Delta {
	d := Delta{Previous: prev, Current: cur, Faster: cur.AvgMs < prev.AvgMs}
	if prev.AvgMs > 0 {
		d.AvgChange = (cur.AvgMs - prev.AvgMs) / prev.AvgMs
	}
	d.Overlapped = cur.LowerCIMs <= prev.UpperCIMs && prev.LowerCIMs <= cur.UpperCIMs
	return d
}

func (d Delta) String() string {
	verdict := "slower"
	if d.Faster {
		verdict = "faster"
	}
	if d.Overlapped {
		verdict += ", within noise"
	}
	return fmt.Sprintf("avg %s -> %s (%+.1f%%, %s)",
		metrics.FormatNanos(d.Previous.AvgMs*1e6),
		metrics.FormatNanos(d.Current.AvgMs*1e6),
		d.AvgChange*100,
		verdict,
	)
}
