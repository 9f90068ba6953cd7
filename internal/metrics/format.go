package metrics

import (
	"math"
	"strconv"
	"time"
)

// FormatNanos renders a nanosecond quantity in the closest human unit:
// integral nanoseconds below 100µs, otherwise ms, s, min, h or d rounded to
// at most two decimals ("1.5 ms", "2 s").
func FormatNanos(n float64) string {
	switch {
	case n < 1e5:
		return strconv.FormatInt(int64(n), 10) + " ns"
	case n < 1e9:
		return round2(n/1e6) + " ms"
	case n < 6e10:
		return round2(n/1e9) + " s"
	case n < 36e11:
		return round2(n/6e10) + " min"
	case n < 864e11:
		return round2(n/36e11) + " h"
	default:
		return round2(n/864e11) + " d"
	}
}

// FormatDuration is FormatNanos for a time.Duration.
func FormatDuration(d time.Duration) string {
	return FormatNanos(float64(d))
}

// FormatRate renders a per-second rate with exactly two decimals so rates
// line up in tables.
func FormatRate(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// round2 rounds to two decimals and drops trailing zeros.
func round2(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
