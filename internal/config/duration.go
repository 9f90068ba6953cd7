package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DurationUnit is the granularity a run duration is expressed in. Anything
// finer than a second is rejected.
type DurationUnit string

const (
	UnitSeconds DurationUnit = "seconds"
	UnitMinutes DurationUnit = "minutes"
	UnitHours   DurationUnit = "hours"
	UnitDays    DurationUnit = "days"
)

var unitLengths = map[DurationUnit]time.Duration{
	UnitSeconds: time.Second,
	UnitMinutes: time.Minute,
	UnitHours:   time.Hour,
	UnitDays:    24 * time.Hour,
}

var unitSuffixes = map[byte]DurationUnit{
	's': UnitSeconds,
	'm': UnitMinutes,
	'h': UnitHours,
	'd': UnitDays,
}

// RunDuration is how long a timed run lasts: Amount units.
type RunDuration struct {
	Amount int64
	Unit   DurationUnit
}

// Seconds is a RunDuration of n seconds.
func Seconds(n int64) RunDuration { return RunDuration{Amount: n, Unit: UnitSeconds} }

func (d RunDuration) IsZero() bool { return d.Amount == 0 }

// Duration converts d to a time.Duration. Unknown units count as seconds.
func (d RunDuration) Duration() time.Duration {
	unit, ok := unitLengths[d.Unit]
	if !ok {
		unit = time.Second
	}
	return time.Duration(d.Amount) * unit
}

func (d RunDuration) Validate() error {
	if d.Amount <= 0 {
		return fmt.Errorf("amount must be > 0, got %d", d.Amount)
	}
	if _, ok := unitLengths[d.Unit]; !ok {
		return fmt.Errorf("unit %q is not supported (seconds, minutes, hours, days)", d.Unit)
	}
	return nil
}

func (d RunDuration) String() string {
	if d.IsZero() {
		return "0s"
	}
	for suffix, unit := range unitSuffixes {
		if unit == d.Unit {
			return strconv.FormatInt(d.Amount, 10) + string(suffix)
		}
	}
	return strconv.FormatInt(d.Amount, 10) + "s"
}

// ParseRunDuration reads durations such as "30", "45s", "5m" or "2d5h23m1s".
// A single term keeps its unit; a bare number or a compound expression is
// normalized to seconds. Sub-second units are rejected.
func ParseRunDuration(s string) (RunDuration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RunDuration{}, nil
	}

	var (
		total   int64
		terms   int
		last    DurationUnit
		lastAmt int64
		digits  strings.Builder
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits.WriteByte(c)
		case c == ' ':
		default:
			unit, ok := unitSuffixes[c]
			if !ok {
				return RunDuration{}, fmt.Errorf("invalid duration %q: unexpected %q", s, c)
			}
			if i+1 < len(s) && s[i+1] == 's' && c == 'm' {
				return RunDuration{}, fmt.Errorf("invalid duration %q: units finer than a second are not supported", s)
			}
			if digits.Len() == 0 {
				return RunDuration{}, fmt.Errorf("invalid duration %q: missing amount before %q", s, c)
			}
			n, err := strconv.ParseInt(digits.String(), 10, 64)
			if err != nil {
				return RunDuration{}, fmt.Errorf("invalid duration %q: %w", s, err)
			}
			digits.Reset()
			total += n * int64(unitLengths[unit]/time.Second)
			terms++
			last, lastAmt = unit, n
		}
	}
	if digits.Len() > 0 {
		n, err := strconv.ParseInt(digits.String(), 10, 64)
		if err != nil {
			return RunDuration{}, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		total += n
		terms++
		last, lastAmt = UnitSeconds, n
	}

	if terms == 1 {
		return RunDuration{Amount: lastAmt, Unit: last}, nil
	}
	return Seconds(total), nil
}
