package runner

import "time"

// epoch anchors the monotonic clock; timestamps are nanoseconds since it,
// offset by one so zero can mean "unset".
var epoch = time.Now()

func nanotime() int64 {
	return int64(time.Since(epoch)) + 1
}

func wallTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return epoch.Add(time.Duration(n - 1))
}
