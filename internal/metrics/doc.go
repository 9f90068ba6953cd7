// Package metrics folds benchmark latency samples into streaming statistics.
//
// The metrics package turns the durations of successful invocations into a
// [Snapshot]: counters, throughput, sum/avg/min/max, standard deviation, a 95%
// confidence interval and HDR histogram percentiles. It is built to be read
// while workers are still producing samples.
//
// # Statistician
//
// A [Statistician] owns the aggregates of one run. Producers never touch it
// directly; instead a reader asks it to fold whatever is pending:
//
//	stat := metrics.NewStatistician(metrics.DefaultResidentLimit)
//	snap := stat.Refresh(state) // state implements metrics.Source
//
//	// Cheap read of the last published aggregates, no folding.
//	snap = stat.Snapshot()
//
// [Statistician.Update] is the same fold with explicit counters and samples,
// useful when the caller manages its own buffer.
//
// # Bounded Memory
//
// Samples stay resident so the variance can be computed exactly against the
// current mean. When more than the resident limit (default 100 000) have
// accumulated, their squared deviations are carried into a scalar and the
// buffer is reused. From then on the standard deviation is an approximation:
// earlier deviations were measured against an older mean. Sum, min, max and
// counts stay exact.
//
// # Thread Safety
//
// One updater folds at a time under a mutex. [Statistician.Snapshot] first
// copies the published fields guarded by a sequence counter and only takes
// the mutex if an update was in flight, so readers polling a finished run
// never block.
//
// # Formatting
//
// [FormatNanos] and [FormatDuration] render nanoseconds in the closest unit
// ("5623 ns", "32.53 ms", "1.67 min"). [Throughput] computes invocations per
// second.
package metrics
