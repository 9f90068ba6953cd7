package runner

import (
	"context"

	"github.com/torosent/crankbench/internal/metrics"
)

// Run measures w with opt and blocks until the run is finished. Cancelling
// ctx cancels the run; the partial statistics are still returned with
// Cancelled set. Only invalid options produce an error.
func Run(ctx context.Context, opt Options, w Workload) (metrics.Snapshot, error) {
	h, err := Start(ctx, opt, w)
	if err != nil {
		return metrics.Snapshot{}, err
	}
	<-h.Done()
	return h.Snapshot(), nil
}

// Warmup invokes w n times without measuring and returns how many of those
// invocations failed. Failures go to opt's failure logger when PrintErrorLog
// is set.
func Warmup(ctx context.Context, opt Options, w Workload, n int) int {
	opt.normalize()
	var work Workload = recovering{inner: w}
	if opt.PrintErrorLog {
		work = WithLogging(work, opt.FailureLogger)
	}
	return warmup(ctx, work, n, func() bool { return false })
}

func warmup(ctx context.Context, w Workload, n int, stopped func() bool) int {
	failed := 0
	for i := 0; i < n; i++ {
		if ctx.Err() != nil || stopped() {
			break
		}
		if err := w.Do(ctx); err != nil {
			failed++
		}
	}
	return failed
}
