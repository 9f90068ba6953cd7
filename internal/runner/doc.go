// Package runner is the execution and measurement engine of crankbench.
//
// The runner package invokes a [Workload] repeatedly under a configurable
// concurrency and records how long every successful invocation took:
//   - Fixed invocation count or wall-clock duration
//   - A single sequential worker or workers gated by a counting semaphore
//   - Unmeasured warmup invocations
//   - Optional pacing (uniform or Poisson arrivals)
//   - Blocking runs and cancellable asynchronous handles
//
// # Basic Usage
//
// Run blocks until the measurement is finished:
//
//	opts := runner.Options{
//		Name:        "encode",
//		Workers:     4,
//		Concurrency: 2,
//		Iterations:  1000,
//	}
//	snap, err := runner.Run(ctx, opts, runner.WorkloadFunc(encode))
//
// Start returns a [Handle] immediately:
//
//	h, err := runner.Start(ctx, opts, w)
//	snap := h.Snapshot() // non-blocking, best-effort current statistics
//	h.Cancel()
//	<-h.Done()
//
// # Strategies
//
// [Select] maps options to one of four strategies:
//
//	duration set?  concurrency > 1?  strategy
//	no             no                fixed-count, single worker
//	no             yes               fixed-count, concurrency-limited
//	yes            no                duration-bound, single worker
//	yes            yes               duration-bound, concurrency-limited
//
// Every run moves Idle -> Running -> Completed or Cancelled exactly once.
// A deadline elapsing completes a run; only [Handle.Cancel] (or cancelling
// the context given to Start) marks it cancelled. When both race, the first
// transition wins.
//
// # Cancellation
//
// Stopping is cooperative. Workers check for it between invocations, and an
// invocation already in flight is never interrupted: a slow workload delays
// the end of the run by at most one invocation per worker. The workload's
// context is the caller's, so Cancel alone does not abort it.
//
// # Statistics
//
// Workers only append to a lock-free queue and bump atomic counters. The
// samples are folded into a [metrics.Statistician] when a reader asks for a
// snapshot, by the optional refresh task ([RefreshPolicy]), or when too many
// samples are pending.
//
// # Middleware
//
// Enhance workloads with middleware:
//   - [WithLogging]: Log invocation failures
//   - [WithRetry]: Retry failed invocations within one measurement
//
// A panicking workload is recorded as a failure carrying a [PanicError].
package runner
