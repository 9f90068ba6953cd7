package runner

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Bound selects what ends a run.
type Bound int

const (
	BoundIterations Bound = iota // fixed invocation count
	BoundDuration                // wall-clock deadline
)

// Limit selects how many workers may execute at once.
type Limit int

const (
	LimitSingle     Limit = iota // one worker, sequential invocations
	LimitConcurrent              // workers gated by a counting semaphore
)

// Plan tags one of the four execution strategies.
type Plan struct {
	Bound Bound
	Limit Limit
}

// Select picks the strategy for opt: a duration selects a deadline-bound
// run and a concurrency above one selects the concurrency-limited variant.
func Select(opt Options) Plan {
	var p Plan
	if opt.Duration > 0 {
		p.Bound = BoundDuration
	}
	if opt.Concurrency > 1 {
		p.Limit = LimitConcurrent
	}
	return p
}

func (p Plan) String() string {
	bound := "fixed-count"
	if p.Bound == BoundDuration {
		bound = "duration"
	}
	limit := "single"
	if p.Limit == LimitConcurrent {
		limit = "concurrent"
	}
	return bound + "/" + limit
}

// Strategy drives the workers of one run until it ends or is stopped.
type Strategy interface {
	Plan() Plan
	execute(e *execution)
}

// NewStrategy returns the strategy tagged by p.
func NewStrategy(p Plan) Strategy {
	switch {
	case p.Bound == BoundDuration && p.Limit == LimitConcurrent:
		return durationConcurrent{}
	case p.Bound == BoundDuration:
		return durationSingle{}
	case p.Limit == LimitConcurrent:
		return fixedConcurrent{}
	default:
		return fixedSingle{}
	}
}

// execution is everything a strategy needs for one run. Stopping is
// cooperative: workers check the state between invocations and an
// invocation in flight always runs to completion.
type execution struct {
	ctx         context.Context // handed to the workload; stop does not cancel it
	stopCtx     context.Context // cancelled on stop; aborts pacing and slot waits
	state       *RunState
	work        Workload
	arrival     arrivalController
	workers     int
	concurrency int
	iterations  int
	deadline    int64
}

func (e *execution) invoke() {
	if e.arrival != nil {
		if err := e.arrival.Wait(e.stopCtx); err != nil || !e.state.Running() {
			return
		}
	}
	begin := nanotime()
	err := e.work.Do(e.ctx)
	elapsed := nanotime() - begin
	if err != nil {
		e.state.RecordFailure(err)
		return
	}
	e.state.RecordSuccess(elapsed)
}

// live reports whether a deadline-bound worker may start another invocation.
func (e *execution) live() bool {
	return e.state.Running() && nanotime() < e.deadline
}

type fixedSingle struct{}

func (fixedSingle) Plan() Plan { return Plan{BoundIterations, LimitSingle} }

func (fixedSingle) execute(e *execution) {
	total := e.workers * e.iterations
	for i := 0; i < total && e.state.Running(); i++ {
		e.invoke()
	}
}

type fixedConcurrent struct{}

func (fixedConcurrent) Plan() Plan { return Plan{BoundIterations, LimitConcurrent} }

func (fixedConcurrent) execute(e *execution) {
	sem := semaphore.NewWeighted(int64(min(e.concurrency, e.workers)))
	var g errgroup.Group
	g.SetLimit(min(e.workers, MaxPoolSize))

	for i := 0; i < e.workers && e.state.Running(); i++ {
		g.Go(func() error {
			if err := sem.Acquire(e.stopCtx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			for j := 0; j < e.iterations && e.state.Running(); j++ {
				e.invoke()
			}
			return nil
		})
	}
	_ = g.Wait()
}

type durationSingle struct{}

func (durationSingle) Plan() Plan { return Plan{BoundDuration, LimitSingle} }

func (durationSingle) execute(e *execution) {
	for e.live() {
		e.invoke()
	}
}

// durationConcurrent keeps concurrency workers looping until the deadline;
// the worker count is not used without an iteration count.
type durationConcurrent struct{}

func (durationConcurrent) Plan() Plan { return Plan{BoundDuration, LimitConcurrent} }

func (durationConcurrent) execute(e *execution) {
	n := min(e.concurrency, MaxPoolSize)
	sem := semaphore.NewWeighted(int64(e.concurrency))
	var g errgroup.Group
	g.SetLimit(n)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := sem.Acquire(e.stopCtx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			for e.live() {
				e.invoke()
			}
			return nil
		})
	}
	_ = g.Wait()
}
