package runner

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/crankbench/internal/metrics"
)

// Status is the lifecycle position of a run.
type Status int32

const (
	StatusIdle Status = iota
	StatusRunning
	StatusCompleted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is Completed or Cancelled.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// RunState holds the counters and pending samples shared by the workers of
// one run and the readers polling it. Recording never blocks; draining is
// single-consumer and is only done by the statistician's updater.
//
// Once the run is terminal, new recordings are dropped so the counters stay
// frozen; samples already queued are still folded by the final drain.
type RunState struct {
	status  atomic.Int32
	success atomic.Int64
	failure atomic.Int64
	start   atomic.Int64
	end     atomic.Int64
	pending atomic.Int64

	queue    sampleQueue
	limit    int64
	overflow func()
	errors   metrics.ErrorTally

	doneOnce sync.Once
	done     chan struct{}
}

// NewRunState creates an idle RunState. When more than limit samples are
// pending, producers call overflow so a drain can be attempted; overflow
// must not block.
func NewRunState(limit int, overflow func()) *RunState {
	if limit <= 0 {
		limit = metrics.DefaultResidentLimit
	}
	s := &RunState{
		limit:    int64(limit),
		overflow: overflow,
		done:     make(chan struct{}),
	}
	s.queue.init()
	return s
}

// Begin moves Idle to Running and stamps the start time.
func (s *RunState) Begin() bool {
	if !s.status.CompareAndSwap(int32(StatusIdle), int32(StatusRunning)) {
		return false
	}
	s.start.Store(nanotime())
	return true
}

// Finish enters the terminal state: Cancelled when cancelled is set,
// Completed otherwise. Only the first caller wins; later calls return false
// and leave the outcome untouched.
func (s *RunState) Finish(cancelled bool) bool {
	target := StatusCompleted
	if cancelled {
		target = StatusCancelled
	}
	for {
		cur := Status(s.status.Load())
		if cur.Terminal() {
			return false
		}
		if cur == StatusIdle && !cancelled {
			return false
		}
		if s.status.CompareAndSwap(int32(cur), int32(target)) {
			s.end.CompareAndSwap(0, nanotime())
			s.doneOnce.Do(func() { close(s.done) })
			return true
		}
	}
}

// RecordSuccess counts a successful invocation and queues its duration.
func (s *RunState) RecordSuccess(nanos int64) {
	if s.Status() != StatusRunning {
		return
	}
	s.success.Add(1)
	s.queue.push(nanos)
	if s.pending.Add(1) > s.limit && s.overflow != nil {
		s.overflow()
	}
}

// RecordFailure counts a failed invocation.
func (s *RunState) RecordFailure(err error) {
	if s.Status() != StatusRunning {
		return
	}
	s.failure.Add(1)
	s.errors.Record(err)
}

// Drain hands every queued sample to fn. Callers must serialize Drain.
func (s *RunState) Drain(fn func(nanos int64)) int {
	n := 0
	for {
		v, ok := s.queue.pop()
		if !ok {
			break
		}
		fn(v)
		n++
	}
	if n > 0 {
		s.pending.Add(int64(-n))
	}
	return n
}

// DrainNewSamples returns every queued sample as a slice.
func (s *RunState) DrainNewSamples() []int64 {
	var out []int64
	s.Drain(func(v int64) { out = append(out, v) })
	return out
}

// Counts returns the cumulative counters and the run's current costs.
func (s *RunState) Counts() (success, failure int64, costs time.Duration) {
	return s.success.Load(), s.failure.Load(), s.Costs()
}

// Costs is end-start once terminal and now-start while running. A reader
// racing the terminal transition may see either.
func (s *RunState) Costs() time.Duration {
	start := s.start.Load()
	if start == 0 {
		return 0
	}
	end := s.end.Load()
	if end == 0 {
		end = nanotime()
	}
	if end < start {
		return 0
	}
	return time.Duration(end - start)
}

func (s *RunState) Status() Status       { return Status(s.status.Load()) }
func (s *RunState) Running() bool        { return s.Status() == StatusRunning }
func (s *RunState) Terminal() bool       { return s.Status().Terminal() }
func (s *RunState) Cancelled() bool      { return s.Status() == StatusCancelled }
func (s *RunState) Success() int64       { return s.success.Load() }
func (s *RunState) Failure() int64       { return s.failure.Load() }
func (s *RunState) Total() int64         { return s.success.Load() + s.failure.Load() }
func (s *RunState) StartTime() time.Time { return wallTime(s.start.Load()) }
func (s *RunState) EndTime() time.Time   { return wallTime(s.end.Load()) }

// Errors returns failure counts keyed by a friendly error label.
func (s *RunState) Errors() map[string]int64 { return s.errors.Counts() }

// Stopped is closed once the run reaches a terminal state.
func (s *RunState) Stopped() <-chan struct{} { return s.done }
