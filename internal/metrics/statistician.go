package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// DefaultResidentLimit is the number of samples kept in memory before
	// their squared deviations are carried into a scalar and the buffer is
	// cleared.
	DefaultResidentLimit = 100_000

	// z-score of a two-sided 95% confidence interval.
	confidenceZ = 1.96
)

// Source is the producer side a Statistician folds from. Drain must hand
// every pending sample to fn exactly once; Counts returns cumulative totals.
type Source interface {
	Drain(fn func(nanos int64)) int
	Counts() (success, failure int64, costs time.Duration)
}

// Statistician incrementally folds latency samples into running aggregates.
//
// A single updater at a time holds mu while folding. Readers use the
// sequence counter to copy the last published aggregates without taking the
// lock and fall back to mu when a write was in progress.
//
// Once more than the resident limit of samples has been folded, the squared
// deviations of the resident samples are computed against the mean at that
// moment and carried forward, so the reported standard deviation becomes an
// approximation on long runs while memory stays bounded.
type Statistician struct {
	mu       sync.Mutex
	limit    int
	resident []int64
	hist     *hdrhistogram.Histogram
	sum      int64
	min      int64
	max      int64
	n        int64
	varSum   float64

	seq atomic.Uint64
	pub published
}

type published struct {
	success    atomic.Int64
	failure    atomic.Int64
	samples    atomic.Int64
	costs      atomic.Int64
	sum        atomic.Int64
	avg        atomic.Int64
	min        atomic.Int64
	max        atomic.Int64
	p50        atomic.Int64
	p90        atomic.Int64
	p95        atomic.Int64
	p99        atomic.Int64
	throughput atomic.Uint64
	stdDev     atomic.Uint64
	lowerCI    atomic.Uint64
	upperCI    atomic.Uint64
}

// NewStatistician creates a Statistician that keeps at most limit samples
// resident. A non-positive limit selects DefaultResidentLimit.
func NewStatistician(limit int) *Statistician {
	if limit <= 0 {
		limit = DefaultResidentLimit
	}
	initial := limit
	if initial > 4096 {
		initial = 4096
	}
	return &Statistician{
		limit:    limit,
		resident: make([]int64, 0, initial),
		// Track latencies from 1ns up to one hour with 3 significant figures.
		hist: hdrhistogram.New(1, int64(time.Hour), 3),
	}
}

// Update folds samples into the aggregates, publishes the given cumulative
// counters and returns the resulting snapshot.
func (s *Statistician) Update(success, failure int64, costs time.Duration, samples []int64) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range samples {
		s.fold(v)
	}
	s.publish(success, failure, costs)
	return s.load()
}

// Refresh drains src, folds everything it yields and publishes its counters.
func (s *Statistician) Refresh(src Source) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(src)
}

// TryRefresh is Refresh without waiting: it reports false when another
// updater currently holds the lock.
func (s *Statistician) TryRefresh(src Source) bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()
	s.refreshLocked(src)
	return true
}

func (s *Statistician) refreshLocked(src Source) Snapshot {
	// Samples are pushed after their success is counted, so reading the
	// counters after the drain keeps samples <= success.
	src.Drain(s.fold)
	success, failure, costs := src.Counts()
	s.publish(success, failure, costs)
	return s.load()
}

// Snapshot returns the last published aggregates without folding anything.
func (s *Statistician) Snapshot() Snapshot {
	seq := s.seq.Load()
	if seq&1 == 0 {
		snap := s.load()
		if s.seq.Load() == seq {
			return snap
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Statistician) fold(v int64) {
	if v < 0 {
		v = 0
	}
	if s.n == 0 || v < s.min {
		s.min = v
	}
	if v > s.max {
		s.max = v
	}
	s.sum += v
	s.n++

	rec := v
	if rec < s.hist.LowestTrackableValue() {
		rec = s.hist.LowestTrackableValue()
	}
	if rec > s.hist.HighestTrackableValue() {
		rec = s.hist.HighestTrackableValue()
	}
	_ = s.hist.RecordValue(rec)

	s.resident = append(s.resident, v)
	if len(s.resident) > s.limit {
		s.carry()
	}
}

// carry moves the resident samples' squared deviations into varSum and
// reuses the buffer.
func (s *Statistician) carry() {
	avg := float64(s.sum / s.n)
	for _, r := range s.resident {
		d := float64(r) - avg
		s.varSum += d * d
	}
	s.resident = s.resident[:0]
}

func (s *Statistician) publish(success, failure int64, costs time.Duration) {
	var (
		avg                int64
		std, lower, upper  float64
		p50, p90, p95, p99 int64
	)
	if s.n > 0 {
		avg = s.sum / s.n
		current := s.varSum
		for _, r := range s.resident {
			d := float64(r - avg)
			current += d * d
		}
		std = math.Sqrt(current / float64(s.n))
		half := confidenceZ * std / math.Sqrt(float64(s.n))
		lower = float64(avg) - half
		upper = float64(avg) + half

		p50 = s.hist.ValueAtQuantile(50)
		p90 = s.hist.ValueAtQuantile(90)
		p95 = s.hist.ValueAtQuantile(95)
		p99 = s.hist.ValueAtQuantile(99)
	}

	s.seq.Add(1)
	s.pub.success.Store(success)
	s.pub.failure.Store(failure)
	s.pub.samples.Store(s.n)
	s.pub.costs.Store(int64(costs))
	s.pub.sum.Store(s.sum)
	s.pub.avg.Store(avg)
	s.pub.min.Store(s.min)
	s.pub.max.Store(s.max)
	s.pub.p50.Store(p50)
	s.pub.p90.Store(p90)
	s.pub.p95.Store(p95)
	s.pub.p99.Store(p99)
	s.pub.throughput.Store(math.Float64bits(Throughput(success+failure, costs)))
	s.pub.stdDev.Store(math.Float64bits(std))
	s.pub.lowerCI.Store(math.Float64bits(lower))
	s.pub.upperCI.Store(math.Float64bits(upper))
	s.seq.Add(1)
}

func (s *Statistician) load() Snapshot {
	snap := Snapshot{
		Success:    s.pub.success.Load(),
		Failure:    s.pub.failure.Load(),
		Samples:    s.pub.samples.Load(),
		Costs:      time.Duration(s.pub.costs.Load()),
		Throughput: math.Float64frombits(s.pub.throughput.Load()),
		Sum:        time.Duration(s.pub.sum.Load()),
		Avg:        time.Duration(s.pub.avg.Load()),
		Min:        time.Duration(s.pub.min.Load()),
		Max:        time.Duration(s.pub.max.Load()),
		P50:        time.Duration(s.pub.p50.Load()),
		P90:        time.Duration(s.pub.p90.Load()),
		P95:        time.Duration(s.pub.p95.Load()),
		P99:        time.Duration(s.pub.p99.Load()),
		StdDev:     math.Float64frombits(s.pub.stdDev.Load()),
		LowerCI:    math.Float64frombits(s.pub.lowerCI.Load()),
		UpperCI:    math.Float64frombits(s.pub.upperCI.Load()),
	}
	snap.Total = snap.Success + snap.Failure
	snap.fillMillis()
	return snap
}
