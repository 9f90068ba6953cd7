package metrics_test

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/torosent/crankbench/internal/metrics"
)

func ms(n int64) int64 { return n * int64(time.Millisecond) }

func TestStatisticianUpdateAggregates(t *testing.T) {
	s := metrics.NewStatistician(0)
	snap := s.Update(5, 0, time.Second, []int64{ms(10), ms(20), ms(30), ms(40), ms(50)})

	if snap.Total != 5 || snap.Success != 5 || snap.Failure != 0 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.Min != 10*time.Millisecond {
		t.Errorf("expected min 10ms, got %s", snap.Min)
	}
	if snap.Max != 50*time.Millisecond {
		t.Errorf("expected max 50ms, got %s", snap.Max)
	}
	if snap.Avg != 30*time.Millisecond {
		t.Errorf("expected avg 30ms, got %s", snap.Avg)
	}
	if snap.Sum != 150*time.Millisecond {
		t.Errorf("expected sum 150ms, got %s", snap.Sum)
	}
	if snap.Throughput != 5 {
		t.Errorf("expected throughput 5, got %f", snap.Throughput)
	}

	wantStd := math.Sqrt(200) * 1e6
	if math.Abs(snap.StdDev-wantStd) > 1 {
		t.Errorf("expected stddev %.0f, got %.0f", wantStd, snap.StdDev)
	}
	half := 1.96 * wantStd / math.Sqrt(5)
	if math.Abs(snap.LowerCI-(float64(snap.Avg)-half)) > 1 || math.Abs(snap.UpperCI-(float64(snap.Avg)+half)) > 1 {
		t.Errorf("unexpected confidence interval [%f, %f]", snap.LowerCI, snap.UpperCI)
	}
	if snap.AvgMs != 30 {
		t.Errorf("expected avg_ms 30, got %f", snap.AvgMs)
	}
}

func TestStatisticianIncrementalUpdates(t *testing.T) {
	s := metrics.NewStatistician(0)
	s.Update(2, 0, 10*time.Millisecond, []int64{ms(4), ms(2)})
	snap := s.Update(3, 1, 20*time.Millisecond, []int64{ms(6)})

	if snap.Total != 4 || snap.Samples != 3 {
		t.Fatalf("expected total 4 and 3 samples, got %d/%d", snap.Total, snap.Samples)
	}
	if snap.Min != 2*time.Millisecond || snap.Max != 6*time.Millisecond || snap.Avg != 4*time.Millisecond {
		t.Fatalf("unexpected min/avg/max %s/%s/%s", snap.Min, snap.Avg, snap.Max)
	}
	if snap.Throughput != 200 {
		t.Errorf("expected throughput 200, got %f", snap.Throughput)
	}
}

func TestStatisticianFailuresKeepOrdering(t *testing.T) {
	s := metrics.NewStatistician(0)
	snap := s.Update(2, 8, time.Second, []int64{ms(1), ms(3)})

	if snap.Success+snap.Failure != snap.Total {
		t.Fatalf("success + failure != total: %+v", snap)
	}
	if !(snap.Min <= snap.Avg && snap.Avg <= snap.Max) {
		t.Fatalf("expected min <= avg <= max, got %s %s %s", snap.Min, snap.Avg, snap.Max)
	}
	if !(snap.LowerCI <= float64(snap.Avg) && float64(snap.Avg) <= snap.UpperCI) {
		t.Fatalf("expected lowerCI <= avg <= upperCI, got %f %s %f", snap.LowerCI, snap.Avg, snap.UpperCI)
	}
}

func TestStatisticianAvgIgnoresFailures(t *testing.T) {
	s := metrics.NewStatistician(0)
	snap := s.Update(2, 98, time.Second, []int64{ms(10), ms(30)})

	if snap.Total != 100 || snap.Samples != 2 {
		t.Fatalf("expected total 100 and 2 samples, got %d/%d", snap.Total, snap.Samples)
	}
	if snap.Avg != 20*time.Millisecond {
		t.Errorf("expected avg over samples 20ms, got %s", snap.Avg)
	}
	if want := time.Duration(int64(snap.Sum) / snap.Samples); snap.Avg != want {
		t.Errorf("expected avg == sum/samples (%s), got %s", want, snap.Avg)
	}
}

func TestStatisticianEmpty(t *testing.T) {
	s := metrics.NewStatistician(0)
	snap := s.Snapshot()
	if snap.Total != 0 || snap.StdDev != 0 || snap.Throughput != 0 || snap.Min != 0 {
		t.Fatalf("expected zero snapshot, got %+v", snap)
	}

	snap = s.Update(0, 3, 0, nil)
	if snap.Total != 3 || snap.Samples != 0 || snap.Throughput != 0 {
		t.Fatalf("expected only failures without throughput, got %+v", snap)
	}
	if math.IsNaN(snap.StdDev) || snap.StdDev != 0 {
		t.Fatalf("expected stddev 0 without samples, got %f", snap.StdDev)
	}
}

func TestStatisticianResidentLimitCrossing(t *testing.T) {
	const n = 150_001
	s := metrics.NewStatistician(metrics.DefaultResidentLimit)

	batch := make([]int64, 0, 10_000)
	var snap metrics.Snapshot
	for v := int64(1); v <= n; v++ {
		batch = append(batch, v)
		if len(batch) == cap(batch) || v == n {
			snap = s.Update(v, 0, time.Second, batch)
			batch = batch[:0]
		}
	}

	if snap.Total != n || snap.Samples != n {
		t.Fatalf("expected %d samples, got total=%d samples=%d", n, snap.Total, snap.Samples)
	}
	if want := time.Duration(int64(n) * (n + 1) / 2); snap.Sum != want {
		t.Fatalf("expected exact sum %d, got %d", want, snap.Sum)
	}
	if snap.Min != 1 || snap.Max != n {
		t.Fatalf("expected exact min/max 1/%d, got %d/%d", n, snap.Min, snap.Max)
	}
	if math.IsNaN(snap.StdDev) || math.IsInf(snap.StdDev, 0) || snap.StdDev <= 0 {
		t.Fatalf("expected finite positive stddev, got %f", snap.StdDev)
	}
	exact := math.Sqrt((float64(n)*float64(n) - 1) / 12)
	if math.Abs(snap.StdDev-exact)/exact > 0.25 {
		t.Fatalf("stddev approximation %f too far from %f", snap.StdDev, exact)
	}
}

func TestStatisticianPercentiles(t *testing.T) {
	s := metrics.NewStatistician(0)
	samples := make([]int64, 0, 100)
	for i := int64(1); i <= 100; i++ {
		samples = append(samples, ms(i))
	}
	snap := s.Update(100, 0, time.Second, samples)

	if snap.P50 < 49*time.Millisecond || snap.P50 > 51*time.Millisecond {
		t.Errorf("expected P50 ~50ms, got %s", snap.P50)
	}
	if snap.P99 < 98*time.Millisecond || snap.P99 > 100*time.Millisecond {
		t.Errorf("expected P99 ~99ms, got %s", snap.P99)
	}
}

type fakeSource struct {
	pending []int64
	success int64
	failure int64
	costs   time.Duration
}

func (f *fakeSource) Drain(fn func(int64)) int {
	n := len(f.pending)
	for _, v := range f.pending {
		fn(v)
	}
	f.pending = nil
	return n
}

func (f *fakeSource) Counts() (int64, int64, time.Duration) {
	return f.success, f.failure, f.costs
}

func TestStatisticianRefreshDrainsSource(t *testing.T) {
	src := &fakeSource{pending: []int64{5, 7}, success: 2, failure: 1, costs: time.Second}
	s := metrics.NewStatistician(0)

	snap := s.Refresh(src)
	if snap.Total != 3 || snap.Samples != 2 || snap.Sum != 12 {
		t.Fatalf("unexpected refresh result: %+v", snap)
	}
	if len(src.pending) != 0 {
		t.Fatalf("expected source drained")
	}

	src.pending = []int64{9}
	src.success = 3
	if !s.TryRefresh(src) {
		t.Fatalf("expected uncontended TryRefresh to succeed")
	}
	if got := s.Snapshot(); got.Max != 9 || got.Samples != 3 {
		t.Fatalf("expected snapshot to reflect TryRefresh, got %+v", got)
	}
}

func TestStatisticianConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	s := metrics.NewStatistician(0)
	const rounds = 2000

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := int64(1); i <= rounds; i++ {
			s.Update(i, i, time.Duration(i)*time.Millisecond, []int64{i})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				snap := s.Snapshot()
				if snap.Success != snap.Failure {
					t.Errorf("torn snapshot: success=%d failure=%d", snap.Success, snap.Failure)
					return
				}
				if snap.Samples > 0 && !(snap.Min <= snap.Avg && snap.Avg <= snap.Max) {
					t.Errorf("ordering violated: %+v", snap)
					return
				}
				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}
	wg.Wait()

	if final := s.Snapshot(); final.Total != 2*rounds {
		t.Fatalf("expected final total %d, got %d", 2*rounds, final.Total)
	}
}
