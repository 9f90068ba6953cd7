package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/crankbench/internal/metrics"
)

// SnapshotSource is anything that can report live statistics, such as a
// runner.Handle.
type SnapshotSource interface {
	Snapshot() metrics.Snapshot
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	source   SnapshotSource
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(source SnapshotSource, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		source:   source,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and prints a final line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 2) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer, ProgressLine(p.source.Snapshot()))
		return
	}
	// Never started.
	p.ticker.Stop()
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, ProgressLine(p.source.Snapshot()))
		case <-p.done:
			return
		}
	}
}

// ProgressLine renders a one-line carriage-return-prefixed status.
func ProgressLine(s metrics.Snapshot) string {
	line := fmt.Sprintf("\rInvocations: %d | Successes: %d | Failures: %d | Throughput: %s/s | Avg: %s",
		s.Total, s.Success, s.Failure, metrics.FormatRate(s.Throughput), metrics.FormatDuration(s.Avg))
	if s.Name != "" {
		line = "\r[" + s.Name + "] " + line[1:]
	}
	return line
}
