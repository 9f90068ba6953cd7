package runner

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/crankbench/internal/metrics"
)

// Handle is an asynchronous measured run. It owns the run's strategy,
// counters and statistician, plus the duration timer and refresh task that
// serve it.
//
// Cancelling is cooperative: workers stop at their next invocation boundary
// and an invocation already in flight is never interrupted. The context
// passed to the workload is the one given to Start, not one cancelled by
// Cancel.
type Handle struct {
	opt      Options
	strategy Strategy
	work     Workload
	state    *RunState
	stat     *metrics.Statistician
	logger   *zap.Logger

	startOnce   sync.Once
	refreshOnce sync.Once
	refreshStop chan struct{}
	finished    chan struct{}

	mu         sync.Mutex
	timer      *time.Timer
	stopPacing context.CancelFunc
}

// NewHandle validates opt and prepares an idle run of w.
func NewHandle(opt Options, w Workload) (*Handle, error) {
	if w == nil {
		return nil, ErrNoWorkload
	}
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	opt.normalize()

	h := &Handle{
		opt:         opt,
		strategy:    NewStrategy(Select(opt)),
		stat:        metrics.NewStatistician(opt.ResidentLimit),
		refreshStop: make(chan struct{}),
		finished:    make(chan struct{}),
		logger:      opt.Logger.With(zap.String("workload", opt.Name)),
	}
	h.state = NewRunState(opt.ResidentLimit, h.tryRefresh)
	h.work = recovering{inner: w}
	if opt.PrintErrorLog {
		h.work = WithLogging(h.work, opt.FailureLogger)
	}
	return h, nil
}

// Start validates opt and dispatches a run of w in the background.
// Cancelling ctx cancels the run.
func Start(ctx context.Context, opt Options, w Workload) (*Handle, error) {
	h, err := NewHandle(opt, w)
	if err != nil {
		return nil, err
	}
	h.Start(ctx)
	return h, nil
}

// Start dispatches the run. Only the first call has any effect, and none
// when the handle was already cancelled.
func (h *Handle) Start(ctx context.Context) {
	h.startOnce.Do(func() {
		stopCtx, cancel := context.WithCancel(ctx)
		h.mu.Lock()
		h.stopPacing = cancel
		h.mu.Unlock()

		go func() {
			select {
			case <-ctx.Done():
				h.Cancel()
			case <-h.finished:
			}
		}()
		go h.execute(ctx, stopCtx)
	})
}

func (h *Handle) execute(ctx, stopCtx context.Context) {
	defer close(h.finished)
	defer h.teardown()

	if h.opt.Warmups > 0 {
		failed := warmup(ctx, h.work, h.opt.Warmups, h.state.Cancelled)
		h.logger.Debug("warmup finished", zap.Int("iterations", h.opt.Warmups), zap.Int("failures", failed))
	}
	if !h.state.Begin() {
		return
	}

	e := &execution{
		ctx:         ctx,
		stopCtx:     stopCtx,
		state:       h.state,
		work:        h.work,
		arrival:     newArrivalController(h.opt),
		workers:     h.opt.Workers,
		concurrency: h.opt.Concurrency,
		iterations:  h.opt.Iterations,
	}
	if h.opt.Duration > 0 {
		e.deadline = h.state.start.Load() + int64(h.opt.Duration)
		h.mu.Lock()
		h.timer = time.AfterFunc(h.opt.Duration, func() {
			h.logger.Debug("duration elapsed")
			h.stop(false)
		})
		h.mu.Unlock()
	}
	if h.opt.Refresh.Enabled {
		go h.refreshLoop(h.opt.Refresh)
	}

	h.logger.Debug("run started", zap.Stringer("strategy", h.strategy.Plan()))
	h.strategy.execute(e)
	h.stop(false)

	// Workers have exited; fold whatever they queued before the stop.
	snap := h.stat.Refresh(h.state)
	h.logger.Debug("run finished",
		zap.Stringer("status", h.state.Status()),
		zap.Int64("total", snap.Total),
		zap.Duration("costs", snap.Costs),
	)
}

// stop enters the terminal state and releases the run's resources.
func (h *Handle) stop(cancelled bool) bool {
	if !h.state.Finish(cancelled) {
		return false
	}
	h.teardown()
	return true
}

// teardown stops the duration timer, the refresh task and any pacing or
// slot waits. Each step is idempotent and independent of the others.
func (h *Handle) teardown() {
	h.mu.Lock()
	if h.timer != nil {
		h.timer.Stop()
	}
	if h.stopPacing != nil {
		h.stopPacing()
	}
	h.mu.Unlock()
	h.refreshOnce.Do(func() { close(h.refreshStop) })
}

func (h *Handle) refreshLoop(p RefreshPolicy) {
	timer := time.NewTimer(p.InitialDelay)
	defer timer.Stop()
	for {
		select {
		case <-h.refreshStop:
			return
		case <-timer.C:
			h.Refresh()
			timer.Reset(p.Delay)
		}
	}
}

func (h *Handle) tryRefresh() {
	h.stat.TryRefresh(h.state)
}

// Cancel stops the run. It returns true when the run ends up cancelled,
// including when it already was, and false when it had already completed
// on its own. Cancelling a handle that was never started leaves it
// cancelled and makes Start a no-op.
func (h *Handle) Cancel() bool {
	if h.stop(true) {
		h.startOnce.Do(func() { close(h.finished) })
		h.logger.Debug("run cancelled")
		return true
	}
	return h.state.Cancelled()
}

// Refresh folds every pending sample and returns the resulting snapshot.
// It waits for a concurrent fold to finish.
func (h *Handle) Refresh() metrics.Snapshot {
	return h.decorate(h.stat.Refresh(h.state))
}

// Snapshot returns the current statistics without blocking: pending samples
// are folded unless another fold is already running, in which case the last
// published aggregates are returned.
func (h *Handle) Snapshot() metrics.Snapshot {
	h.stat.TryRefresh(h.state)
	return h.decorate(h.stat.Snapshot())
}

func (h *Handle) decorate(s metrics.Snapshot) metrics.Snapshot {
	s.Name = h.opt.Name
	s.Cancelled = h.state.Cancelled()
	s.Errors = h.state.Errors()
	return s
}

// IsDone reports whether the run has reached a terminal state.
func (h *Handle) IsDone() bool { return h.state.Terminal() }

// IsCancelled reports whether the run was cancelled by a caller.
func (h *Handle) IsCancelled() bool { return h.state.Cancelled() }

// DoneSuccessfully reports whether the run completed without being
// cancelled and without a single failed invocation.
func (h *Handle) DoneSuccessfully() bool {
	return h.state.Status() == StatusCompleted && h.state.Failure() == 0
}

// Done is closed once the workers have exited and the final fold is published.
func (h *Handle) Done() <-chan struct{} { return h.finished }

// Wait blocks until the run is finished or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Watch calls fn with a fresh snapshot every period until the run is
// finished, then once more with the final snapshot. It returns early with
// ctx's error.
func (h *Handle) Watch(ctx context.Context, period time.Duration, fn func(metrics.Snapshot)) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-h.finished:
			fn(h.Snapshot())
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(h.Snapshot())
		}
	}
}

func (h *Handle) Options() Options     { return h.opt }
func (h *Handle) Plan() Plan           { return h.strategy.Plan() }
func (h *Handle) Status() Status       { return h.state.Status() }
func (h *Handle) Total() int64         { return h.state.Total() }
func (h *Handle) Success() int64       { return h.state.Success() }
func (h *Handle) Failure() int64       { return h.state.Failure() }
func (h *Handle) Costs() time.Duration { return h.state.Costs() }
func (h *Handle) StartTime() time.Time { return h.state.StartTime() }
func (h *Handle) EndTime() time.Time   { return h.state.EndTime() }
