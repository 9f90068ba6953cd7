package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MaxPoolSize caps the number of worker goroutines a single run may own.
const MaxPoolSize = 1024

var (
	// ErrNoWorkload is returned when a run is requested without a workload.
	ErrNoWorkload = errors.New("runner: workload is required")
	// ErrInvalidOptions wraps every options validation failure.
	ErrInvalidOptions = errors.New("runner: invalid options")
)

// Workload is the measured unit of work. A returned error counts the
// invocation as a failure; its duration is then not sampled.
type Workload interface {
	Do(ctx context.Context) error
}

// WorkloadFunc adapts a plain function to a Workload.
type WorkloadFunc func(ctx context.Context) error

func (f WorkloadFunc) Do(ctx context.Context) error { return f(ctx) }

// ArrivalModel controls how paced invocations are spaced.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// RefreshPolicy schedules background statistic folds for an async run:
// the first after InitialDelay, then every Delay after the previous fold
// finished.
type RefreshPolicy struct {
	Enabled      bool
	InitialDelay time.Duration
	Delay        time.Duration
}

// Options configure a measured run.
type Options struct {
	Name          string        // label for reports and logs
	Workers       int           // logical workers; with Iterations gives the invocation count
	Concurrency   int           // max workers executing at once; >1 selects a concurrency-limited strategy
	Warmups       int           // unmeasured invocations before measurement starts
	Iterations    int           // invocations per worker (exclusive with Duration)
	Duration      time.Duration // run until this much time elapsed (exclusive with Iterations)
	PrintErrorLog bool          // log every workload failure
	RatePerSecond float64       // optional pacing across all workers (0 means unlimited)
	ArrivalModel  ArrivalModel
	Refresh       RefreshPolicy
	ResidentLimit int // samples kept resident by the statistician (0 means default)

	Logger         *zap.Logger
	FailureLogger  FailureLogger                   // receives failures when PrintErrorLog is set; defaults to Logger
	RandomSeed     int64                           // seed for the Poisson sampler
	PoissonSampler func() float64                  // optional injection for tests
	LimiterFactory func(rps float64) *rate.Limiter // optional injection for tests
}

// Validate reports every problem with o at once.
func (o Options) Validate() error {
	var issues []string
	if o.Workers <= 0 {
		issues = append(issues, "workers must be greater than zero")
	}
	if o.Concurrency <= 0 {
		issues = append(issues, "concurrency must be greater than zero")
	}
	if o.Warmups < 0 {
		issues = append(issues, "warmups must be non-negative")
	}
	switch {
	case o.Iterations > 0 && o.Duration > 0:
		issues = append(issues, "iterations and duration are mutually exclusive")
	case o.Iterations <= 0 && o.Duration <= 0:
		issues = append(issues, "either iterations or duration must be greater than zero")
	case o.Iterations < 0:
		issues = append(issues, "iterations must be non-negative")
	}
	if o.RatePerSecond < 0 {
		issues = append(issues, "rate must be non-negative")
	}
	if o.ArrivalModel != "" && o.ArrivalModel != ArrivalModelUniform && o.ArrivalModel != ArrivalModelPoisson {
		issues = append(issues, fmt.Sprintf("unknown arrival model %q", o.ArrivalModel))
	}
	if o.Refresh.Enabled && (o.Refresh.Delay <= 0 || o.Refresh.InitialDelay < 0) {
		issues = append(issues, "refresh delay must be positive and initial delay non-negative")
	}
	if len(issues) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidOptions, strings.Join(issues, "; "))
}

func (o *Options) normalize() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	if o.PrintErrorLog && o.FailureLogger == nil {
		o.FailureLogger = zapFailureLogger{logger: o.Logger.With(zap.String("workload", o.Name))}
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps float64) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			burst := int(rps)
			if burst < 1 {
				burst = 1
			}
			return rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

type zapFailureLogger struct {
	logger *zap.Logger
}

func (z zapFailureLogger) LogFailure(err error) {
	z.logger.Warn("workload invocation failed", zap.Error(err))
}
