package runner

import (
	"context"
	"fmt"
	"time"
)

// PanicError is the failure recorded when a workload panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("workload panic: %v", e.Value)
}

// FailureLogger logs failed invocations.
type FailureLogger interface {
	LogFailure(err error)
}

// RetryPolicy configures retry behavior.
type RetryPolicy struct {
	MaxAttempts int                                        // total attempts including initial try
	Delay       time.Duration                              // fixed delay between retries (used if DelayFunc nil)
	ShouldRetry func(error) bool                           // predicate; if nil, all errors retried
	DelayFunc   func(attempt int, err error) time.Duration // dynamic backoff; attempt is 1-based
}

// retryWorkload wraps a Workload with retry logic. Retries happen inside
// one measured invocation, so their delays count toward its duration.
type retryWorkload struct {
	inner  Workload
	policy RetryPolicy
}

// WithRetry wraps a Workload with retry capability.
func WithRetry(w Workload, policy RetryPolicy) Workload {
	if policy.MaxAttempts <= 1 {
		return w // no retries needed
	}
	return &retryWorkload{
		inner:  w,
		policy: policy,
	}
}

func (r *retryWorkload) Do(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = r.inner.Do(ctx)
		if lastErr == nil {
			return nil
		}

		// Don't delay after the last attempt.
		if attempt < r.policy.MaxAttempts {
			if r.policy.ShouldRetry != nil && !r.policy.ShouldRetry(lastErr) {
				return lastErr
			}
			var delay time.Duration
			if r.policy.DelayFunc != nil {
				delay = r.policy.DelayFunc(attempt, lastErr)
			} else {
				delay = r.policy.Delay
			}
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return lastErr
}

// loggingWorkload wraps a Workload with failure logging.
type loggingWorkload struct {
	inner  Workload
	logger FailureLogger
}

// WithLogging wraps a Workload to log failures.
func WithLogging(w Workload, logger FailureLogger) Workload {
	if logger == nil {
		return w
	}
	return &loggingWorkload{
		inner:  w,
		logger: logger,
	}
}

func (l *loggingWorkload) Do(ctx context.Context) error {
	err := l.inner.Do(ctx)
	if err != nil && l.logger != nil {
		l.logger.LogFailure(err)
	}
	return err
}

// recovering turns a workload panic into a PanicError.
type recovering struct {
	inner Workload
}

func (r recovering) Do(ctx context.Context) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v}
		}
	}()
	return r.inner.Do(ctx)
}
