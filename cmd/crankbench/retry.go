package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/torosent/crankbench/internal/runner"
	"github.com/torosent/crankbench/internal/workload"
)

const (
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

type jitterSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// newRetryPolicy retries transient failures with capped exponential backoff
// and jitter. A zero base selects baseRetryDelay.
func newRetryPolicy(retries int, base time.Duration) runner.RetryPolicy {
	if base <= 0 {
		base = baseRetryDelay
	}
	source := &jitterSource{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}

	return runner.RetryPolicy{
		MaxAttempts: retries + 1,
		ShouldRetry: func(err error) bool {
			if err == nil {
				return false
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false
			}

			var statusErr *workload.StatusError
			if errors.As(err, &statusErr) {
				if statusErr.StatusCode == http.StatusTooManyRequests {
					return true
				}
				return statusErr.StatusCode >= 500
			}

			return true
		},
		DelayFunc: func(attempt int, err error) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			backoff := time.Duration(1<<uint(attempt-1)) * base
			if backoff > maxRetryDelay || backoff <= 0 {
				backoff = maxRetryDelay
			}
			return backoff + source.jitter(backoff/2)
		},
	}
}

func (j *jitterSource) jitter(max time.Duration) time.Duration {
	if j == nil || max <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.rnd.Int63n(int64(max)))
}
