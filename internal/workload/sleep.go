package workload

import (
	"context"
	"time"
)

// Sleep waits for a fixed time per invocation.
type Sleep struct {
	d time.Duration
}

func NewSleep(d time.Duration) *Sleep { return &Sleep{d: d} }

func (s *Sleep) Do(ctx context.Context) error {
	if s.d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
