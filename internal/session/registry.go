// Package session keeps asynchronous runs addressable by ID so they can be
// queried, stopped and removed after they were submitted.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/torosent/crankbench/internal/metrics"
	"github.com/torosent/crankbench/internal/runner"
)

// ErrNotFound is returned for IDs that were never submitted, were removed,
// or expired.
var ErrNotFound = errors.New("session: not found")

// DefaultRetention is how long a finished run stays queryable.
const DefaultRetention = 30 * time.Minute

// Registry holds submitted runs. Running handles never expire; once a run
// finishes it is kept for the retention period. Evicting a handle cancels it.
type Registry struct {
	items     *cache.Cache
	retention time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	entropy io.Reader

	// lifecycle orders the re-arm of a finished run against Remove and
	// Clear so a removed session stays removed.
	lifecycle sync.Mutex
}

// NewRegistry creates a registry keeping finished runs for retention.
// A zero retention selects DefaultRetention; logger may be nil.
func NewRegistry(retention time.Duration, logger *zap.Logger) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		items:     cache.New(cache.NoExpiration, retention),
		retention: retention,
		logger:    logger,
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
	r.items.OnEvicted(func(id string, v interface{}) {
		if h, ok := v.(*runner.Handle); ok {
			h.Cancel()
		}
		r.logger.Debug("session evicted", zap.String("session", id))
	})
	return r
}

func (r *Registry) newID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy).String()
}

// Submit starts an asynchronous run of w and returns its session ID.
func (r *Registry) Submit(ctx context.Context, opt runner.Options, w runner.Workload) (string, *runner.Handle, error) {
	h, err := runner.NewHandle(opt, w)
	if err != nil {
		return "", nil, err
	}
	id := r.newID()
	r.items.Set(id, h, cache.NoExpiration)
	h.Start(ctx)

	go func() {
		<-h.Done()
		r.lifecycle.Lock()
		defer r.lifecycle.Unlock()
		// Only re-arm the entry if it still refers to this run.
		if cur, ok := r.items.Get(id); ok && cur == h {
			r.items.Set(id, h, r.retention)
		}
	}()

	r.logger.Debug("session submitted", zap.String("session", id), zap.String("workload", opt.Name))
	return id, h, nil
}

// Get returns the handle of a session.
func (r *Registry) Get(id string) (*runner.Handle, error) {
	v, ok := r.items.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*runner.Handle), nil
}

// Query returns the current statistics of a session.
func (r *Registry) Query(id string) (metrics.Snapshot, error) {
	h, err := r.Get(id)
	if err != nil {
		return metrics.Snapshot{}, err
	}
	return h.Snapshot(), nil
}

// IsRunning reports whether the session exists and has not finished.
func (r *Registry) IsRunning(id string) bool {
	h, err := r.Get(id)
	return err == nil && !h.IsDone()
}

// Stop cancels a session but keeps it queryable. The result mirrors
// Handle.Cancel.
func (r *Registry) Stop(id string) (bool, error) {
	h, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return h.Cancel(), nil
}

// Remove cancels a session and forgets it.
func (r *Registry) Remove(id string) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	r.items.Delete(id)
}

// Clear cancels and forgets every session.
func (r *Registry) Clear() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	for id := range r.items.Items() {
		r.items.Delete(id)
	}
}

// Sessions returns the IDs of all known sessions, oldest first.
func (r *Registry) Sessions() []string {
	items := r.items.Items()
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len is the number of known sessions.
func (r *Registry) Len() int {
	return r.items.ItemCount()
}
