package view

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "eventmap/internal/log"
	"eventmap/internal/store"
)

// ErrNotFound is returned for an unknown or already unmounted view.
var ErrNotFound = errors.New("view not found")

// Registry keeps the live views of all connected pages.
type Registry struct {
	store *store.Store
	opts  Options

	mu    sync.RWMutex
	views map[string]*View
}

// NewRegistry creates an empty registry whose views show the events of s.
func NewRegistry(s *store.Store, opts Options) *Registry {
	return &Registry{
		store: s,
		opts:  opts,
		views: make(map[string]*View),
	}
}

// Mount creates and registers a new view.
func (r *Registry) Mount() *View {
	v := New(uuid.NewString(), r.store, r.opts)

	r.mu.Lock()
	r.views[v.ID] = v
	n := len(r.views)
	r.mu.Unlock()

	appLog.Info("view mounted", "view", v.ID, "markers", len(v.Markers()), "views", n)
	return v
}

// Get returns a live view.
func (r *Registry) Get(id string) (*View, error) {
	r.mu.RLock()
	v, ok := r.views[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return v, nil
}

// Unmount removes a view and cancels its pending work.
func (r *Registry) Unmount(id string) error {
	r.mu.Lock()
	v, ok := r.views[id]
	delete(r.views, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	v.Unmount()
	return nil
}

// Len returns the number of live views.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}

// Sweep unmounts views idle for longer than maxIdle and returns how many
// were removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	var stale []*View
	for id, v := range r.views {
		if v.IdleSince().Before(cutoff) {
			stale = append(stale, v)
			delete(r.views, id)
		}
	}
	r.mu.Unlock()

	for _, v := range stale {
		v.Unmount()
	}
	if len(stale) > 0 {
		appLog.Info("idle views swept", "removed", len(stale), "max_idle", maxIdle.String())
	}
	return len(stale)
}

// UnmountAll tears down every view, used on shutdown.
func (r *Registry) UnmountAll() {
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*View)
	r.mu.Unlock()

	for _, v := range views {
		v.Unmount()
	}
}
