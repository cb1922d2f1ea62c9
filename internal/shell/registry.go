package shell

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rileyhilliard/beacon/internal/logger"
)

// DefaultIdleTimeout is how long a bridge may sit without Touch before the
// janitor closes it.
const DefaultIdleTimeout = 30 * time.Minute

// entry tracks one registered bridge and its last activity time.
type entry struct {
	bridge     *Bridge
	lastActive time.Time
}

// Registry tracks live bridges by opaque handle and reaps the ones that go
// idle. A handle is a uuid, so callers can pass it across process layers
// without sharing the Bridge pointer.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	idle    time.Duration
	log     logger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRegistry creates a registry whose janitor closes bridges idle longer
// than idleTimeout. A non-positive timeout falls back to DefaultIdleTimeout.
func NewRegistry(idleTimeout time.Duration) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	r := &Registry{
		entries: make(map[string]*entry),
		idle:    idleTimeout,
		log:     logger.Default(),
		stopCh:  make(chan struct{}),
	}
	go r.janitor()
	return r
}

// Register adds a bridge and returns its handle.
func (r *Registry) Register(b *Bridge) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.entries[id] = &entry{bridge: b, lastActive: time.Now()}
	r.mu.Unlock()
	return id
}

// Get returns the bridge for a handle, or nil when unknown.
func (r *Registry) Get(id string) *Bridge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e.bridge
	}
	return nil
}

// Touch marks a bridge as active, deferring idle reaping.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	if e, ok := r.entries[id]; ok {
		e.lastActive = time.Now()
	}
	r.mu.Unlock()
}

// Unregister removes a bridge and stops it.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if ok {
		e.bridge.Stop()
	}
}

// Len reports how many bridges are registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops the janitor and tears down every registered bridge.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })

	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.bridge.Stop()
	}
}

func (r *Registry) janitor() {
	ticker := time.NewTicker(r.idle / 4)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.reap()
		}
	}
}

func (r *Registry) reap() {
	cutoff := time.Now().Add(-r.idle)

	r.mu.Lock()
	var stale []*entry
	for id, e := range r.entries {
		if e.lastActive.Before(cutoff) {
			stale = append(stale, e)
			delete(r.entries, id)
			r.log.Debug("reaping idle shell session %s", id)
		}
	}
	r.mu.Unlock()

	for _, e := range stale {
		e.bridge.Stop()
	}
}
