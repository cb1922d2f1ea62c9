// Package gate bounds the number of simultaneously open command channels on
// a single SSH connection. Remote sshd installations typically cap session
// channels per connection at single digits, so every batch command acquires
// a ticket before touching the transport.
package gate

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultLimit is the default number of concurrently open command channels.
const DefaultLimit = 6

// Gate is a counting admission gate with FIFO waiters. Acquisition never
// times out on its own; callers that need bounded latency cancel via their
// context.
type Gate struct {
	sem   *semaphore.Weighted
	limit int
}

// New creates a gate admitting up to limit concurrent holders.
// A non-positive limit falls back to DefaultLimit.
func New(limit int) *Gate {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Gate{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: limit,
	}
}

// Limit returns the configured admission limit.
func (g *Gate) Limit() int {
	return g.limit
}

// Acquire blocks until capacity is available or ctx is cancelled.
// Waiters are admitted in arrival order.
func (g *Gate) Acquire(ctx context.Context) (*Ticket, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &Ticket{gate: g}, nil
}

// TryAcquire acquires a ticket without blocking.
// Returns nil if the gate is at capacity.
func (g *Gate) TryAcquire() *Ticket {
	if !g.sem.TryAcquire(1) {
		return nil
	}
	return &Ticket{gate: g}
}

// Ticket represents permission to hold one open command channel.
// Release must be called when the channel is done; releasing more than once
// is safe and counts only the first call, so a defer alongside explicit
// error paths can't leak or double-free capacity.
type Ticket struct {
	gate *Gate
	once sync.Once
}

// Release returns the ticket's capacity to the gate.
func (t *Ticket) Release() {
	t.once.Do(func() {
		t.gate.sem.Release(1)
	})
}
