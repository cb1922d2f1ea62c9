package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireUpToLimit(t *testing.T) {
	g := New(3)
	ctx := context.Background()

	var tickets []*Ticket
	for i := 0; i < 3; i++ {
		tk, err := g.Acquire(ctx)
		require.NoError(t, err)
		tickets = append(tickets, tk)
	}

	// Gate is full; a non-blocking attempt must fail.
	assert.Nil(t, g.TryAcquire())

	for _, tk := range tickets {
		tk.Release()
	}

	// Capacity restored.
	tk := g.TryAcquire()
	require.NotNil(t, tk)
	tk.Release()
}

func TestAcquireBlocksAtCapacity(t *testing.T) {
	g := New(1)
	ctx := context.Background()

	held, err := g.Acquire(ctx)
	require.NoError(t, err)

	acquired := make(chan *Ticket, 1)
	go func() {
		tk, err := g.Acquire(ctx)
		if err == nil {
			acquired <- tk
		}
	}()

	select {
	case <-acquired:
		t.Fatal("acquire should block while the gate is at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	held.Release()

	select {
	case tk := <-acquired:
		tk.Release()
	case <-time.After(time.Second):
		t.Fatal("waiter was not admitted after release")
	}
}

func TestWaitersAdmittedInArrivalOrder(t *testing.T) {
	g := New(1)
	ctx := context.Background()

	held, err := g.Acquire(ctx)
	require.NoError(t, err)

	const waiters = 5
	order := make(chan int, waiters)
	var wg sync.WaitGroup

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tk, err := g.Acquire(ctx)
			if err != nil {
				return
			}
			order <- i
			tk.Release()
		}(i)
		// Space out arrivals so the wait queue order is deterministic.
		time.Sleep(20 * time.Millisecond)
	}

	held.Release()
	wg.Wait()
	close(order)

	var got []int
	for i := range order {
		got = append(got, i)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestAcquireCancellation(t *testing.T) {
	g := New(1)

	held, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := g.Acquire(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled acquire did not return")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	g := New(2)

	tk, err := g.Acquire(context.Background())
	require.NoError(t, err)

	// A double release must not mint extra capacity.
	tk.Release()
	tk.Release()

	first := g.TryAcquire()
	second := g.TryAcquire()
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Nil(t, g.TryAcquire())

	first.Release()
	second.Release()
}

func TestNewClampsLimit(t *testing.T) {
	g := New(0)
	assert.Equal(t, DefaultLimit, g.Limit())

	g = New(-3)
	assert.Equal(t, DefaultLimit, g.Limit())

	g = New(4)
	assert.Equal(t, 4, g.Limit())
}
