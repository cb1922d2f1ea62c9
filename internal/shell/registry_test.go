package shell

import (
	"context"
	"testing"
	"time"

	sshtest "github.com/rileyhilliard/beacon/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBridge(t *testing.T) (*Bridge, *sshtest.FakeShellStarter) {
	t.Helper()
	starter := &sshtest.FakeShellStarter{}
	b, err := Open(context.Background(), starter, Options{}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(b.Stop)
	return b, starter
}

func TestRegistryRegisterGetUnregister(t *testing.T) {
	r := NewRegistry(time.Hour)
	defer r.Close()

	b, starter := openTestBridge(t)
	id := r.Register(b)
	require.NotEmpty(t, id)

	assert.Same(t, b, r.Get(id))
	assert.Nil(t, r.Get("unknown-handle"))
	assert.Equal(t, 1, r.Len())

	r.Unregister(id)
	assert.Nil(t, r.Get(id))
	assert.Equal(t, 0, r.Len())
	assert.True(t, starter.Session.IsClosed(), "unregister stops the bridge")
}

func TestRegistryHandlesAreUnique(t *testing.T) {
	r := NewRegistry(time.Hour)
	defer r.Close()

	b1, _ := openTestBridge(t)
	b2, _ := openTestBridge(t)

	id1 := r.Register(b1)
	id2 := r.Register(b2)
	assert.NotEqual(t, id1, id2)
	assert.Same(t, b1, r.Get(id1))
	assert.Same(t, b2, r.Get(id2))
}

func TestRegistryReapsIdleBridges(t *testing.T) {
	r := NewRegistry(40 * time.Millisecond)
	defer r.Close()

	idle, idleStarter := openTestBridge(t)
	busy, busyStarter := openTestBridge(t)

	idleID := r.Register(idle)
	busyID := r.Register(busy)

	// Keep one bridge active while the other goes stale.
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		r.Touch(busyID)
		time.Sleep(5 * time.Millisecond)
	}

	assert.Nil(t, r.Get(idleID), "idle bridge reaped")
	assert.True(t, idleStarter.Session.IsClosed())
	assert.Same(t, busy, r.Get(busyID), "active bridge survives")
	assert.False(t, busyStarter.Session.IsClosed())
}

func TestRegistryCloseStopsEverything(t *testing.T) {
	r := NewRegistry(time.Hour)

	b, starter := openTestBridge(t)
	r.Register(b)

	r.Close()
	r.Close()

	assert.Equal(t, 0, r.Len())
	assert.True(t, starter.Session.IsClosed())
}
