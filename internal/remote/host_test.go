package remote

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rileyhilliard/beacon/internal/errors"
	"github.com/rileyhilliard/beacon/internal/shell"
	"github.com/rileyhilliard/beacon/pkg/sshutil"
	sshtest "github.com/rileyhilliard/beacon/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport combines the command fake and the shell fake into one
// connection, the way *sshutil.Client provides both.
type fakeTransport struct {
	*sshtest.FakeCommander
	starter sshtest.FakeShellStarter
}

func (f *fakeTransport) NewShellSession(term string, rows, cols int) (sshutil.ShellSession, error) {
	return f.starter.NewShellSession(term, rows, cols)
}

func newTestHost(t *testing.T) (*Host, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{FakeCommander: sshtest.NewFakeCommander()}
	h := New("testbox", Config{})
	h.dial = func(host string, opts sshutil.Options) (transport, error) {
		return ft, nil
	}
	require.NoError(t, h.Connect())
	t.Cleanup(h.Disconnect)
	return h, ft
}

func TestConnectIsIdempotent(t *testing.T) {
	h, _ := newTestHost(t)
	require.True(t, h.Connected())

	require.NoError(t, h.Connect())
	require.NoError(t, h.Connect())
	assert.True(t, h.Connected())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h, ft := newTestHost(t)

	h.Disconnect()
	h.Disconnect()
	assert.False(t, h.Connected())
	assert.False(t, ft.Connected())

	// Never-connected Host: also a no-op.
	fresh := New("other", Config{})
	fresh.Disconnect()
	assert.False(t, fresh.Connected())
}

func TestOperationsFailFastWhenDisconnected(t *testing.T) {
	h, _ := newTestHost(t)
	h.Disconnect()

	ctx := context.Background()

	_, err := h.Run(ctx, "uptime")
	assert.True(t, errors.IsCode(err, errors.ErrNotConnected))

	_, _, err = h.RunDetailed(ctx, "uptime")
	assert.True(t, errors.IsCode(err, errors.ErrNotConnected))

	_, err = h.RunStreaming(ctx, "uptime", nil)
	assert.True(t, errors.IsCode(err, errors.ErrNotConnected))

	_, err = h.OpenShell(ctx, shell.Options{}, nil, nil)
	assert.True(t, errors.IsCode(err, errors.ErrNotConnected))

	_, err = h.PollCPUCores(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrNotConnected))

	_, err = h.Snapshot(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrNotConnected))
}

func TestRunDelegation(t *testing.T) {
	h, ft := newTestHost(t)
	ft.SetResponse("hostname", sshtest.CommandResponse{Stdout: []byte("testbox\n")})

	out, err := h.Run(context.Background(), "hostname")
	require.NoError(t, err)
	assert.Equal(t, "testbox\n", out)

	stdout, stderr, err := h.RunDetailed(context.Background(), "hostname")
	require.NoError(t, err)
	assert.Equal(t, "testbox\n", stdout)
	assert.Empty(t, stderr)
}

func TestRunStreamingDelegation(t *testing.T) {
	h, ft := newTestHost(t)
	ft.SetStreamFrames(`script -q /dev/null sh -c`, [][]byte{
		[]byte("line\n"),
		[]byte("EXIT_CODE:0\n"),
	})

	var got string
	code, err := h.RunStreaming(context.Background(), "echo line",
		func(chunk []byte) { got += string(chunk) })
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "line\n", got)
}

func TestSingleShellPerHost(t *testing.T) {
	h, _ := newTestHost(t)

	var stdin io.WriteCloser
	handle, err := h.OpenShell(context.Background(), shell.Options{}, nil,
		func(w io.WriteCloser) { stdin = w })
	require.NoError(t, err)
	require.NotEmpty(t, handle)
	require.NotNil(t, stdin)

	_, err = h.OpenShell(context.Background(), shell.Options{}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrProtocol))

	// After closing, a new shell is allowed.
	done := h.ShellDone(handle)
	require.NotNil(t, done)
	h.CloseShell(handle)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not end after CloseShell")
	}

	// The bridge-end goroutine clears the slot shortly after done fires.
	require.Eventually(t, func() bool {
		_, err := h.OpenShell(context.Background(), shell.Options{}, nil, nil)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShellHandleLifecycle(t *testing.T) {
	h, ft := newTestHost(t)

	first, err := h.OpenShell(context.Background(), shell.Options{}, nil, nil)
	require.NoError(t, err)

	// Unknown handles never touch the live shell.
	assert.Nil(t, h.ShellDone("no-such-handle"))
	h.CloseShell("no-such-handle")
	require.NotNil(t, h.ShellDone(first))

	done := h.ShellDone(first)
	h.CloseShell(first)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not end after CloseShell")
	}

	// An ended handle no longer resolves; a new shell gets a fresh one.
	assert.Nil(t, h.ShellDone(first))
	ft.starter.Session = nil
	var second string
	require.Eventually(t, func() bool {
		handle, err := h.OpenShell(context.Background(), shell.Options{}, nil, nil)
		second = handle
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotEqual(t, first, second)
	require.NotNil(t, h.ShellDone(second))
}

func TestResizeRequiresOpenShell(t *testing.T) {
	h, ft := newTestHost(t)

	err := h.Resize("no-such-handle", 50, 120)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrProtocol))

	handle, err := h.OpenShell(context.Background(), shell.Options{}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, h.Resize(handle, 50, 120))
	assert.Equal(t, [][2]int{{50, 120}}, ft.starter.Session.Resizes())
}

func TestDisconnectStopsShell(t *testing.T) {
	h, ft := newTestHost(t)

	handle, err := h.OpenShell(context.Background(), shell.Options{}, nil, nil)
	require.NoError(t, err)
	done := h.ShellDone(handle)
	require.NotNil(t, done)

	h.Disconnect()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not end on disconnect")
	}
	assert.True(t, ft.starter.Session.IsClosed())
}

func TestTelemetryDelegation(t *testing.T) {
	h, ft := newTestHost(t)
	ft.SetResponse("sysctl -n hw.ncpu", sshtest.CommandResponse{Stdout: []byte("1\n")})
	ft.SetResponse("sysctl -n kern.cp_times", sshtest.CommandResponse{Stdout: []byte("100 0 50 0 850\n")})
	ft.SetResponse("netstat -ibn", sshtest.CommandResponse{Stdout: []byte("")})
	ft.SetResponse(`iostat -d -x`, sshtest.CommandResponse{Stdout: []byte("")})

	cores, err := h.PollCPUCores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, cores)

	snap, err := h.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.CPUErr)
}
