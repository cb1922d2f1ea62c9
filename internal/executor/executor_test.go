package executor

import (
	"context"
	"testing"

	"github.com/rileyhilliard/beacon/internal/errors"
	"github.com/rileyhilliard/beacon/internal/gate"
	sshtest "github.com/rileyhilliard/beacon/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor() (*Executor, *sshtest.FakeCommander) {
	fake := sshtest.NewFakeCommander()
	return New(fake, gate.New(gate.DefaultLimit)), fake
}

func TestRunCombinesOutput(t *testing.T) {
	exec, fake := newTestExecutor()
	fake.SetResponse("uptime", sshtest.CommandResponse{
		Stdout: []byte("up 12 days\n"),
	})

	out, err := exec.Run(context.Background(), "uptime")
	require.NoError(t, err)
	assert.Equal(t, "up 12 days\n", out)
}

func TestRunFoldsNonZeroExit(t *testing.T) {
	exec, fake := newTestExecutor()
	fake.SetResponse("ls /nope", sshtest.CommandResponse{
		Stderr:   []byte("ls: /nope: No such file or directory\n"),
		ExitCode: 1,
	})

	out, err := exec.Run(context.Background(), "ls /nope")
	require.NoError(t, err)
	assert.Contains(t, out, "No such file or directory")
}

func TestRunNotConnected(t *testing.T) {
	exec, fake := newTestExecutor()
	fake.Disconnect()

	_, err := exec.Run(context.Background(), "uptime")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrNotConnected))

	// The gate was never touched: full capacity remains.
	g := exec.Gate()
	tickets := make([]*gate.Ticket, 0, g.Limit())
	for i := 0; i < g.Limit(); i++ {
		ticket := g.TryAcquire()
		require.NotNil(t, ticket)
		tickets = append(tickets, ticket)
	}
	for _, ticket := range tickets {
		ticket.Release()
	}
}

func TestRunDetailedSplitsStreams(t *testing.T) {
	exec, fake := newTestExecutor()
	fake.SetResponse("make build", sshtest.CommandResponse{
		Stdout: []byte("building\n"),
		Stderr: []byte("warning: stale cache\n"),
	})

	stdout, stderr, err := exec.RunDetailed(context.Background(), "make build")
	require.NoError(t, err)
	assert.Equal(t, "building\n", stdout)
	assert.Equal(t, "warning: stale cache\n", stderr)
}

func TestRunDetailedNonZeroExitIsError(t *testing.T) {
	exec, fake := newTestExecutor()
	fake.SetResponse("false", sshtest.CommandResponse{
		Stderr:   []byte("boom\n"),
		ExitCode: 3,
	})

	stdout, stderr, err := exec.RunDetailed(context.Background(), "false")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
	assert.Contains(t, err.Error(), "status 3")
	assert.Empty(t, stdout)
	assert.Equal(t, "boom\n", stderr)
}

func TestRunReleasesTicket(t *testing.T) {
	exec, fake := newTestExecutor()
	fake.SetResponse("uptime", sshtest.CommandResponse{Stdout: []byte("ok")})

	g := exec.Gate()
	for i := 0; i < g.Limit()*3; i++ {
		_, err := exec.Run(context.Background(), "uptime")
		require.NoError(t, err)
	}

	// Every ticket came back; the gate is at full capacity again.
	ticket := g.TryAcquire()
	require.NotNil(t, ticket)
	ticket.Release()
}

func TestRunStreamingForwardsChunksAndStatus(t *testing.T) {
	exec, fake := newTestExecutor()
	fake.SetStreamFrames(`script -q /dev/null sh -c`, [][]byte{
		[]byte("hello\n"),
		[]byte("world\n"),
		[]byte("EXIT_CODE:0\n"),
	})

	var chunks []string
	code, err := exec.RunStreaming(context.Background(), "echo hello; echo world",
		func(chunk []byte) { chunks = append(chunks, string(chunk)) })
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{"hello\n", "world\n"}, chunks)
}

func TestRunStreamingSplitSentinelFrame(t *testing.T) {
	exec, fake := newTestExecutor()
	fake.SetStreamFrames(`script -q /dev/null sh -c`, [][]byte{
		[]byte("partial output"),
		[]byte(" tail\nEXIT_CODE:17\n"),
	})

	var chunks []string
	code, err := exec.RunStreaming(context.Background(), "some-command",
		func(chunk []byte) { chunks = append(chunks, string(chunk)) })
	require.NoError(t, err)
	assert.Equal(t, 17, code)
	assert.Equal(t, []string{"partial output", " tail\n"}, chunks)
}

func TestRunStreamingSentinelOnly(t *testing.T) {
	exec, fake := newTestExecutor()
	fake.SetStreamFrames(`script -q /dev/null sh -c`, [][]byte{
		[]byte("EXIT_CODE:4\n"),
	})

	calls := 0
	code, err := exec.RunStreaming(context.Background(), "exit 4",
		func(chunk []byte) { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 4, code)
	assert.Zero(t, calls, "a sentinel-only stream emits no chunks")
}

func TestRunStreamingSentinelSplitAcrossFrames(t *testing.T) {
	exec, fake := newTestExecutor()
	fake.SetStreamFrames(`script -q /dev/null sh -c`, [][]byte{
		[]byte("hello EXIT_C"),
		[]byte("ODE:3\n"),
	})

	var chunks []string
	code, err := exec.RunStreaming(context.Background(), "some-command",
		func(chunk []byte) { chunks = append(chunks, string(chunk)) })
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, []string{"hello "}, chunks, "no marker fragment reaches the caller")
}

func TestRunStreamingHeldSuffixFlushedAtEOF(t *testing.T) {
	exec, fake := newTestExecutor()
	fake.SetStreamFrames(`script -q /dev/null sh -c`, [][]byte{
		[]byte("done EXIT_C"),
	})

	var got string
	code, err := exec.RunStreaming(context.Background(), "some-command",
		func(chunk []byte) { got += string(chunk) })
	require.NoError(t, err)
	assert.Equal(t, -1, code)
	assert.Equal(t, "done EXIT_C", got, "a marker lookalike is returned once the stream ends")
}

func TestRunStreamingMissingSentinel(t *testing.T) {
	exec, fake := newTestExecutor()
	fake.SetStreamFrames(`script -q /dev/null sh -c`, [][]byte{
		[]byte("output without a status line\n"),
	})

	var chunks []string
	code, err := exec.RunStreaming(context.Background(), "kill -9 $$",
		func(chunk []byte) { chunks = append(chunks, string(chunk)) })
	require.NoError(t, err)
	assert.Equal(t, -1, code)
	assert.Equal(t, []string{"output without a status line\n"}, chunks)
}

func TestRunStreamingCancellation(t *testing.T) {
	exec, fake := newTestExecutor()
	frames := make([][]byte, 50)
	for i := range frames {
		frames[i] = []byte("tick\n")
	}
	fake.SetStreamFrames(`script -q /dev/null sh -c`, frames)

	ctx, cancel := context.WithCancel(context.Background())
	var chunks int
	_, err := exec.RunStreaming(ctx, "yes", func(chunk []byte) {
		chunks++
		if chunks == 2 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, chunks, "no chunks after cancellation")

	// The ticket came back despite the abort.
	ticket := exec.Gate().TryAcquire()
	require.NotNil(t, ticket)
	ticket.Release()
}

func TestWrapStreaming(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		want string
	}{
		{
			name: "plain command",
			cmd:  "uptime",
			want: `script -q /dev/null sh -c 'uptime; echo EXIT_CODE:$?'`,
		},
		{
			name: "embedded single quotes survive",
			cmd:  `echo 'hello world'`,
			want: `script -q /dev/null sh -c 'echo '\''hello world'\''; echo EXIT_CODE:$?'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WrapStreaming(tt.cmd))
		})
	}
}

func TestSentinelScanner(t *testing.T) {
	t.Run("passthrough before sentinel", func(t *testing.T) {
		sc := newSentinelScanner()
		assert.Equal(t, []byte("abc"), sc.Feed([]byte("abc")))
		assert.Equal(t, -1, sc.ExitCode())
	})

	t.Run("withholds from marker on", func(t *testing.T) {
		sc := newSentinelScanner()
		assert.Equal(t, []byte("out "), sc.Feed([]byte("out EXIT_CODE:2")))
		assert.Nil(t, sc.Feed([]byte("more after")))
		assert.Equal(t, 2, sc.ExitCode())
	})

	t.Run("status digits split across frames", func(t *testing.T) {
		sc := newSentinelScanner()
		assert.Nil(t, sc.Feed([]byte("EXIT_CODE:")))
		assert.Nil(t, sc.Feed([]byte("12")))
		assert.Nil(t, sc.Feed([]byte("\n")))
		assert.Equal(t, 12, sc.ExitCode())
	})

	t.Run("marker split across frames", func(t *testing.T) {
		sc := newSentinelScanner()
		assert.Equal(t, []byte("out "), sc.Feed([]byte("out EXIT_")))
		assert.Nil(t, sc.Feed([]byte("CODE:5\n")))
		assert.Equal(t, 5, sc.ExitCode())
		assert.Nil(t, sc.Flush())
	})

	t.Run("held suffix is flushed when no sentinel arrives", func(t *testing.T) {
		sc := newSentinelScanner()
		assert.Equal(t, []byte("done "), sc.Feed([]byte("done EXIT_C")))
		assert.Equal(t, []byte("EXIT_C"), sc.Flush())
		assert.Equal(t, -1, sc.ExitCode())
	})

	t.Run("carry joins a marker spread over three frames", func(t *testing.T) {
		sc := newSentinelScanner()
		assert.Nil(t, sc.Feed([]byte("EX")))
		assert.Nil(t, sc.Feed([]byte("IT_CO")))
		assert.Nil(t, sc.Feed([]byte("DE:7\n")))
		assert.Equal(t, 7, sc.ExitCode())
	})
}
