// Package executor turns the raw transport primitives into gated command
// execution. Every run acquires a ticket from the shared admission gate, so
// a burst of callers never exceeds the remote sshd's session channel cap.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rileyhilliard/beacon/internal/errors"
	"github.com/rileyhilliard/beacon/internal/gate"
	"github.com/rileyhilliard/beacon/internal/logger"
	"github.com/rileyhilliard/beacon/pkg/sshutil"
)

// Executor runs commands on one remote host through the admission gate.
type Executor struct {
	conn sshutil.Commander
	gate *gate.Gate
	log  logger.Logger
}

// New creates an executor over the given transport and gate.
func New(conn sshutil.Commander, g *gate.Gate) *Executor {
	return &Executor{
		conn: conn,
		gate: g,
		log:  logger.Default(),
	}
}

// Gate exposes the underlying admission gate, mainly so the facade can
// share it across components.
func (e *Executor) Gate() *gate.Gate { return e.gate }

// admit checks connectivity before touching the gate, then blocks for a
// ticket. A disconnected transport never consumes gate capacity.
func (e *Executor) admit(ctx context.Context, op string) (*gate.Ticket, error) {
	if !e.conn.Connected() {
		return nil, errors.NewNotConnected(op)
	}
	return e.gate.Acquire(ctx)
}

// Run executes cmd and returns its combined output as one string. A remote
// non-zero exit is folded into the output, not surfaced as an error; the
// error return covers transport and admission failures only.
func (e *Executor) Run(ctx context.Context, cmd string) (string, error) {
	ticket, err := e.admit(ctx, "run command")
	if err != nil {
		return "", err
	}
	defer ticket.Release()

	start := time.Now()
	stdout, stderr, exitCode, err := e.conn.Exec(cmd)
	if err != nil {
		return "", err
	}
	e.log.Debug("ran %q in %s (exit %d)", cmd, time.Since(start).Round(time.Millisecond), exitCode)

	return string(stdout) + string(stderr), nil
}

// RunDetailed executes cmd and returns stdout and stderr separately. A
// non-zero remote exit is an EXEC error carrying the exit code and stderr.
func (e *Executor) RunDetailed(ctx context.Context, cmd string) (stdout, stderr string, err error) {
	ticket, err := e.admit(ctx, "run command")
	if err != nil {
		return "", "", err
	}
	defer ticket.Release()

	outB, errB, exitCode, err := e.conn.Exec(cmd)
	if err != nil {
		return "", "", err
	}
	stdout, stderr = string(outB), string(errB)
	if exitCode != 0 {
		return stdout, stderr, errors.New(errors.ErrExec,
			fmt.Sprintf("Command exited with status %d: %s", exitCode, cmd),
			firstNonEmpty(stderr, "The command produced no error output."))
	}
	return stdout, stderr, nil
}

// RunStreaming executes cmd under a PTY wrapper and forwards output chunks
// to onChunk as they arrive. The returned int is the remote exit status,
// recovered from the wrapper's trailing sentinel; -1 when the sentinel never
// arrived. Cancellation is checked between frames; once ctx is done no
// further chunks are emitted and the stream is torn down.
func (e *Executor) RunStreaming(ctx context.Context, cmd string, onChunk func([]byte)) (int, error) {
	ticket, err := e.admit(ctx, "stream command")
	if err != nil {
		return -1, err
	}
	defer ticket.Release()

	stream, err := e.conn.StartStream(WrapStreaming(cmd))
	if err != nil {
		return -1, err
	}
	defer stream.Close()

	sc := newSentinelScanner()
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		default:
		}

		n, readErr := stream.Read(buf)
		if n > 0 {
			if emit := sc.Feed(buf[:n]); len(emit) > 0 && onChunk != nil {
				onChunk(emit)
			}
		}
		if readErr != nil {
			break
		}
	}

	if held := sc.Flush(); len(held) > 0 && onChunk != nil {
		onChunk(held)
	}

	_ = stream.Wait()
	return sc.ExitCode(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
