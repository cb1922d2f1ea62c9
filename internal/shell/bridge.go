// Package shell bridges a local terminal to a remote PTY shell. The bridge
// sits outside the command gate: it is one long-lived channel, not a
// pool-bounded batch resource.
package shell

import (
	"context"
	"io"
	"sync"

	"github.com/rileyhilliard/beacon/internal/logger"
	"github.com/rileyhilliard/beacon/pkg/sshutil"
)

// Options controls PTY negotiation. Zero values fall back to an
// xterm-256color terminal at 80x24.
type Options struct {
	Term string
	Rows int
	Cols int
}

func (o Options) withDefaults() Options {
	if o.Term == "" {
		o.Term = "xterm-256color"
	}
	if o.Rows <= 0 {
		o.Rows = 24
	}
	if o.Cols <= 0 {
		o.Cols = 80
	}
	return o
}

// Bridge is a live two-way pipe between the caller and a remote shell.
// Output bytes are forwarded exactly as received, so escape sequences and
// partial UTF-8 runs survive intact.
type Bridge struct {
	session sshutil.ShellSession
	log     logger.Logger

	stopOnce sync.Once
	done     chan struct{}

	mu  sync.Mutex
	err error
}

// Open negotiates a PTY shell and starts forwarding its output to onOutput.
// onReady fires with the shell's input sink once negotiation has completed;
// input written before that moment is not buffered anywhere, which is why
// the sink is handed over instead of being a field on the Bridge.
//
// The bridge ends when the remote closes the channel, Stop is called, or
// ctx is cancelled. There is no automatic reconnect.
func Open(ctx context.Context, starter sshutil.ShellStarter, opts Options,
	onOutput func([]byte), onReady func(io.WriteCloser)) (*Bridge, error) {

	opts = opts.withDefaults()
	session, err := starter.NewShellSession(opts.Term, opts.Rows, opts.Cols)
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		session: session,
		log:     logger.Default(),
		done:    make(chan struct{}),
	}

	if onReady != nil {
		onReady(session.Stdin())
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go b.forward(&readers, session.Stdout(), onOutput)
	go b.forward(&readers, session.Stderr(), onOutput)

	go func() {
		readers.Wait()
		// Both output streams are gone: the remote side closed the
		// channel, or Stop tore it down. Either way the bridge is over.
		b.Stop()
		close(b.done)
	}()

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				b.Stop()
			case <-b.done:
			}
		}()
	}

	return b, nil
}

// forward copies r to onOutput chunk by chunk with no line buffering.
func (b *Bridge) forward(wg *sync.WaitGroup, r io.Reader, onOutput func([]byte)) {
	defer wg.Done()
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 && onOutput != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onOutput(chunk)
		}
		if err != nil {
			if err != io.EOF {
				b.setErr(err)
			}
			return
		}
	}
}

// Resize propagates a window geometry change to the remote PTY.
func (b *Bridge) Resize(rows, cols int) error {
	return b.session.Resize(rows, cols)
}

// Stop tears the bridge down: input sink closed, session closed, read loops
// unblocked. Safe to call any number of times, from any goroutine.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if err := b.session.Close(); err != nil {
			b.log.Debug("shell session close: %v", err)
		}
	})
}

// Done is closed once the bridge has fully ended.
func (b *Bridge) Done() <-chan struct{} { return b.done }

// Err returns the first read-loop error, if any. Remote closure without an
// error reports nil.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *Bridge) setErr(err error) {
	b.mu.Lock()
	if b.err == nil {
		b.err = err
	}
	b.mu.Unlock()
}
