// Package testing provides in-memory fakes for the sshutil transport
// surface, so the executor, telemetry engine, and facade can be tested
// without a network.
package testing

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"sync"

	"github.com/rileyhilliard/beacon/pkg/sshutil"
)

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Err      error
}

// FakeCommander simulates an SSH transport for testing.
// Commands are matched against registered patterns (exact string first,
// then regex). Unmatched commands succeed with empty output.
type FakeCommander struct {
	mu        sync.Mutex
	connected bool
	commands  map[string]CommandResponse
	streams   map[string][][]byte

	// ExecLog records every command dispatched, in order.
	ExecLog []string
	// Inflight tracking lets tests assert the gate bound.
	inflight    int
	MaxInflight int
}

// NewFakeCommander creates a connected fake transport.
func NewFakeCommander() *FakeCommander {
	return &FakeCommander{
		connected: true,
		commands:  make(map[string]CommandResponse),
		streams:   make(map[string][][]byte),
	}
}

// SetResponse registers a canned response for a command pattern.
// The pattern can be an exact string or a regex.
func (f *FakeCommander) SetResponse(pattern string, resp CommandResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands[pattern] = resp
}

// SetStreamFrames registers the frames a StartStream for a matching command
// will deliver, one frame per Read call.
func (f *FakeCommander) SetStreamFrames(pattern string, frames [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams[pattern] = frames
}

// Disconnect marks the transport as gone.
func (f *FakeCommander) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

// Connected reports the simulated connection state.
func (f *FakeCommander) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeCommander) lookup(cmd string) (CommandResponse, bool) {
	if resp, ok := f.commands[cmd]; ok {
		return resp, true
	}
	for pattern, resp := range f.commands {
		if matched, _ := regexp.MatchString(pattern, cmd); matched {
			return resp, true
		}
	}
	return CommandResponse{}, false
}

// Exec runs a command against the registered responses.
func (f *FakeCommander) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return nil, nil, -1, errors.New("connection closed")
	}
	f.ExecLog = append(f.ExecLog, cmd)
	f.inflight++
	if f.inflight > f.MaxInflight {
		f.MaxInflight = f.inflight
	}
	resp, ok := f.lookup(cmd)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if !ok {
		return nil, nil, 0, nil
	}
	return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Err
}

// StartStream returns a FakeStream delivering the registered frames.
// Falls back to a single frame containing the Exec response's stdout when
// no frames were registered for the command.
func (f *FakeCommander) StartStream(cmd string) (sshutil.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return nil, errors.New("connection closed")
	}
	f.ExecLog = append(f.ExecLog, cmd)

	for pattern, frames := range f.streams {
		matched := pattern == cmd
		if !matched {
			matched, _ = regexp.MatchString(pattern, cmd)
		}
		if matched {
			return &FakeStream{frames: frames}, nil
		}
	}

	if resp, ok := f.lookup(cmd); ok {
		if resp.Err != nil {
			return nil, resp.Err
		}
		return &FakeStream{frames: [][]byte{resp.Stdout}}, nil
	}

	return &FakeStream{}, nil
}

// FakeStream replays scripted frames, one per Read call, then reports EOF.
// A frame longer than the caller's buffer is delivered across as many Reads
// as it takes; nothing is dropped.
type FakeStream struct {
	mu      sync.Mutex
	frames  [][]byte
	pos     int
	pending []byte
	closed  bool
	waitErr error

	// Closed is observable by tests.
	Closed bool
}

// Read copies the next scripted frame into p, resuming a partially read
// frame where the previous call left off.
func (s *FakeStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.New("stream closed")
	}
	if len(s.pending) == 0 {
		if s.pos >= len(s.frames) {
			return 0, io.EOF
		}
		s.pending = s.frames[s.pos]
		s.pos++
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Wait returns the configured termination error (nil by default).
func (s *FakeStream) Wait() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitErr
}

// Close marks the stream aborted.
func (s *FakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.Closed = true
	return nil
}

// FakeShellSession simulates a negotiated remote PTY.
type FakeShellSession struct {
	mu      sync.Mutex
	input   bytes.Buffer
	resizes [][2]int
	closed  bool

	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter
}

// NewFakeShellSession creates a fake PTY whose output is pushed by the test
// through PushStdout/PushStderr.
func NewFakeShellSession() *FakeShellSession {
	s := &FakeShellSession{}
	s.stdoutR, s.stdoutW = io.Pipe()
	s.stderrR, s.stderrW = io.Pipe()
	return s
}

// PushStdout makes data appear on the shell's stdout.
func (s *FakeShellSession) PushStdout(data []byte) {
	_, _ = s.stdoutW.Write(data)
}

// PushStderr makes data appear on the shell's stderr.
func (s *FakeShellSession) PushStderr(data []byte) {
	_, _ = s.stderrW.Write(data)
}

// EndOutput closes the output side, simulating remote closure.
func (s *FakeShellSession) EndOutput() {
	_ = s.stdoutW.Close()
	_ = s.stderrW.Close()
}

// Input returns everything written to the shell's stdin so far.
func (s *FakeShellSession) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input.String()
}

// Resizes returns the (rows, cols) pairs passed to Resize.
func (s *FakeShellSession) Resizes() [][2]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][2]int, len(s.resizes))
	copy(out, s.resizes)
	return out
}

// IsClosed reports whether Close was called.
func (s *FakeShellSession) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *FakeShellSession) Stdin() io.WriteCloser { return &fakeStdin{s: s} }
func (s *FakeShellSession) Stdout() io.Reader     { return s.stdoutR }
func (s *FakeShellSession) Stderr() io.Reader     { return s.stderrR }

func (s *FakeShellSession) Resize(rows, cols int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("session closed")
	}
	s.resizes = append(s.resizes, [2]int{rows, cols})
	return nil
}

func (s *FakeShellSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stdoutW.Close()
	_ = s.stderrW.Close()
	return nil
}

type fakeStdin struct {
	s *FakeShellSession
}

func (w *fakeStdin) Write(p []byte) (int, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	if w.s.closed {
		return 0, errors.New("session closed")
	}
	return w.s.input.Write(p)
}

func (w *fakeStdin) Close() error { return nil }

// FakeShellStarter hands out a prepared FakeShellSession.
type FakeShellStarter struct {
	Session *FakeShellSession
	Err     error

	// Last negotiated geometry, observable by tests.
	Term string
	Rows int
	Cols int
}

// NewShellSession returns the prepared session, recording the negotiated
// terminal parameters.
func (f *FakeShellStarter) NewShellSession(term string, rows, cols int) (sshutil.ShellSession, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.Term = term
	f.Rows = rows
	f.Cols = cols
	if f.Session == nil {
		f.Session = NewFakeShellSession()
	}
	return f.Session, nil
}

var (
	_ sshutil.Commander    = (*FakeCommander)(nil)
	_ sshutil.Stream       = (*FakeStream)(nil)
	_ sshutil.ShellSession = (*FakeShellSession)(nil)
	_ sshutil.ShellStarter = (*FakeShellStarter)(nil)
)
