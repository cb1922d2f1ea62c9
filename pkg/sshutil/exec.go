package sshutil

import (
	"bytes"
	"fmt"
	"io"

	"github.com/rileyhilliard/beacon/internal/errors"
	"golang.org/x/crypto/ssh"
)

// Exec runs a command on the remote host and returns the output.
// Returns stdout, stderr, exit code, and any error.
// Exit code is -1 if the command couldn't be executed at all.
func (c *Client) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	client, err := c.sshClient("run command")
	if err != nil {
		return nil, nil, -1, err
	}

	session, err := client.NewSession()
	if err != nil {
		c.setErr(err)
		return nil, nil, -1, errors.WrapWithCode(err, errors.ErrTransport,
			"Failed to create SSH session",
			errors.ClassifyTransport(err))
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	exitCode = 0
	err = session.Run(cmd)
	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			exitCode = exitErr.ExitStatus()
			err = nil // Command ran, just had non-zero exit
		} else {
			c.setErr(err)
			return nil, nil, -1, errors.WrapWithCode(err, errors.ErrExec,
				fmt.Sprintf("Failed to execute command: %s", cmd),
				"Check if the command exists on the remote host.")
		}
	}

	return stdoutBuf.Bytes(), stderrBuf.Bytes(), exitCode, nil
}

// Stream is an in-flight remote command whose combined output arrives
// incrementally through Read. Wait blocks until the remote process exits;
// Close aborts the command mid-stream.
type Stream interface {
	io.Reader
	Wait() error
	Close() error
}

// remoteStream adapts an *ssh.Session to the Stream interface, funnelling
// stdout and stderr through one pipe so frames arrive in emission order.
type remoteStream struct {
	session *ssh.Session
	pr      *io.PipeReader
	done    chan struct{}
	waitErr error
}

// StartStream launches cmd and returns a Stream of its combined output.
func (c *Client) StartStream(cmd string) (Stream, error) {
	client, err := c.sshClient("stream command")
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		c.setErr(err)
		return nil, errors.WrapWithCode(err, errors.ErrTransport,
			"Failed to create SSH session",
			errors.ClassifyTransport(err))
	}

	pr, pw := io.Pipe()
	session.Stdout = pw
	session.Stderr = pw

	if err := session.Start(cmd); err != nil {
		session.Close()
		c.setErr(err)
		return nil, errors.WrapWithCode(err, errors.ErrExec,
			fmt.Sprintf("Failed to start command: %s", cmd),
			"Check if the command exists on the remote host.")
	}

	s := &remoteStream{
		session: session,
		pr:      pr,
		done:    make(chan struct{}),
	}

	go func() {
		s.waitErr = session.Wait()
		pw.Close()
		close(s.done)
	}()

	return s, nil
}

func (s *remoteStream) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

// Wait blocks until the remote process has exited and returns its
// termination error (nil for exit status 0, *ssh.ExitError otherwise).
func (s *remoteStream) Wait() error {
	<-s.done
	return s.waitErr
}

// Close aborts the stream. Safe to call after Wait.
func (s *remoteStream) Close() error {
	_ = s.pr.Close()
	return s.session.Close()
}

// defaultTerminalModes is used for every PTY request. Echo stays on so the
// remote line discipline behaves like a real terminal.
var defaultTerminalModes = ssh.TerminalModes{
	ssh.ECHO:          1,
	ssh.TTY_OP_ISPEED: 14400,
	ssh.TTY_OP_OSPEED: 14400,
}

// ShellSession is a negotiated remote PTY running the user's login shell.
// Stdin only becomes meaningful once NewShellSession returns; callers that
// need to send input earlier must queue it themselves.
type ShellSession interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	Resize(rows, cols int) error
	Close() error
}

type shellSession struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	stderr  io.Reader
}

// NewShellSession opens a PTY with the given terminal type and geometry and
// starts the remote login shell on it. The session sits outside any command
// gating: it is a single persistent channel, not a pool-bounded resource.
func (c *Client) NewShellSession(term string, rows, cols int) (ShellSession, error) {
	client, err := c.sshClient("open shell")
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		c.setErr(err)
		return nil, errors.WrapWithCode(err, errors.ErrTransport,
			"Failed to create SSH session",
			errors.ClassifyTransport(err))
	}

	if term == "" {
		term = "xterm-256color"
	}
	if rows <= 0 {
		rows = 24
	}
	if cols <= 0 {
		cols = 80
	}

	if err := session.RequestPty(term, rows, cols, defaultTerminalModes); err != nil {
		session.Close()
		return nil, errors.WrapWithCode(err, errors.ErrTransport,
			"Failed to allocate PTY for shell",
			"The remote host may not support pseudo-terminals.")
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, errors.Wrap(err, "Failed to open shell stdin")
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, errors.Wrap(err, "Failed to open shell stdout")
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return nil, errors.Wrap(err, "Failed to open shell stderr")
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, errors.WrapWithCode(err, errors.ErrTransport,
			"Failed to start shell",
			"Check if your user has shell access on the remote host.")
	}

	return &shellSession{
		session: session,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}, nil
}

func (s *shellSession) Stdin() io.WriteCloser { return s.stdin }
func (s *shellSession) Stdout() io.Reader     { return s.stdout }
func (s *shellSession) Stderr() io.Reader     { return s.stderr }

// Resize propagates a window-size change to the remote PTY.
func (s *shellSession) Resize(rows, cols int) error {
	return s.session.WindowChange(rows, cols)
}

func (s *shellSession) Close() error {
	_ = s.stdin.Close()
	return s.session.Close()
}
