package sshutil

// Commander defines the transport surface the command executor builds on.
// Both the real Client and the fake in pkg/sshutil/testing satisfy this
// interface, so everything above the transport is testable without a
// network.
type Commander interface {
	// Connected reports whether a live transport exists. Executor entry
	// points check this first and fail fast without touching the gate.
	Connected() bool

	// Exec runs a command and returns stdout, stderr, and exit code.
	// Exit code is -1 if the command couldn't be executed at all.
	// A non-zero exit code with nil error means the command ran but failed.
	Exec(cmd string) (stdout, stderr []byte, exitCode int, err error)

	// StartStream launches a command whose combined output arrives
	// incrementally through the returned Stream.
	StartStream(cmd string) (Stream, error)
}

// ShellStarter is the slice of the transport needed to open an interactive
// PTY shell.
type ShellStarter interface {
	NewShellSession(term string, rows, cols int) (ShellSession, error)
}

var (
	_ Commander    = (*Client)(nil)
	_ ShellStarter = (*Client)(nil)
)
