// Package remote is the facade the CLI and dashboard program against. A
// Host bundles one SSH transport, one admission gate, one executor, one
// telemetry engine, and at most one interactive shell bridge. Hosts are
// plain values: construct as many as you need, none of them share state.
package remote

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rileyhilliard/beacon/internal/errors"
	"github.com/rileyhilliard/beacon/internal/executor"
	"github.com/rileyhilliard/beacon/internal/gate"
	"github.com/rileyhilliard/beacon/internal/logger"
	"github.com/rileyhilliard/beacon/internal/parsers"
	"github.com/rileyhilliard/beacon/internal/shell"
	"github.com/rileyhilliard/beacon/internal/telemetry"
	"github.com/rileyhilliard/beacon/pkg/sshutil"
)

// transport is everything the facade needs from a live connection.
// *sshutil.Client satisfies it; tests substitute fakes.
type transport interface {
	sshutil.Commander
	sshutil.ShellStarter
	Disconnect()
}

// Config controls how a Host connects and runs.
type Config struct {
	User         string
	Port         int
	KeyPath      string
	Timeout      time.Duration
	ChannelLimit int // concurrent command channels; 0 means gate.DefaultLimit
}

// Host manages one remote machine. Zero value is not usable; call New.
// All methods are safe for concurrent use.
type Host struct {
	name string
	cfg  Config
	log  logger.Logger

	// dial is swappable so tests can inject a fake transport.
	dial func(host string, opts sshutil.Options) (transport, error)

	mu     sync.Mutex
	conn   transport
	exec   *executor.Executor
	engine *telemetry.Engine
	shells *shell.Registry
	bridge *shell.Bridge
}

// New creates a Host for the given name (hostname, alias, or user@host).
func New(name string, cfg Config) *Host {
	return &Host{
		name: name,
		cfg:  cfg,
		log:  logger.Default(),
		dial: func(host string, opts sshutil.Options) (transport, error) {
			return sshutil.Dial(host, opts)
		},
	}
}

// Name returns the host identifier this Host was created with.
func (h *Host) Name() string { return h.name }

// Connect establishes the SSH transport. Calling Connect on an already
// connected Host is a no-op.
func (h *Host) Connect() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn != nil && h.conn.Connected() {
		return nil
	}

	conn, err := h.dial(h.name, sshutil.Options{
		User:    h.cfg.User,
		Port:    h.cfg.Port,
		KeyPath: h.cfg.KeyPath,
		Timeout: h.cfg.Timeout,
	})
	if err != nil {
		return err
	}

	h.conn = conn
	h.exec = executor.New(conn, gate.New(h.cfg.ChannelLimit))
	h.engine = telemetry.NewEngine(h.exec)
	h.shells = shell.NewRegistry(shell.DefaultIdleTimeout)
	h.log.Debug("connected to %s", h.name)
	return nil
}

// Disconnect tears everything down: the shell bridge first, then the
// transport. Idempotent; disconnecting a never-connected Host is a no-op.
func (h *Host) Disconnect() {
	h.mu.Lock()
	shells := h.shells
	conn := h.conn
	h.shells = nil
	h.bridge = nil
	h.conn = nil
	h.exec = nil
	h.engine = nil
	h.mu.Unlock()

	if shells != nil {
		shells.Close()
	}
	if conn != nil {
		conn.Disconnect()
	}
}

// Connected reports whether the Host holds a live transport.
func (h *Host) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil && h.conn.Connected()
}

// executorOrErr returns the live executor, or a NOT_CONNECTED error.
func (h *Host) executorOrErr(op string) (*executor.Executor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exec == nil || h.conn == nil || !h.conn.Connected() {
		return nil, errors.NewNotConnected(op)
	}
	return h.exec, nil
}

func (h *Host) engineOrErr(op string) (*telemetry.Engine, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine == nil || h.conn == nil || !h.conn.Connected() {
		return nil, errors.NewNotConnected(op)
	}
	return h.engine, nil
}

// Run executes cmd and returns its combined output.
func (h *Host) Run(ctx context.Context, cmd string) (string, error) {
	exec, err := h.executorOrErr("run command")
	if err != nil {
		return "", err
	}
	return exec.Run(ctx, cmd)
}

// RunDetailed executes cmd and returns stdout and stderr separately.
func (h *Host) RunDetailed(ctx context.Context, cmd string) (stdout, stderr string, err error) {
	exec, err := h.executorOrErr("run command")
	if err != nil {
		return "", "", err
	}
	return exec.RunDetailed(ctx, cmd)
}

// RunStreaming executes cmd and forwards output chunks to onChunk as they
// arrive. Returns the remote exit status, -1 when it couldn't be recovered.
func (h *Host) RunStreaming(ctx context.Context, cmd string, onChunk func([]byte)) (int, error) {
	exec, err := h.executorOrErr("stream command")
	if err != nil {
		return -1, err
	}
	return exec.RunStreaming(ctx, cmd, onChunk)
}

// OpenShell starts the Host's interactive shell bridge and returns its
// handle. At most one bridge exists per Host; opening a second while one is
// live is a PROTOCOL error.
func (h *Host) OpenShell(ctx context.Context, opts shell.Options,
	onOutput func([]byte), onReady func(io.WriteCloser)) (string, error) {

	h.mu.Lock()
	if h.conn == nil || !h.conn.Connected() {
		h.mu.Unlock()
		return "", errors.NewNotConnected("open shell")
	}
	if h.bridge != nil {
		h.mu.Unlock()
		return "", errors.New(errors.ErrProtocol,
			"A shell is already open on "+h.name,
			"Close the existing shell before opening another.")
	}
	conn := h.conn
	shells := h.shells
	h.mu.Unlock()

	bridge, err := shell.Open(ctx, conn, opts, onOutput, onReady)
	if err != nil {
		return "", err
	}

	handle := shells.Register(bridge)
	h.mu.Lock()
	h.bridge = bridge
	h.mu.Unlock()

	// Clear the slot and the registry entry once the bridge ends, however
	// it ends, so a new shell can be opened afterwards.
	go func() {
		<-bridge.Done()
		shells.Unregister(handle)
		h.mu.Lock()
		if h.bridge == bridge {
			h.bridge = nil
		}
		h.mu.Unlock()
	}()

	return handle, nil
}

// resolveShell maps a handle to its live bridge, or nil.
func (h *Host) resolveShell(handle string) *shell.Bridge {
	h.mu.Lock()
	shells := h.shells
	h.mu.Unlock()
	if shells == nil {
		return nil
	}
	return shells.Get(handle)
}

// CloseShell stops the shell behind handle. No-op for an unknown or already
// ended handle.
func (h *Host) CloseShell(handle string) {
	h.mu.Lock()
	shells := h.shells
	h.mu.Unlock()
	if shells != nil {
		shells.Unregister(handle)
	}
}

// ShellDone returns the completion channel of the shell behind handle, or
// nil when the handle is unknown.
func (h *Host) ShellDone(handle string) <-chan struct{} {
	bridge := h.resolveShell(handle)
	if bridge == nil {
		return nil
	}
	return bridge.Done()
}

// Resize propagates terminal geometry to the shell behind handle. Resizing
// also counts as activity, deferring idle reaping.
func (h *Host) Resize(handle string, rows, cols int) error {
	h.mu.Lock()
	shells := h.shells
	h.mu.Unlock()

	var bridge *shell.Bridge
	if shells != nil {
		bridge = shells.Get(handle)
	}
	if bridge == nil {
		return errors.New(errors.ErrProtocol,
			"No open shell matches that handle on "+h.name,
			"Open a shell and use the handle it returns.")
	}
	shells.Touch(handle)
	return bridge.Resize(rows, cols)
}

// PollCPUCores returns per-core busy percentages since the previous poll.
func (h *Host) PollCPUCores(ctx context.Context) ([]float64, error) {
	engine, err := h.engineOrErr("poll cpu")
	if err != nil {
		return nil, err
	}
	return engine.PollCPUCores(ctx)
}

// PollNetworkInterfaces returns per-interface byte rates since the previous
// poll.
func (h *Host) PollNetworkInterfaces(ctx context.Context) ([]telemetry.InterfaceRate, error) {
	engine, err := h.engineOrErr("poll network")
	if err != nil {
		return nil, err
	}
	return engine.PollNetworkInterfaces(ctx)
}

// PollDiskIO returns instantaneous per-device disk transfer rates.
func (h *Host) PollDiskIO(ctx context.Context) ([]parsers.DiskActivity, error) {
	engine, err := h.engineOrErr("poll disk")
	if err != nil {
		return nil, err
	}
	return engine.PollDiskIO(ctx)
}

// Snapshot polls every telemetry family in parallel.
func (h *Host) Snapshot(ctx context.Context) (*telemetry.Snapshot, error) {
	engine, err := h.engineOrErr("snapshot")
	if err != nil {
		return nil, err
	}
	return engine.TakeSnapshot(ctx), nil
}
