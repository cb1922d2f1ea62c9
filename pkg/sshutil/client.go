// Package sshutil owns the authenticated connection to one remote host.
// It exposes a byte-in/byte-out command primitive, an incremental output
// stream, and a PTY shell session to the layers above; everything else
// (gating, sentinel protocols, telemetry) is built on top of those.
package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kevinburke/ssh_config"
	"github.com/rileyhilliard/beacon/internal/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Platform is the remote operating system reported by uname.
type Platform string

const (
	// PlatformFreeBSD is the primary supported remote platform.
	PlatformFreeBSD Platform = "FreeBSD"
	// PlatformHardenedBSD is a FreeBSD derivative with identical tooling.
	PlatformHardenedBSD Platform = "HardenedBSD"
)

// allowedPlatforms is the allow-list checked after authentication. A host
// outside this list is disconnected before the error propagates.
var allowedPlatforms = map[Platform]bool{
	PlatformFreeBSD:     true,
	PlatformHardenedBSD: true,
}

// Client wraps an SSH connection with connection state and metadata.
// A Client outlives its transport: holding a reference to a disconnected
// Client is legal, and every operation on it fails fast with a
// NOT_CONNECTED error.
type Client struct {
	mu        sync.Mutex
	client    *ssh.Client
	connected bool
	lastErr   error

	Host     string // The original host/alias used to connect
	Address  string // The resolved address (host:port)
	User     string // The authenticated remote user
	Platform Platform
}

// Options controls how Dial connects. Zero values are filled from
// ~/.ssh/config and defaults.
type Options struct {
	Port    int
	User    string
	KeyPath string // explicit identity file; sniffed for key family
	KeyData []byte // in-memory key, takes precedence over KeyPath
	Timeout time.Duration
}

// matchWarningOnce ensures the SSH config Match directive warning is only shown once per process.
var matchWarningOnce sync.Once

// WarningHandler is a function that handles warning messages.
// If nil, warnings are printed to stderr via log.Printf.
var WarningHandler func(message string)

func emitWarning(message string) {
	if WarningHandler != nil {
		WarningHandler(message)
	} else {
		log.Printf("Warning: %s", message)
	}
}

// StrictHostKeyChecking controls host key verification behavior.
// When true (default), host keys are verified against ~/.ssh/known_hosts.
// When false, host key verification is skipped (insecure, for CI/automation).
var StrictHostKeyChecking = true

// Dial establishes an authenticated SSH connection and validates the remote
// platform. The host can be:
//   - An SSH config alias (e.g., "gateway")
//   - A hostname (e.g., "192.168.1.100")
//   - A user@hostname (e.g., "admin@192.168.1.100")
//
// Settings not given in opts are resolved from ~/.ssh/config when available.
// After the handshake the remote identifies itself via `uname -s`; a host
// outside the supported platform list is torn down and a PLATFORM error is
// returned, so no authenticated-but-invalid connection survives.
func Dial(host string, opts Options) (*Client, error) {
	settings := resolveSettings(host, opts)

	config, err := buildClientConfig(settings, opts)
	if err != nil {
		var bErr *errors.Error
		if stderrors.As(err, &bErr) {
			return nil, err
		}
		return nil, errors.WrapWithCode(err, errors.ErrAuth,
			fmt.Sprintf("Couldn't set up SSH for '%s'", host),
			"Check your keys are loaded: ssh-add -l")
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	address := settings.address()
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrTransport,
			fmt.Sprintf("Can't reach '%s' at %s", host, address),
			errors.ClassifyTransport(err))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()

		var hostKeyErr *HostKeyMismatchError
		if stderrors.As(err, &hostKeyErr) {
			return nil, errors.New(errors.ErrAuth,
				hostKeyErr.Error(),
				hostKeyErr.Suggestion())
		}

		return nil, errors.WrapWithCode(err, errors.ErrAuth,
			fmt.Sprintf("SSH handshake with '%s' didn't go through", host),
			suggestionForHandshakeError(err, settings.encryptedKeys))
	}

	c := &Client{
		client:    ssh.NewClient(sshConn, chans, reqs),
		connected: true,
		Host:      host,
		Address:   address,
		User:      settings.user,
	}

	platform, err := c.identifyPlatform()
	if err != nil {
		c.Disconnect()
		return nil, err
	}
	if !allowedPlatforms[platform] {
		c.Disconnect()
		return nil, errors.New(errors.ErrPlatform,
			fmt.Sprintf("'%s' runs %s, which isn't a supported platform", host, platform),
			"beacon manages FreeBSD hosts. Check you're connecting to the right machine.")
	}
	c.Platform = platform

	return c, nil
}

// identifyPlatform asks the remote for its OS name via uname.
func (c *Client) identifyPlatform() (Platform, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrTransport,
			"Couldn't open a session to identify the remote platform",
			errors.ClassifyTransport(err))
	}
	defer session.Close()

	output, err := session.Output("uname -s")
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrPlatform,
			"Remote didn't answer the platform check",
			"The host must provide uname on the default PATH")
	}

	return Platform(strings.TrimSpace(string(output))), nil
}

// Connected reports whether the client holds a live transport.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// LastError returns the most recent transport-level error, if any.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// setErr records a transport error for later inspection.
func (c *Client) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// Disconnect closes the transport. It is idempotent and best-effort: a
// failing close never prevents the local state from transitioning to
// disconnected, and calling it on a never-connected or already-closed
// client is a no-op.
func (c *Client) Disconnect() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.connected = false
	c.mu.Unlock()

	if client != nil {
		_ = client.Close()
	}
}

// sshClient returns the live transport, or a NOT_CONNECTED error.
func (c *Client) sshClient(op string) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.client == nil {
		return nil, errors.NewNotConnected(op)
	}
	return c.client, nil
}

// connSettings holds resolved SSH connection parameters.
type connSettings struct {
	hostname      string
	port          string
	user          string
	identityFile  string
	encryptedKeys []string // Keys that exist but are encrypted
}

func (s *connSettings) address() string {
	return net.JoinHostPort(s.hostname, s.port)
}

// resolveSettings parses the host string, applies opts, and fills gaps from
// ~/.ssh/config.
func resolveSettings(host string, opts Options) *connSettings {
	settings := &connSettings{
		port: "22",
		user: currentUser(),
	}

	// user@host form takes precedence over config
	explicitUser := false
	if atIdx := strings.Index(host, "@"); atIdx != -1 {
		settings.user = host[:atIdx]
		host = host[atIdx+1:]
		explicitUser = true
	}
	if opts.User != "" && !explicitUser {
		settings.user = opts.User
		explicitUser = true
	}

	settings.hostname = host
	if opts.Port > 0 {
		settings.port = fmt.Sprintf("%d", opts.Port)
	}
	if opts.KeyPath != "" {
		settings.identityFile = expandPath(opts.KeyPath)
	}

	sshConfigPath := filepath.Join(homeDir(), ".ssh", "config")

	// The kevinburke/ssh_config library doesn't support Match, so strip
	// everything from the first Match block onward before decoding.
	content, matchLine, err := preprocessSSHConfig(sshConfigPath)
	if err != nil {
		return settings
	}

	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return settings
	}

	hostFound := false

	if hostname, _ := cfg.Get(host, "HostName"); hostname != "" {
		settings.hostname = hostname
		hostFound = true
	}
	if port, _ := cfg.Get(host, "Port"); port != "" && opts.Port == 0 {
		settings.port = port
		hostFound = true
	}
	if user, _ := cfg.Get(host, "User"); user != "" && !explicitUser {
		settings.user = user
		hostFound = true
	}
	if identity, _ := cfg.Get(host, "IdentityFile"); identity != "" && settings.identityFile == "" {
		settings.identityFile = expandPath(identity)
		hostFound = true
	}

	// Only warn about Match block if host wasn't found - it might be defined after the Match
	if matchLine > 0 && !hostFound {
		matchWarningOnce.Do(func() {
			emitWarning(fmt.Sprintf(
				"Host '%s' not found in SSH config (config has a Match block at line %d that may hide later entries). "+
					"If this host is defined after line %d, move it earlier in ~/.ssh/config.",
				host, matchLine, matchLine))
		})
	}

	return settings
}

// buildClientConfig assembles authentication methods, sniffing the key
// family of any explicit credential before use.
func buildClientConfig(settings *connSettings, opts Options) (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	tryKeyData := func(data []byte, path string) error {
		if _, err := ClassifyKey(data); err != nil {
			return err
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			if strings.Contains(err.Error(), "encrypted") ||
				strings.Contains(err.Error(), "passphrase") ||
				isEncryptedPEM(data) {
				return &EncryptedKeyError{Path: path}
			}
			return err
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
		return nil
	}

	tryKeyFile := func(keyPath string, explicit bool) error {
		data, err := os.ReadFile(keyPath)
		if err != nil {
			if explicit {
				return errors.WrapWithCode(err, errors.ErrAuth,
					"Couldn't read the key file "+keyPath,
					"Check the path and permissions")
			}
			return nil // Missing default keys are fine
		}
		err = tryKeyData(data, keyPath)
		if err != nil {
			var encErr *EncryptedKeyError
			if stderrors.As(err, &encErr) {
				settings.encryptedKeys = append(settings.encryptedKeys, keyPath)
				if !explicit {
					return nil
				}
			}
			if explicit {
				return err
			}
		}
		return nil
	}

	// An explicit credential must classify and parse; its failure is the
	// caller's answer, not something to paper over with fallbacks.
	if len(opts.KeyData) > 0 {
		if err := tryKeyData(opts.KeyData, "(in-memory key)"); err != nil {
			return nil, err
		}
	} else if opts.KeyPath != "" {
		if err := tryKeyFile(expandPath(opts.KeyPath), true); err != nil {
			return nil, err
		}
	} else {
		// Agent first (most common and convenient), then config identity,
		// then default key files.
		if agentAuth := sshAgentAuth(); agentAuth != nil {
			authMethods = append(authMethods, agentAuth)
		}

		if settings.identityFile != "" {
			_ = tryKeyFile(settings.identityFile, false)
		}

		defaultKeys := []string{
			filepath.Join(homeDir(), ".ssh", "id_ed25519"),
			filepath.Join(homeDir(), ".ssh", "id_rsa"),
			filepath.Join(homeDir(), ".ssh", "id_ecdsa"),
		}
		for _, keyPath := range defaultKeys {
			if keyPath == settings.identityFile {
				continue // Already tried this one
			}
			_ = tryKeyFile(keyPath, false)
		}
	}

	if len(authMethods) == 0 {
		msg := "No SSH auth methods available"
		suggestion := "Check your keys are loaded: ssh-add -l"

		if len(settings.encryptedKeys) > 0 {
			msg = fmt.Sprintf("Found SSH key(s) but they're encrypted: %s", strings.Join(settings.encryptedKeys, ", "))
			var sb strings.Builder
			sb.WriteString("Add your key(s) to the agent:\n")
			for _, key := range settings.encryptedKeys {
				sb.WriteString(fmt.Sprintf("  ssh-add %s\n", key))
			}
			sb.WriteString("\nNot sure which key? Check with: ssh -v <host>")
			suggestion = sb.String()
		}

		return nil, errors.New(errors.ErrAuth, msg, suggestion)
	}

	var hostKeyCallback ssh.HostKeyCallback
	if StrictHostKeyChecking {
		knownHostsPath := filepath.Join(homeDir(), ".ssh", "known_hosts")
		var err error
		hostKeyCallback, err = createHostKeyCallback(knownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	} else {
		hostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // User explicitly disabled host key checking
	}

	return &ssh.ClientConfig{
		User:            settings.user,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}, nil
}

// agentConn holds the reusable SSH agent connection.
var (
	agentConn     net.Conn
	agentClient   agent.ExtendedAgent
	agentConnOnce sync.Once
)

// sshAgentAuth returns an auth method using the SSH agent if available.
// The agent connection is reused across multiple SSH connections.
// Returns nil if the agent has no keys loaded.
func sshAgentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}

	agentConnOnce.Do(func() {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return
		}
		agentConn = conn
		agentClient = agent.NewClient(conn)
	})

	if agentClient == nil {
		return nil
	}

	// Only return agent auth if the agent actually has keys.
	// An empty agent causes auth failures when placed before other methods.
	signers, err := agentClient.Signers()
	if err != nil || len(signers) == 0 {
		return nil
	}

	return ssh.PublicKeysCallback(agentClient.Signers)
}

// CloseAgent closes the SSH agent connection if one is open.
// This should be called when the application is shutting down.
func CloseAgent() {
	if agentConn != nil {
		agentConn.Close()
	}
}

// Helper functions

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "root"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func suggestionForHandshakeError(err error, encryptedKeys []string) string {
	errStr := err.Error()
	if strings.Contains(errStr, "unable to authenticate") || strings.Contains(errStr, "no supported methods") {
		if len(encryptedKeys) > 0 {
			var sb strings.Builder
			sb.WriteString("Your key(s) are encrypted. Add them to the agent:\n")
			for _, key := range encryptedKeys {
				sb.WriteString(fmt.Sprintf("  ssh-add %s\n", key))
			}
			sb.WriteString("\nNot sure which key? Check with: ssh -v <host>")
			return sb.String()
		}
		return "Auth failed. Check your keys are loaded: ssh-add -l"
	}
	if strings.Contains(errStr, "host key") {
		return "Host key issue. Try connecting manually first: ssh <host>"
	}
	return "Something went wrong during SSH setup. Try: ssh <host>"
}

// HostKeyMismatchError provides helpful context when known_hosts verification fails.
type HostKeyMismatchError struct {
	Hostname     string
	ReceivedType string
	KnownHosts   string
	Want         []knownhosts.KnownKey
}

func (e *HostKeyMismatchError) Error() string {
	return fmt.Sprintf("host key mismatch for %s: server sent %s key", e.Hostname, e.ReceivedType)
}

// Suggestion returns actionable steps to fix the host key mismatch.
func (e *HostKeyMismatchError) Suggestion() string {
	host := e.Hostname
	// Strip port if present (e.g., "host:22" -> "host")
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	var wantTypes []string
	for _, k := range e.Want {
		wantTypes = append(wantTypes, k.Key.Type())
	}
	wantStr := "unknown"
	if len(wantTypes) > 0 {
		wantStr = strings.Join(wantTypes, ", ")
	}

	return fmt.Sprintf(
		"The server's host key doesn't match what's in known_hosts.\n"+
			"  Known types: %s\n"+
			"  Server sent: %s\n\n"+
			"  To update known_hosts with all key types:\n"+
			"    ssh-keyscan -t rsa,ecdsa,ed25519 %s >> %s\n\n"+
			"  Or remove the old entry:\n"+
			"    ssh-keygen -R %s",
		wantStr, e.ReceivedType, host, e.KnownHosts, host)
}

// preprocessSSHConfig reads the SSH config and returns content up to the first Match directive.
// Returns the original content if no Match directive is found.
// Also returns the line number where Match was found (0 if not found).
func preprocessSSHConfig(configPath string) ([]byte, int, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, 0, err
	}

	lines := strings.Split(string(content), "\n")
	var result []string
	matchLine := 0

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		// Match directive check (case insensitive)
		if strings.HasPrefix(strings.ToLower(trimmed), "match ") {
			matchLine = i + 1 // 1-indexed line number
			break
		}
		result = append(result, line)
	}

	return []byte(strings.Join(result, "\n")), matchLine, nil
}

// createHostKeyCallback wraps the knownhosts callback to provide better error messages.
func createHostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	// Check if known_hosts exists, create if it doesn't
	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		dir := filepath.Dir(knownHostsPath)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create .ssh directory: %w", err)
		}
		if err := os.WriteFile(knownHostsPath, []byte{}, 0600); err != nil {
			return nil, fmt.Errorf("failed to create known_hosts: %w", err)
		}
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, err
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := callback(hostname, remote, key)
		if err != nil {
			var keyErr *knownhosts.KeyError
			if stderrors.As(err, &keyErr) && len(keyErr.Want) > 0 {
				return &HostKeyMismatchError{
					Hostname:     hostname,
					ReceivedType: key.Type(),
					KnownHosts:   knownHostsPath,
					Want:         keyErr.Want,
				}
			}
		}
		return err
	}, nil
}
