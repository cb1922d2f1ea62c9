package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rileyhilliard/beacon/internal/shell"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var shellCmd = &cobra.Command{
	Use:   "shell [host]",
	Short: "Open an interactive shell on a remote host",
	Long: `Open a full interactive login shell on the remote host.

The local terminal switches to raw mode so control characters, escape
sequences, and full-screen programs (vi, top) work as if you were sitting
at the machine. Window resizes are forwarded to the remote PTY.

Examples:
  beacon shell
  beacon shell nas
  beacon shell admin@203.0.113.9`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		return shellCommand(name)
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func shellCommand(hostName string) error {
	h, cfg, err := connectHost(hostName)
	if err != nil {
		return err
	}
	defer h.Disconnect()

	fd := int(os.Stdin.Fd())
	rows, cols := 24, 80
	isTerminal := term.IsTerminal(fd)
	if isTerminal {
		if c, r, sizeErr := term.GetSize(fd); sizeErr == nil {
			rows, cols = r, c
		}
		oldState, rawErr := term.MakeRaw(fd)
		if rawErr == nil {
			defer term.Restore(fd, oldState) //nolint:errcheck
		}
	}

	// The input sink only exists once the PTY is negotiated; onReady fires
	// before OpenShell returns, so stdin is set by the time we use it.
	var stdin io.WriteCloser
	handle, err := h.OpenShell(context.Background(),
		shell.Options{Term: cfg.Term, Rows: rows, Cols: cols},
		func(chunk []byte) {
			_, _ = os.Stdout.Write(chunk)
		},
		func(w io.WriteCloser) { stdin = w })
	if err != nil {
		return err
	}
	if stdin != nil {
		go func() {
			_, _ = io.Copy(stdin, os.Stdin)
			h.CloseShell(handle)
		}()
	}

	done := h.ShellDone(handle)
	if done == nil {
		return nil
	}

	// Forward local window resizes to the remote PTY.
	if isTerminal {
		winch := make(chan os.Signal, 1)
		signal.Notify(winch, syscall.SIGWINCH)
		defer signal.Stop(winch)
		go func() {
			for range winch {
				if c, r, sizeErr := term.GetSize(fd); sizeErr == nil {
					_ = h.Resize(handle, r, c)
				}
			}
		}()
	}

	<-done
	return nil
}
