package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/rileyhilliard/beacon/internal/errors"
	"github.com/spf13/cobra"
)

var (
	runHostFlag     string
	runDetailedFlag bool
	runStreamFlag   bool
)

var runCmd = &cobra.Command{
	Use:   "run [command]",
	Short: "Run a command on a remote host",
	Long: `Execute a command on the remote host over the shared SSH connection.

By default the combined output is printed once the command finishes.
--detailed keeps stdout and stderr separate; --stream forwards output
incrementally as the command produces it (useful for builds and long
installs).

Examples:
  beacon run "uptime"
  beacon run --host nas "zpool status"
  beacon run --stream "make -j8 buildworld"
  beacon run --detailed "pkg upgrade -n"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(strings.Join(args, " "))
	},
}

func init() {
	runCmd.Flags().StringVar(&runHostFlag, "host", "", "target host name")
	runCmd.Flags().BoolVar(&runDetailedFlag, "detailed", false, "print stdout and stderr separately")
	runCmd.Flags().BoolVar(&runStreamFlag, "stream", false, "stream output as it arrives")

	rootCmd.AddCommand(runCmd)
}

func runCommand(command string) error {
	if runDetailedFlag && runStreamFlag {
		return errors.New(errors.ErrConfig,
			"--detailed and --stream cannot be used together",
			"Pick one output mode.")
	}

	h, _, err := connectHost(runHostFlag)
	if err != nil {
		return err
	}
	defer h.Disconnect()

	// Ctrl+C cancels the in-flight command, then restores default handling.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case runStreamFlag:
		code, err := h.RunStreaming(ctx, command, func(chunk []byte) {
			_, _ = os.Stdout.Write(chunk)
		})
		if err != nil {
			return err
		}
		if code != 0 {
			return errors.New(errors.ErrExec,
				fmt.Sprintf("Command exited with status %d", code),
				"Scroll up for the command's output.")
		}
		return nil

	case runDetailedFlag:
		stdout, stderr, err := h.RunDetailed(ctx, command)
		fmt.Print(stdout)
		if stderr != "" {
			fmt.Fprint(os.Stderr, stderr)
		}
		return err

	default:
		out, err := h.Run(ctx, command)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}
}
