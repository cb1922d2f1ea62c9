package cli

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rileyhilliard/beacon/internal/dashboard"
	"github.com/rileyhilliard/beacon/internal/errors"
	"github.com/spf13/cobra"
)

var monitorIntervalFlag string

var monitorCmd = &cobra.Command{
	Use:   "monitor [host]",
	Short: "Live telemetry dashboard for a remote host",
	Long: `Start an interactive dashboard showing live metrics for a remote host:
per-core CPU load, per-interface network throughput, and per-disk I/O.

Keyboard shortcuts:
  q / Ctrl+C  Quit
  r           Force refresh

Examples:
  beacon monitor
  beacon monitor nas
  beacon monitor --interval 5s nas`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) > 0 {
			name = args[0]
		}

		var interval time.Duration
		if monitorIntervalFlag != "" {
			parsed, err := time.ParseDuration(monitorIntervalFlag)
			if err != nil {
				return errors.WrapWithCode(err, errors.ErrConfig,
					fmt.Sprintf("Invalid interval: %s", monitorIntervalFlag),
					"Use a valid duration like 2s, 5s, or 1m")
			}
			if parsed < 500*time.Millisecond {
				return errors.New(errors.ErrConfig,
					"Interval too short",
					"Minimum interval is 500ms to avoid overwhelming the host")
			}
			interval = parsed
		}

		return monitorCommand(name, interval)
	},
}

func init() {
	monitorCmd.Flags().StringVar(&monitorIntervalFlag, "interval", "", "refresh interval (default: poll_interval from config)")
	rootCmd.AddCommand(monitorCmd)
}

func monitorCommand(hostName string, interval time.Duration) error {
	h, cfg, err := connectHost(hostName)
	if err != nil {
		return err
	}
	defer h.Disconnect()

	if interval == 0 {
		interval = cfg.PollInterval
	}
	if interval == 0 {
		interval = 2 * time.Second
	}

	model := dashboard.NewModel(h, h.Name(), interval)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
