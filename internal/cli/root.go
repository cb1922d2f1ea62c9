// Package cli wires the beacon commands: run, shell, monitor, hosts, init,
// version. Command implementations stay thin; the real work lives in
// internal/remote and below.
package cli

import (
	"fmt"
	"os"

	"github.com/rileyhilliard/beacon/internal/config"
	"github.com/rileyhilliard/beacon/internal/errors"
	"github.com/rileyhilliard/beacon/internal/remote"
	"github.com/rileyhilliard/beacon/pkg/sshutil"
	"github.com/spf13/cobra"
)

// Persistent flags shared by every command.
var (
	configFlag   string
	insecureFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "beacon",
	Short: "Manage and monitor remote FreeBSD hosts over SSH",
	Long: `beacon runs commands on remote FreeBSD hosts over a single multiplexed
SSH connection, opens interactive shells, and streams live telemetry
(per-core CPU, network throughput, disk activity).

Examples:
  beacon run "uptime"
  beacon run --host nas --stream "make world"
  beacon shell nas
  beacon monitor nas`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default: .beacon.yaml search)")
	rootCmd.PersistentFlags().BoolVar(&insecureFlag, "insecure", false, "skip host key verification")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config honoring --config, falling back to defaults
// when no file exists.
func loadConfig() (*config.Config, error) {
	path, err := config.Find(configFlag)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// connectHost resolves name against the config and dials it.
func connectHost(name string) (*remote.Host, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	entry, ok := cfg.Resolve(name)
	if !ok {
		return nil, nil, errors.New(errors.ErrConfig,
			"No host given and no default configured",
			"Pass a host name, or set 'default' in your .beacon.yaml")
	}

	sshutil.StrictHostKeyChecking = cfg.StrictHostKeys && !insecureFlag

	h := remote.New(entry.Address, remote.Config{
		User:         entry.User,
		Port:         entry.Port,
		KeyPath:      entry.Key,
		ChannelLimit: cfg.ChannelLimit,
	})
	if err := h.Connect(); err != nil {
		return nil, nil, err
	}
	return h, cfg, nil
}
