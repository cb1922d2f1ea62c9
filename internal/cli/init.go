package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/rileyhilliard/beacon/internal/config"
	"github.com/rileyhilliard/beacon/internal/errors"
	"github.com/rileyhilliard/beacon/pkg/sshutil"
	"github.com/spf13/cobra"
)

var (
	initHostFlag string
	initForce    bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a .beacon.yaml configuration",
	Long: `Initialize a new beacon configuration file.

Creates a .beacon.yaml in the current directory, guiding you through host
setup with interactive prompts and testing the connection before saving.

Examples:
  beacon init
  beacon init --host admin@nas.local
  beacon init --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return initCommand(initHostFlag, initForce)
	},
}

func init() {
	initCmd.Flags().StringVar(&initHostFlag, "host", "", "pre-specify the host address")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite existing config")

	rootCmd.AddCommand(initCmd)
}

func initCommand(hostFlag string, force bool) error {
	configPath := filepath.Join(".", config.ConfigFileName)

	if _, err := os.Stat(configPath); err == nil && !force {
		var overwrite bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Config file '%s' already exists. Overwrite?", config.ConfigFileName)).
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Try running with --force to overwrite")
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	address := hostFlag
	hostName := ""
	portStr := "22"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Host address").
				Description("Hostname, user@host, or SSH config alias").
				Placeholder("nas.local or admin@192.168.1.100").
				Value(&address).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("host address is required")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Host name").
				Description("A friendly name for this host in your config").
				Placeholder("nas").
				Value(&hostName).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("host name is required")
					}
					if strings.ContainsAny(s, " \t\n") {
						return fmt.Errorf("host name cannot contain whitespace")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("SSH port").
				Value(&portStr).
				Validate(func(s string) error {
					p, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || p < 1 || p > 65535 {
						return fmt.Errorf("port must be a number between 1 and 65535")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to get user input",
			"Check terminal compatibility, or write .beacon.yaml by hand")
	}

	port, _ := strconv.Atoi(strings.TrimSpace(portStr))

	// Test the connection before saving. A failing probe can still be
	// saved: the config may be for a host that's currently down.
	fmt.Printf("\nTesting connection to %s...\n", address)
	client, err := sshutil.Dial(address, sshutil.Options{Port: port, Timeout: 10 * time.Second})
	if err != nil {
		fmt.Printf("\n%v\n\n", err)

		var saveAnyway bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Save config anyway? (You can fix the connection later)").
					Value(&saveAnyway),
			),
		)
		if formErr := form.Run(); formErr != nil || !saveAnyway {
			return err
		}
	} else {
		fmt.Printf("Connected: %s (%s)\n\n", client.Address, client.Platform)
		client.Disconnect()
	}

	cfg := config.DefaultConfig()
	cfg.Hosts[hostName] = config.Host{
		Address: address,
		Port:    port,
	}
	cfg.Default = hostName

	if err := config.Write(cfg, configPath); err != nil {
		return err
	}

	fmt.Printf("Created %s\n\n", configPath)
	fmt.Println("Next steps:")
	fmt.Println("  beacon run \"uptime\"   - Run a command")
	fmt.Println("  beacon shell          - Open an interactive shell")
	fmt.Println("  beacon monitor        - Watch live telemetry")
	return nil
}
