package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List configured hosts",
	Long: `List the hosts defined in your beacon configuration.

The default host (used when a command is given no host argument) is marked
with an asterisk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if len(cfg.Hosts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No hosts configured. Run 'beacon init' to add one.")
			return nil
		}

		names := make([]string, 0, len(cfg.Hosts))
		for name := range cfg.Hosts {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tADDRESS\tUSER\tPORT")
		for _, name := range names {
			host := cfg.Hosts[name]
			marker := ""
			if name == cfg.Default {
				marker = " *"
			}
			address := host.Address
			if address == "" {
				address = name
			}
			port := host.Port
			if port == 0 {
				port = 22
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%d\n", name, marker, address, host.User, port)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(hostsCmd)
}
