// Package cli implements the cobra command tree for cmd/rift (spec §4.3):
// beam, disconnect, daemon status|stop|restart, version. Grounded on the
// teacher's internal/cli/root.go (persistent --path flag, rootCmd with
// subcommands registered via init()).
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/riftlab/rift/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

var daemonConfigPath string

var rootCmd = &cobra.Command{
	Use:   "rift",
	Short: "Client for the Rift real-time collaborative workspace",
	Long: `rift is the stateless client driver for a Rift workspace: it talks to a
local Daemon over loopback IPC, spawning one if none is reachable, and the
Daemon in turn keeps a project's files in sync with a Coordinator.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&daemonConfigPath, "daemon-config", "", "Path to riftd config file")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rift %s\n", Version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadDaemonConfig() (*config.DaemonConfig, error) {
	cfg, err := config.LoadDaemonConfig(daemonConfigPath)
	if err != nil {
		return nil, err
	}
	if errs := config.ValidateDaemonConfig(cfg); len(errs) > 0 {
		return nil, errs[0]
	}
	return cfg, nil
}
