package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/riftlab/rift/internal/client"
)

var beamLocalDir string

func init() {
	beamCmd.Flags().StringVar(&beamLocalDir, "local-dir", "", "Local directory to sync (default: current directory)")
	rootCmd.AddCommand(beamCmd)
}

var beamCmd = &cobra.Command{
	Use:   "beam <project-name>",
	Short: "Start syncing a project with the Daemon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		localDir := beamLocalDir
		if localDir == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			localDir = cwd
		}

		cfg, err := loadDaemonConfig()
		if err != nil {
			os.Exit(client.ExitUserError)
		}
		c := client.New(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.EnsureDaemon(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(client.ExitDaemonUnreachable)
		}

		result, err := c.Beam(ctx, args[0], localDir, readToken())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(client.ExitCodeFor(err))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}
