package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/riftlab/rift/internal/client"
)

var disconnectProject string

func init() {
	disconnectCmd.Flags().StringVar(&disconnectProject, "project", "", "Project name to disconnect (default: auto-detect from cwd)")
	rootCmd.AddCommand(disconnectCmd)
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Stop syncing the current (or named) project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		cwd, _ := os.Getwd()
		if err := c.Disconnect(ctx, "", disconnectProject, cwd); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(client.ExitCodeFor(err))
		}
		fmt.Println("disconnected")
		return nil
	},
}
