package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/riftlab/rift/internal/client"
)

var (
	daemonStatusFollow   bool
	daemonStatusInterval float64
)

func init() {
	daemonStatusCmd.Flags().BoolVarP(&daemonStatusFollow, "follow", "f", false, "Live-update status (like watch)")
	daemonStatusCmd.Flags().Float64VarP(&daemonStatusInterval, "interval", "n", 2.0, "Seconds between updates (with --follow)")
	daemonCmd.AddCommand(daemonStatusCmd, daemonStopCmd, daemonRestartCmd)
	rootCmd.AddCommand(daemonCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the local riftd daemon",
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracked projects and daemon uptime",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadDaemonConfig()
		if err != nil {
			os.Exit(client.ExitUserError)
		}
		c := client.New(cfg)

		if daemonStatusFollow {
			return followDaemonStatus(c)
		}
		return printDaemonStatus(c)
	},
}

func printDaemonStatus(c *client.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	status, err := c.Status(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(client.ExitCodeFor(err))
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}

// followDaemonStatus redraws status in place on an interval, mirroring the
// teacher's status --follow loop in internal/cli/status.go.
func followDaemonStatus(c *client.Client) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	interval := time.Duration(daemonStatusInterval * float64(time.Second))

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		status, err := c.Status(ctx)
		cancel()

		fmt.Print("\033[H\033[2J")
		fmt.Printf("Every %.1fs: rift daemon status\n\n", daemonStatusInterval)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
		} else {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(status)
		}

		select {
		case <-sigCh:
			fmt.Println()
			return nil
		case <-time.After(interval):
		}
	}
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Shut down the daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadDaemonConfig()
		if err != nil {
			os.Exit(client.ExitUserError)
		}
		c := client.New(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := c.Stop(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(client.ExitCodeFor(err))
		}
		fmt.Println("daemon stopped")
		return nil
	},
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Shut down and respawn the daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadDaemonConfig()
		if err != nil {
			os.Exit(client.ExitUserError)
		}
		c := client.New(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.Restart(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(client.ExitCodeFor(err))
		}
		fmt.Println("daemon restarted")
		return nil
	},
}
