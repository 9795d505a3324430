package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <token>",
	Short: "Store the Coordinator credential used by subsequent beam calls",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := writeToken(args[0]); err != nil {
			return fmt.Errorf("saving credential: %w", err)
		}
		fmt.Println("credential saved")
		return nil
	},
}
