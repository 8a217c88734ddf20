package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <uid>",
	Short: "Abort a job and remove its files on the sidecar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().Cancel(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Cancelled job %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
