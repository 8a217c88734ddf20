package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past job submissions recorded by the sidecar",
	RunE: func(cmd *cobra.Command, args []string) error {
		// The configured experiment narrows the listing, like it scopes
		// submissions.
		entries, err := newClient().History(cmd.Context(), viper.GetString("experiment"), historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "UID\tNAME\tEXPERIMENT\tJID\tPHASE\tSUBMITTED\tFINISHED")
		for _, entry := range entries {
			finished := "-"
			if entry.FinishedAt != nil {
				finished = entry.FinishedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				entry.UID, entry.Name, entry.Experiment, entry.JID, entry.Phase,
				entry.SubmittedAt.Format(time.RFC3339), finished)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "maximum number of entries to list")
	rootCmd.AddCommand(historyCmd)
}
