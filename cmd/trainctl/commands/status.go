package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [uid...]",
	Short: "Show the status of jobs, all known jobs when no UID is given",
	RunE: func(cmd *cobra.Command, args []string) error {
		statuses, err := newClient().Status(cmd.Context(), args)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "UID\tNAME\tEXPERIMENT\tJID\tPHASE")
		for _, status := range statuses {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				status.UID, status.Name, status.Experiment, status.JID, status.Phase)
			for _, step := range status.Steps {
				kind := "run"
				if step.Setup {
					kind = "setup"
				}
				fmt.Fprintf(w, "  %s/%s\t\t\t\texit %d\n", kind, step.Name, step.ExitCode)
			}
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
