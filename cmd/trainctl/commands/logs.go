package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/api"
)

var (
	logsStep       string
	logsFollow     bool
	logsTail       int
	logsLimitBytes int
)

var logsCmd = &cobra.Command{
	Use:   "logs <uid>",
	Short: "Print the output of a job, or of one of its steps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := api.LogRequest{
			UID:      args[0],
			StepName: logsStep,
			Opts: api.LogOpts{
				Follow:     logsFollow,
				Tail:       logsTail,
				LimitBytes: logsLimitBytes,
			},
		}
		return newClient().Logs(cmd.Context(), req, os.Stdout)
	},
}

func init() {
	logsCmd.Flags().StringVar(&logsStep, "step", "", "name of the step to read; the whole job output when empty")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "stream new output until the step terminates")
	logsCmd.Flags().IntVar(&logsTail, "tail", 0, "only print the last N lines")
	logsCmd.Flags().IntVar(&logsLimitBytes, "limit-bytes", 0, "truncate the output after N bytes")
	rootCmd.AddCommand(logsCmd)
}
