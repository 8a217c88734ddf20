package commands

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/api"
)

var submitFile string

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a training job described in a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		specBytes, err := os.ReadFile(submitFile)
		if err != nil {
			return errors.Wrapf(err, "failed to read job file %s", submitFile)
		}

		var spec api.JobSpec
		if err := yaml.Unmarshal(specBytes, &spec); err != nil {
			return errors.Wrapf(err, "failed to parse job file %s", submitFile)
		}
		applyDefaultExperiment(&spec)

		resp, err := newClient().Submit(cmd.Context(), spec)
		if err != nil {
			return err
		}

		fmt.Printf("Submitted job %s\n", spec.Name)
		fmt.Printf("UID: %s\n", resp.UID)
		fmt.Printf("JID: %s\n", resp.JID)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVarP(&submitFile, "file", "f", "", "path of the job description YAML file")
	if err := submitCmd.MarkFlagRequired("file"); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(submitCmd)
}
