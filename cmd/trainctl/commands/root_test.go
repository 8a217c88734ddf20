package commands

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/api"
)

func TestApplyDefaultExperiment(t *testing.T) {
	viper.Set("experiment", "snn")
	defer viper.Set("experiment", "")

	spec := api.JobSpec{Name: "progsnn-train"}
	applyDefaultExperiment(&spec)
	assert.Equal(t, "snn", spec.Experiment)

	// An experiment named in the job file wins over the configured default.
	spec = api.JobSpec{Name: "progsnn-train", Experiment: "gcn"}
	applyDefaultExperiment(&spec)
	assert.Equal(t, "gcn", spec.Experiment)
}
