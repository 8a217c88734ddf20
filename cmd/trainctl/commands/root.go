// Package commands implements the trainctl command line tool, a thin client
// for the sidecar API.
package commands

import (
	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/api"
	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/client"
)

// Root command flags
var (
	endpoint   string
	experiment string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "trainctl",
	Short: "Submit and track SLURM training jobs through the sidecar",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "sidecar endpoint, e.g. http://127.0.0.1:24000")
	rootCmd.PersistentFlags().StringVar(&experiment, "experiment", "", "default experiment for submissions and history")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	viper.SetDefault("endpoint", "http://127.0.0.1:24000")
	viper.SetDefault("experiment", "")
	viper.SetEnvPrefix("trainctl")
	viper.AutomaticEnv()
	if err := viper.BindPFlag("endpoint", rootCmd.PersistentFlags().Lookup("endpoint")); err != nil {
		logrus.Fatal(err)
	}
	if err := viper.BindPFlag("experiment", rootCmd.PersistentFlags().Lookup("experiment")); err != nil {
		logrus.Fatal(err)
	}

	if home, err := homedir.Dir(); err == nil {
		viper.AddConfigPath(home)
	}
	viper.AddConfigPath(".")
	viper.SetConfigName(".trainctl")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			logrus.Warn("failed to read config file: ", err)
		}
	}
}

func newClient() *client.Client {
	return client.New(viper.GetString("endpoint"))
}

// applyDefaultExperiment fills in the configured experiment when the job
// description leaves it empty.
func applyDefaultExperiment(spec *api.JobSpec) {
	if spec.Experiment == "" {
		spec.Experiment = viper.GetString("experiment")
	}
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		return 1
	}
	return 0
}
