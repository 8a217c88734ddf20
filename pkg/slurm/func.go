package slurm

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/containerd/containerd/log"
	"gopkg.in/yaml.v2"
)

var SlurmConfigInst SlurmConfig

// NewSlurmConfig returns a variable of type SlurmConfig, used in many other functions and the first encountered error.
func NewSlurmConfig() (SlurmConfig, error) {
	if !SlurmConfigInst.set {
		var path string
		verbose := flag.Bool("verbose", false, "Enable or disable Debug level logging")
		errorsOnly := flag.Bool("errorsonly", false, "Prints only errors if enabled")
		SlurmConfigPath := flag.String("slurmconfigpath", "", "Path to the sidecar config")
		flag.Parse()

		if *verbose {
			SlurmConfigInst.VerboseLogging = true
			SlurmConfigInst.ErrorsOnlyLogging = false
		} else if *errorsOnly {
			SlurmConfigInst.VerboseLogging = false
			SlurmConfigInst.ErrorsOnlyLogging = true
		}

		if *SlurmConfigPath != "" {
			path = *SlurmConfigPath
		} else if os.Getenv("SLURMCONFIGPATH") != "" {
			path = os.Getenv("SLURMCONFIGPATH")
		} else {
			path = "/etc/slurm-trainer/SlurmConfig.yaml"
		}

		if _, err := os.Stat(path); err != nil {
			log.G(context.Background()).Error("File " + path + " doesn't exist. You can set a custom path by exporting SLURMCONFIGPATH. Exiting...")
			return SlurmConfig{}, err
		}

		log.G(context.Background()).Info("Loading SLURM config from " + path)
		yfile, err := os.ReadFile(path)
		if err != nil {
			log.G(context.Background()).Error("Error opening config file, exiting...")
			return SlurmConfig{}, err
		}
		err = yaml.Unmarshal(yfile, &SlurmConfigInst)
		if err != nil {
			log.G(context.Background()).Error("Error unmarshalling config file, exiting...")
			return SlurmConfig{}, err
		}

		if os.Getenv("SIDECARPORT") != "" {
			SlurmConfigInst.Sidecarport = os.Getenv("SIDECARPORT")
		}

		if os.Getenv("SBATCHPATH") != "" {
			SlurmConfigInst.Sbatchpath = os.Getenv("SBATCHPATH")
		}

		if os.Getenv("SCANCELPATH") != "" {
			SlurmConfigInst.Scancelpath = os.Getenv("SCANCELPATH")
		}

		if os.Getenv("SQUEUEPATH") != "" {
			SlurmConfigInst.Squeuepath = os.Getenv("SQUEUEPATH")
		}

		if os.Getenv("SCONTROLPATH") != "" {
			SlurmConfigInst.Scontrolpath = os.Getenv("SCONTROLPATH")
		}

		SlurmConfigInst.applyDefaults()

		SlurmConfigInst.set = true
	}
	return SlurmConfigInst, nil
}

func (c *SlurmConfig) applyDefaults() {
	if c.Sbatchpath == "" {
		c.Sbatchpath = "sbatch"
	}
	if c.Scancelpath == "" {
		c.Scancelpath = "scancel"
	}
	if c.Squeuepath == "" {
		c.Squeuepath = "squeue"
	}
	if c.Scontrolpath == "" {
		c.Scontrolpath = "scontrol"
	}
	if c.BashPath == "" {
		c.BashPath = "/bin/bash"
	}
	if c.DataRootFolder == "" {
		c.DataRootFolder = ".local/slurm-trainer/jobs/"
	}
	if !strings.HasSuffix(c.DataRootFolder, "/") {
		c.DataRootFolder += "/"
	}
	if c.RemotePort == 0 {
		c.RemotePort = 22
	}
}

// statusCacheTTL parses the configured cache window, defaulting to the 10s the
// status handler has always used.
func (c *SlurmConfig) statusCacheTTL() time.Duration {
	if c.StatusCacheTTL == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(c.StatusCacheTTL)
	if err != nil || d <= 0 {
		log.G(context.Background()).Warning("Invalid StatusCacheTTL " + c.StatusCacheTTL + ", using 10s")
		return 10 * time.Second
	}
	return d
}
