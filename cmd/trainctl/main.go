package main

import (
	"os"

	"github.com/gnn-ops/slurm-trainer-sidecar/cmd/trainctl/commands"
)

func main() {
	os.Exit(commands.Execute())
}
