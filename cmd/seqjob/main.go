// seqjob - SLURM pipeline submission and tracking
package main

import (
	"os"

	"github.com/biocore-hpc/seqjob/internal/cli"
	"github.com/biocore-hpc/seqjob/internal/version"
)

// Version information, overridden with -ldflags at build time.
var (
	Version   = "v0.3.0-dev"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
