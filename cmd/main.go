// harvester scrapes football league results and goal timelines from a
// results site into per-league SQLite files and, when configured, the hosted
// Postgres tables.
//
//	harvester run <url[|name]>... [--lite] [--emit-goals] [--dry-run]
//	harvester serve     scheduled sync + HTTP API + gRPC health
//	harvester migrate   apply Postgres migrations
package main

import (
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "harvester",
	Short:         "football results and goal timeline harvester",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
