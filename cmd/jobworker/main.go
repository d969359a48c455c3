// Command jobworker runs a polling job worker that dispatches claimed jobs to
// an HTTP endpoint, and manages the job table.
//
// Subcommands:
//
//	worker   run a worker for one job type until SIGINT or SIGTERM
//	migrate  create or update the jobs table and exit
//	add      add a requested job
//	count    count jobs of a type
//	prune    delete jobs by type, state and age
package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
