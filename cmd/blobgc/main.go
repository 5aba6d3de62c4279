package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/marmos91/blobgc/cmd/blobgc/commands"
	"github.com/marmos91/blobgc/pkg/gc"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Set version info for commands package
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error to the process exit status. An integrity
// violation gets its own code so schedulers can page on it.
func exitCode(err error) int {
	if errors.Is(err, gc.ErrIntegrityViolation) {
		return 2
	}
	return 1
}
