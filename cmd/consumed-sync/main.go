// Command consumed-sync reconciles Apple Music play history into the
// consumption log database.
package main

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:     "consumed-sync",
		Usage:    "Sync Apple Music play history into the consumption log",
		Version:  "1.0.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("consumed-sync: %v", err)
	}
}
