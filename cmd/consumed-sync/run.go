package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Run one reconciliation pass and exit",
		Flags:  []cli.Flag{configFlag()},
		Action: r.RunOnce,
	}
}

// RunOnce executes a single reconciliation pass.
func (r *Runner) RunOnce(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := r.openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	service, err := r.buildService(cfg, database)
	if err != nil {
		return err
	}

	result, err := service.Run(ctx)
	if err != nil {
		return fmt.Errorf("reconciliation pass: %w", err)
	}

	r.printSummary(result)
	return nil
}
