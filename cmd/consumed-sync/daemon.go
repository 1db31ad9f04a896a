package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/ethanpaneraa/thingsiconsume/internal/sync"
	"github.com/ethanpaneraa/thingsiconsume/internal/web"
)

func daemonCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Run reconciliation passes on an interval",
		Flags: []cli.Flag{
			configFlag(),
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Time between passes (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "status-server",
				Usage: "Serve /health and /v1/runs (overrides config)",
			},
		},
		Action: r.Daemon,
	}
}

// Daemon runs a pass immediately, then on every interval tick until
// interrupted. Pass failures are logged and the loop continues; only setup
// failures stop the daemon.
func (r *Runner) Daemon(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	interval := cfg.Interval()
	if cmd.IsSet("interval") {
		interval = cmd.Duration("interval")
	}
	serveStatus := cfg.Server.Enabled
	if cmd.IsSet("status-server") {
		serveStatus = cmd.Bool("status-server")
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

	serverErr := make(chan error, 1)
	if serveStatus {
		server := web.NewServer(web.ServerConfig{
			Addr:   cfg.ServerAddr(),
			Runs:   database.SyncRuns(),
			Logger: r.logger,
		})
		go func() {
			serverErr <- server.Run(ctx)
		}()
	}

	r.logger.Info("daemon started", "interval", interval)
	r.pass(ctx, service)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("daemon stopping")
			if serveStatus {
				return <-serverErr
			}
			return nil
		case err := <-serverErr:
			return err
		case <-ticker.C:
			r.pass(ctx, service)
		}
	}
}

// pass runs one reconciliation pass, logging instead of propagating errors
// so one bad pass never stops the daemon.
func (r *Runner) pass(ctx context.Context, service *sync.Service) {
	result, err := service.Run(ctx)
	switch {
	case errors.Is(err, sync.ErrPassInProgress):
		r.logger.Warn("skipping pass, another is in progress")
	case errors.Is(err, context.Canceled):
	case err != nil:
		r.logger.Error("reconciliation pass failed", "error", err)
	default:
		r.printSummary(result)
	}
}
