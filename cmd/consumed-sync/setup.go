package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/ethanpaneraa/thingsiconsume/internal/config"
)

func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Create database tables and indexes if missing",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Migrate,
	}
}

// Migrate bootstraps the database schema.
func (r *Runner) Migrate(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("%w: set %s", config.ErrMissingDatabaseURL, config.EnvDatabaseURL)
	}

	database, err := r.openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	r.logger.Info("ensuring schema")
	if err := database.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	r.logger.Info("schema ready")
	return nil
}

func initCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Write an example config file",
		Flags:  []cli.Flag{configFlag()},
		Action: r.InitConfig,
	}
}

// InitConfig writes the example configuration to the config path.
func (r *Runner) InitConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if err := config.WriteExample(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)
	return nil
}
