package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/ethanpaneraa/thingsiconsume/internal/applemusic"
	"github.com/ethanpaneraa/thingsiconsume/internal/config"
	"github.com/ethanpaneraa/thingsiconsume/internal/db"
	"github.com/ethanpaneraa/thingsiconsume/internal/sync"
)

// Runner holds the dependencies shared by CLI commands.
type Runner struct {
	logger *log.Logger
	output io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Runner{logger: opts.Logger, output: opts.Output}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		runCommand, daemonCommand, migrateCommand, initCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

// loadConfig resolves the config for a command: the file if present, embedded
// defaults otherwise, environment on top either way.
func (r *Runner) loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	if _, err := os.Stat(path); err != nil {
		if cmd.IsSet("config") {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		r.logger.Debug("no config file, using defaults", "path", path)
		return config.Default(), nil
	}
	return config.Load(path)
}

// openDB constructs the lifetime-scoped store handle for one command.
// The caller owns Close.
func (r *Runner) openDB(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	database, err := db.New(ctx, cfg.Database.URL, db.WithDedupWindow(cfg.DedupWindow()))
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return database, nil
}

// buildService wires the reconciliation service against a store handle.
func (r *Runner) buildService(cfg *config.Config, database *db.DB) (*sync.Service, error) {
	client, err := applemusic.NewClient(applemusic.Config{
		DeveloperToken: cfg.AppleMusic.DeveloperToken,
		UserToken:      cfg.AppleMusic.UserToken,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Apple Music client: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}

	return sync.New(client, database.Plays(), database.SyncRuns(),
		sync.WithLocker(database.Locker()),
		sync.WithLogger(r.logger),
		sync.WithFetchLimit(cfg.Sync.FetchLimit),
		sync.WithSlotDuration(cfg.SlotDuration()),
		sync.WithLocation(loc),
	), nil
}

func (r *Runner) printSummary(result *sync.Result) {
	fmt.Fprintf(r.output, "fetched=%d added=%d duplicates=%d skipped=%d\n",
		result.Fetched, result.Added, result.Duplicates, result.Skipped)
}

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}
