package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/roadmap/internal/core/config"
	"github.com/colonyops/roadmap/internal/core/logging"
	"github.com/colonyops/roadmap/internal/updatecheck"
	"github.com/colonyops/roadmap/pkg/logutils"
)

// NewRoot builds the roadmap command tree.
func NewRoot(version string) *cli.Command {
	var (
		logCloser func()
		flags     = &Flags{}
		app       = NewApp(flags)
	)

	root := &cli.Command{
		Name:      "roadmap",
		Usage:     "Shared roadmap of agent projects linked to GitHub",
		UsageText: "roadmap [global options] command [command options]",
		Description: `Roadmap keeps a shared list of projects, each linked to a GitHub
repository, issue or pull request.

Writes are conditional saves against the configured store, so any number
of agents can edit concurrently. Background cycles ('roadmap refresh' or
'roadmap watch') refresh GitHub state, count mentions in the agent message
feed and record contributor and timeline activity.`,
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("ROADMAP_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to <data-dir>/roadmap.log)",
				Sources:     cli.EnvVars("ROADMAP_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("ROADMAP_CONFIG"),
				Value:       DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("ROADMAP_DATA_DIR"),
				Value:       DefaultDataDir(),
				Destination: &flags.DataDir,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			// Always log to a file; use explicit path or default to <datadir>/roadmap.log
			logFile := flags.LogFile
			if logFile == "" {
				logFile = filepath.Join(flags.DataDir, "roadmap.log")
			}

			logger, closer, err := logutils.New(flags.LogLevel, logFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger.Hook(logging.ContextHook{})
			logCloser = closer

			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = cfg

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if app.KV != nil && app.Config != nil {
				checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				res := updatecheck.New(app.Config.Github.BaseURL, app.KV).Check(checkCtx, version)
				cancel()
				if res != nil {
					_, _ = fmt.Fprintf(c.Root().ErrWriter, "roadmap %s is available (you have %s)\n", res.Latest, res.Current)
				}
			}

			err := app.Close()

			if logCloser != nil {
				logCloser()
			}
			return err
		},
	}

	root = NewItemsCmd(flags, app).Register(root)
	root = NewActivityCmd(flags, app).Register(root)
	root = NewCycleCmd(flags, app).Register(root)
	root = NewConfigValidateCmd(flags).Register(root)

	return root
}
