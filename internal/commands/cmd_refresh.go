package commands

import (
	"context"
	"crypto/subtle"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	core "github.com/colonyops/roadmap/internal/core/roadmap"
	"github.com/colonyops/roadmap/internal/roadmap"
	"github.com/colonyops/roadmap/internal/roadmap/schedule"
	"github.com/colonyops/roadmap/pkg/iojson"
)

// CycleCmd implements the refresh and watch commands.
type CycleCmd struct {
	flags *Flags
	app   *App

	reset bool
	key   string
}

// NewCycleCmd creates the refresh and watch commands.
func NewCycleCmd(flags *Flags, app *App) *CycleCmd {
	return &CycleCmd{flags: flags, app: app}
}

// Register adds the refresh and watch commands to the application.
func (cmd *CycleCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands,
		&cli.Command{
			Name:      "refresh",
			Usage:     "Run one enrichment cycle",
			UsageText: "roadmap refresh [--reset] [--key <key>]",
			Description: `Runs every stage once: GitHub refresh, mention scan, contributor scan,
timeline scan and mention backfill. The report is printed as JSON.

A stage that fails or loses a write race is reported and the remaining
stages still run. --reset recounts mentions from the whole message set.
When refresh_key is configured, --key must match it.`,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:        "reset",
					Usage:       "recount mentions from scratch",
					Destination: &cmd.reset,
				},
				&cli.StringFlag{
					Name:        "key",
					Usage:       "shared refresh key",
					Sources:     cli.EnvVars("ROADMAP_REFRESH_KEY"),
					Destination: &cmd.key,
				},
			},
			Before: cmd.app.Before,
			Action: cmd.runRefresh,
		},
		&cli.Command{
			Name:      "watch",
			Usage:     "Run enrichment cycles on an interval",
			UsageText: "roadmap watch",
			Description: `Runs a cycle immediately and then every schedule.interval until
interrupted. Each report is printed as a JSON line.`,
			Before: cmd.app.Before,
			Action: cmd.runWatch,
		},
	)

	return app
}

func (cmd *CycleCmd) authorized() bool {
	want := cmd.app.Config.RefreshKey
	if want == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(cmd.key), []byte(want)) == 1
}

func (cmd *CycleCmd) runRefresh(ctx context.Context, c *cli.Command) error {
	if !cmd.authorized() {
		return failure(c, core.ErrUnauthorized)
	}

	report, err := cmd.app.Service.RunCycle(ctx, cmd.reset)
	if err != nil {
		return failure(c, err)
	}
	return iojson.Write(c.Root().Writer, report)
}

func (cmd *CycleCmd) runWatch(ctx context.Context, c *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := cmd.app.Config.Schedule.Interval
	log.Info().Dur("interval", interval).Msg("watching roadmap")

	schedule.Start(ctx, cmd.app.Service, cmd.app.KV, interval, func(r roadmap.Report) {
		if err := iojson.WriteLine(c.Root().Writer, r); err != nil {
			log.Warn().Err(err).Msg("failed to write report")
		}
	})
	return nil
}
