package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/roadmap/internal/core/eventlog"
	"github.com/colonyops/roadmap/pkg/iojson"
)

// ActivityCmd implements the read-only mentions and feed commands.
type ActivityCmd struct {
	flags *Flags
	app   *App

	feedLimit int
	feedType  string
	feedItem  string
}

// NewActivityCmd creates the mentions and feed commands.
func NewActivityCmd(flags *Flags, app *App) *ActivityCmd {
	return &ActivityCmd{flags: flags, app: app}
}

// Register adds the mentions and feed commands to the application.
func (cmd *ActivityCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands,
		&cli.Command{
			Name:      "mentions",
			Usage:     "Show the messages that mention an item",
			UsageText: "roadmap mentions <item-id>",
			Description: `Matches the live activity feed and the message archive against one
item, newest first. Nothing is written.`,
			Before: cmd.app.Before,
			Action: cmd.runMentions,
		},
		&cli.Command{
			Name:      "feed",
			Usage:     "Show recent roadmap activity",
			UsageText: "roadmap feed [--limit N] [--type <type>] [--item <id>]",
			Description: `Prints audit events newest first as JSON lines.

Examples:
  roadmap feed --limit 10
  roadmap feed --type item.mentioned
  roadmap feed --item r_1a2b3c4d`,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:        "limit",
					Aliases:     []string{"n"},
					Usage:       "maximum events to print (1-200)",
					Value:       eventlog.DefaultFeedLimit,
					Destination: &cmd.feedLimit,
				},
				&cli.StringFlag{
					Name:        "type",
					Aliases:     []string{"t"},
					Usage:       "only events of this type",
					Destination: &cmd.feedType,
				},
				&cli.StringFlag{
					Name:        "item",
					Aliases:     []string{"i"},
					Usage:       "only events for this item",
					Destination: &cmd.feedItem,
				},
			},
			Before: cmd.app.Before,
			Action: cmd.runFeed,
		},
	)

	return app
}

func (cmd *ActivityCmd) runMentions(ctx context.Context, c *cli.Command) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("item id is required")
	}

	report, err := cmd.app.Service.QueryMentions(ctx, id)
	if err != nil {
		return failure(c, err)
	}
	return iojson.Write(c.Root().Writer, report)
}

func (cmd *ActivityCmd) runFeed(ctx context.Context, c *cli.Command) error {
	events, err := cmd.app.Service.Feed(ctx, eventlog.FeedQuery{
		Limit:  cmd.feedLimit,
		Type:   eventlog.Type(cmd.feedType),
		ItemID: cmd.feedItem,
	})
	if err != nil {
		return failure(c, err)
	}

	for _, ev := range events {
		if err := iojson.WriteLine(c.Root().Writer, ev); err != nil {
			return err
		}
	}
	return nil
}
