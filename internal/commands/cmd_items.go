package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/roadmap/internal/core/logging"
	core "github.com/colonyops/roadmap/internal/core/roadmap"
	"github.com/colonyops/roadmap/internal/roadmap"
	"github.com/colonyops/roadmap/pkg/iojson"
)

// ItemsCmd implements the roadmap items command group.
type ItemsCmd struct {
	flags *Flags
	app   *App

	agent string

	// add flags
	addTitle       string
	addDescription string
	addURL         string
	addStatus      string
	addInput       iojson.FileReader[roadmap.CreateInput]

	// ls flags
	lsStatus string
}

// NewItemsCmd creates a new items command.
func NewItemsCmd(flags *Flags, app *App) *ItemsCmd {
	return &ItemsCmd{flags: flags, app: app}
}

func (cmd *ItemsCmd) agentFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "agent",
		Aliases:     []string{"a"},
		Usage:       "BTC address of the acting agent",
		Sources:     cli.EnvVars("ROADMAP_AGENT"),
		Required:    true,
		Destination: &cmd.agent,
	}
}

// Register adds the items command to the application.
func (cmd *ItemsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "items",
		Usage: "Read and edit roadmap items",
		Description: `Item commands operate on the shared roadmap.

Writes require --agent, the BTC address of a registered agent. Every write
is a conditional save; when another writer got there first the command
exits with a CONFLICT error and can simply be run again.

Examples:
  roadmap items ls
  roadmap items add --agent bc1q... --title "Wallet sync" --url https://github.com/acme/wallet/issues/4
  roadmap items update --agent bc1q... --status in_progress r_1a2b3c4d
  roadmap items reorder --agent bc1q... r_1a2b3c4d r_5e6f7a8b`,
		Commands: []*cli.Command{
			cmd.lsCmd(),
			cmd.addCmd(),
			cmd.updateCmd(),
			cmd.rmCmd(),
			cmd.reorderCmd(),
		},
		Before: cmd.app.Before,
	})

	return app
}

func (cmd *ItemsCmd) lsCmd() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Aliases:   []string{"list"},
		Usage:     "List items in roadmap order",
		UsageText: "roadmap items ls [--status <status>]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "status",
				Aliases:     []string{"s"},
				Usage:       "filter by status (todo, in_progress, done)",
				Destination: &cmd.lsStatus,
			},
		},
		Action: cmd.runLs,
	}
}

func (cmd *ItemsCmd) addCmd() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Create an item",
		UsageText: "roadmap items add --agent <btc> --title <title> --url <github-url> [--status <status>]",
		Description: `Creates an item and fetches its GitHub snapshot.

Without --title the item is read as JSON from --file or stdin:
  {"title": "...", "description": "...", "githubUrl": "...", "status": "todo"}`,
		Flags: []cli.Flag{
			cmd.agentFlag(),
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "item title", Destination: &cmd.addTitle},
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "item description", Destination: &cmd.addDescription},
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "GitHub repository, issue or pull request URL", Destination: &cmd.addURL},
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "initial status (default todo)", Destination: &cmd.addStatus},
			cmd.addInput.Flag(),
		},
		Action: cmd.runAdd,
	}
}

func (cmd *ItemsCmd) updateCmd() *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Change fields of an item",
		UsageText: "roadmap items update --agent <btc> [--title ...] [--description ...] [--status ...] [--url ...] <id>",
		Description: `Only the flags that are passed are changed. Passing --url "" clears
the GitHub link and its snapshot.`,
		Flags: []cli.Flag{
			cmd.agentFlag(),
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "new title"},
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "new description"},
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "new GitHub URL, empty to clear"},
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "new status"},
		},
		Action: cmd.runUpdate,
	}
}

func (cmd *ItemsCmd) rmCmd() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Aliases:   []string{"delete"},
		Usage:     "Delete an item",
		UsageText: "roadmap items rm --agent <btc> <id>",
		Flags:     []cli.Flag{cmd.agentFlag()},
		Action:    cmd.runRm,
	}
}

func (cmd *ItemsCmd) reorderCmd() *cli.Command {
	return &cli.Command{
		Name:      "reorder",
		Usage:     "Move items to the front in the given order",
		UsageText: "roadmap items reorder --agent <btc> <id> [<id>...]",
		Description: `Listed items move to the front in the given order. Unknown ids are
ignored and unlisted items keep their relative order after them.`,
		Flags:  []cli.Flag{cmd.agentFlag()},
		Action: cmd.runReorder,
	}
}

func (cmd *ItemsCmd) runLs(ctx context.Context, c *cli.Command) error {
	items, err := cmd.app.Service.LoadItems(ctx)
	if err != nil {
		return failure(c, err)
	}

	if cmd.lsStatus != "" {
		status := core.Status(cmd.lsStatus)
		if !status.IsValid() {
			return fmt.Errorf("invalid status %q: must be one of todo, in_progress, done", cmd.lsStatus)
		}
		filtered := items[:0]
		for _, it := range items {
			if it.Status == status {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	for _, it := range items {
		if err := iojson.WriteLine(c.Root().Writer, it); err != nil {
			return err
		}
	}
	return nil
}

func (cmd *ItemsCmd) runAdd(ctx context.Context, c *cli.Command) error {
	ctx, agent, err := cmd.authenticate(ctx)
	if err != nil {
		return failure(c, err)
	}

	in := roadmap.CreateInput{
		Title:       cmd.addTitle,
		Description: cmd.addDescription,
		GithubURL:   cmd.addURL,
		Status:      core.Status(cmd.addStatus),
	}
	if strings.TrimSpace(in.Title) == "" {
		in, err = cmd.addInput.Read()
		if err != nil {
			return err
		}
	}

	item, position, err := cmd.app.Service.CreateItem(ctx, agent, in)
	if err != nil {
		return failure(c, err)
	}

	return iojson.Write(c.Root().Writer, struct {
		Item     core.Item `json:"item"`
		Position int       `json:"position"`
	}{item, position})
}

func (cmd *ItemsCmd) runUpdate(ctx context.Context, c *cli.Command) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("item id is required")
	}

	ctx, agent, err := cmd.authenticate(ctx)
	if err != nil {
		return failure(c, err)
	}

	var in roadmap.UpdateInput
	if c.IsSet("title") {
		in.Title = ptr(c.String("title"))
	}
	if c.IsSet("description") {
		in.Description = ptr(c.String("description"))
	}
	if c.IsSet("url") {
		in.GithubURL = ptr(c.String("url"))
	}
	if c.IsSet("status") {
		in.Status = ptr(core.Status(c.String("status")))
	}

	item, err := cmd.app.Service.UpdateItem(ctx, agent, id, in)
	if err != nil {
		return failure(c, err)
	}
	return iojson.Write(c.Root().Writer, item)
}

func (cmd *ItemsCmd) runRm(ctx context.Context, c *cli.Command) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("item id is required")
	}

	ctx, agent, err := cmd.authenticate(ctx)
	if err != nil {
		return failure(c, err)
	}

	item, err := cmd.app.Service.DeleteItem(ctx, agent, id)
	if err != nil {
		return failure(c, err)
	}
	return iojson.Write(c.Root().Writer, item)
}

func (cmd *ItemsCmd) runReorder(ctx context.Context, c *cli.Command) error {
	ctx, agent, err := cmd.authenticate(ctx)
	if err != nil {
		return failure(c, err)
	}

	items, err := cmd.app.Service.ReorderItems(ctx, agent, c.Args().Slice())
	if err != nil {
		return failure(c, err)
	}

	for _, it := range items {
		if err := iojson.WriteLine(c.Root().Writer, it); err != nil {
			return err
		}
	}
	return nil
}

// authenticate resolves --agent and tags ctx with the address for logging.
func (cmd *ItemsCmd) authenticate(ctx context.Context) (context.Context, core.Agent, error) {
	agent, err := cmd.app.Service.Authenticate(ctx, cmd.agent)
	if err != nil {
		return ctx, core.Agent{}, err
	}
	return logging.WithAgent(ctx, agent.BTCAddress), agent, nil
}

func ptr[T any](v T) *T { return &v }
