package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/hay-kot/criterio"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/roadmap/pkg/iojson"
)

type ConfigValidateCmd struct {
	flags  *Flags
	format string
}

// NewConfigValidateCmd creates a new config validate command.
func NewConfigValidateCmd(flags *Flags) *ConfigValidateCmd {
	return &ConfigValidateCmd{flags: flags}
}

// Register adds the config validate command to the application.
func (cmd *ConfigValidateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Commands: []*cli.Command{
			{
				Name:        "validate",
				Usage:       "Validate configuration file",
				UsageText:   "roadmap config validate [options]",
				Description: "Validates the configuration file, checking backend settings, endpoint URLs, and file paths.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       "text",
						Destination: &cmd.format,
					},
				},
				Action: cmd.run,
			},
		},
	})

	return app
}

type fieldProblem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (cmd *ConfigValidateCmd) run(_ context.Context, c *cli.Command) error {
	err := cmd.flags.Config.ValidateDeep(cmd.flags.ConfigPath)

	var problems []fieldProblem
	var fieldErrs criterio.FieldErrors
	switch {
	case err == nil:
	case errors.As(err, &fieldErrs):
		for _, fe := range fieldErrs {
			problems = append(problems, fieldProblem{Field: fe.Field, Message: fe.Err.Error()})
		}
	default:
		problems = append(problems, fieldProblem{Message: err.Error()})
	}

	w := c.Root().Writer
	if cmd.format == "json" {
		if werr := iojson.Write(w, struct {
			Valid  bool           `json:"valid"`
			Errors []fieldProblem `json:"errors,omitempty"`
		}{len(problems) == 0, problems}); werr != nil {
			return werr
		}
	} else {
		for _, p := range problems {
			if p.Field != "" {
				_, _ = fmt.Fprintf(w, "✗ %s: %s\n", p.Field, p.Message)
			} else {
				_, _ = fmt.Fprintf(w, "✗ %s\n", p.Message)
			}
		}
		if len(problems) == 0 {
			_, _ = fmt.Fprintln(w, "✓ Configuration is valid")
		}
	}

	if len(problems) > 0 {
		return cli.Exit(fmt.Sprintf("%d error(s) found", len(problems)), 1)
	}
	return nil
}
