package commands

import (
	"errors"

	"github.com/urfave/cli/v3"

	core "github.com/colonyops/roadmap/internal/core/roadmap"
	"github.com/colonyops/roadmap/pkg/iojson"
)

// exitCodes maps error kinds to process exit codes.
var exitCodes = map[core.ErrorKind]int{
	core.KindInvalidInput: 2,
	core.KindUnauthorized: 3,
	core.KindNotFound:     4,
	core.KindConflict:     5,
	core.KindFetchFailed:  6,
}

// failure renders a service error as a JSON error on the command's error
// writer and returns an exit error carrying the matching code. Errors that
// are not categorized are returned unchanged.
func failure(c *cli.Command, err error) error {
	var rerr *core.Error
	if !errors.As(err, &rerr) {
		return err
	}

	e := iojson.Error{Message: rerr.Msg, Kind: string(rerr.Kind)}
	if core.IsRetryable(err) {
		e.Data = map[string]any{"retry": true}
	}
	if werr := iojson.WriteError(c.Root().ErrWriter, e); werr != nil {
		return werr
	}

	code, ok := exitCodes[rerr.Kind]
	if !ok {
		code = 1
	}
	return cli.Exit("", code)
}
