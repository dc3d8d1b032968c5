// Package cli is the sage command line: build indexes, search them, apply
// live location updates and record user queries.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	if err := newRoot().Run(ctx, argv); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

func newRoot() *cli.Command {
	return &cli.Command{
		Name:  "sage",
		Usage: "Smart home memory: namespaced vector search over users, devices and occupants",
		Commands: []*cli.Command{
			indexCommand(),
			searchCommand(),
			listenCommand(),
			addQueryCommand(),
			toolCommand(),
		},
	}
}
