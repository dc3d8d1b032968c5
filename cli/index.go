package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"
)

func indexCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "index",
		Usage: "Populate caches from the source API and build (or load) every namespace",
		Flags: allFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			mc, err := cfg.memoryConfig()
			if err != nil {
				return err
			}
			a, err := newApp(mc)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.shared.Init(ctx); err != nil {
				return err
			}

			w := c.Root().Writer
			for _, b := range a.shared.Banks() {
				fmt.Fprintf(w, "%-20s %-8s entries=%d keys=[%s]\n",
					b.Namespace(), b.State(), b.Len(), strings.Join(b.Keys(), ", "))
			}
			return nil
		},
	}
}
