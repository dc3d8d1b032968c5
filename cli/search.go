package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func searchCommand() *cli.Command {
	var (
		cfg     config
		key     string
		query   string
		rebuild bool
	)

	flags := allFlags(&cfg,
		&cli.StringFlag{
			Name:        "key",
			Aliases:     []string{"k"},
			Usage:       "Namespace name or user name to search",
			Destination: &key,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Natural language query",
			Destination: &query,
			Required:    true,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of results",
			Destination: &cfg.topK,
		},
		&cli.BoolFlag{
			Name:        "rebuild",
			Usage:       "Rebuild indexes instead of opening persisted ones",
			Destination: &rebuild,
		},
	)

	return &cli.Command{
		Name:  "search",
		Usage: "Search a namespace or a user's history",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			mc, err := cfg.memoryConfig()
			if err != nil {
				return err
			}
			mc.LoadExisting = !rebuild

			a, err := newApp(mc)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.shared.Init(ctx); err != nil {
				return err
			}

			results, err := a.shared.Search(ctx, query, key, mc.TopK)
			if err != nil {
				return err
			}
			for i, r := range results {
				fmt.Fprintf(c.Root().Writer, "%d. %s\n", i+1, r)
			}
			return nil
		},
	}
}
