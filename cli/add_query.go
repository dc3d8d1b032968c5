package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/MichaelIeong/SAGE/memory"
)

func addQueryCommand() *cli.Command {
	var (
		cfg         config
		namespace   string
		user        string
		text        string
		date        string
		snapshotDir string
	)

	flags := allFlags(&cfg,
		&cli.StringFlag{
			Name:        "namespace",
			Usage:       "Per-user namespace receiving the query",
			Value:       memory.NamespaceUserProfile,
			Destination: &namespace,
		},
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User who said it",
			Destination: &user,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "text",
			Aliases:     []string{"t"},
			Usage:       "The utterance",
			Destination: &text,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "date",
			Usage:       "Calendar date (YYYY-MM-DD), default today",
			Destination: &date,
		},
		&cli.StringFlag{
			Name:        "snapshot-dir",
			Usage:       "Also write a history snapshot to this directory",
			Destination: &snapshotDir,
		},
	)

	return &cli.Command{
		Name:  "add-query",
		Usage: "Record a user utterance in a per-user history file",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			mc, err := cfg.memoryConfig()
			if err != nil {
				return err
			}
			ns, ok := mc.Namespace(namespace)
			if !ok {
				return goerr.Wrap(memory.ErrNoSuchNamespace, "unknown namespace", goerr.V("namespace", namespace))
			}

			a, err := newApp(mc)
			if err != nil {
				return err
			}
			defer a.Close()

			b, _ := a.shared.Bank(namespace)
			if _, err := os.Stat(ns.CachePath); err == nil {
				if err := b.LoadHistory(ctx, ns.CachePath); err != nil {
					return err
				}
			}
			if err := b.AddQuery(user, text, date); err != nil {
				return err
			}
			if err := b.Save(ctx, ns.CachePath); err != nil {
				return err
			}

			w := c.Root().Writer
			fmt.Fprintf(w, "saved %s (%d entries)\n", ns.CachePath, b.Len())
			if snapshotDir != "" {
				path, err := b.Snapshot(snapshotDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "snapshot %s\n", path)
			}
			return nil
		},
	}
}
