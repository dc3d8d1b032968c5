package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/MichaelIeong/SAGE/tools"
)

func toolCommand() *cli.Command {
	var (
		cfg   config
		name  string
		input string
	)

	flags := allFlags(&cfg,
		&cli.StringFlag{
			Name:        "name",
			Usage:       "Tool name (device_info_tool, environment_info_tool, user_preference_tool)",
			Destination: &name,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       `Tool input as JSON, e.g. {"query": "tv", "location": "1"}`,
			Destination: &input,
			Required:    true,
		},
	)

	return &cli.Command{
		Name:  "tool",
		Usage: "Run one memory tool the way the agent would",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			mc, err := cfg.memoryConfig()
			if err != nil {
				return err
			}
			mc.LoadExisting = true

			a, err := newApp(mc)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.shared.Init(ctx); err != nil {
				return err
			}

			tool, ok := tools.Find(tools.MemoryTools(a.shared, mc.TopK), name)
			if !ok {
				return goerr.New("unknown tool", goerr.V("name", name))
			}
			out, err := tool.Execute(ctx, []byte(input))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.Root().Writer, out)
			return nil
		},
	}
}
