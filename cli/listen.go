package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/MichaelIeong/SAGE/logging"
	"github.com/MichaelIeong/SAGE/memory/feed"
)

func listenCommand() *cli.Command {
	var (
		cfg       config
		wsURL     string
		redisAddr string
		channel   string
	)

	flags := allFlags(&cfg,
		&cli.StringFlag{
			Name:        "ws-url",
			Usage:       "Websocket endpoint publishing location updates",
			Sources:     cli.EnvVars("SAGE_FEED_WS_URL"),
			Destination: &wsURL,
		},
		&cli.StringFlag{
			Name:        "redis-addr",
			Usage:       "Redis address for pub/sub location updates",
			Sources:     cli.EnvVars("SAGE_FEED_REDIS_ADDR"),
			Destination: &redisAddr,
		},
		&cli.StringFlag{
			Name:        "channel",
			Usage:       "Redis channel carrying location updates",
			Sources:     cli.EnvVars("SAGE_FEED_CHANNEL"),
			Destination: &channel,
		},
	)

	return &cli.Command{
		Name:  "listen",
		Usage: "Index memory, then append live location updates to the environment namespace",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mc, err := cfg.memoryConfig()
			if err != nil {
				return err
			}
			override(&mc.Feed.WebSocketURL, wsURL)
			override(&mc.Feed.RedisAddr, redisAddr)
			override(&mc.Feed.Channel, channel)

			a, err := newApp(mc)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.shared.Init(ctx); err != nil {
				return err
			}
			env, ok := a.shared.Environment()
			if !ok {
				return goerr.New("no environment namespace configured")
			}

			var src feed.Source
			switch {
			case mc.Feed.WebSocketURL != "":
				src = &feed.WebSocketSource{URL: mc.Feed.WebSocketURL}
			case mc.Feed.RedisAddr != "":
				client := redis.NewClient(&redis.Options{Addr: mc.Feed.RedisAddr})
				defer client.Close()
				if err := client.Ping(ctx).Err(); err != nil {
					return goerr.Wrap(err, "failed to connect to redis", goerr.V("addr", mc.Feed.RedisAddr))
				}
				src = &feed.RedisSource{Client: client, Channel: mc.Feed.Channel}
			default:
				return goerr.New("either --ws-url or --redis-addr is required")
			}

			logging.From(ctx).Info("starting location feed", "namespace", env.Namespace())
			return src.Run(ctx, feed.NewHandler(env))
		},
	}
}
