package feed

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MichaelIeong/SAGE/logging"
)

// DefaultChannel is the pub/sub channel location updates are published on.
const DefaultChannel = "env_update"

// RedisSource reads location messages from a Redis pub/sub channel.
type RedisSource struct {
	Client  *redis.Client
	Channel string
}

// Run subscribes and handles messages until ctx is canceled.
func (s *RedisSource) Run(ctx context.Context, h *Handler) error {
	channel := s.Channel
	if channel == "" {
		channel = DefaultChannel
	}

	sub := s.Client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return goerr.Wrap(err, "failed to subscribe to location feed", goerr.V("channel", channel))
	}

	logging.From(ctx).Info("listening for location updates", "channel", channel)
	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			h.dispatch(ctx, []byte(msg.Payload))
		}
	}
}
