// README: Redis pubsub implementation of the messenger.
package messenger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type Redis struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRedis(client *redis.Client, log *slog.Logger) *Redis {
	return &Redis{client: client, log: log}
}

func (r *Redis) Publish(ctx context.Context, topic string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, topic string) (<-chan Message, func(), error) {
	sub := r.client.Subscribe(ctx, topic)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		for raw := range sub.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				r.log.Warn("messenger: drop malformed payload", "topic", topic, "err", err)
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() { _ = sub.Close() }
	return out, stop, nil
}
