package queue

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Publisher appends task and event payloads to Redis streams. All publishing
// in this codebase is best-effort telemetry or deferred work; callers log
// failures and move on.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, stream string, values map[string]any) error {
	if p == nil || p.client == nil {
		return nil
	}
	_, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	return err
}
