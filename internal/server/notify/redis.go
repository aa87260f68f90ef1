package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultStream    = "petkeeper:messages"
	defaultStreamLen = 10000
)

// RedisNotifier appends events to a Redis stream for out-of-process
// consumers such as mobile push workers.
type RedisNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisNotifier connects using a redis:// URL and pings the server.
func NewRedisNotifier(ctx context.Context, url, stream string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newRedisNotifier(client, stream), nil
}

func newRedisNotifier(client *redis.Client, stream string) *RedisNotifier {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisNotifier{client: client, stream: stream, maxLen: defaultStreamLen}
}

func (n *RedisNotifier) Notify(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Values: map[string]any{
			"type":       string(e.Type),
			"message_id": e.MessageID,
			"payload":    payload,
		},
	}).Err()
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
