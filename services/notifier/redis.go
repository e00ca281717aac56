package notifier

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"sjsage522/pepperwatch/internal/deal"
	cerr "sjsage522/pepperwatch/pkg/errors"
)

// RedisNotifier implements Notifier using Redis streams. Each destination
// gets its own stream under the configured prefix; the chat relay consumes
// them and renders the messages.
type RedisNotifier struct {
	client          *redis.Client
	streamPrefix    string
	streamMaxLength int
}

// NewRedisNotifier creates a new Redis notifier
func NewRedisNotifier(addr string, db int, streamPrefix string, streamMaxLength int) *RedisNotifier {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	return &RedisNotifier{
		client:          client,
		streamPrefix:    streamPrefix,
		streamMaxLength: streamMaxLength,
	}
}

// Deliver publishes a deal batch to the destination's stream.
// The JSON payload is base64 encoded before publishing.
func (n *RedisNotifier) Deliver(ctx context.Context, destinationID string, deals []deal.Record) error {
	if len(deals) == 0 {
		return nil
	}

	payload, err := json.Marshal(deals)
	if err != nil {
		return cerr.NewDelivery(destinationID, "failed to encode deal batch", err)
	}

	stream := n.streamPrefix + ":" + destinationID
	err = n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"b64_deals": base64.StdEncoding.EncodeToString(payload),
		},
	}).Err()
	if err != nil {
		return cerr.NewDelivery(destinationID, "failed to publish deal batch", err)
	}

	return nil
}

// TrimStreams trims all destination streams to the configured maximum length
func (n *RedisNotifier) TrimStreams(ctx context.Context) error {
	pattern := n.streamPrefix + ":*"
	streams, err := n.client.Keys(ctx, pattern).Result()
	if err != nil {
		return cerr.NewDelivery("", "failed to list streams", err)
	}

	for _, stream := range streams {
		if err := n.client.XTrimMaxLen(ctx, stream, int64(n.streamMaxLength)).Err(); err != nil {
			return cerr.NewDelivery(stream, "failed to trim stream", err)
		}
	}

	return nil
}

// Close closes the Redis connection
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
