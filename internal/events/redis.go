package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "cooltrack:events:"

// Envelope is the wire format published on the Redis channel.
type Envelope struct {
	Event   string    `json:"event"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// RedisPublisher publishes events over Redis pub/sub. Each scope maps to
// its own channel so socket gateways can subscribe per room.
type RedisPublisher struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisPublisher constructs a RedisPublisher.
func NewRedisPublisher(client *redis.Client, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: logger}
}

// Publish implements Publisher. Errors are logged and swallowed.
func (p *RedisPublisher) Publish(ctx context.Context, scope, event string, payload any) {
	data, err := json.Marshal(Envelope{Event: event, Payload: payload, At: time.Now().UTC()})
	if err != nil {
		p.logger.Warn("marshal event", slog.String("event", event), slog.Any("error", err))
		return
	}
	if err := p.client.Publish(ctx, Channel(scope), data).Err(); err != nil {
		p.logger.Warn("publish event",
			slog.String("scope", scope),
			slog.String("event", event),
			slog.Any("error", err))
	}
}

// Channel returns the Redis channel name for a scope.
func Channel(scope string) string {
	return channelPrefix + scope
}
