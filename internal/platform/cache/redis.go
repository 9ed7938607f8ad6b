// Package cache owns the shared Redis connection used for sessions,
// event fan-out and the task queue broker.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const connectTimeout = 5 * time.Second

// New connects to Redis at addr and verifies the connection with a ping
// before handing the client out.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("cache: connect redis %s: %w", addr, err)
	}
	return client, nil
}
