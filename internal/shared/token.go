package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TokenStore issues and resolves opaque bearer tokens backed by Redis.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl}
}

// Issue creates a fresh token for the actor and persists it with TTL.
func (s *TokenStore) Issue(ctx context.Context, actor Actor) (string, error) {
	token := uuid.NewString()
	payload, err := json.Marshal(actor)
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, s.key(token), payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("token store: set: %w", err)
	}
	return token, nil
}

// Resolve returns the actor associated with the token, refreshing its TTL.
func (s *TokenStore) Resolve(ctx context.Context, token string) (Actor, error) {
	if token == "" {
		return Actor{}, ErrUnauthorized
	}
	payload, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Actor{}, ErrUnauthorized
		}
		return Actor{}, fmt.Errorf("token store: get: %w", err)
	}
	var actor Actor
	if err := json.Unmarshal(payload, &actor); err != nil {
		return Actor{}, ErrUnauthorized
	}
	_ = s.client.Expire(ctx, s.key(token), s.ttl).Err()
	return actor, nil
}

// Revoke deletes the token.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// TTL exposes the configured token lifetime.
func (s *TokenStore) TTL() time.Duration {
	return s.ttl
}

func (s *TokenStore) key(token string) string {
	return "token:" + token
}
