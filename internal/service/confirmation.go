package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const confirmationKeyPrefix = "perfume-store:confirm"

// ConfirmationStore issues single-use tokens that gate destructive actions
type ConfirmationStore interface {
	// Issue replaces any pending token for scope and returns the new one
	Issue(ctx context.Context, scope string, ttl time.Duration) (string, error)
	// Consume reports whether token matches the pending token for scope.
	// The pending token is spent either way.
	Consume(ctx context.Context, scope, token string) (bool, error)
}

type redisConfirmationStore struct {
	client *redis.Client
}

// NewRedisConfirmationStore keeps confirmation tokens in Redis with a TTL
func NewRedisConfirmationStore(client *redis.Client) ConfirmationStore {
	return &redisConfirmationStore{client: client}
}

func confirmationKey(scope string) string {
	return confirmationKeyPrefix + ":" + scope
}

func (s *redisConfirmationStore) Issue(ctx context.Context, scope string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	if err := s.client.Set(ctx, confirmationKey(scope), token, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store confirmation token: %w", err)
	}
	return token, nil
}

func (s *redisConfirmationStore) Consume(ctx context.Context, scope, token string) (bool, error) {
	stored, err := s.client.GetDel(ctx, confirmationKey(scope)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to consume confirmation token: %w", err)
	}
	return token != "" && stored == token, nil
}
