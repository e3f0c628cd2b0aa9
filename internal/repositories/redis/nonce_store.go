package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const nonceKeyPrefix = "nonce:v1:"

// NonceStore implements auth.NonceStore with SET NX so replay protection holds across
// instances.
type NonceStore struct {
	client goredis.Cmdable
	now    func() time.Time
}

func NewNonceStore(client goredis.Cmdable) (*NonceStore, error) {
	if client == nil {
		return nil, errors.New("redis: nonce store requires a client")
	}
	return &NonceStore{client: client, now: time.Now}, nil
}

// UseNonce reports false when the nonce was already recorded for scope.
func (s *NonceStore) UseNonce(ctx context.Context, scope, nonce string, expiry time.Time) (bool, error) {
	if scope == "" || nonce == "" {
		return false, errors.New("redis: scope and nonce are required")
	}
	ttl := expiry.Sub(s.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := s.client.SetNX(ctx, nonceKeyPrefix+scope+":"+nonce, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: record nonce: %w", err)
	}
	return ok, nil
}
