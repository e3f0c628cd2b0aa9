package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "storefront:idem:"

// RedisStore keeps entries as JSON values whose TTL matches the entry expiry, so
// CleanupExpired has nothing to do.
type RedisStore struct {
	client goredis.Cmdable
}

func NewRedisStore(client goredis.Cmdable) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("idempotency: redis client is required")
	}
	return &RedisStore{client: client}, nil
}

func redisKey(key string) string {
	return redisKeyPrefix + documentID(key)
}

func ttlUntil(now, expiresAt time.Time) time.Duration {
	if ttl := expiresAt.Sub(now); ttl > time.Second {
		return ttl
	}
	return time.Second
}

func (s *RedisStore) Claim(ctx context.Context, key, fingerprint string, now, expiresAt time.Time) (Claim, error) {
	pending, err := json.Marshal(entry{Fingerprint: fingerprint, ExpiresAt: expiresAt.UTC()})
	if err != nil {
		return Claim{}, err
	}
	rk := redisKey(key)

	// A holder can expire between SetNX and Get; one more attempt covers that window.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, rk, pending, ttlUntil(now, expiresAt)).Result()
		if err != nil {
			return Claim{}, fmt.Errorf("idempotency: claim: %w", err)
		}
		if ok {
			return Claim{State: ClaimAcquired}, nil
		}

		raw, err := s.client.Get(ctx, rk).Bytes()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return Claim{}, fmt.Errorf("idempotency: load: %w", err)
		}
		var existing entry
		if err := json.Unmarshal(raw, &existing); err != nil {
			return Claim{}, fmt.Errorf("idempotency: decode: %w", err)
		}
		return claimExisting(existing, fingerprint)
	}
	return Claim{State: ClaimInFlight}, nil
}

func (s *RedisStore) Complete(ctx context.Context, key, fingerprint string, resp StoredResponse, now, expiresAt time.Time) error {
	rk := redisKey(key)
	raw, err := s.client.Get(ctx, rk).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
	case err != nil:
		return fmt.Errorf("idempotency: load: %w", err)
	default:
		var existing entry
		if err := json.Unmarshal(raw, &existing); err == nil && existing.Fingerprint != fingerprint {
			return ErrKeyReused
		}
	}

	data, err := json.Marshal(completedEntry(fingerprint, resp, expiresAt))
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, rk, data, ttlUntil(now, expiresAt)).Err(); err != nil {
		return fmt.Errorf("idempotency: store response: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}

func (s *RedisStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}
