package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/threadcart/storefront/internal/domain"
)

const (
	defaultCacheTTL = 10 * time.Minute
	cacheKeyPrefix  = "shipping:rates:v1"
)

// RatesSource is anything that can quote courier options.
type RatesSource interface {
	Rates(ctx context.Context, query domain.ShippingRateQuery) ([]domain.ShippingOption, error)
}

// QuoteCache stores quoted options by query.
type QuoteCache interface {
	Get(ctx context.Context, key string) ([]domain.ShippingOption, bool, error)
	Set(ctx context.Context, key string, options []domain.ShippingOption, ttl time.Duration) error
}

// RedisCache stores JSON encoded quotes in Redis.
type RedisCache struct {
	client redis.Cmdable
}

// NewRedisCache wraps a go-redis client.
func NewRedisCache(client redis.Cmdable) (*RedisCache, error) {
	if client == nil {
		return nil, errors.New("shipping: redis client is required")
	}
	return &RedisCache{client: client}, nil
}

// Get returns cached options; the boolean is false on a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]domain.ShippingOption, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("shipping: cache get: %w", err)
	}
	var options []domain.ShippingOption
	if err := json.Unmarshal(raw, &options); err != nil {
		return nil, false, fmt.Errorf("shipping: cache decode: %w", err)
	}
	return options, true, nil
}

// Set stores options for ttl.
func (c *RedisCache) Set(ctx context.Context, key string, options []domain.ShippingOption, ttl time.Duration) error {
	raw, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("shipping: cache encode: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("shipping: cache set: %w", err)
	}
	return nil
}

// CachingRates serves quotes from cache and falls back to the source on a miss. Cache
// failures never fail a quote.
type CachingRates struct {
	source RatesSource
	cache  QuoteCache
	ttl    time.Duration
	logger Logger
}

// NewCachingRates decorates source with cache.
func NewCachingRates(source RatesSource, cache QuoteCache, ttl time.Duration, logger Logger) *CachingRates {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &CachingRates{source: source, cache: cache, ttl: ttl, logger: logger}
}

// Rates implements RatesSource.
func (c *CachingRates) Rates(ctx context.Context, query domain.ShippingRateQuery) ([]domain.ShippingOption, error) {
	if !domain.ValidPostcode(query.DeliveryPostcode) {
		return []domain.ShippingOption{}, nil
	}
	key := CacheKey(query)
	if c.cache != nil {
		options, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger(ctx, "shipping.cache.get_failed", map[string]any{"key": key, "error": err.Error()})
		}
		if ok {
			return options, nil
		}
	}

	options, err := c.source.Rates(ctx, query)
	if err != nil {
		return nil, err
	}
	if c.cache != nil && len(options) > 0 {
		if err := c.cache.Set(ctx, key, options, c.ttl); err != nil {
			c.logger(ctx, "shipping.cache.set_failed", map[string]any{"key": key, "error": err.Error()})
		}
	}
	return options, nil
}

// CacheKey derives a stable cache key for query.
func CacheKey(query domain.ShippingRateQuery) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", cacheKeyPrefix,
		query.DeliveryPostcode,
		boolFlag(query.CashOnDelivery),
		query.WeightKg.StringFixed(2),
		query.DeclaredValue.StringFixed(2),
	)
}
