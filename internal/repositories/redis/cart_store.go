// Package redis holds the Redis-backed session stores.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domain "github.com/threadcart/storefront/internal/domain"
)

const (
	cartKeyPrefix  = "cart:v1:"
	defaultCartTTL = 30 * 24 * time.Hour
)

type cartItemRecord struct {
	ProductID string `json:"productId"`
	Size      string `json:"size,omitempty"`
	Quantity  int    `json:"quantity"`
}

type cartRecord struct {
	Items     []cartItemRecord `json:"items"`
	Wishlist  []string         `json:"wishlist,omitempty"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// CartStore keeps session carts in Redis. Every save refreshes the expiry so active carts
// survive while abandoned ones age out.
type CartStore struct {
	client goredis.Cmdable
	ttl    time.Duration
}

func NewCartStore(client goredis.Cmdable, ttl time.Duration) (*CartStore, error) {
	if client == nil {
		return nil, errors.New("redis: cart store requires a client")
	}
	if ttl <= 0 {
		ttl = defaultCartTTL
	}
	return &CartStore{client: client, ttl: ttl}, nil
}

// Load reports false when the session has no stored cart.
func (s *CartStore) Load(ctx context.Context, sessionID string) (domain.Cart, bool, error) {
	key, err := cartKey(sessionID)
	if err != nil {
		return domain.Cart{}, false, err
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Cart{}, false, nil
	}
	if err != nil {
		return domain.Cart{}, false, fmt.Errorf("redis: load cart: %w", err)
	}

	var record cartRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.Cart{}, false, fmt.Errorf("redis: decode cart: %w", err)
	}
	cart := domain.Cart{
		SessionID: sessionID,
		Wishlist:  record.Wishlist,
		UpdatedAt: record.UpdatedAt,
	}
	for _, item := range record.Items {
		cart.Items = append(cart.Items, domain.CartItem{ProductID: item.ProductID, Size: item.Size, Quantity: item.Quantity})
	}
	return cart, true, nil
}

func (s *CartStore) Save(ctx context.Context, cart domain.Cart) error {
	key, err := cartKey(cart.SessionID)
	if err != nil {
		return err
	}
	record := cartRecord{
		Items:     make([]cartItemRecord, 0, len(cart.Items)),
		Wishlist:  cart.Wishlist,
		UpdatedAt: cart.UpdatedAt.UTC(),
	}
	for _, item := range cart.Items {
		record.Items = append(record.Items, cartItemRecord{ProductID: item.ProductID, Size: item.Size, Quantity: item.Quantity})
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redis: encode cart: %w", err)
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: save cart: %w", err)
	}
	return nil
}

func (s *CartStore) Delete(ctx context.Context, sessionID string) error {
	key, err := cartKey(sessionID)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: delete cart: %w", err)
	}
	return nil
}

func cartKey(sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", errors.New("redis: session id is required")
	}
	return cartKeyPrefix + sessionID, nil
}
