package firestore

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	pfirestore "github.com/threadcart/storefront/internal/platform/firestore"
)

// Collection names.
const (
	productsCollection        = "products"
	offersCollection          = "offers"
	reelsCollection           = "reels"
	ordersCollection          = "orders"
	notificationsCollection   = "notifications"
	pendingPaymentsCollection = "pending_payments"
	profilesCollection        = "profiles"
)

// Money is stored as its decimal string so totals survive a round trip without float drift.
func encodeMoney(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

func decodeMoney(field, value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	return amount, nil
}

func encodeAs[D any, T any](convert func(T) D) pfirestore.Encoder[T] {
	return func(value T) (any, error) {
		return convert(value), nil
	}
}

func decodeWith[D any, T any](convert func(id string, doc D) (T, error)) pfirestore.Decoder[T] {
	return func(snap *firestore.DocumentSnapshot) (T, error) {
		var doc D
		if err := snap.DataTo(&doc); err != nil {
			var zero T
			return zero, err
		}
		return convert(snap.Ref.ID, doc)
	}
}

func requireProvider(provider *pfirestore.Provider, name string) error {
	if provider == nil {
		return errors.New(name + " repository requires firestore provider")
	}
	return nil
}

func clampLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
