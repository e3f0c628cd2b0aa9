package repositories

import (
	"context"
	"time"

	domain "github.com/threadcart/storefront/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository persists catalog products.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) ([]domain.Product, error)
}

// ProductListFilter narrows product listings.
type ProductListFilter struct {
	Category string
	Limit    int
}

// OfferRepository persists admin-defined offers.
type OfferRepository interface {
	Insert(ctx context.Context, offer domain.Offer) error
	Update(ctx context.Context, offer domain.Offer) error
	Delete(ctx context.Context, offerID string) error
	FindByID(ctx context.Context, offerID string) (domain.Offer, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Offer, error)
}

// ReelRepository persists storefront reels.
type ReelRepository interface {
	Insert(ctx context.Context, reel domain.Reel) error
	Delete(ctx context.Context, reelID string) error
	List(ctx context.Context, limit int) ([]domain.Reel, error)
}

// OrderRepository persists orders. Orders are never deleted.
type OrderRepository interface {
	// Insert creates the order, returning a conflict error when the id already exists.
	Insert(ctx context.Context, order domain.Order) error
	// UpdateStatus mutates only status, delivery date and update time.
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, deliveryDate *time.Time, updatedAt time.Time) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
}

// OrderListFilter narrows order listings. Results are ordered newest first.
type OrderListFilter struct {
	UserID string
	Status []domain.OrderStatus
	Limit  int
}

// OrderFeed pushes order collection updates to subscribers.
type OrderFeed interface {
	// Watch invokes onUpdate with the full filtered result set every time it changes until ctx is done.
	Watch(ctx context.Context, filter OrderListFilter, onUpdate func([]domain.Order)) error
}

// NotificationRepository stores in-app notifications.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
}

// PendingPaymentRepository stores the write-ahead records for online payments.
type PendingPaymentRepository interface {
	Insert(ctx context.Context, payment domain.PendingPayment) error
	Update(ctx context.Context, payment domain.PendingPayment) error
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.PendingPayment, error)
	ListByStatus(ctx context.Context, status domain.PendingPaymentStatus, limit int) ([]domain.PendingPayment, error)
}

// ProfileRepository stores customer profiles and default addresses.
type ProfileRepository interface {
	FindByID(ctx context.Context, userID string) (domain.Profile, error)
	Save(ctx context.Context, profile domain.Profile) error
}
