package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/threadcart/storefront/internal/domain"
	pfirestore "github.com/threadcart/storefront/internal/platform/firestore"
	"github.com/threadcart/storefront/internal/repositories"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

type notificationDocument struct {
	Audience    string    `firestore:"audience"`
	UserID      string    `firestore:"userId"`
	OrderID     string    `firestore:"orderId"`
	Title       string    `firestore:"title"`
	Description string    `firestore:"description"`
	Icon        string    `firestore:"icon"`
	Read        bool      `firestore:"read"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

// NotificationRepository implements repositories.NotificationRepository.
type NotificationRepository struct {
	notifications *pfirestore.Collection[domain.Notification]
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)

func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if err := requireProvider(provider, "notification"); err != nil {
		return nil, err
	}
	return &NotificationRepository{
		notifications: pfirestore.NewCollection(provider, notificationsCollection,
			encodeAs(func(n domain.Notification) notificationDocument {
				return notificationDocument{
					Audience:    string(n.Audience),
					UserID:      n.UserID,
					OrderID:     n.OrderID,
					Title:       n.Title,
					Description: n.Description,
					Icon:        n.Icon,
					Read:        n.Read,
					CreatedAt:   n.CreatedAt.UTC(),
				}
			}),
			decodeWith(func(id string, doc notificationDocument) (domain.Notification, error) {
				return domain.Notification{
					ID:          id,
					Audience:    domain.NotificationAudience(doc.Audience),
					UserID:      doc.UserID,
					OrderID:     doc.OrderID,
					Title:       doc.Title,
					Description: doc.Description,
					Icon:        doc.Icon,
					Read:        doc.Read,
					CreatedAt:   doc.CreatedAt,
				}, nil
			}),
		),
	}, nil
}

func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	return r.notifications.Create(ctx, notification.ID, notification)
}

// ListByUser returns the user's notifications newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	limit = clampLimit(limit, defaultNotificationLimit, maxNotificationLimit)
	return r.notifications.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID).OrderBy("createdAt", firestore.Desc).Limit(limit)
	})
}
