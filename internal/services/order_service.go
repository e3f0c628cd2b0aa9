package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/threadcart/storefront/internal/domain"
	"github.com/threadcart/storefront/internal/repositories"
)

const (
	orderEventCreated         = "order.created"
	orderEventStatusChanged   = "order.status_changed"
	orderEventReturnRequested = "order.return_requested"

	orderIDPrefix = "ord_"

	defaultOrderListLimit = 100
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidTransition indicates the target status is not reachable from the current one.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderForbidden indicates the caller does not own the order.
	ErrOrderForbidden = errors.New("order: forbidden")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:         {domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:         {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered:       {domain.OrderStatusReturnRequested},
	domain.OrderStatusReturnRequested: {domain.OrderStatusReturnAccepted, domain.OrderStatusReturnRejected},
	domain.OrderStatusReturnAccepted:  {domain.OrderStatusReturnedSuccessfully},
}

// KnownOrderStatus reports whether status is part of the order lifecycle.
func KnownOrderStatus(status domain.OrderStatus) bool {
	switch status {
	case domain.OrderStatusPending,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
		domain.OrderStatusReturnRequested,
		domain.OrderStatusReturnAccepted,
		domain.OrderStatusReturnRejected,
		domain.OrderStatusReturnedSuccessfully:
		return true
	default:
		return false
	}
}

// AllowedTransitions returns the statuses reachable from status.
func AllowedTransitions(status domain.OrderStatus) []domain.OrderStatus {
	return slices.Clone(orderStateTransitions[status])
}

func canTransition(from, to domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[from], to)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Notifications repositories.NotificationRepository
	Feed          repositories.OrderFeed
	UnitOfWork    repositories.UnitOfWork
	Emails        EmailQueue
	Events        OrderEventPublisher
	Clock         func() time.Time
	IDGenerator   func() string
	PollInterval  time.Duration
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	notifications repositories.NotificationRepository
	feed          repositories.OrderFeed
	unitOfWork    repositories.UnitOfWork
	emails        EmailQueue
	events        OrderEventPublisher
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Notifications == nil {
		return nil, errors.New("order service: notification repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	feed := deps.Feed
	if feed == nil {
		feed = NewPollingOrderFeed(deps.Orders, deps.PollInterval, logger)
	}

	return &orderService{
		orders:        deps.Orders,
		notifications: deps.Notifications,
		feed:          feed,
		unitOfWork:    unit,
		emails:        deps.Emails,
		events:        deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) ([]domain.Order, error) {
	repoFilter, err := toRepositoryOrderFilter(filter)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.List(ctx, repoFilter)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !KnownOrderStatus(cmd.TargetStatus) {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	var guard func(domain.Order) error
	if cmd.ExpectedStatus != nil {
		expected := *cmd.ExpectedStatus
		guard = func(current domain.Order) error {
			if current.Status != expected {
				return fmt.Errorf("%w: expected status %q but was %q", ErrOrderConflict, expected, current.Status)
			}
			return nil
		}
	}
	return s.transition(ctx, orderID, cmd.TargetStatus, strings.TrimSpace(cmd.ActorID), guard)
}

func (s *orderService) RequestReturn(ctx context.Context, cmd RequestReturnCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	userID := strings.TrimSpace(cmd.UserID)
	if orderID == "" || userID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id and user id are required", ErrOrderInvalidInput)
	}

	updated, err := s.transition(ctx, orderID, domain.OrderStatusReturnRequested, userID, func(current domain.Order) error {
		if current.Customer.UserID != userID {
			return fmt.Errorf("%w: order %s belongs to another customer", ErrOrderForbidden, orderID)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.insertNotification(ctx, adminReturnNotification(s.nextNotificationID(), updated, cmd.Reason, updated.UpdatedAt))
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventReturnRequested,
		OrderID:       updated.ID,
		UserID:        updated.Customer.UserID,
		CurrentStatus: string(updated.Status),
		ActorID:       userID,
		OccurredAt:    updated.UpdatedAt,
	})
	return updated, nil
}

// transition reads the order, checks guard and the state machine, and writes the new status
// in one transaction, so a concurrent change aborts or retries it instead of being
// overwritten. Side effects run after commit; a failure in any of them is logged and never
// reverts the status.
func (s *orderService) transition(ctx context.Context, orderID string, target domain.OrderStatus, actor string, guard func(domain.Order) error) (domain.Order, error) {
	var (
		order      domain.Order
		prevStatus domain.OrderStatus
		now        time.Time
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if guard != nil {
			if err := guard(current); err != nil {
				return err
			}
		}
		if !canTransition(current.Status, target) {
			return fmt.Errorf("%w: %q -> %q", ErrOrderInvalidTransition, current.Status, target)
		}

		now = s.now()
		prevStatus = current.Status
		current.Status = target
		current.UpdatedAt = now
		if target == domain.OrderStatusDelivered {
			delivered := now
			current.DeliveryDate = &delivered
		}
		if err := s.orders.UpdateStatus(txCtx, current.ID, current.Status, current.DeliveryDate, now); err != nil {
			return s.mapRepositoryError(err)
		}
		order = current
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if notification, ok := statusNotification(s.nextNotificationID(), order, target, now); ok {
		s.insertNotification(ctx, notification)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		UserID:         order.Customer.UserID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        actor,
		OccurredAt:     now,
	})

	if msg, ok := statusEmail(order, target); ok {
		s.enqueueEmail(ctx, msg, order.ID)
	}

	return order, nil
}

func (s *orderService) SubscribeOrders(ctx context.Context, filter OrderListFilter) (OrderSubscription, error) {
	repoFilter, err := toRepositoryOrderFilter(filter)
	if err != nil {
		return nil, err
	}
	return newOrderSubscription(ctx, s.feed, repoFilter, s.logger), nil
}

func (s *orderService) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}
	notifications, err := s.notifications.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return notifications, nil
}

func (s *orderService) insertNotification(ctx context.Context, notification domain.Notification) {
	if err := s.notifications.Insert(ctx, notification); err != nil {
		s.logger(ctx, "order.notification.insert.failed", map[string]any{
			"order":    notification.OrderID,
			"audience": string(notification.Audience),
			"error":    err.Error(),
		})
	}
}

func (s *orderService) enqueueEmail(ctx context.Context, msg EmailMessage, orderID string) {
	if s.emails == nil {
		return
	}
	if err := s.emails.Enqueue(ctx, msg); err != nil {
		s.logger(ctx, "order.email.enqueue.failed", map[string]any{
			"order":    orderID,
			"template": string(msg.Template),
			"error":    err.Error(),
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextNotificationID() string {
	return notificationIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func toRepositoryOrderFilter(filter OrderListFilter) (repositories.OrderListFilter, error) {
	for _, status := range filter.Status {
		if !KnownOrderStatus(status) {
			return repositories.OrderListFilter{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}
	limit := filter.Limit
	if limit <= 0 || limit > defaultOrderListLimit {
		limit = defaultOrderListLimit
	}
	return repositories.OrderListFilter{
		UserID: strings.TrimSpace(filter.UserID),
		Status: slices.Clone(filter.Status),
		Limit:  limit,
	}, nil
}
