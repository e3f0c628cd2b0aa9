package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/threadcart/storefront/internal/domain"
	"github.com/threadcart/storefront/internal/payments"
	"github.com/threadcart/storefront/internal/repositories"
)

const (
	defaultStoreCurrency   = "INR"
	defaultReconcileLimit  = 50
	defaultPaymentExpiry   = 24 * time.Hour
	paymentFailureFallback = "payment was not completed"
	paymentDeclinedReason  = "payment declined by gateway"
	paymentExpiredReason   = "payment window expired"
)

// errPaymentDeclined marks a payment the gateway settled as failed or canceled.
var errPaymentDeclined = errors.New("payment declined")

var (
	// ErrPlacementInvalidInput signals a malformed checkout request.
	ErrPlacementInvalidInput = errors.New("placement: invalid input")
	// ErrPlacementEmptyCart is returned when the session cart has no items.
	ErrPlacementEmptyCart = errors.New("placement: cart is empty")
	// ErrPlacementInvalidAddress is returned when no complete shipping address could be resolved.
	ErrPlacementInvalidAddress = errors.New("placement: shipping address incomplete")
	// ErrPlacementShippingNotSelected is returned when no quoted shipping option was selected.
	ErrPlacementShippingNotSelected = errors.New("placement: shipping option not selected")
	// ErrPlacementGatewayUnavailable wraps payment gateway failures.
	ErrPlacementGatewayUnavailable = errors.New("placement: payment gateway unavailable")
	// ErrPlacementPaymentNotFound is returned for unknown gateway order ids.
	ErrPlacementPaymentNotFound = errors.New("placement: payment not found")
	// ErrPlacementPaymentNotVerified is returned when the gateway does not confirm a matching captured payment.
	ErrPlacementPaymentNotVerified = errors.New("placement: payment not verified")
	// ErrPlacementPaymentConflict is returned when a payment record is already settled differently.
	ErrPlacementPaymentConflict = errors.New("placement: payment already settled")
)

// PlacementServiceDeps bundles collaborators required by the placement coordinator.
type PlacementServiceDeps struct {
	Pricing       PricingService
	Carts         CartService
	Addresses     AddressService
	Orders        repositories.OrderRepository
	Payments      repositories.PendingPaymentRepository
	Notifications repositories.NotificationRepository
	Gateway       payments.Gateway
	UnitOfWork    repositories.UnitOfWork
	Emails        EmailQueue
	Events        OrderEventPublisher
	Currency      string
	PaymentExpiry time.Duration
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type placementService struct {
	pricing       PricingService
	carts         CartService
	addresses     AddressService
	orders        repositories.OrderRepository
	payments      repositories.PendingPaymentRepository
	notifications repositories.NotificationRepository
	gateway       payments.Gateway
	unitOfWork    repositories.UnitOfWork
	emails        EmailQueue
	events        OrderEventPublisher
	currency      string
	expiry        time.Duration
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewPlacementService constructs the order placement coordinator. The gateway and pending payment
// repository are optional; without them only cash on delivery orders can be placed.
func NewPlacementService(deps PlacementServiceDeps) (PlacementService, error) {
	if deps.Pricing == nil {
		return nil, errors.New("placement service: pricing service is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("placement service: cart service is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("placement service: address service is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("placement service: order repository is required")
	}
	if deps.Notifications == nil {
		return nil, errors.New("placement service: notification repository is required")
	}
	if (deps.Gateway == nil) != (deps.Payments == nil) {
		return nil, errors.New("placement service: gateway and pending payment repository must be configured together")
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
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultStoreCurrency
	}
	expiry := deps.PaymentExpiry
	if expiry <= 0 {
		expiry = defaultPaymentExpiry
	}

	return &placementService{
		pricing:       deps.Pricing,
		carts:         deps.Carts,
		addresses:     deps.Addresses,
		orders:        deps.Orders,
		payments:      deps.Payments,
		notifications: deps.Notifications,
		gateway:       deps.Gateway,
		unitOfWork:    unit,
		emails:        deps.Emails,
		events:        deps.Events,
		currency:      currency,
		expiry:        expiry,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *placementService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlacementResult, error) {
	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		return PlacementResult{}, fmt.Errorf("%w: cart session is required", ErrPlacementInvalidInput)
	}
	userID := strings.TrimSpace(cmd.Customer.UserID)
	if userID == "" {
		return PlacementResult{}, fmt.Errorf("%w: customer is required", ErrPlacementInvalidInput)
	}
	switch cmd.PaymentMethod {
	case domain.PaymentMethodCOD:
	case domain.PaymentMethodOnline:
		if s.gateway == nil {
			return PlacementResult{}, fmt.Errorf("%w: online payments are not configured", ErrPlacementInvalidInput)
		}
	default:
		return PlacementResult{}, fmt.Errorf("%w: unsupported payment method %q", ErrPlacementInvalidInput, cmd.PaymentMethod)
	}

	cart, err := s.carts.GetCart(ctx, sessionID)
	if err != nil {
		return PlacementResult{}, err
	}
	if len(cart.Items) == 0 {
		return PlacementResult{}, ErrPlacementEmptyCart
	}

	address, err := s.addresses.ResolveShippingAddress(ctx, userID, cmd.UseDefaultAddress, cmd.Address)
	if err != nil {
		if errors.Is(err, ErrAddressInvalid) || errors.Is(err, ErrAddressNotFound) {
			return PlacementResult{}, fmt.Errorf("%w: %v", ErrPlacementInvalidAddress, err)
		}
		return PlacementResult{}, err
	}

	pricing, err := s.pricing.PriceCart(ctx, PriceCartCommand{
		Items:          cart.Items,
		Postcode:       address.Pincode,
		CashOnDelivery: cmd.PaymentMethod == domain.PaymentMethodCOD,
		CourierID:      cmd.CourierID,
	})
	if err != nil {
		return PlacementResult{}, err
	}
	if !pricing.Ready || pricing.SelectedShipping == nil {
		return PlacementResult{}, ErrPlacementShippingNotSelected
	}

	now := s.clock()
	order := buildOrder(orderIDPrefix+s.newID(), cmd, address, pricing, now)

	if cmd.PaymentMethod == domain.PaymentMethodCOD {
		err := s.runInTx(ctx, func(txCtx context.Context) error {
			if err := s.orders.Insert(txCtx, order); err != nil {
				return s.mapRepositoryError(err)
			}
			return nil
		})
		if err != nil {
			return PlacementResult{}, err
		}
		s.afterOrderRecorded(ctx, order, sessionID)
		return PlacementResult{Order: &order, Pricing: pricing}, nil
	}

	amount := domain.MinorUnits(order.Total)
	gatewayOrder, err := s.gateway.CreateOrder(ctx, payments.CreateOrderRequest{
		Amount:        amount,
		Currency:      s.currency,
		Receipt:       order.ID,
		CustomerEmail: order.Customer.Email,
		Metadata: map[string]string{
			"orderId":   order.ID,
			"sessionId": sessionID,
			"userId":    userID,
		},
		IdempotencyKey: order.ID,
	})
	if err != nil {
		s.logger(ctx, "placement.gateway.create.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
		return PlacementResult{}, fmt.Errorf("%w: %v", ErrPlacementGatewayUnavailable, err)
	}

	record := domain.PendingPayment{
		GatewayOrderID: gatewayOrder.ID,
		OrderID:        order.ID,
		CartSessionID:  sessionID,
		Draft:          order,
		Amount:         amount,
		Currency:       s.currency,
		Status:         domain.PendingPaymentAwaiting,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.payments.Insert(ctx, record); err != nil {
		return PlacementResult{}, s.mapRepositoryError(err)
	}

	return PlacementResult{
		Payment: &PaymentHandle{
			GatewayOrderID: gatewayOrder.ID,
			ClientSecret:   gatewayOrder.ClientSecret,
			Amount:         amount,
			Currency:       s.currency,
			OrderID:        order.ID,
		},
		Pricing: pricing,
	}, nil
}

func (s *placementService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (domain.Order, error) {
	record, err := s.findPayment(ctx, cmd.GatewayOrderID, cmd.UserID)
	if err != nil {
		return domain.Order{}, err
	}

	switch record.Status {
	case domain.PendingPaymentCompleted:
		order, err := s.orders.FindByID(ctx, record.OrderID)
		if err != nil {
			return domain.Order{}, s.mapRepositoryError(err)
		}
		return order, nil
	case domain.PendingPaymentCaptured:
		return s.finalize(ctx, record)
	}

	record, err = s.capture(ctx, record)
	if err != nil {
		return domain.Order{}, err
	}
	return s.finalize(ctx, record)
}

func (s *placementService) FailPayment(ctx context.Context, cmd FailPaymentCommand) error {
	record, err := s.findPayment(ctx, cmd.GatewayOrderID, cmd.UserID)
	if err != nil {
		return err
	}
	switch record.Status {
	case domain.PendingPaymentFailed:
		return nil
	case domain.PendingPaymentCaptured, domain.PendingPaymentCompleted:
		return fmt.Errorf("%w: payment %s is %s", ErrPlacementPaymentConflict, record.GatewayOrderID, record.Status)
	}

	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = paymentFailureFallback
	}
	record.Status = domain.PendingPaymentFailed
	record.FailureReason = reason
	record.UpdatedAt = s.clock()
	if err := s.payments.Update(ctx, record); err != nil {
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, "placement.payment.failed", map[string]any{
		"order":   record.OrderID,
		"gateway": record.GatewayOrderID,
		"reason":  reason,
	})
	return nil
}

// ReconcilePayments finalises captured payments whose order was never recorded and re-checks
// payments still awaiting confirmation with the gateway. An awaiting payment that cannot be
// captured yet is touched so the oldest-first listing moves past it on the next sweep; one the
// gateway declined, or that outlived the payment expiry, is marked failed.
func (s *placementService) ReconcilePayments(ctx context.Context, limit int) (ReconcileResult, error) {
	if s.payments == nil {
		return ReconcileResult{}, nil
	}
	if limit <= 0 {
		limit = defaultReconcileLimit
	}

	var result ReconcileResult
	for _, status := range []domain.PendingPaymentStatus{domain.PendingPaymentCaptured, domain.PendingPaymentAwaiting} {
		records, err := s.payments.ListByStatus(ctx, status, limit)
		if err != nil {
			return result, s.mapRepositoryError(err)
		}
		for _, record := range records {
			result.Examined++
			if record.Status == domain.PendingPaymentAwaiting {
				captured, err := s.capture(ctx, record)
				if err != nil {
					expired, touchErr := s.touchUnverified(ctx, record, err)
					switch {
					case touchErr != nil:
						s.logger(ctx, "placement.reconcile.touch.failed", map[string]any{
							"gateway": record.GatewayOrderID,
							"error":   touchErr.Error(),
						})
						result.Failed = append(result.Failed, record.GatewayOrderID)
					case expired:
						result.Expired = append(result.Expired, record.GatewayOrderID)
					case !errors.Is(err, ErrPlacementPaymentNotVerified):
						result.Failed = append(result.Failed, record.GatewayOrderID)
					}
					continue
				}
				record = captured
			}
			if _, err := s.finalize(ctx, record); err != nil {
				s.logger(ctx, "placement.reconcile.failed", map[string]any{
					"gateway": record.GatewayOrderID,
					"error":   err.Error(),
				})
				result.Failed = append(result.Failed, record.GatewayOrderID)
				continue
			}
			result.Recovered = append(result.Recovered, record.OrderID)
		}
	}
	return result, nil
}

func (s *placementService) HandlePaymentWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.gateway == nil {
		return fmt.Errorf("%w: online payments are not configured", ErrPlacementInvalidInput)
	}
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	switch event.Type {
	case payments.WebhookPaymentSucceeded:
		_, err := s.ConfirmPayment(ctx, ConfirmPaymentCommand{GatewayOrderID: event.GatewayOrderID, PaymentID: event.PaymentID})
		return err
	case payments.WebhookPaymentFailed:
		err := s.FailPayment(ctx, FailPaymentCommand{GatewayOrderID: event.GatewayOrderID, Reason: event.FailureReason})
		if errors.Is(err, ErrPlacementPaymentConflict) {
			return nil
		}
		return err
	default:
		return nil
	}
}

// touchUnverified records a sweep attempt on an awaiting payment that could not be captured.
// A gateway outage never expires a payment; only a gateway answer can.
func (s *placementService) touchUnverified(ctx context.Context, record domain.PendingPayment, cause error) (bool, error) {
	now := s.clock()
	record.Attempts++
	record.UpdatedAt = now

	expired := false
	switch {
	case errors.Is(cause, errPaymentDeclined):
		record.FailureReason = paymentDeclinedReason
		expired = true
	case errors.Is(cause, ErrPlacementPaymentNotVerified) && now.Sub(record.CreatedAt) > s.expiry:
		record.FailureReason = paymentExpiredReason
		expired = true
	}
	if expired {
		record.Status = domain.PendingPaymentFailed
	}
	if err := s.payments.Update(ctx, record); err != nil {
		return false, s.mapRepositoryError(err)
	}
	if expired {
		s.logger(ctx, "placement.payment.expired", map[string]any{
			"order":    record.OrderID,
			"gateway":  record.GatewayOrderID,
			"reason":   record.FailureReason,
			"attempts": record.Attempts,
		})
	}
	return expired, nil
}

// capture verifies the payment with the gateway and marks the record captured.
func (s *placementService) capture(ctx context.Context, record domain.PendingPayment) (domain.PendingPayment, error) {
	details, err := s.gateway.LookupPayment(ctx, record.GatewayOrderID)
	if err != nil {
		return domain.PendingPayment{}, fmt.Errorf("%w: %v", ErrPlacementGatewayUnavailable, err)
	}
	if details.Status == payments.StatusFailed {
		return domain.PendingPayment{}, fmt.Errorf("%w: %w", ErrPlacementPaymentNotVerified, errPaymentDeclined)
	}
	if details.Status != payments.StatusSucceeded {
		return domain.PendingPayment{}, fmt.Errorf("%w: gateway reports %s", ErrPlacementPaymentNotVerified, details.Status)
	}
	if details.Receipt != record.OrderID {
		return domain.PendingPayment{}, fmt.Errorf("%w: receipt %q does not match order %s", ErrPlacementPaymentNotVerified, details.Receipt, record.OrderID)
	}
	if details.Amount != record.Amount || !strings.EqualFold(details.Currency, record.Currency) {
		return domain.PendingPayment{}, fmt.Errorf("%w: amount %d %s does not match %d %s", ErrPlacementPaymentNotVerified, details.Amount, details.Currency, record.Amount, record.Currency)
	}

	record.Status = domain.PendingPaymentCaptured
	record.PaymentID = details.PaymentID
	record.FailureReason = ""
	record.UpdatedAt = s.clock()
	if err := s.payments.Update(ctx, record); err != nil {
		return domain.PendingPayment{}, s.mapRepositoryError(err)
	}
	return record, nil
}

// finalize records the order for a captured payment. A failure leaves the record captured so a
// later ConfirmPayment or ReconcilePayments call can retry.
func (s *placementService) finalize(ctx context.Context, record domain.PendingPayment) (domain.Order, error) {
	order := record.Draft
	order.ID = record.OrderID
	order.PaymentMethod = domain.PaymentMethodOnline
	order.PaymentRef = record.PaymentID
	order.Status = domain.OrderStatusPending

	record.Attempts++
	inserted := true
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsConflict() {
				inserted = false
				return nil
			}
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		record.UpdatedAt = s.clock()
		if updateErr := s.payments.Update(ctx, record); updateErr != nil {
			s.logger(ctx, "placement.payment.attempt.update.failed", map[string]any{
				"gateway": record.GatewayOrderID,
				"error":   updateErr.Error(),
			})
		}
		return domain.Order{}, err
	}

	if inserted {
		s.afterOrderRecorded(ctx, order, record.CartSessionID)
	} else {
		existing, err := s.orders.FindByID(ctx, order.ID)
		if err != nil {
			return domain.Order{}, s.mapRepositoryError(err)
		}
		order = existing
	}

	record.Status = domain.PendingPaymentCompleted
	record.UpdatedAt = s.clock()
	if err := s.payments.Update(ctx, record); err != nil {
		s.logger(ctx, "placement.payment.complete.failed", map[string]any{
			"gateway": record.GatewayOrderID,
			"order":   order.ID,
			"error":   err.Error(),
		})
	}
	return order, nil
}

// afterOrderRecorded performs the best-effort follow-ups of a newly recorded order.
func (s *placementService) afterOrderRecorded(ctx context.Context, order domain.Order, sessionID string) {
	if err := s.carts.Clear(ctx, sessionID); err != nil {
		s.logger(ctx, "placement.cart.clear.failed", map[string]any{
			"order":   order.ID,
			"session": sessionID,
			"error":   err.Error(),
		})
	}

	notification := adminOrderNotification(notificationIDPrefix+s.newID(), order, s.clock())
	if err := s.notifications.Insert(ctx, notification); err != nil {
		s.logger(ctx, "placement.notification.insert.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
	}

	if msg, ok := confirmationEmail(order); ok && s.emails != nil {
		if err := s.emails.Enqueue(ctx, msg); err != nil {
			s.logger(ctx, "placement.email.enqueue.failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
		}
	}

	if s.events != nil {
		event := OrderEvent{
			Type:          orderEventCreated,
			OrderID:       order.ID,
			UserID:        order.Customer.UserID,
			CurrentStatus: string(order.Status),
			ActorID:       order.Customer.UserID,
			OccurredAt:    order.CreatedAt,
		}
		if err := s.events.PublishOrderEvent(ctx, event); err != nil {
			s.logger(ctx, "placement.event.publish.failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
		}
	}
}

// findPayment loads a pending payment. With a userID, a payment started by another customer
// reads as not found.
func (s *placementService) findPayment(ctx context.Context, gatewayOrderID, userID string) (domain.PendingPayment, error) {
	if s.payments == nil {
		return domain.PendingPayment{}, fmt.Errorf("%w: online payments are not configured", ErrPlacementInvalidInput)
	}
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	if gatewayOrderID == "" {
		return domain.PendingPayment{}, fmt.Errorf("%w: gateway order id is required", ErrPlacementInvalidInput)
	}
	record, err := s.payments.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.PendingPayment{}, fmt.Errorf("%w: %s", ErrPlacementPaymentNotFound, gatewayOrderID)
		}
		return domain.PendingPayment{}, s.mapRepositoryError(err)
	}
	if userID = strings.TrimSpace(userID); userID != "" && record.Draft.Customer.UserID != userID {
		return domain.PendingPayment{}, fmt.Errorf("%w: %s", ErrPlacementPaymentNotFound, gatewayOrderID)
	}
	return record, nil
}

func (s *placementService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *placementService) mapRepositoryError(err error) error {
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
			return fmt.Errorf("placement: repository unavailable: %w", err)
		}
	}
	return err
}

func buildOrder(id string, cmd PlaceOrderCommand, address domain.Address, pricing CartPricing, now time.Time) domain.Order {
	items := make([]domain.OrderItem, 0, len(pricing.Lines))
	for _, line := range pricing.Lines {
		items = append(items, domain.OrderItem{
			ProductID: line.Product.ID,
			Name:      line.Product.Name,
			Size:      line.Item.Size,
			Quantity:  line.Item.Quantity,
			UnitPrice: line.DiscountedPrice,
		})
	}
	customer := cmd.Customer
	customer.UserID = strings.TrimSpace(customer.UserID)
	if strings.TrimSpace(customer.Name) == "" {
		customer.Name = address.Name
	}
	var courier string
	if pricing.SelectedShipping != nil {
		courier = pricing.SelectedShipping.CourierName
	}
	return domain.Order{
		ID:       id,
		Customer: customer,
		ShippingAddress: domain.ShippingAddress{
			Name:    address.Name,
			Address: FormatAddress(address),
			Phone:   address.Phone,
		},
		PaymentMethod: cmd.PaymentMethod,
		Status:        domain.OrderStatusPending,
		Items:         items,
		Subtotal:      pricing.Subtotal,
		Discount:      pricing.Discount,
		ShippingRate:  pricing.ShippingRate,
		Courier:       courier,
		Total:         pricing.Total,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
