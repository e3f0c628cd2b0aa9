package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending              OrderStatus = "Pending"
	OrderStatusShipped              OrderStatus = "Shipped"
	OrderStatusDelivered            OrderStatus = "Delivered"
	OrderStatusCancelled            OrderStatus = "Cancelled"
	OrderStatusReturnRequested      OrderStatus = "Return Requested"
	OrderStatusReturnAccepted       OrderStatus = "Return Request Accepted"
	OrderStatusReturnRejected       OrderStatus = "Return Rejected"
	OrderStatusReturnedSuccessfully OrderStatus = "Order Returned Successfully"
)

// PaymentMethod identifies how the customer settles the order.
type PaymentMethod string

const (
	PaymentMethodOnline PaymentMethod = "Online"
	PaymentMethodCOD    PaymentMethod = "COD"
)

// Customer identifies who placed the order.
type Customer struct {
	UserID string
	Name   string
	Email  string
}

// ShippingAddress is the flattened address stored on an order.
type ShippingAddress struct {
	Name    string
	Address string
	Phone   string
}

// OrderItem is an immutable order line.
type OrderItem struct {
	ProductID string
	Name      string
	Size      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Order is a placed order. Items never change after creation.
type Order struct {
	ID              string
	Customer        Customer
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	PaymentRef      string
	Status          OrderStatus
	Items           []OrderItem
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	ShippingRate    decimal.Decimal
	Courier         string
	Total           decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeliveryDate    *time.Time
}

// NotificationAudience distinguishes customer and admin notifications.
type NotificationAudience string

const (
	NotificationAudienceUser  NotificationAudience = "user"
	NotificationAudienceAdmin NotificationAudience = "admin"
)

// Notification is an in-app notification record.
type Notification struct {
	ID          string
	Audience    NotificationAudience
	UserID      string
	OrderID     string
	Title       string
	Description string
	Icon        string
	Read        bool
	CreatedAt   time.Time
}

// PendingPaymentStatus tracks the write-ahead record for online payments.
type PendingPaymentStatus string

const (
	PendingPaymentAwaiting  PendingPaymentStatus = "awaiting_payment"
	PendingPaymentCaptured  PendingPaymentStatus = "captured"
	PendingPaymentCompleted PendingPaymentStatus = "completed"
	PendingPaymentFailed    PendingPaymentStatus = "failed"
)

// PendingPayment is written before the customer pays so a captured payment can always be
// turned into an order, keyed by the gateway order id.
type PendingPayment struct {
	GatewayOrderID string
	OrderID        string
	CartSessionID  string
	Draft          Order
	Amount         int64
	Currency       string
	Status         PendingPaymentStatus
	PaymentID      string
	FailureReason  string
	Attempts       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
