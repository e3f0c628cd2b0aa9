package payments

import (
	"context"
	"errors"
)

// Status enumerates the normalised payment states shared across gateways.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the payment as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway reports a failure and no further action is possible.
	StatusFailed Status = "failed"
)

// WebhookEventType classifies gateway webhook deliveries the storefront reacts to.
type WebhookEventType string

const (
	WebhookPaymentSucceeded WebhookEventType = "payment.succeeded"
	WebhookPaymentFailed    WebhookEventType = "payment.failed"
	WebhookIgnored          WebhookEventType = "ignored"
)

var (
	// ErrInvalidSignature is returned when a webhook payload fails signature verification.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrGatewayUnavailable wraps transport or API failures from the gateway.
	ErrGatewayUnavailable = errors.New("payments: gateway unavailable")
)

// MetadataReceipt is the gateway metadata key holding the pre-allocated order id.
const MetadataReceipt = "receipt"

// CreateOrderRequest captures the payload required to open a gateway order.
type CreateOrderRequest struct {
	// Amount in minor currency units.
	Amount         int64
	Currency       string
	Receipt        string
	CustomerEmail  string
	Metadata       map[string]string
	IdempotencyKey string
}

// GatewayOrder is the gateway object the hosted payment widget is opened with.
type GatewayOrder struct {
	ID           string
	Provider     string
	ClientSecret string
	Amount       int64
	Currency     string
	Receipt      string
}

// PaymentDetails normalises gateway specific fields for verification.
type PaymentDetails struct {
	Provider       string
	GatewayOrderID string
	PaymentID      string
	Receipt        string
	Status         Status
	Amount         int64
	Currency       string
	FailureReason  string
}

// WebhookEvent is a verified, normalised gateway notification.
type WebhookEvent struct {
	ID             string
	Type           WebhookEventType
	GatewayOrderID string
	PaymentID      string
	Receipt        string
	FailureReason  string
}

// Gateway defines the contract payment adapters implement.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error)
	LookupPayment(ctx context.Context, gatewayOrderID string) (PaymentDetails, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}
