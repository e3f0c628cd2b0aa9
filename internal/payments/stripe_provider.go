package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

const providerStripe = "stripe"

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey        string
	WebhookSecret string
	AccountID     string
	Backends      *stripe.Backends
	Logger        StripeLogger

	intents stripePaymentIntentAPI
}

// StripeProvider implements Gateway on top of Stripe Payment Intents.
type StripeProvider struct {
	intents       stripePaymentIntentAPI
	webhookSecret string
	account       string
	logger        StripeLogger
}

var _ Gateway = (*StripeProvider)(nil)

// NewStripeProvider constructs a Stripe gateway using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	intents := cfg.intents
	if intents == nil {
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(apiKey, cfg.Backends).PaymentIntents
	}
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		intents:       intents,
		webhookSecret: secret,
		account:       strings.TrimSpace(cfg.AccountID),
		logger:        logger,
	}, nil
}

// CreateOrder creates a Payment Intent carrying the receipt (pre-allocated order id) in its metadata.
func (p *StripeProvider) CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error) {
	if req.Amount <= 0 {
		return GatewayOrder{}, errors.New("stripe: amount must be positive")
	}
	if strings.TrimSpace(req.Receipt) == "" {
		return GatewayOrder{}, errors.New("stripe: receipt is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddMetadata(MetadataReceipt, req.Receipt)

	intent, err := p.intents.New(params)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("%w: stripe create payment intent: %v", ErrGatewayUnavailable, err)
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"receipt":       req.Receipt,
		"amount":        intent.Amount,
	})

	return GatewayOrder{
		ID:           intent.ID,
		Provider:     providerStripe,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     strings.ToUpper(string(intent.Currency)),
		Receipt:      req.Receipt,
	}, nil
}

// LookupPayment retrieves the Payment Intent so callers can verify it server-side.
func (p *StripeProvider) LookupPayment(ctx context.Context, gatewayOrderID string) (PaymentDetails, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	params.AddExpand("latest_charge")
	intent, err := p.intents.Get(gatewayOrderID, params)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("%w: stripe lookup payment intent: %v", ErrGatewayUnavailable, err)
	}
	return stripePaymentDetails(intent), nil
}

// ParseWebhook verifies the Stripe-Signature header and normalises payment intent events.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	result := WebhookEvent{ID: event.ID, Type: WebhookIgnored}
	var eventType WebhookEventType
	switch string(event.Type) {
	case "payment_intent.succeeded":
		eventType = WebhookPaymentSucceeded
	case "payment_intent.payment_failed":
		eventType = WebhookPaymentFailed
	default:
		return result, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return WebhookEvent{}, fmt.Errorf("stripe: decode payment intent event: %w", err)
	}
	details := stripePaymentDetails(&intent)
	result.Type = eventType
	result.GatewayOrderID = details.GatewayOrderID
	result.PaymentID = details.PaymentID
	result.Receipt = details.Receipt
	result.FailureReason = details.FailureReason
	return result, nil
}

func stripePaymentDetails(intent *stripe.PaymentIntent) PaymentDetails {
	if intent == nil {
		return PaymentDetails{}
	}

	status := StatusPending
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		status = StatusFailed
	}

	details := PaymentDetails{
		Provider:       providerStripe,
		GatewayOrderID: intent.ID,
		Status:         status,
		Amount:         intent.Amount,
		Currency:       strings.ToUpper(string(intent.Currency)),
		Receipt:        intent.Metadata[MetadataReceipt],
	}
	if intent.LatestCharge != nil {
		details.PaymentID = intent.LatestCharge.ID
	}
	if intent.LastPaymentError != nil {
		details.FailureReason = intent.LastPaymentError.Msg
	}
	return details
}
