package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubIntents struct {
	newParams *stripe.PaymentIntentParams
	newResult *stripe.PaymentIntent
	newErr    error
	getResult *stripe.PaymentIntent
	getErr    error
	gotID     string
}

func (s *stubIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.newParams = params
	return s.newResult, s.newErr
}

func (s *stubIntents) Get(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.gotID = id
	return s.getResult, s.getErr
}

const testWebhookSecret = "whsec_test"

func newTestStripeProvider(t *testing.T, intents *stubIntents) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{WebhookSecret: testWebhookSecret, intents: intents})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}
	return provider
}

func signPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeProviderCreateOrderSetsReceiptMetadata(t *testing.T) {
	intents := &stubIntents{newResult: &stripe.PaymentIntent{
		ID:           "pi_123",
		ClientSecret: "pi_123_secret",
		Amount:       14998,
		Currency:     stripe.Currency("inr"),
	}}
	provider := newTestStripeProvider(t, intents)

	order, err := provider.CreateOrder(context.Background(), CreateOrderRequest{
		Amount:   14998,
		Currency: "INR",
		Receipt:  "ord_01",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ID != "pi_123" || order.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected order %+v", order)
	}
	if order.Currency != "INR" || order.Receipt != "ord_01" {
		t.Fatalf("unexpected currency/receipt %+v", order)
	}
	if got := intents.newParams.Metadata[MetadataReceipt]; got != "ord_01" {
		t.Fatalf("expected receipt metadata, got %q", got)
	}
	if got := stripe.StringValue(intents.newParams.Currency); got != "inr" {
		t.Fatalf("expected lower-case currency, got %q", got)
	}
}

func TestStripeProviderCreateOrderWrapsGatewayErrors(t *testing.T) {
	provider := newTestStripeProvider(t, &stubIntents{newErr: errors.New("connection reset")})

	_, err := provider.CreateOrder(context.Background(), CreateOrderRequest{Amount: 100, Currency: "INR", Receipt: "ord_01"})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestStripeProviderCreateOrderRejectsNonPositiveAmount(t *testing.T) {
	provider := newTestStripeProvider(t, &stubIntents{})
	if _, err := provider.CreateOrder(context.Background(), CreateOrderRequest{Amount: 0, Receipt: "ord_01"}); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestStripeProviderLookupPayment(t *testing.T) {
	intents := &stubIntents{getResult: &stripe.PaymentIntent{
		ID:           "pi_123",
		Status:       stripe.PaymentIntentStatusSucceeded,
		Amount:       14998,
		Currency:     stripe.Currency("inr"),
		Metadata:     map[string]string{MetadataReceipt: "ord_01"},
		LatestCharge: &stripe.Charge{ID: "ch_1"},
	}}
	provider := newTestStripeProvider(t, intents)

	details, err := provider.LookupPayment(context.Background(), "pi_123")
	if err != nil {
		t.Fatalf("LookupPayment: %v", err)
	}
	if intents.gotID != "pi_123" {
		t.Fatalf("expected lookup of pi_123, got %q", intents.gotID)
	}
	if details.Status != StatusSucceeded || details.Receipt != "ord_01" || details.PaymentID != "ch_1" {
		t.Fatalf("unexpected details %+v", details)
	}
}

func TestStripeProviderParseWebhook(t *testing.T) {
	provider := newTestStripeProvider(t, &stubIntents{})
	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_123", "object": "payment_intent", "status": "succeeded", "metadata": {"receipt": "ord_01"}}}
	}`)

	event, err := provider.ParseWebhook(payload, signPayload(payload, testWebhookSecret, time.Now()))
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if event.Type != WebhookPaymentSucceeded {
		t.Fatalf("expected succeeded event, got %s", event.Type)
	}
	if event.GatewayOrderID != "pi_123" || event.Receipt != "ord_01" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestStripeProviderParseWebhookIgnoresOtherEvents(t *testing.T) {
	provider := newTestStripeProvider(t, &stubIntents{})
	payload := []byte(`{"id": "evt_2", "object": "event", "type": "customer.created", "data": {"object": {"id": "cus_1"}}}`)

	event, err := provider.ParseWebhook(payload, signPayload(payload, testWebhookSecret, time.Now()))
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if event.Type != WebhookIgnored {
		t.Fatalf("expected ignored event, got %s", event.Type)
	}
}

func TestStripeProviderParseWebhookRejectsBadSignature(t *testing.T) {
	provider := newTestStripeProvider(t, &stubIntents{})
	payload := []byte(`{"id": "evt_1", "object": "event", "type": "payment_intent.succeeded", "data": {"object": {}}}`)

	_, err := provider.ParseWebhook(payload, signPayload(payload, "whsec_other", time.Now()))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if !strings.Contains(err.Error(), "signature") {
		t.Fatalf("unexpected error text %v", err)
	}
}
