package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/threadcart/storefront/internal/email"
	"github.com/threadcart/storefront/internal/services"
)

func newTestTopic(t *testing.T, name string) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, name)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	t.Cleanup(topic.Stop)
	return srv, topic
}

func TestPubSubEmailPublisherPublishesMessage(t *testing.T) {
	srv, topic := newTestTopic(t, "email-jobs")

	publisher, err := NewPubSubEmailPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubEmailPublisher: %v", err)
	}

	msg := services.EmailMessage{
		JobID:    "job-1",
		To:       "asha@example.com",
		Template: email.TemplateOrderShipped,
		Props:    map[string]any{"orderId": "ord_1", "courier": "Delhivery"},
	}
	id, err := publisher.PublishEmailJob(context.Background(), msg)
	if err != nil {
		t.Fatalf("PublishEmailJob: %v", err)
	}
	if id == "" {
		t.Fatalf("expected server message id")
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.EmailMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.JobID != "job-1" || payload.Template != email.TemplateOrderShipped || payload.Props["courier"] != "Delhivery" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["templateName"]; attr != "orderShipped" {
		t.Fatalf("expected template attribute, got %q", attr)
	}
	if _, ok := messages[0].Attributes["to"]; ok {
		t.Fatalf("recipient should not be exposed as an attribute")
	}
}

func TestPubSubOrderEventPublisherPublishesEvent(t *testing.T) {
	srv, topic := newTestTopic(t, "order-events")

	publisher, err := NewPubSubOrderEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}

	event := services.OrderEvent{
		Type:           "order.status_changed",
		OrderID:        "ord_1",
		PreviousStatus: "Pending",
		CurrentStatus:  "Shipped",
		OccurredAt:     time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := publisher.PublishOrderEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	attrs := messages[0].Attributes
	if attrs["eventType"] != "order.status_changed" || attrs["orderId"] != "ord_1" || attrs["status"] != "Shipped" {
		t.Fatalf("unexpected attributes %#v", attrs)
	}
	var payload services.OrderEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if !payload.OccurredAt.Equal(event.OccurredAt) {
		t.Fatalf("unexpected payload %#v", payload)
	}
}

func TestNewPublishersRequireTopic(t *testing.T) {
	if _, err := NewPubSubEmailPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
	if _, err := NewPubSubOrderEventPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}
