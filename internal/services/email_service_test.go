package services

import (
	"context"
	"errors"
	"testing"

	"github.com/threadcart/storefront/internal/email"
)

type stubRenderer struct {
	err error
}

func (s stubRenderer) Render(name email.TemplateName, props map[string]any) (email.Rendered, error) {
	if s.err != nil {
		return email.Rendered{}, s.err
	}
	return email.Rendered{Subject: "Hello " + string(name), HTML: "<p>hi</p>", Text: "hi"}, nil
}

type stubSender struct {
	envelopes []email.Envelope
	err       error
}

func (s *stubSender) Send(_ context.Context, env email.Envelope) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.envelopes = append(s.envelopes, env)
	return "re_123", nil
}

type stubJobPublisher struct {
	jobs []EmailMessage
	err  error
}

func (s *stubJobPublisher) PublishEmailJob(_ context.Context, msg EmailMessage) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.jobs = append(s.jobs, msg)
	return "msg-1", nil
}

func TestEmailService_EnqueueDeliversInlineWithoutPublisher(t *testing.T) {
	sender := &stubSender{}
	svc, err := NewEmailService(EmailServiceDeps{Renderer: stubRenderer{}, Sender: sender})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = svc.Enqueue(context.Background(), EmailMessage{To: " asha@example.com ", Template: email.TemplateWelcome})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.envelopes) != 1 {
		t.Fatalf("expected inline delivery, got %d", len(sender.envelopes))
	}
	if env := sender.envelopes[0]; env.To != "asha@example.com" || env.Subject != "Hello welcome" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestEmailService_EnqueuePublishesJob(t *testing.T) {
	sender := &stubSender{}
	publisher := &stubJobPublisher{}
	svc, err := NewEmailService(EmailServiceDeps{
		Renderer:  stubRenderer{},
		Sender:    sender,
		Publisher: publisher,
		NewJobID:  func() string { return "job-1" },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Enqueue(context.Background(), EmailMessage{To: "a@b.com", Template: email.TemplateOrderShipped}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.envelopes) != 0 {
		t.Fatalf("expected no inline delivery")
	}
	if len(publisher.jobs) != 1 || publisher.jobs[0].JobID != "job-1" || publisher.jobs[0].Props == nil {
		t.Fatalf("unexpected jobs %+v", publisher.jobs)
	}

	publisher.err = errors.New("pubsub down")
	if err := svc.Enqueue(context.Background(), EmailMessage{To: "a@b.com", Template: email.TemplateOrderShipped}); !errors.Is(err, ErrEmailUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestEmailService_Validation(t *testing.T) {
	sender := &stubSender{}
	svc, err := NewEmailService(EmailServiceDeps{Renderer: stubRenderer{}, Sender: sender})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	if err := svc.Enqueue(ctx, EmailMessage{To: "nobody", Template: email.TemplateWelcome}); !errors.Is(err, ErrEmailInvalidInput) {
		t.Fatalf("expected recipient rejection, got %v", err)
	}
	if err := svc.Enqueue(ctx, EmailMessage{To: "a@b.com", Template: "promo"}); !errors.Is(err, ErrEmailInvalidInput) {
		t.Fatalf("expected template rejection, got %v", err)
	}
	if len(sender.envelopes) != 0 {
		t.Fatalf("expected nothing sent")
	}
}

func TestEmailService_DeliverMapsFailures(t *testing.T) {
	ctx := context.Background()
	msg := EmailMessage{To: "a@b.com", Template: email.TemplateOrderConfirmation}

	svc, _ := NewEmailService(EmailServiceDeps{Renderer: stubRenderer{err: email.ErrMissingProps}, Sender: &stubSender{}})
	if _, err := svc.Deliver(ctx, msg); !errors.Is(err, ErrEmailInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	svc, _ = NewEmailService(EmailServiceDeps{Renderer: stubRenderer{}, Sender: &stubSender{err: errors.New("429")}})
	if _, err := svc.Deliver(ctx, msg); !errors.Is(err, ErrEmailUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}

	svc, _ = NewEmailService(EmailServiceDeps{Renderer: stubRenderer{}, Sender: &stubSender{}})
	id, err := svc.Deliver(ctx, msg)
	if err != nil || id != "re_123" {
		t.Fatalf("unexpected result %q / %v", id, err)
	}
}
