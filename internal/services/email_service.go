package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/threadcart/storefront/internal/email"
)

var (
	// ErrEmailInvalidInput signals an unknown template, missing props or a bad recipient.
	ErrEmailInvalidInput = errors.New("email: invalid input")
	// ErrEmailUnavailable wraps queue and provider failures.
	ErrEmailUnavailable = errors.New("email: unavailable")
)

// EmailRenderer turns a template and props into a message body.
type EmailRenderer interface {
	Render(name email.TemplateName, props map[string]any) (email.Rendered, error)
}

// EmailServiceDeps bundles collaborators required by the email service.
type EmailServiceDeps struct {
	Renderer  EmailRenderer
	Sender    email.Sender
	Publisher EmailJobPublisher
	NewJobID  func() string
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type emailService struct {
	renderer  EmailRenderer
	sender    email.Sender
	publisher EmailJobPublisher
	newJobID  func() string
	logger    func(context.Context, string, map[string]any)
}

// NewEmailService constructs the email service. Without a publisher, Enqueue delivers inline.
func NewEmailService(deps EmailServiceDeps) (EmailService, error) {
	if deps.Renderer == nil {
		return nil, errors.New("email service: renderer is required")
	}
	if deps.Sender == nil {
		return nil, errors.New("email service: sender is required")
	}
	newJobID := deps.NewJobID
	if newJobID == nil {
		newJobID = uuid.NewString
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &emailService{
		renderer:  deps.Renderer,
		sender:    deps.Sender,
		publisher: deps.Publisher,
		newJobID:  newJobID,
		logger:    logger,
	}, nil
}

func (s *emailService) Enqueue(ctx context.Context, msg EmailMessage) error {
	msg, err := s.validate(msg)
	if err != nil {
		return err
	}
	if s.publisher == nil {
		_, err := s.Deliver(ctx, msg)
		return err
	}
	serverID, err := s.publisher.PublishEmailJob(ctx, msg)
	if err != nil {
		return fmt.Errorf("%w: publish job %s: %v", ErrEmailUnavailable, msg.JobID, err)
	}
	s.logger(ctx, "email.job.enqueued", map[string]any{
		"job":       msg.JobID,
		"template":  string(msg.Template),
		"messageId": serverID,
	})
	return nil
}

func (s *emailService) Deliver(ctx context.Context, msg EmailMessage) (string, error) {
	msg, err := s.validate(msg)
	if err != nil {
		return "", err
	}
	rendered, err := s.renderer.Render(msg.Template, msg.Props)
	if err != nil {
		if errors.Is(err, email.ErrUnknownTemplate) || errors.Is(err, email.ErrMissingProps) {
			return "", fmt.Errorf("%w: %v", ErrEmailInvalidInput, err)
		}
		return "", err
	}
	providerID, err := s.sender.Send(ctx, email.Envelope{
		To:      msg.To,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
	})
	if err != nil {
		s.logger(ctx, "email.send.failed", map[string]any{
			"job":      msg.JobID,
			"template": string(msg.Template),
			"error":    err.Error(),
		})
		return "", fmt.Errorf("%w: %v", ErrEmailUnavailable, err)
	}
	s.logger(ctx, "email.sent", map[string]any{
		"job":        msg.JobID,
		"template":   string(msg.Template),
		"providerId": providerID,
	})
	return providerID, nil
}

func (s *emailService) validate(msg EmailMessage) (EmailMessage, error) {
	msg.To = strings.TrimSpace(msg.To)
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return EmailMessage{}, fmt.Errorf("%w: recipient %q", ErrEmailInvalidInput, msg.To)
	}
	if !msg.Template.Valid() {
		return EmailMessage{}, fmt.Errorf("%w: unknown template %q", ErrEmailInvalidInput, msg.Template)
	}
	if strings.TrimSpace(msg.JobID) == "" {
		msg.JobID = s.newJobID()
	}
	if msg.Props == nil {
		msg.Props = map[string]any{}
	}
	return msg, nil
}
