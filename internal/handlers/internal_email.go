package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/threadcart/storefront/internal/email"
	"github.com/threadcart/storefront/internal/platform/httpx"
	"github.com/threadcart/storefront/internal/platform/observability"
	"github.com/threadcart/storefront/internal/services"
)

const maxEmailBody = 64 * 1024

// EmailHandlers accepts email requests from trusted services and Pub/Sub push deliveries.
type EmailHandlers struct {
	emails   services.EmailService
	hmac     func(http.Handler) http.Handler
	pushAuth func(http.Handler) http.Handler
}

// EmailOption customises EmailHandlers.
type EmailOption func(*EmailHandlers)

// WithEmailHMAC guards POST /email with a request signature check.
func WithEmailHMAC(mw func(http.Handler) http.Handler) EmailOption {
	return func(h *EmailHandlers) {
		h.hmac = mw
	}
}

// WithEmailPushAuth guards the Pub/Sub push endpoint with OIDC token verification.
func WithEmailPushAuth(mw func(http.Handler) http.Handler) EmailOption {
	return func(h *EmailHandlers) {
		h.pushAuth = mw
	}
}

func NewEmailHandlers(emails services.EmailService, opts ...EmailOption) *EmailHandlers {
	h := &EmailHandlers{emails: emails}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /internal email endpoints.
func (h *EmailHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(nonNilMiddlewares(h.hmac)...).Post("/email", h.enqueue)
	r.With(nonNilMiddlewares(h.pushAuth)...).Post("/pubsub/email", h.deliverPush)
}

type emailRequest struct {
	To           string         `json:"to"`
	TemplateName string         `json:"templateName"`
	Props        map[string]any `json:"props"`
}

func (h *EmailHandlers) enqueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.emails == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "email service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req emailRequest
	if !decodeJSONBody(w, r, maxEmailBody, &req) {
		return
	}
	err := h.emails.Enqueue(ctx, services.EmailMessage{
		To:       req.To,
		Template: email.TemplateName(strings.TrimSpace(req.TemplateName)),
		Props:    req.Props,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusAccepted, map[string]any{"queued": true})
}

// pushEnvelope is the body Pub/Sub POSTs to push subscriptions.
type pushEnvelope struct {
	Message struct {
		Data       string            `json:"data"`
		MessageID  string            `json:"messageId"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// deliverPush acknowledges (2xx) messages that can never succeed so Pub/Sub drops them,
// and nacks (5xx) transient failures so they are redelivered.
func (h *EmailHandlers) deliverPush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)
	if h.emails == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "email service unavailable", http.StatusServiceUnavailable))
		return
	}
	var envelope pushEnvelope
	if !decodeJSONBody(w, r, maxEmailBody*2, &envelope) {
		return
	}

	data, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	var msg services.EmailMessage
	if err == nil {
		err = json.Unmarshal(data, &msg)
	}
	if err != nil {
		logger.Warn("email push message undecodable; dropping",
			zap.String("messageId", envelope.Message.MessageID),
			zap.String("subscription", envelope.Subscription),
			zap.Error(err),
		)
		writeJSONResponse(w, http.StatusOK, map[string]any{"delivered": false, "dropped": true})
		return
	}

	providerID, err := h.emails.Deliver(ctx, msg)
	switch {
	case err == nil:
		writeJSONResponse(w, http.StatusOK, map[string]any{"delivered": true, "providerId": providerID})
	case errors.Is(err, services.ErrEmailInvalidInput):
		logger.Warn("email job rejected; dropping",
			zap.String("messageId", envelope.Message.MessageID),
			zap.String("jobId", msg.JobID),
			zap.Error(err),
		)
		writeJSONResponse(w, http.StatusOK, map[string]any{"delivered": false, "dropped": true})
	default:
		writeServiceError(ctx, w, err)
	}
}

func nonNilMiddlewares(mws ...func(http.Handler) http.Handler) []func(http.Handler) http.Handler {
	out := make([]func(http.Handler) http.Handler, 0, len(mws))
	for _, mw := range mws {
		if mw != nil {
			out = append(out, mw)
		}
	}
	return out
}
