package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/threadcart/storefront/internal/platform/httpx"
	"github.com/threadcart/storefront/internal/services"
)

const (
	maxWebhookBody        = 256 * 1024
	stripeSignatureHeader = "Stripe-Signature"
)

// WebhookHandlers receives payment gateway callbacks. Authenticity comes from the payload signature.
type WebhookHandlers struct {
	placement services.PlacementService
}

func NewWebhookHandlers(placement services.PlacementService) *WebhookHandlers {
	return &WebhookHandlers{placement: placement}
}

// Routes registers /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/stripe", h.stripePayment)
}

func (h *WebhookHandlers) stripePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.placement == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	payload, err := readLimitedBody(r, maxWebhookBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}
	signature := r.Header.Get(stripeSignatureHeader)
	if signature == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", stripeSignatureHeader+" header is required", http.StatusBadRequest))
		return
	}
	if err := h.placement.HandlePaymentWebhook(ctx, payload, signature); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
}
