package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/threadcart/storefront/internal/payments"
	"github.com/threadcart/storefront/internal/platform/auth"
	"github.com/threadcart/storefront/internal/platform/httpx"
	"github.com/threadcart/storefront/internal/services"
)

const (
	defaultMaxBody    = 16 * 1024
	cartSessionHeader = "X-Cart-Session"
)

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBody
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads and decodes the body, writing the error response itself on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

// requireIdentity returns the signed-in user or writes a 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// requireCartSession returns the cart session header or writes a 400.
func requireCartSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	session := strings.TrimSpace(r.Header.Get(cartSessionHeader))
	if session == "" || len(session) > 128 {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_session_required", cartSessionHeader+" header is required", http.StatusBadRequest))
		return "", false
	}
	return session, true
}

func formatMoney(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// writeServiceError maps service sentinels onto the HTTP error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		status := http.StatusBadRequest
		switch authErr.Code {
		case auth.CodeTooManyRequests:
			status = http.StatusTooManyRequests
		case auth.CodeNetworkRequestFailed, auth.CodeInternal:
			status = http.StatusBadGateway
		case auth.CodeEmailAlreadyInUse:
			status = http.StatusConflict
		}
		httpx.WriteError(ctx, w, httpx.NewError(authErr.Code, authErr.Message(), status))
		return
	}

	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput),
		errors.Is(err, services.ErrCartInvalidInput),
		errors.Is(err, services.ErrPricingInvalidInput),
		errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrPlacementInvalidInput),
		errors.Is(err, services.ErrAccountInvalidInput),
		errors.Is(err, services.ErrEmailInvalidInput),
		errors.Is(err, services.ErrGeocodingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAddressInvalid), errors.Is(err, services.ErrPlacementInvalidAddress):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_address", err.Error(), http.StatusBadRequest))
	case errors.Is(err, payments.ErrInvalidSignature):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature rejected", http.StatusBadRequest))

	case errors.Is(err, services.ErrCatalogNotFound),
		errors.Is(err, services.ErrCartProductNotFound),
		errors.Is(err, services.ErrPricingProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProfileNotFound), errors.Is(err, services.ErrAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("profile_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrPlacementPaymentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_found", "payment not found", http.StatusNotFound))
	case errors.Is(err, services.ErrGeocodingNoResults):
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", "no address found for these coordinates", http.StatusNotFound))

	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "order belongs to another customer", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict), errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "resource was modified concurrently; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrPlacementEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart is empty", http.StatusConflict))
	case errors.Is(err, services.ErrPlacementShippingNotSelected):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_not_selected", "select a shipping option before checkout", http.StatusConflict))
	case errors.Is(err, services.ErrPlacementPaymentConflict):
		httpx.WriteError(ctx, w, httpx.NewError("payment_settled", "payment was already settled", http.StatusConflict))
	case errors.Is(err, services.ErrShippingQuoteStale):
		httpx.WriteError(ctx, w, httpx.NewError("quote_superseded", "a newer shipping quote was requested", http.StatusConflict))
	case errors.Is(err, services.ErrPlacementPaymentNotVerified):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_verified", "payment could not be verified", http.StatusPaymentRequired))

	case errors.Is(err, services.ErrShippingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping rates are unavailable", http.StatusBadGateway))
	case errors.Is(err, services.ErrPlacementGatewayUnavailable), errors.Is(err, payments.ErrGatewayUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_gateway_unavailable", "payment gateway is unavailable", http.StatusBadGateway))
	case errors.Is(err, services.ErrGeocodingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("geocoding_unavailable", "address lookup is unavailable", http.StatusBadGateway))
	case errors.Is(err, services.ErrEmailUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("email_unavailable", "email delivery is unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrCatalogUploadsDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("uploads_disabled", "media uploads are not configured", http.StatusServiceUnavailable))

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "request timed out", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "an unexpected error occurred", http.StatusInternalServerError))
	}
}
