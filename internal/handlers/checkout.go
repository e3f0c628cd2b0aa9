package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/threadcart/storefront/internal/domain"
	"github.com/threadcart/storefront/internal/platform/auth"
	"github.com/threadcart/storefront/internal/platform/httpx"
	"github.com/threadcart/storefront/internal/services"
)

// CheckoutHandlers turns a priced cart into an order and settles online payments.
type CheckoutHandlers struct {
	authn       *auth.Authenticator
	placement   services.PlacementService
	idempotency func(http.Handler) http.Handler
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutIdempotency guards the mutating checkout routes with an Idempotency-Key middleware.
func WithCheckoutIdempotency(mw func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.idempotency = mw
	}
}

func NewCheckoutHandlers(authn *auth.Authenticator, placement services.PlacementService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{authn: authn, placement: placement}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /checkout endpoints.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(rt chi.Router) {
		if h.authn != nil {
			rt.Use(h.authn.RequireFirebaseAuth())
		}
		if h.idempotency != nil {
			rt.Use(h.idempotency)
		}
		rt.Post("/orders", h.placeOrder)
		rt.Post("/confirm", h.confirmPayment)
		rt.Post("/fail", h.failPayment)
	})
}

type placeOrderRequest struct {
	CustomerName      string         `json:"customerName"`
	UseDefaultAddress bool           `json:"useDefaultAddress"`
	Address           addressPayload `json:"address"`
	PaymentMethod     string         `json:"paymentMethod"`
	CourierID         string         `json:"courierId"`
}

type paymentHandleResponse struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	ClientSecret   string `json:"clientSecret"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	OrderID        string `json:"orderId"`
}

type placementResponse struct {
	Order   *orderResponse         `json:"order,omitempty"`
	Payment *paymentHandleResponse `json:"payment,omitempty"`
	Pricing pricingResponse        `json:"pricing"`
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.placement == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	sessionID, ok := requireCartSession(w, r)
	if !ok {
		return
	}
	var req placeOrderRequest
	if !decodeJSONBody(w, r, defaultMaxBody, &req) {
		return
	}
	method, ok := parsePaymentMethod(req.PaymentMethod)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "paymentMethod must be Online or COD", http.StatusBadRequest))
		return
	}
	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		name = identity.Name
	}

	result, err := h.placement.PlaceOrder(ctx, services.PlaceOrderCommand{
		SessionID:         sessionID,
		Customer:          domain.Customer{UserID: identity.UID, Name: name, Email: identity.Email},
		UseDefaultAddress: req.UseDefaultAddress,
		Address:           req.Address.toDomain(),
		PaymentMethod:     method,
		CourierID:         req.CourierID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := placementResponse{Pricing: toPricingResponse(result.Pricing)}
	status := http.StatusOK
	if result.Order != nil {
		order := toOrderResponse(*result.Order)
		resp.Order = &order
		status = http.StatusCreated
	}
	if result.Payment != nil {
		resp.Payment = &paymentHandleResponse{
			GatewayOrderID: result.Payment.GatewayOrderID,
			ClientSecret:   result.Payment.ClientSecret,
			Amount:         result.Payment.Amount,
			Currency:       result.Payment.Currency,
			OrderID:        result.Payment.OrderID,
		}
	}
	writeJSONResponse(w, status, resp)
}

type confirmPaymentRequest struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	PaymentID      string `json:"paymentId"`
}

func (h *CheckoutHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.placement == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req confirmPaymentRequest
	if !decodeJSONBody(w, r, defaultMaxBody, &req) {
		return
	}
	order, err := h.placement.ConfirmPayment(ctx, services.ConfirmPaymentCommand{
		GatewayOrderID: req.GatewayOrderID,
		PaymentID:      req.PaymentID,
		UserID:         identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

type failPaymentRequest struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	Reason         string `json:"reason"`
}

func (h *CheckoutHandlers) failPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.placement == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req failPaymentRequest
	if !decodeJSONBody(w, r, defaultMaxBody, &req) {
		return
	}
	if err := h.placement.FailPayment(ctx, services.FailPaymentCommand{
		GatewayOrderID: req.GatewayOrderID,
		Reason:         req.Reason,
		UserID:         identity.UID,
	}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parsePaymentMethod(raw string) (domain.PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "online", "card":
		return domain.PaymentMethodOnline, true
	case "cod":
		return domain.PaymentMethodCOD, true
	default:
		return "", false
	}
}
