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

// AdminOrderHandlers exposes order fulfilment and payment reconciliation to operators.
type AdminOrderHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	placement services.PlacementService
}

func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService, placement services.PlacementService) *AdminOrderHandlers {
	return &AdminOrderHandlers{authn: authn, orders: orders, placement: placement}
}

// Routes registers admin order endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(rt chi.Router) {
		if h.authn != nil {
			rt.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
		}
		rt.Get("/orders", h.listOrders)
		rt.Get("/orders/stream", h.streamOrders)
		rt.Get("/orders/{orderID}", h.getOrder)
		rt.Put("/orders/{orderID}/status", h.updateStatus)
		rt.Post("/payments/reconcile", h.reconcilePayments)
	})
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	filter, ok := parseOrderFilter(w, r)
	if !ok {
		return
	}
	filter.UserID = strings.TrimSpace(r.URL.Query().Get("userId"))
	orders, err := h.orders.ListOrders(r.Context(), filter)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": toOrderResponses(orders)})
}

func (h *AdminOrderHandlers) streamOrders(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseOrderFilter(w, r)
	if !ok {
		return
	}
	subscribeAndStream(w, r, h.orders, filter)
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

type statusUpdateRequest struct {
	Status         string  `json:"status"`
	ExpectedStatus *string `json:"expectedStatus"`
}

func (h *AdminOrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req statusUpdateRequest
	if !decodeJSONBody(w, r, defaultMaxBody, &req) {
		return
	}
	cmd := services.OrderStatusTransitionCommand{
		OrderID:      chi.URLParam(r, "orderID"),
		TargetStatus: domain.OrderStatus(strings.TrimSpace(req.Status)),
		ActorID:      identity.UID,
	}
	if req.ExpectedStatus != nil {
		expected := domain.OrderStatus(strings.TrimSpace(*req.ExpectedStatus))
		cmd.ExpectedStatus = &expected
	}
	order, err := h.orders.TransitionStatus(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

type reconcileResponse struct {
	Examined  int      `json:"examined"`
	Recovered []string `json:"recovered"`
	Expired   []string `json:"expired"`
	Failed    []string `json:"failed"`
}

func (h *AdminOrderHandlers) reconcilePayments(w http.ResponseWriter, r *http.Request) {
	if h.placement == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	limit, ok := parseLimitParam(w, r)
	if !ok {
		return
	}
	result, err := h.placement.ReconcilePayments(r.Context(), limit)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, reconcileResponse{
		Examined:  result.Examined,
		Recovered: nonNilStrings(result.Recovered),
		Expired:   nonNilStrings(result.Expired),
		Failed:    nonNilStrings(result.Failed),
	})
}
