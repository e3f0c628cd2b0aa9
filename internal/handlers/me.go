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

// MeHandlers serves the signed-in customer's profile, orders and notifications.
type MeHandlers struct {
	authn     *auth.Authenticator
	addresses services.AddressService
	orders    services.OrderService
}

func NewMeHandlers(authn *auth.Authenticator, addresses services.AddressService, orders services.OrderService) *MeHandlers {
	return &MeHandlers{authn: authn, addresses: addresses, orders: orders}
}

// Routes wires the /me endpoints.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(rt chi.Router) {
		if h.authn != nil {
			rt.Use(h.authn.RequireFirebaseAuth())
		}
		rt.Get("/profile", h.getProfile)
		rt.Put("/address", h.saveAddress)
		rt.Get("/orders", h.listOrders)
		rt.Get("/orders/stream", h.streamOrders)
		rt.Get("/orders/{orderID}", h.getOrder)
		rt.Post("/orders/{orderID}/return", h.requestReturn)
		rt.Get("/notifications", h.listNotifications)
	})
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.addresses == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "address service unavailable", http.StatusServiceUnavailable))
		return
	}
	profile, err := h.addresses.GetProfile(r.Context(), identity.UID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toProfileResponse(profile))
}

func (h *MeHandlers) saveAddress(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.addresses == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "address service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req addressPayload
	if !decodeJSONBody(w, r, defaultMaxBody, &req) {
		return
	}
	profile, err := h.addresses.SaveDefaultAddress(r.Context(), identity.UID, req.toDomain())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toProfileResponse(profile))
}

func (h *MeHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	filter, ok := parseOrderFilter(w, r)
	if !ok {
		return
	}
	filter.UserID = identity.UID
	orders, err := h.orders.ListOrders(r.Context(), filter)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": toOrderResponses(orders)})
}

func (h *MeHandlers) streamOrders(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	filter, ok := parseOrderFilter(w, r)
	if !ok {
		return
	}
	filter.UserID = identity.UID
	subscribeAndStream(w, r, h.orders, filter)
}

func (h *MeHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	// Other customers' orders are reported as missing.
	if order.Customer.UserID != identity.UID {
		writeServiceError(r.Context(), w, services.ErrOrderNotFound)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

type returnRequest struct {
	Reason string `json:"reason"`
}

func (h *MeHandlers) requestReturn(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req returnRequest
	if r.ContentLength != 0 && !decodeJSONBody(w, r, defaultMaxBody, &req) {
		return
	}
	order, err := h.orders.RequestReturn(r.Context(), services.RequestReturnCommand{
		OrderID: chi.URLParam(r, "orderID"),
		UserID:  identity.UID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

func (h *MeHandlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	limit, ok := parseLimitParam(w, r)
	if !ok {
		return
	}
	notifications, err := h.orders.ListNotifications(r.Context(), identity.UID, limit)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	items := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, toNotificationResponse(n))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

// parseOrderFilter accepts ?status= repeated or comma separated, plus ?limit=.
func parseOrderFilter(w http.ResponseWriter, r *http.Request) (services.OrderListFilter, bool) {
	limit, ok := parseLimitParam(w, r)
	if !ok {
		return services.OrderListFilter{}, false
	}
	filter := services.OrderListFilter{Limit: limit}
	for _, raw := range r.URL.Query()["status"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.Status = append(filter.Status, domain.OrderStatus(part))
			}
		}
	}
	return filter, true
}
