package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/threadcart/storefront/internal/domain"
	"github.com/threadcart/storefront/internal/platform/auth"
	"github.com/threadcart/storefront/internal/services"
)

func withIdentity(uid string, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithIdentity(r.Context(), &auth.Identity{UID: uid, Email: uid + "@example.com", Name: "Asha", Roles: roles})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func meRouter(uid string, addresses services.AddressService, orders services.OrderService) chi.Router {
	r := chi.NewRouter()
	if uid != "" {
		r.Use(withIdentity(uid))
	}
	r.Route("/me", NewMeHandlers(nil, addresses, orders).Routes)
	return r
}

func sampleOrder(id, userID string, status domain.OrderStatus) domain.Order {
	return domain.Order{
		ID:            id,
		Customer:      domain.Customer{UserID: userID, Name: "Asha"},
		PaymentMethod: domain.PaymentMethodCOD,
		Status:        status,
		Items:         []domain.OrderItem{{ProductID: "p1", Name: "Tee", Quantity: 1, UnitPrice: decimal.RequireFromString("10")}},
		Total:         decimal.RequireFromString("50"),
		CreatedAt:     time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestMeHandlers_RequireIdentity(t *testing.T) {
	rr := serve(meRouter("", &stubAddressService{}, &stubOrderService{}), httptest.NewRequest(http.MethodGet, "/me/orders", nil))
	assertErrorCode(t, rr, http.StatusUnauthorized, "unauthenticated")
}

func TestMeHandlers_ListOrdersScopesToUser(t *testing.T) {
	orders := &stubOrderService{
		listFunc: func(context.Context, services.OrderListFilter) ([]domain.Order, error) {
			return []domain.Order{sampleOrder("ord_1", "u1", domain.OrderStatusPending)}, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/me/orders?status=Pending,Return%20Requested&status=Shipped", nil)
	rr := serve(meRouter("u1", nil, orders), req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if orders.lastFilter.UserID != "u1" || len(orders.lastFilter.Status) != 3 || orders.lastFilter.Status[1] != domain.OrderStatusReturnRequested {
		t.Fatalf("unexpected filter %+v", orders.lastFilter)
	}
	var resp struct {
		Items []orderResponse `json:"items"`
	}
	decodeBody(t, rr, &resp)
	if len(resp.Items) != 1 || resp.Items[0].Total != "50.00" || resp.Items[0].DeliveryDate != nil {
		t.Fatalf("unexpected orders %+v", resp.Items)
	}
}

func TestMeHandlers_GetOrderHidesOtherCustomers(t *testing.T) {
	orders := &stubOrderService{orders: map[string]domain.Order{
		"ord_1": sampleOrder("ord_1", "u1", domain.OrderStatusPending),
		"ord_2": sampleOrder("ord_2", "u2", domain.OrderStatusPending),
	}}
	router := meRouter("u1", nil, orders)

	if rr := serve(router, httptest.NewRequest(http.MethodGet, "/me/orders/ord_1", nil)); rr.Code != http.StatusOK {
		t.Fatalf("expected own order, got %d", rr.Code)
	}
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/me/orders/ord_2", nil))
	assertErrorCode(t, rr, http.StatusNotFound, "order_not_found")
}

func TestMeHandlers_RequestReturn(t *testing.T) {
	var got services.RequestReturnCommand
	orders := &stubOrderService{
		returnFunc: func(_ context.Context, cmd services.RequestReturnCommand) (domain.Order, error) {
			got = cmd
			if cmd.OrderID == "ord_pending" {
				return domain.Order{}, services.ErrOrderInvalidTransition
			}
			return sampleOrder(cmd.OrderID, cmd.UserID, domain.OrderStatusReturnRequested), nil
		},
	}
	router := meRouter("u1", nil, orders)

	rr := serve(router, httptest.NewRequest(http.MethodPost, "/me/orders/ord_1/return", strings.NewReader(`{"reason":"too small"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.UserID != "u1" || got.Reason != "too small" {
		t.Fatalf("unexpected command %+v", got)
	}

	rr = serve(router, httptest.NewRequest(http.MethodPost, "/me/orders/ord_pending/return", nil))
	assertErrorCode(t, rr, http.StatusConflict, "invalid_transition")
}

func TestMeHandlers_SaveAddress(t *testing.T) {
	addresses := &stubAddressService{}
	router := meRouter("u1", addresses, nil)

	body := `{"name":"Asha","street":"12 MG Road","city":"Bengaluru","state":"KA","pincode":"560001","phone":"9999999999"}`
	rr := serve(router, httptest.NewRequest(http.MethodPut, "/me/address", strings.NewReader(body)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp profileResponse
	decodeBody(t, rr, &resp)
	if resp.DefaultAddress == nil || resp.DefaultAddress.Pincode != "560001" {
		t.Fatalf("unexpected profile %+v", resp)
	}

	addresses.saveErr = services.ErrAddressInvalid
	rr = serve(router, httptest.NewRequest(http.MethodPut, "/me/address", strings.NewReader(`{"name":"x"}`)))
	assertErrorCode(t, rr, http.StatusBadRequest, "invalid_address")
}

func TestMeHandlers_StreamOrders(t *testing.T) {
	sub := &stubSubscription{updates: make(chan []domain.Order, 2)}
	sub.updates <- []domain.Order{sampleOrder("ord_1", "u1", domain.OrderStatusShipped)}
	close(sub.updates)
	orders := &stubOrderService{subscription: sub}

	req := httptest.NewRequest(http.MethodGet, "/me/orders/stream", nil)
	req.Header.Set("Accept", "text/event-stream")
	rr := serve(meRouter("u1", nil, orders), req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != eventStreamContentType {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "event: orders\n") || !strings.Contains(body, `"id":"ord_1"`) {
		t.Fatalf("unexpected stream body %q", body)
	}
	if !sub.closed {
		t.Fatalf("expected subscription closed")
	}
	if orders.lastFilter.UserID != "u1" {
		t.Fatalf("expected stream scoped to user, got %+v", orders.lastFilter)
	}
}

func TestMeHandlers_StreamOrdersStopsOnDisconnect(t *testing.T) {
	sub := &stubSubscription{updates: make(chan []domain.Order)}
	orders := &stubOrderService{subscription: sub}

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/me/orders/stream", nil).WithContext(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		serve(meRouter("u1", nil, orders), req)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not stop after disconnect")
	}
	if !sub.closed {
		t.Fatalf("expected subscription closed")
	}
}

func TestMeHandlers_ListNotifications(t *testing.T) {
	orders := &stubOrderService{notifications: []domain.Notification{{ID: "ntf_1", Title: "Order Shipped", Icon: "truck"}}}
	rr := serve(meRouter("u1", nil, orders), httptest.NewRequest(http.MethodGet, "/me/notifications", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Items []notificationResponse `json:"items"`
	}
	decodeBody(t, rr, &resp)
	if len(resp.Items) != 1 || resp.Items[0].Icon != "truck" {
		t.Fatalf("unexpected notifications %+v", resp.Items)
	}
}
