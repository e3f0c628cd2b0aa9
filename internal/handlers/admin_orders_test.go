package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/threadcart/storefront/internal/domain"
	"github.com/threadcart/storefront/internal/services"
)

func adminOrdersRouter(orders services.OrderService, placement services.PlacementService) chi.Router {
	r := chi.NewRouter()
	r.Use(withIdentity("admin-1", "admin"))
	r.Route("/admin", NewAdminOrderHandlers(nil, orders, placement).Routes)
	return r
}

func TestAdminOrderHandlers_UpdateStatus(t *testing.T) {
	var got services.OrderStatusTransitionCommand
	orders := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.OrderStatusTransitionCommand) (domain.Order, error) {
			got = cmd
			if cmd.ExpectedStatus != nil && *cmd.ExpectedStatus != domain.OrderStatusPending {
				return domain.Order{}, services.ErrOrderConflict
			}
			return sampleOrder(cmd.OrderID, "u1", cmd.TargetStatus), nil
		},
	}
	router := adminOrdersRouter(orders, nil)

	rr := serve(router, httptest.NewRequest(http.MethodPut, "/admin/orders/ord_1/status", strings.NewReader(`{"status":"Shipped","expectedStatus":"Pending"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.OrderID != "ord_1" || got.TargetStatus != domain.OrderStatusShipped || got.ActorID != "admin-1" {
		t.Fatalf("unexpected command %+v", got)
	}

	rr = serve(router, httptest.NewRequest(http.MethodPut, "/admin/orders/ord_1/status", strings.NewReader(`{"status":"Delivered","expectedStatus":"Cancelled"}`)))
	assertErrorCode(t, rr, http.StatusConflict, "conflict")

	orders.transitionFn = func(context.Context, services.OrderStatusTransitionCommand) (domain.Order, error) {
		return domain.Order{}, services.ErrOrderInvalidTransition
	}
	rr = serve(router, httptest.NewRequest(http.MethodPut, "/admin/orders/ord_1/status", strings.NewReader(`{"status":"Pending"}`)))
	assertErrorCode(t, rr, http.StatusConflict, "invalid_transition")
}

func TestAdminOrderHandlers_ListOrdersFilters(t *testing.T) {
	orders := &stubOrderService{}
	rr := serve(adminOrdersRouter(orders, nil), httptest.NewRequest(http.MethodGet, "/admin/orders?userId=u9&status=Pending&limit=5", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if orders.lastFilter.UserID != "u9" || orders.lastFilter.Limit != 5 || len(orders.lastFilter.Status) != 1 {
		t.Fatalf("unexpected filter %+v", orders.lastFilter)
	}
	if !strings.Contains(rr.Body.String(), `"items":[]`) {
		t.Fatalf("expected empty items array, got %s", rr.Body.String())
	}
}

func TestAdminOrderHandlers_StreamSubscribeFailure(t *testing.T) {
	rr := serve(adminOrdersRouter(&stubOrderService{}, nil), httptest.NewRequest(http.MethodGet, "/admin/orders/stream", nil))
	assertErrorCode(t, rr, http.StatusBadRequest, "invalid_request")
}

func TestAdminOrderHandlers_Reconcile(t *testing.T) {
	placement := &stubPlacementService{}
	rr := serve(adminOrdersRouter(&stubOrderService{}, placement), httptest.NewRequest(http.MethodPost, "/admin/payments/reconcile?limit=25", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp reconcileResponse
	decodeBody(t, rr, &resp)
	if placement.reconciled != 25 || resp.Examined != 2 || len(resp.Recovered) != 1 || len(resp.Expired) != 1 || resp.Failed == nil {
		t.Fatalf("unexpected reconcile %+v (limit %d)", resp, placement.reconciled)
	}
}
