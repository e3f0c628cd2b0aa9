package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/threadcart/storefront/internal/repositories"
)

type stubReadiness struct {
	report repositories.ReadinessReport
}

func (s stubReadiness) Check(context.Context) repositories.ReadinessReport {
	return s.report
}

func TestNewRouter_DefaultMounts(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	router := NewRouter(WithHealthHandlers(NewHealthHandlers(WithHealthClock(func() time.Time { return now }))))

	t.Run("healthz", func(t *testing.T) {
		rr := serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Fatalf("expected content-type application/json, got %s", ct)
		}
	})

	t.Run("readyz without probes", func(t *testing.T) {
		rr := serve(router, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("unconfigured group", func(t *testing.T) {
		rr := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
		assertErrorCode(t, rr, http.StatusNotImplemented, "not_implemented")
	})

	t.Run("unknown route", func(t *testing.T) {
		rr := serve(router, httptest.NewRequest(http.MethodGet, "/nope", nil))
		assertErrorCode(t, rr, http.StatusNotFound, "route_not_found")
	})
}

func TestNewRouter_ReadyzReportsDownDependencies(t *testing.T) {
	health := NewHealthHandlers(WithHealthReadiness(stubReadiness{report: repositories.ReadinessReport{
		Status: repositories.ProbeStatusDown,
		Probes: map[string]repositories.ProbeResult{"firestore": {Status: repositories.ProbeStatusDown, Error: "deadline exceeded"}},
	}}))
	router := NewRouter(WithHealthHandlers(health))

	rr := serve(router, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var report repositories.ReadinessReport
	decodeBody(t, rr, &report)
	if report.Probes["firestore"].Status != repositories.ProbeStatusDown {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestNewRouter_MountsRegistrars(t *testing.T) {
	catalog := &stubCatalogService{}
	orders := &stubOrderService{}
	router := NewRouter(
		WithPublicRoutes(NewCatalogHandlers(nil, catalog).PublicRoutes),
		WithAdminRoutes(NewCatalogHandlers(nil, catalog).AdminRoutes, NewAdminOrderHandlers(nil, orders, nil).Routes),
	)

	if rr := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)); rr.Code != http.StatusOK {
		t.Fatalf("expected public products route, got %d", rr.Code)
	}
	if rr := serve(router, httptest.NewRequest(http.MethodDelete, "/api/v1/admin/reels/rel_1", nil)); rr.Code != http.StatusNoContent {
		t.Fatalf("expected admin catalog route, got %d", rr.Code)
	}
	if rr := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)); rr.Code != http.StatusOK {
		t.Fatalf("expected admin orders route, got %d", rr.Code)
	}
	if len(catalog.deleted) != 1 || catalog.deleted[0] != "rel_1" {
		t.Fatalf("unexpected deletes %v", catalog.deleted)
	}
}

func TestTimeoutUnlessStreaming(t *testing.T) {
	var hadDeadline bool
	r := chi.NewRouter()
	r.Use(timeoutUnlessStreaming(time.Minute))
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		_, hadDeadline = req.Context().Deadline()
		w.WriteHeader(http.StatusNoContent)
	})

	serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	if !hadDeadline {
		t.Fatalf("expected deadline on regular request")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "text/event-stream")
	serve(r, req)
	if hadDeadline {
		t.Fatalf("expected no deadline on event stream")
	}
}
