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
	"github.com/threadcart/storefront/internal/services"
)

func catalogRouter(svc services.CatalogService) chi.Router {
	h := NewCatalogHandlers(nil, svc)
	r := chi.NewRouter()
	h.PublicRoutes(r)
	r.Route("/admin", h.AdminRoutes)
	return r
}

func TestCatalogHandlers_ListProductsRendersMoneyAsStrings(t *testing.T) {
	svc := &stubCatalogService{
		listProductsFunc: func(_ context.Context, filter services.ProductListFilter) ([]services.PricedProduct, error) {
			if filter.Category != "Shirts" || filter.Limit != 10 {
				t.Fatalf("unexpected filter %+v", filter)
			}
			return []services.PricedProduct{{
				Product:         domain.Product{ID: "prd_1", Name: "Linen Shirt", Price: decimal.RequireFromString("49.9"), Category: "Shirts"},
				DiscountedPrice: decimal.RequireFromString("39.92"),
				OfferID:         "off_1",
			}}, nil
		},
	}

	rr := serve(catalogRouter(svc), httptest.NewRequest(http.MethodGet, "/products?category=Shirts&limit=10", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Items []productResponse `json:"items"`
	}
	decodeBody(t, rr, &resp)
	if len(resp.Items) != 1 {
		t.Fatalf("expected one product, got %+v", resp.Items)
	}
	got := resp.Items[0]
	if got.Price != "49.90" || got.DiscountedPrice != "39.92" || got.OfferID != "off_1" {
		t.Fatalf("unexpected product %+v", got)
	}
	if got.Sizes == nil || got.Images == nil {
		t.Fatalf("expected empty arrays rather than null")
	}
}

func TestCatalogHandlers_InvalidLimit(t *testing.T) {
	rr := serve(catalogRouter(&stubCatalogService{}), httptest.NewRequest(http.MethodGet, "/products?limit=-4", nil))
	assertErrorCode(t, rr, http.StatusBadRequest, "invalid_request")
}

func TestCatalogHandlers_GetProductNotFound(t *testing.T) {
	rr := serve(catalogRouter(&stubCatalogService{}), httptest.NewRequest(http.MethodGet, "/products/prd_missing", nil))
	assertErrorCode(t, rr, http.StatusNotFound, "product_not_found")
}

func TestCatalogHandlers_CreateProductAcceptsNumericAndStringPrices(t *testing.T) {
	var prices []string
	svc := &stubCatalogService{
		createProductFn: func(_ context.Context, cmd services.UpsertProductCommand) (domain.Product, error) {
			prices = append(prices, cmd.Price.String())
			return domain.Product{ID: "prd_new", Name: cmd.Name, Price: cmd.Price, Sizes: cmd.Sizes}, nil
		},
	}
	router := catalogRouter(svc)

	for _, body := range []string{
		`{"name":"Tee","price":19.5,"sizes":["M"]}`,
		`{"name":"Tee","price":"19.50","sizes":["M"]}`,
	} {
		rr := serve(router, httptest.NewRequest(http.MethodPost, "/admin/products", strings.NewReader(body)))
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp productResponse
		decodeBody(t, rr, &resp)
		if resp.Price != "19.50" || resp.DiscountedPrice != "19.50" {
			t.Fatalf("unexpected response %+v", resp)
		}
	}
	if len(prices) != 2 || prices[0] != "19.5" {
		t.Fatalf("unexpected prices %v", prices)
	}

	rr := serve(router, httptest.NewRequest(http.MethodPost, "/admin/products", strings.NewReader(`{"price":"abc"}`)))
	assertErrorCode(t, rr, http.StatusBadRequest, "invalid_request")
}

func TestCatalogHandlers_CreateOfferNormalisesEnums(t *testing.T) {
	var got services.UpsertOfferCommand
	svc := &stubCatalogService{
		createOfferFunc: func(_ context.Context, cmd services.UpsertOfferCommand) (domain.Offer, error) {
			got = cmd
			return domain.Offer{ID: "off_1", Name: cmd.Name, DiscountType: cmd.DiscountType, DiscountValue: cmd.DiscountValue, AppliesTo: cmd.AppliesTo, IsActive: cmd.IsActive}, nil
		},
	}
	body := `{"name":"Summer","discountType":"Percentage","discountValue":"20","appliesTo":" Categories ","targetIds":["Shirts"]}`
	rr := serve(catalogRouter(svc), httptest.NewRequest(http.MethodPost, "/admin/offers", strings.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.DiscountType != domain.DiscountTypePercentage || got.AppliesTo != domain.OfferScopeCategories || !got.IsActive {
		t.Fatalf("unexpected command %+v", got)
	}
}

func TestCatalogHandlers_ServiceErrors(t *testing.T) {
	svc := &stubCatalogService{
		createProductFn: func(context.Context, services.UpsertProductCommand) (domain.Product, error) {
			return domain.Product{}, services.ErrCatalogInvalidInput
		},
	}
	router := catalogRouter(svc)

	rr := serve(router, httptest.NewRequest(http.MethodPost, "/admin/products", strings.NewReader(`{"name":""}`)))
	assertErrorCode(t, rr, http.StatusBadRequest, "invalid_request")

	rr = serve(router, httptest.NewRequest(http.MethodPost, "/admin/uploads", strings.NewReader(`{"kind":"product-image","fileName":"a.png","contentType":"image/png"}`)))
	assertErrorCode(t, rr, http.StatusServiceUnavailable, "uploads_disabled")
}

func TestCatalogHandlers_CreateUpload(t *testing.T) {
	expires := time.Date(2024, 3, 1, 0, 15, 0, 0, time.UTC)
	svc := &stubCatalogService{
		uploadFunc: func(_ context.Context, cmd services.UploadURLCommand) (services.UploadURL, error) {
			if cmd.Kind != services.UploadKindReelVideo {
				t.Fatalf("unexpected kind %q", cmd.Kind)
			}
			return services.UploadURL{UploadURL: "https://signed", Method: http.MethodPut, PublicURL: "https://cdn/v.mp4", ObjectKey: "media/v.mp4", ExpiresAt: expires}, nil
		},
	}
	rr := serve(catalogRouter(svc), httptest.NewRequest(http.MethodPost, "/admin/uploads", strings.NewReader(`{"kind":"reel-video","fileName":"v.mp4","contentType":"video/mp4"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp uploadResponse
	decodeBody(t, rr, &resp)
	if resp.Method != http.MethodPut || resp.ExpiresAt != "2024-03-01T00:15:00Z" {
		t.Fatalf("unexpected upload %+v", resp)
	}
}

func TestCatalogHandlers_ServiceUnavailable(t *testing.T) {
	rr := serve(catalogRouter(nil), httptest.NewRequest(http.MethodGet, "/offers", nil))
	assertErrorCode(t, rr, http.StatusServiceUnavailable, "service_unavailable")
}
