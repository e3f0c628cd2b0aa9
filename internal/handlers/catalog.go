package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/threadcart/storefront/internal/domain"
	"github.com/threadcart/storefront/internal/platform/auth"
	"github.com/threadcart/storefront/internal/platform/httpx"
	"github.com/threadcart/storefront/internal/services"
)

const maxCatalogRequestBody = 64 * 1024

// CatalogHandlers exposes the storefront catalog and its admin CRUD surface.
type CatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewCatalogHandlers constructs catalog handlers. authn guards only the admin routes.
func NewCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{authn: authn, catalog: catalog}
}

// PublicRoutes registers the anonymous catalog reads.
func (h *CatalogHandlers) PublicRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/offers", h.listOffers)
	r.Get("/reels", h.listReels)
}

// AdminRoutes registers catalog management endpoints behind the admin role.
func (h *CatalogHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(rt chi.Router) {
		if h.authn != nil {
			rt.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
		}
		rt.Post("/products", h.createProduct)
		rt.Put("/products/{productID}", h.updateProduct)
		rt.Delete("/products/{productID}", h.deleteProduct)
		rt.Get("/offers", h.listAllOffers)
		rt.Post("/offers", h.createOffer)
		rt.Put("/offers/{offerID}", h.updateOffer)
		rt.Delete("/offers/{offerID}", h.deleteOffer)
		rt.Post("/reels", h.createReel)
		rt.Delete("/reels/{reelID}", h.deleteReel)
		rt.Post("/uploads", h.createUpload)
	})
}

func (h *CatalogHandlers) available(w http.ResponseWriter, r *http.Request) bool {
	if h.catalog == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	limit, ok := parseLimitParam(w, r)
	if !ok {
		return
	}
	products, err := h.catalog.ListProducts(r.Context(), services.ProductListFilter{
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
		Limit:    limit,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	items := make([]productResponse, 0, len(products))
	for _, p := range products {
		items = append(items, toProductResponse(p))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	product, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toProductResponse(product))
}

func (h *CatalogHandlers) listOffers(w http.ResponseWriter, r *http.Request) {
	h.writeOffers(w, r, true)
}

func (h *CatalogHandlers) listAllOffers(w http.ResponseWriter, r *http.Request) {
	h.writeOffers(w, r, false)
}

func (h *CatalogHandlers) writeOffers(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	if !h.available(w, r) {
		return
	}
	offers, err := h.catalog.ListOffers(r.Context(), activeOnly)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	items := make([]offerResponse, 0, len(offers))
	for _, o := range offers {
		items = append(items, toOfferResponse(o))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CatalogHandlers) listReels(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	limit, ok := parseLimitParam(w, r)
	if !ok {
		return
	}
	reels, err := h.catalog.ListReels(r.Context(), limit)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	items := make([]reelResponse, 0, len(reels))
	for _, reel := range reels {
		items = append(items, toReelResponse(reel))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

type productRequest struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Sizes    []string        `json:"sizes"`
	Images   []string        `json:"images"`
}

func (p productRequest) command(id string) services.UpsertProductCommand {
	return services.UpsertProductCommand{ID: id, Name: p.Name, Price: p.Price, Category: p.Category, Sizes: p.Sizes, Images: p.Images}
}

func (h *CatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	var req productRequest
	if !decodeJSONBody(w, r, maxCatalogRequestBody, &req) {
		return
	}
	product, err := h.catalog.CreateProduct(r.Context(), req.command(""))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, toProductResponse(services.PricedProduct{Product: product, DiscountedPrice: product.Price}))
}

func (h *CatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	var req productRequest
	if !decodeJSONBody(w, r, maxCatalogRequestBody, &req) {
		return
	}
	product, err := h.catalog.UpdateProduct(r.Context(), req.command(chi.URLParam(r, "productID")))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toProductResponse(services.PricedProduct{Product: product, DiscountedPrice: product.Price}))
}

func (h *CatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	if err := h.catalog.DeleteProduct(r.Context(), chi.URLParam(r, "productID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type offerRequest struct {
	Name          string          `json:"name"`
	DiscountType  string          `json:"discountType"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	AppliesTo     string          `json:"appliesTo"`
	TargetIDs     []string        `json:"targetIds"`
	IsActive      *bool           `json:"isActive"`
}

func (o offerRequest) command(id string) services.UpsertOfferCommand {
	active := true
	if o.IsActive != nil {
		active = *o.IsActive
	}
	return services.UpsertOfferCommand{
		ID:            id,
		Name:          o.Name,
		DiscountType:  domain.DiscountType(strings.ToLower(strings.TrimSpace(o.DiscountType))),
		DiscountValue: o.DiscountValue,
		AppliesTo:     domain.OfferScope(strings.ToLower(strings.TrimSpace(o.AppliesTo))),
		TargetIDs:     o.TargetIDs,
		IsActive:      active,
	}
}

func (h *CatalogHandlers) createOffer(w http.ResponseWriter, r *http.Request) {
	h.saveOffer(w, r, "")
}

func (h *CatalogHandlers) updateOffer(w http.ResponseWriter, r *http.Request) {
	h.saveOffer(w, r, chi.URLParam(r, "offerID"))
}

func (h *CatalogHandlers) saveOffer(w http.ResponseWriter, r *http.Request, offerID string) {
	if !h.available(w, r) {
		return
	}
	var req offerRequest
	if !decodeJSONBody(w, r, maxCatalogRequestBody, &req) {
		return
	}
	var (
		offer domain.Offer
		err   error
	)
	status := http.StatusOK
	if offerID == "" {
		offer, err = h.catalog.CreateOffer(r.Context(), req.command(""))
		status = http.StatusCreated
	} else {
		offer, err = h.catalog.UpdateOffer(r.Context(), req.command(offerID))
	}
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, status, toOfferResponse(offer))
}

func (h *CatalogHandlers) deleteOffer(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	if err := h.catalog.DeleteOffer(r.Context(), chi.URLParam(r, "offerID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reelRequest struct {
	Title      string   `json:"title"`
	VideoURL   string   `json:"videoUrl"`
	ProductIDs []string `json:"productIds"`
}

func (h *CatalogHandlers) createReel(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	var req reelRequest
	if !decodeJSONBody(w, r, maxCatalogRequestBody, &req) {
		return
	}
	reel, err := h.catalog.CreateReel(r.Context(), services.CreateReelCommand{Title: req.Title, VideoURL: req.VideoURL, ProductIDs: req.ProductIDs})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, toReelResponse(reel))
}

func (h *CatalogHandlers) deleteReel(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	if err := h.catalog.DeleteReel(r.Context(), chi.URLParam(r, "reelID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type uploadRequest struct {
	Kind        string `json:"kind"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

type uploadResponse struct {
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	PublicURL string            `json:"publicUrl"`
	ObjectKey string            `json:"objectKey"`
	ExpiresAt string            `json:"expiresAt,omitempty"`
}

func (h *CatalogHandlers) createUpload(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	var req uploadRequest
	if !decodeJSONBody(w, r, defaultMaxBody, &req) {
		return
	}
	upload, err := h.catalog.CreateUploadURL(r.Context(), services.UploadURLCommand{
		Kind:        services.UploadKind(strings.TrimSpace(req.Kind)),
		FileName:    req.FileName,
		ContentType: req.ContentType,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, uploadResponse{
		UploadURL: upload.UploadURL,
		Method:    upload.Method,
		Headers:   upload.Headers,
		PublicURL: upload.PublicURL,
		ObjectKey: upload.ObjectKey,
		ExpiresAt: formatTime(upload.ExpiresAt),
	})
}

// parseLimitParam reads ?limit=; zero means the service default.
func parseLimitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "limit must be a non-negative integer", http.StatusBadRequest))
		return 0, false
	}
	return limit, true
}
