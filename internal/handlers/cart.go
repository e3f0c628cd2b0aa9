package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/threadcart/storefront/internal/domain"
	"github.com/threadcart/storefront/internal/platform/httpx"
	"github.com/threadcart/storefront/internal/services"
)

// CartHandlers exposes the anonymous cart keyed by the X-Cart-Session header.
type CartHandlers struct {
	carts   services.CartService
	pricing services.PricingService
}

func NewCartHandlers(carts services.CartService, pricing services.PricingService) *CartHandlers {
	return &CartHandlers{carts: carts, pricing: pricing}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items", h.updateItem)
	r.Delete("/items", h.removeItem)
	r.Post("/wishlist/{productID}", h.toggleWishlist)
	r.Post("/pricing", h.priceCart)
	r.Post("/shipping-quotes", h.quoteShipping)
}

// session validates the service and header in one step.
func (h *CartHandlers) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.carts == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	return requireCartSession(w, r)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.GetCart(r.Context(), sessionID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.carts.Clear(r.Context(), sessionID); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cartMutation func(ctx context.Context, cmd services.CartItemCommand) (domain.Cart, error)

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	h.mutateItem(w, r, func(s services.CartService) cartMutation { return s.AddItem })
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	h.mutateItem(w, r, func(s services.CartService) cartMutation { return s.UpdateQuantity })
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	h.mutateItem(w, r, func(s services.CartService) cartMutation { return s.RemoveItem })
}

// mutateItem resolves the method after the nil-service check in session.
func (h *CartHandlers) mutateItem(w http.ResponseWriter, r *http.Request, pick func(services.CartService) cartMutation) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	apply := pick(h.carts)
	var req cartItemPayload
	if !decodeJSONBody(w, r, defaultMaxBody, &req) {
		return
	}
	cart, err := apply(r.Context(), services.CartItemCommand{
		SessionID: sessionID,
		ProductID: req.ProductID,
		Size:      req.Size,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandlers) toggleWishlist(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.ToggleWishlist(r.Context(), sessionID, chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toCartResponse(cart))
}

type cartPricingRequest struct {
	Postcode       string `json:"postcode"`
	CashOnDelivery bool   `json:"cashOnDelivery"`
	CourierID      string `json:"courierId"`
}

func (h *CartHandlers) priceCart(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	if h.pricing == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req cartPricingRequest
	if !decodeJSONBody(w, r, defaultMaxBody, &req) {
		return
	}
	cart, err := h.carts.GetCart(r.Context(), sessionID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	pricing, err := h.pricing.PriceCart(r.Context(), services.PriceCartCommand{
		Items:          cart.Items,
		Postcode:       req.Postcode,
		CashOnDelivery: req.CashOnDelivery,
		CourierID:      req.CourierID,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toPricingResponse(pricing))
}

type shippingQuoteResponse struct {
	Generation uint64                   `json:"generation"`
	Options    []shippingOptionResponse `json:"options"`
}

func (h *CartHandlers) quoteShipping(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	if h.pricing == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req cartPricingRequest
	if !decodeJSONBody(w, r, defaultMaxBody, &req) {
		return
	}
	cart, err := h.carts.GetCart(r.Context(), sessionID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	quote, err := h.pricing.QuoteShipping(r.Context(), services.QuoteShippingCommand{
		SessionKey:     sessionID,
		Items:          cart.Items,
		Postcode:       req.Postcode,
		CashOnDelivery: req.CashOnDelivery,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, shippingQuoteResponse{Generation: quote.Generation, Options: toShippingOptions(quote.Options)})
}
