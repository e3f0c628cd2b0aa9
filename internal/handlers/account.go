package handlers

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/threadcart/storefront/internal/platform/auth"
	"github.com/threadcart/storefront/internal/platform/httpx"
	"github.com/threadcart/storefront/internal/services"
)

const (
	defaultRegisterLimit  = 5
	defaultRegisterWindow = time.Minute
)

// AccountHandlers serves sign-up and the address lookup used by the checkout form.
type AccountHandlers struct {
	accounts  services.AccountService
	addresses services.AddressService
	limiter   rateLimiter
}

// AccountOption customises AccountHandlers.
type AccountOption func(*AccountHandlers)

// WithRegisterRateLimit caps registrations per client IP within window.
func WithRegisterRateLimit(limit int, window time.Duration, clock func() time.Time) AccountOption {
	return func(h *AccountHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, clock)
	}
}

func NewAccountHandlers(accounts services.AccountService, addresses services.AddressService, opts ...AccountOption) *AccountHandlers {
	h := &AccountHandlers{
		accounts:  accounts,
		addresses: addresses,
		limiter:   newSimpleRateLimiter(defaultRegisterLimit, defaultRegisterWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers /auth/register and /geocode/reverse.
func (h *AccountHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/auth/register", h.register)
	r.Get("/geocode/reverse", h.reverseGeocode)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AccountHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "account service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil {
		if ok, retryAfter := h.limiter.Allow(clientIP(r)); !ok {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
			writeServiceError(ctx, w, auth.NewError(auth.CodeTooManyRequests, errors.New("registration rate limit exceeded")))
			return
		}
	}

	var req registerRequest
	if !decodeJSONBody(w, r, defaultMaxBody, &req) {
		return
	}
	profile, err := h.accounts.Register(ctx, services.RegisterCommand{Name: req.Name, Email: req.Email, Password: req.Password})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, toProfileResponse(profile))
}

type geoAddressResponse struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

func (h *AccountHandlers) reverseGeocode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "address service unavailable", http.StatusServiceUnavailable))
		return
	}
	query := r.URL.Query()
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(query.Get("lat")), 64)
	lng, lngErr := strconv.ParseFloat(strings.TrimSpace(query.Get("lng")), 64)
	if latErr != nil || lngErr != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "lat and lng query parameters are required", http.StatusBadRequest))
		return
	}
	addr, err := h.addresses.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, geoAddressResponse{
		Street:     addr.Street,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	})
}

// clientIP relies on middleware.RealIP having normalised RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
