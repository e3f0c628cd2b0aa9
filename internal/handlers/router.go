package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/threadcart/storefront/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

const (
	apiPrefix      = "/api/v1"
	requestTimeout = 30 * time.Second
)

// Mounted groups, in registration order. A group nobody registered answers 501 so
// clients can tell a disabled surface from a typo.
var mountedGroups = []string{"/cart", "/me", "/checkout", "/admin", "/webhooks", "/internal"}

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	public      []RouteRegistrar
	groups      map[string][]RouteRegistrar
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

// NewRouter builds the storefront API: probes at the root, public catalog and account
// routes under /api/v1 and one sub-router per mounted group.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{groups: make(map[string][]RouteRegistrar)}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.Use(timeoutUnlessStreaming(requestTimeout))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, http.StatusNotFound, "route_not_found", "no route for "+req.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, http.StatusMethodNotAllowed, "method_not_allowed",
			fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(apiPrefix, func(api chi.Router) {
		api.Get("/healthz", cfg.health.Healthz)
		for _, register := range cfg.public {
			api.Group(func(g chi.Router) { register(g) })
		}
		for _, path := range mountedGroups {
			registrars := cfg.groups[path]
			api.Route(path, func(g chi.Router) {
				if len(registrars) == 0 {
					notImplemented(g, path)
					return
				}
				for _, register := range registrars {
					register(g)
				}
			})
		}
	})
	return r
}

// timeoutUnlessStreaming bounds every request except server-sent event streams.
func timeoutUnlessStreaming(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		timed := middleware.Timeout(d)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isEventStream(r) {
				next.ServeHTTP(w, r)
				return
			}
			timed.ServeHTTP(w, r)
		})
	}
}

// WithMiddlewares appends global middleware, applied in order after RealIP.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithPublicRoutes adds registrars mounted directly under the API prefix.
func WithPublicRoutes(regs ...RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.public = appendRegistrars(cfg.public, regs) }
}

func WithCartRoutes(regs ...RouteRegistrar) Option { return withGroup("/cart", regs) }

func WithMeRoutes(regs ...RouteRegistrar) Option { return withGroup("/me", regs) }

func WithCheckoutRoutes(regs ...RouteRegistrar) Option { return withGroup("/checkout", regs) }

// WithAdminRoutes mounts registrars under /admin. Each registrar applies its own auth.
func WithAdminRoutes(regs ...RouteRegistrar) Option { return withGroup("/admin", regs) }

// WithWebhookRoutes mounts registrars under /webhooks. Signature checks live in the handlers.
func WithWebhookRoutes(regs ...RouteRegistrar) Option { return withGroup("/webhooks", regs) }

func WithInternalRoutes(regs ...RouteRegistrar) Option { return withGroup("/internal", regs) }

func withGroup(path string, regs []RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.groups[path] = appendRegistrars(cfg.groups[path], regs)
	}
}

func appendRegistrars(dst, regs []RouteRegistrar) []RouteRegistrar {
	for _, reg := range regs {
		if reg != nil {
			dst = append(dst, reg)
		}
	}
	return dst
}

func notImplemented(r chi.Router, path string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, http.StatusNotImplemented, "not_implemented", fmt.Sprintf("%s routes not implemented", path[1:]))
	}
	r.HandleFunc("/", handler)
	r.HandleFunc("/*", handler)
}

func writeRouteError(w http.ResponseWriter, req *http.Request, status int, code, message string) {
	httpx.WriteError(req.Context(), w, httpx.NewError(code, message, status))
}
