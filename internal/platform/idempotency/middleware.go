package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/threadcart/storefront/internal/platform/auth"
	"github.com/threadcart/storefront/internal/platform/httpx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "Idempotent-Replayed"
	cartSessionHeader = "X-Cart-Session"
	maxKeyLength      = 255
	maxBodyBytes      = 64 << 10
)

type middlewareConfig struct {
	header string
	ttl    time.Duration
	clock  func() time.Time
	logger *zap.Logger
}

// MiddlewareOption customises Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the request header carrying the key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.header = name
		}
	}
}

// WithTTL sets how long a completed response is replayed.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware makes mutating checkout requests safe to retry. Every POST, PUT, PATCH or
// DELETE must carry a key; the first response for a (caller, key) pair is stored and
// replayed for repeats of the same request. Server errors are not stored, so a client
// can retry after a gateway outage with the same key.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{
		header: defaultHeaderName,
		ttl:    DefaultTTL,
		clock:  time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			key := strings.TrimSpace(r.Header.Get(cfg.header))
			switch {
			case key == "":
				writeError(ctx, w, http.StatusBadRequest, "idempotency_key_required", cfg.header+" header is required")
				return
			case len(key) > maxKeyLength:
				writeError(ctx, w, http.StatusBadRequest, "idempotency_key_invalid", cfg.header+" header is too long")
				return
			}

			body, err := bufferBody(r)
			if errors.Is(err, errBodyTooLarge) {
				writeError(ctx, w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds limit")
				return
			}
			if err != nil {
				writeError(ctx, w, http.StatusBadRequest, "invalid_body", "unable to read request body")
				return
			}

			caller := requester(r)
			scoped := caller + "|" + key
			fingerprint := fingerprintOf(r, caller, body)
			now := cfg.clock().UTC()

			claim, err := store.Claim(ctx, scoped, fingerprint, now, now.Add(cfg.ttl))
			switch {
			case errors.Is(err, ErrKeyReused):
				writeError(ctx, w, http.StatusUnprocessableEntity, "idempotency_key_reused", "idempotency key was used for a different request")
				return
			case err != nil:
				cfg.logger.Error("idempotency claim failed", zap.String("caller", caller), zap.Error(err))
				writeError(ctx, w, http.StatusServiceUnavailable, "idempotency_unavailable", "unable to process idempotency key")
				return
			}

			switch claim.State {
			case ClaimReplay:
				replay(w, claim.Replay)
				return
			case ClaimInFlight:
				w.Header().Set("Retry-After", "1")
				writeError(ctx, w, http.StatusConflict, "idempotency_in_progress", "a request with this idempotency key is still being processed")
				return
			}

			rec := &bufferedResponse{header: make(http.Header)}
			next.ServeHTTP(rec, r)

			if rec.statusCode() >= http.StatusInternalServerError {
				if err := store.Release(ctx, scoped); err != nil {
					cfg.logger.Warn("idempotency release failed", zap.String("caller", caller), zap.Error(err))
				}
			} else {
				resp := StoredResponse{Status: rec.statusCode(), Headers: rec.header, Body: rec.body.Bytes()}
				if err := store.Complete(ctx, scoped, fingerprint, resp, cfg.clock().UTC(), now.Add(cfg.ttl)); err != nil {
					// The handler already ran, so its response is still delivered.
					cfg.logger.Error("idempotency store response failed", zap.String("caller", caller), zap.Error(err))
					if err := store.Release(ctx, scoped); err != nil {
						cfg.logger.Warn("idempotency release failed", zap.String("caller", caller), zap.Error(err))
					}
				}
			}
			rec.flushTo(w)
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// requester scopes keys to the signed-in user, falling back to the guest cart session.
func requester(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.UID != "" {
		return "uid:" + identity.UID
	}
	if session := strings.TrimSpace(r.Header.Get(cartSessionHeader)); session != "" {
		return "cart:" + session
	}
	return "anonymous"
}

func fingerprintOf(r *http.Request, caller string, body []byte) string {
	h := sha256.New()
	io.WriteString(h, r.Method+" "+r.URL.Path+"\n"+caller+"\n")
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

var errBodyTooLarge = errors.New("idempotency: request body too large")

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxBodyBytes {
		return nil, errBodyTooLarge
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func replay(w http.ResponseWriter, resp StoredResponse) {
	for name, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set(replayHeaderName, "true")
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

// bufferedResponse holds the handler output until the store has been updated.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) statusCode() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func (b *bufferedResponse) flushTo(w http.ResponseWriter) {
	dst := w.Header()
	for name, values := range b.header {
		dst[name] = values
	}
	w.WriteHeader(b.statusCode())
	_, _ = w.Write(b.body.Bytes())
}
