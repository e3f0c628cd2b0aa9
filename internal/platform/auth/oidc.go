package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

// GoogleJWKSURL publishes the keys Google signs Pub/Sub push tokens with.
const GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

var (
	// ErrJWKSKeyNotFound is returned when the requested key ID is absent from the JWKS document.
	ErrJWKSKeyNotFound = errors.New("auth: jwks key not found")
	// ErrJWKSFetchFailed wraps transport or decoding errors while refreshing JWKS.
	ErrJWKSFetchFailed = errors.New("auth: jwks fetch failed")
)

// DefaultPushIssuers lists the issuers Google uses for push subscription tokens.
var DefaultPushIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

const defaultJWKSValidity = 15 * time.Minute

// JWKSCache fetches a JSON Web Key Set on demand and keeps it until its HTTP cache lifetime ends.
type JWKSCache struct {
	url    string
	client *http.Client
	now    func() time.Time

	mu     sync.Mutex
	keys   map[string]jose.JSONWebKey
	expiry time.Time
}

// JWKSOption customises JWKSCache behaviour.
type JWKSOption func(*JWKSCache)

// WithJWKSHTTPClient overrides the HTTP client used to fetch JWKS documents.
func WithJWKSHTTPClient(client *http.Client) JWKSOption {
	return func(c *JWKSCache) {
		if client != nil {
			c.client = client
		}
	}
}

// WithJWKSClock injects a custom time source.
func WithJWKSClock(now func() time.Time) JWKSOption {
	return func(c *JWKSCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewJWKSCache constructs a JWKS cache for the provided URL.
func NewJWKSCache(url string, opts ...JWKSOption) *JWKSCache {
	cache := &JWKSCache{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache
}

// Key resolves the public key for kid. An unknown kid forces one refresh to pick up rotated keys.
func (c *JWKSCache) Key(ctx context.Context, kid string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.keys) == 0 || !c.now().Before(c.expiry) {
		if err := c.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	if jwk, ok := c.keys[kid]; ok {
		return jwk.Key, nil
	}
	if err := c.refreshLocked(ctx); err != nil {
		return nil, err
	}
	if jwk, ok := c.keys[kid]; ok {
		return jwk.Key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
}

func (c *JWKSCache) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("auth: token missing kid header")
		}
		return c.Key(ctx, kid)
	}
}

func (c *JWKSCache) refreshLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode jwks: %v", ErrJWKSFetchFailed, err)
	}
	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID != "" && jwk.Valid() {
			keys[jwk.KeyID] = jwk
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrJWKSFetchFailed)
	}

	validity := maxAge(resp.Header.Get("Cache-Control"))
	if validity <= 0 {
		validity = defaultJWKSValidity
	}
	c.keys = keys
	c.expiry = c.now().Add(validity)
	return nil
}

func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// PushIdentity is the service account that signed a Pub/Sub push request.
type PushIdentity struct {
	Subject string
	Email   string
	Issuer  string
}

type pushIdentityContextKey struct{}

// PushIdentityFromContext retrieves the identity stored by RequirePushAuth.
func PushIdentityFromContext(ctx context.Context) (*PushIdentity, bool) {
	identity, ok := ctx.Value(pushIdentityContextKey{}).(*PushIdentity)
	return identity, ok && identity != nil
}

// PushAuthConfig describes which push tokens are accepted.
type PushAuthConfig struct {
	Audience string
	// ServiceAccount, when set, must match the token's verified email claim.
	ServiceAccount string
	Issuers        []string
}

// PushAuthValidator verifies Google-signed OIDC tokens attached to Pub/Sub push deliveries.
type PushAuthValidator struct {
	cache   *JWKSCache
	cfg     PushAuthConfig
	logger  *zap.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// PushAuthOption customises the validator.
type PushAuthOption func(*PushAuthValidator)

// WithPushAuthLogger overrides the validator logger.
func WithPushAuthLogger(logger *zap.Logger) PushAuthOption {
	return func(v *PushAuthValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithPushAuthMetrics sets the metrics recorder.
func WithPushAuthMetrics(metrics MetricsRecorder) PushAuthOption {
	return func(v *PushAuthValidator) {
		v.metrics = metrics
	}
}

// WithPushAuthClock injects a custom clock used for token expiry checks.
func WithPushAuthClock(now func() time.Time) PushAuthOption {
	return func(v *PushAuthValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewPushAuthValidator constructs a PushAuthValidator.
func NewPushAuthValidator(cache *JWKSCache, cfg PushAuthConfig, opts ...PushAuthOption) *PushAuthValidator {
	if len(cfg.Issuers) == 0 {
		cfg.Issuers = DefaultPushIssuers
	}
	v := &PushAuthValidator{
		cache:  cache,
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

type pushClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// RequirePushAuth rejects push deliveries without a valid token for the configured audience.
func (v *PushAuthValidator) RequirePushAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := v.now()
			ctx := r.Context()
			reject := func(status int, reason, message string) {
				recordVerification(ctx, v.metrics, "oidc", false, reason, v.now().Sub(start))
				respondAuthError(ctx, w, status, reason, message)
			}

			audience := strings.TrimSpace(v.cfg.Audience)
			if audience == "" || v.cache == nil {
				reject(http.StatusServiceUnavailable, "verification_unavailable", "push authentication is not configured")
				return
			}
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				reject(http.StatusUnauthorized, "token_missing", "push token missing")
				return
			}

			claims := &pushClaims{}
			parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithoutClaimsValidation())
			if _, err := parser.ParseWithClaims(tokenStr, claims, v.cache.keyfunc(ctx)); err != nil {
				if errors.Is(err, ErrJWKSFetchFailed) {
					v.logger.Warn("push auth jwks unavailable", zap.Error(err))
					reject(http.StatusServiceUnavailable, "jwks_unavailable", "push token verification unavailable")
					return
				}
				reject(http.StatusUnauthorized, "token_invalid", "push token verification failed")
				return
			}

			now := v.now()
			if claims.ExpiresAt == nil || !now.Before(claims.ExpiresAt.Time) {
				reject(http.StatusUnauthorized, "token_expired", "push token expired")
				return
			}
			if !slices.Contains(v.cfg.Issuers, claims.Issuer) {
				reject(http.StatusUnauthorized, "issuer_mismatch", "push token issuer mismatch")
				return
			}
			if !claims.VerifyAudience(audience, true) {
				reject(http.StatusUnauthorized, "audience_mismatch", "push token audience mismatch")
				return
			}
			if expected := strings.TrimSpace(v.cfg.ServiceAccount); expected != "" {
				if !claims.EmailVerified || !strings.EqualFold(claims.Email, expected) {
					reject(http.StatusUnauthorized, "service_account_mismatch", "push token service account mismatch")
					return
				}
			}

			recordVerification(ctx, v.metrics, "oidc", true, "ok", v.now().Sub(start))
			identity := &PushIdentity{Subject: claims.Subject, Email: claims.Email, Issuer: claims.Issuer}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, pushIdentityContextKey{}, identity)))
		})
	}
}
