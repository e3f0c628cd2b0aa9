package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	SignatureHeader = "X-Threadcart-Signature"
	TimestampHeader = "X-Threadcart-Timestamp"
	NonceHeader     = "X-Threadcart-Nonce"

	defaultClockSkew = 5 * time.Minute
	defaultNonceTTL  = 10 * time.Minute
	maxSignedBody    = 1 << 20
)

// NonceStore records nonces so a signed request cannot be replayed.
type NonceStore interface {
	// UseNonce stores nonce until expiry. It reports false when the nonce was already used.
	UseNonce(ctx context.Context, scope, nonce string, expiry time.Time) (bool, error)
}

// InMemoryNonceStore is a process-local NonceStore for tests and single-instance deployments.
type InMemoryNonceStore struct {
	mu     sync.Mutex
	now    func() time.Time
	nonces map[string]time.Time
}

// NewInMemoryNonceStore constructs the store.
func NewInMemoryNonceStore() *InMemoryNonceStore {
	return &InMemoryNonceStore{now: time.Now, nonces: make(map[string]time.Time)}
}

func (s *InMemoryNonceStore) UseNonce(_ context.Context, scope, nonce string, expiry time.Time) (bool, error) {
	if scope == "" || nonce == "" {
		return false, errors.New("auth: scope and nonce are required")
	}
	key := scope + "::" + nonce

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.nonces {
		if !exp.After(now) {
			delete(s.nonces, k)
		}
	}
	if _, ok := s.nonces[key]; ok {
		return false, nil
	}
	s.nonces[key] = expiry
	return true, nil
}

// HMACValidator authenticates internal callers that sign requests with a shared secret.
type HMACValidator struct {
	scope   string
	secret  []byte
	nonces  NonceStore
	logger  *zap.Logger
	metrics MetricsRecorder
	now     func() time.Time

	clockSkew time.Duration
	nonceTTL  time.Duration
}

// HMACOption customises the validator.
type HMACOption func(*HMACValidator)

// WithHMACLogger overrides the validator logger.
func WithHMACLogger(logger *zap.Logger) HMACOption {
	return func(v *HMACValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithHMACMetrics sets the metrics recorder.
func WithHMACMetrics(metrics MetricsRecorder) HMACOption {
	return func(v *HMACValidator) {
		v.metrics = metrics
	}
}

// WithHMACClock injects a custom clock.
func WithHMACClock(now func() time.Time) HMACOption {
	return func(v *HMACValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithHMACClockSkew adjusts the accepted timestamp skew.
func WithHMACClockSkew(d time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if d > 0 {
			v.clockSkew = d
		}
	}
}

// NewHMACValidator builds a validator for one shared secret. scope namespaces the nonces.
func NewHMACValidator(scope, secret string, nonces NonceStore, opts ...HMACOption) *HMACValidator {
	v := &HMACValidator{
		scope:     strings.TrimSpace(scope),
		secret:    []byte(strings.TrimSpace(secret)),
		nonces:    nonces,
		logger:    zap.NewNop(),
		now:       time.Now,
		clockSkew: defaultClockSkew,
		nonceTTL:  defaultNonceTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// RequireHMAC rejects requests without a fresh, correctly signed, never-seen signature.
func (v *HMACValidator) RequireHMAC() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := v.now()
			ctx := r.Context()
			reject := func(status int, reason, message string) {
				recordVerification(ctx, v.metrics, "hmac", false, reason, v.now().Sub(start))
				respondAuthError(ctx, w, status, reason, message)
			}

			if len(v.secret) == 0 || v.nonces == nil {
				reject(http.StatusServiceUnavailable, "verification_unavailable", "request signing is not configured")
				return
			}

			signature, err := hex.DecodeString(strings.TrimSpace(r.Header.Get(SignatureHeader)))
			if err != nil || len(signature) == 0 {
				reject(http.StatusUnauthorized, "signature_invalid", "signature missing or malformed")
				return
			}
			timestampValue := strings.TrimSpace(r.Header.Get(TimestampHeader))
			seconds, err := strconv.ParseInt(timestampValue, 10, 64)
			if err != nil {
				reject(http.StatusUnauthorized, "timestamp_invalid", "signature timestamp missing or malformed")
				return
			}
			timestamp := time.Unix(seconds, 0)
			if skew := v.now().Sub(timestamp); skew > v.clockSkew || skew < -v.clockSkew {
				reject(http.StatusUnauthorized, "timestamp_skew", "signature timestamp outside allowed window")
				return
			}
			nonce := strings.TrimSpace(r.Header.Get(NonceHeader))
			if nonce == "" {
				reject(http.StatusUnauthorized, "nonce_missing", "signature nonce missing")
				return
			}

			body, err := readAndRestoreBody(r)
			if err != nil {
				reject(http.StatusBadRequest, "invalid_body", "unable to read request body")
				return
			}
			expected := computeHMAC(v.secret, canonicalRequest(r, body, timestampValue, nonce))
			if !hmac.Equal(signature, expected) {
				reject(http.StatusUnauthorized, "signature_mismatch", "signature verification failed")
				return
			}

			stored, err := v.nonces.UseNonce(ctx, v.scope, nonce, v.now().Add(v.nonceTTL))
			if err != nil {
				v.logger.Warn("hmac nonce store failed", zap.Error(err))
				reject(http.StatusServiceUnavailable, "verification_unavailable", "nonce storage error")
				return
			}
			if !stored {
				reject(http.StatusUnauthorized, "nonce_replay", "duplicate signature nonce")
				return
			}

			recordVerification(ctx, v.metrics, "hmac", true, "ok", v.now().Sub(start))
			next.ServeHTTP(w, r)
		})
	}
}

// SignRequest sets the signature headers on r for body, which must be the exact bytes sent.
func SignRequest(r *http.Request, body []byte, secret string, now time.Time, nonce string) {
	timestamp := strconv.FormatInt(now.Unix(), 10)
	signature := computeHMAC([]byte(strings.TrimSpace(secret)), canonicalRequest(r, body, timestamp, nonce))
	r.Header.Set(SignatureHeader, hex.EncodeToString(signature))
	r.Header.Set(TimestampHeader, timestamp)
	r.Header.Set(NonceHeader, nonce)
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}

func canonicalRequest(r *http.Request, body []byte, timestamp, nonce string) []byte {
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	hash := sha256.Sum256(body)
	return []byte(strings.Join([]string{
		strings.ToUpper(r.Method),
		path,
		timestamp,
		nonce,
		hex.EncodeToString(hash[:]),
	}, "\n"))
}

func computeHMAC(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}
