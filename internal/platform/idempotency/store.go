package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"
)

// DefaultTTL bounds how long a checkout key can be replayed.
const DefaultTTL = 24 * time.Hour

// ErrKeyReused is returned when a key is presented again with a different request.
var ErrKeyReused = errors.New("idempotency: key reused with a different request")

// ClaimState is the outcome of claiming a key.
type ClaimState int

const (
	// ClaimAcquired means the caller owns the key and must Complete or Release it.
	ClaimAcquired ClaimState = iota
	// ClaimReplay means a response was stored earlier and Claim.Replay holds it.
	ClaimReplay
	// ClaimInFlight means another request holds the key and has not finished.
	ClaimInFlight
)

// Claim is returned by Store.Claim.
type Claim struct {
	State  ClaimState
	Replay StoredResponse
}

// StoredResponse is the part of a response that is replayed for a repeated key.
type StoredResponse struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store keeps one entry per scoped key until it expires.
type Store interface {
	Claim(ctx context.Context, key, fingerprint string, now, expiresAt time.Time) (Claim, error)
	Complete(ctx context.Context, key, fingerprint string, resp StoredResponse, now, expiresAt time.Time) error
	Release(ctx context.Context, key string) error
	// CleanupExpired removes up to limit expired entries. Stores with native expiry return 0.
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// entry is the persisted form shared by every store.
type entry struct {
	Fingerprint string              `json:"fingerprint"`
	Done        bool                `json:"done"`
	Status      int                 `json:"status,omitempty"`
	Headers     map[string][]string `json:"headers,omitempty"`
	Body        []byte              `json:"body,omitempty"`
	ExpiresAt   time.Time           `json:"expiresAt"`
}

func (e entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// claimExisting decides what a live entry means for a new request with fingerprint.
func claimExisting(e entry, fingerprint string) (Claim, error) {
	if e.Fingerprint != fingerprint {
		return Claim{}, ErrKeyReused
	}
	if !e.Done {
		return Claim{State: ClaimInFlight}, nil
	}
	return Claim{State: ClaimReplay, Replay: StoredResponse{
		Status:  e.Status,
		Headers: http.Header(cloneValues(e.Headers)),
		Body:    e.Body,
	}}, nil
}

func completedEntry(fingerprint string, resp StoredResponse, expiresAt time.Time) entry {
	var body []byte
	if len(resp.Body) > 0 {
		body = append([]byte(nil), resp.Body...)
	}
	return entry{
		Fingerprint: fingerprint,
		Done:        true,
		Status:      resp.Status,
		Headers:     replayableHeaders(resp.Headers),
		Body:        body,
		ExpiresAt:   expiresAt.UTC(),
	}
}

// documentID hashes the scoped key so it is safe as a document id or Redis key suffix.
func documentID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Only headers that describe the body or the created resource are replayed.
var replayHeaderAllowlist = []string{"Content-Type", "Location", "Retry-After"}

func replayableHeaders(h http.Header) map[string][]string {
	out := make(map[string][]string)
	for _, name := range replayHeaderAllowlist {
		if values := h.Values(name); len(values) > 0 {
			out[name] = append([]string(nil), values...)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cloneValues(src map[string][]string) map[string][]string {
	dst := make(map[string][]string, len(src))
	for k, v := range src {
		dst[k] = append([]string(nil), v...)
	}
	return dst
}
