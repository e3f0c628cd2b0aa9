package auth

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

const testSigningSecret = "super-secret"

type recordingMetrics struct {
	mu      sync.Mutex
	records []verificationRecord
}

type verificationRecord struct {
	kind    string
	success bool
	reason  string
}

func (m *recordingMetrics) RecordVerification(_ context.Context, kind string, success bool, reason string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, verificationRecord{kind: kind, success: success, reason: reason})
}

func (m *recordingMetrics) last() verificationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return verificationRecord{}
	}
	return m.records[len(m.records)-1]
}

func signedEmailRequest(t *testing.T, body []byte, now time.Time, nonce string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/internal/email", bytes.NewReader(body))
	SignRequest(req, body, testSigningSecret, now, nonce)
	return req
}

func newTestHMACValidator(now time.Time, metrics MetricsRecorder) *HMACValidator {
	return NewHMACValidator("internal-email", testSigningSecret, NewInMemoryNonceStore(),
		WithHMACClock(func() time.Time { return now }),
		WithHMACMetrics(metrics),
	)
}

func TestRequireHMAC_Success(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	metrics := &recordingMetrics{}
	validator := newTestHMACValidator(now, metrics)

	body := []byte(`{"to":"asha@example.com","templateName":"welcome"}`)
	req := signedEmailRequest(t, body, now, "nonce-123")
	rr := httptest.NewRecorder()

	validator.RequireHMAC()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err := io.ReadAll(r.Body)
		if err != nil || !bytes.Equal(got, body) {
			t.Errorf("expected body to be restored, got %q (%v)", got, err)
		}
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	if rec := metrics.last(); !rec.success || rec.kind != "hmac" {
		t.Fatalf("expected success metric, got %+v", rec)
	}
}

func TestRequireHMAC_RejectsReplay(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	metrics := &recordingMetrics{}
	validator := newTestHMACValidator(now, metrics)
	handler := validator.RequireHMAC()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	body := []byte(`{}`)
	first := httptest.NewRecorder()
	handler.ServeHTTP(first, signedEmailRequest(t, body, now, "nonce-1"))
	if first.Code != http.StatusAccepted {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, signedEmailRequest(t, body, now, "nonce-1"))
	if second.Code != http.StatusUnauthorized {
		t.Fatalf("expected replay to be rejected, got %d", second.Code)
	}
	if rec := metrics.last(); rec.success || rec.reason != "nonce_replay" {
		t.Fatalf("expected replay metric, got %+v", rec)
	}
}

func TestRequireHMAC_Rejections(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	body := []byte(`{"templateName":"welcome"}`)

	cases := []struct {
		name   string
		build  func() *http.Request
		reason string
	}{
		{
			name: "tampered body",
			build: func() *http.Request {
				req := signedEmailRequest(t, body, now, "n1")
				req.Body = io.NopCloser(bytes.NewReader([]byte(`{"templateName":"orderShipped"}`)))
				return req
			},
			reason: "signature_mismatch",
		},
		{
			name: "stale timestamp",
			build: func() *http.Request {
				return signedEmailRequest(t, body, now.Add(-10*time.Minute), "n2")
			},
			reason: "timestamp_skew",
		},
		{
			name: "missing signature",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/internal/email", bytes.NewReader(body))
				req.Header.Set(TimestampHeader, strconv.FormatInt(now.Unix(), 10))
				req.Header.Set(NonceHeader, "n3")
				return req
			},
			reason: "signature_invalid",
		},
		{
			name: "missing nonce",
			build: func() *http.Request {
				req := signedEmailRequest(t, body, now, "n4")
				req.Header.Del(NonceHeader)
				return req
			},
			reason: "nonce_missing",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			metrics := &recordingMetrics{}
			validator := newTestHMACValidator(now, metrics)
			rr := httptest.NewRecorder()
			validator.RequireHMAC()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Errorf("handler should not run")
			})).ServeHTTP(rr, tc.build())

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			if rec := metrics.last(); rec.reason != tc.reason {
				t.Fatalf("expected reason %s, got %+v", tc.reason, rec)
			}
		})
	}
}

func TestRequireHMAC_UnconfiguredSecret(t *testing.T) {
	validator := NewHMACValidator("internal-email", "", NewInMemoryNonceStore())
	rr := httptest.NewRecorder()
	validator.RequireHMAC()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("handler should not run")
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/email", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestInMemoryNonceStoreExpiresEntries(t *testing.T) {
	store := NewInMemoryNonceStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, err := store.UseNonce(ctx, "s", "n", now.Add(time.Minute)); err != nil || !ok {
		t.Fatalf("expected first use to succeed, got %v %v", ok, err)
	}
	if ok, _ := store.UseNonce(ctx, "s", "n", now.Add(time.Minute)); ok {
		t.Fatalf("expected replay to be rejected")
	}
	if ok, _ := store.UseNonce(ctx, "other", "n", now.Add(time.Minute)); !ok {
		t.Fatalf("expected scopes to be independent")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := store.UseNonce(ctx, "s", "n", now.Add(time.Minute)); !ok {
		t.Fatalf("expected expired nonce to be reusable")
	}
}
