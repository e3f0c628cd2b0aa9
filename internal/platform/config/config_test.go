package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func load(t *testing.T, env map[string]string, opts ...Option) (Config, error) {
	t.Helper()
	base := []Option{WithEnvMap(env), WithoutSystemEnv(), WithEnvFile("")}
	return Load(context.Background(), append(base, opts...)...)
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := load(t, map[string]string{"API_FIREBASE_PROJECT_ID": "threadcart-dev"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" || cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Firestore.ProjectID != "threadcart-dev" || cfg.PubSub.ProjectID != "threadcart-dev" {
		t.Errorf("expected projects to default to firebase project, got %s / %s", cfg.Firestore.ProjectID, cfg.PubSub.ProjectID)
	}
	if cfg.Store.Currency != "INR" || cfg.Store.Name != defaultStoreName {
		t.Errorf("unexpected store defaults %+v", cfg.Store)
	}
	if cfg.Redis.Addr != "" || cfg.Redis.CartTTL != defaultCartTTL {
		t.Errorf("unexpected redis defaults %+v", cfg.Redis)
	}
	if cfg.Shipping.BaseURL != defaultShippingBaseURL || cfg.Shipping.CacheTTL != defaultShippingCacheTTL {
		t.Errorf("unexpected shipping defaults %+v", cfg.Shipping)
	}
	if cfg.Security.OIDC.JWKSURL != defaultOIDCJWKSURL || len(cfg.Security.OIDC.Issuers) != 0 {
		t.Errorf("unexpected oidc defaults %+v", cfg.Security.OIDC)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader || cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected idempotency defaults %+v", cfg.Idempotency)
	}
	if cfg.Jobs.ReconcileInterval != defaultReconcileInterval || cfg.Jobs.PaymentExpiry != defaultPaymentExpiry {
		t.Errorf("unexpected jobs defaults %+v", cfg.Jobs)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                   "9090",
		"API_SERVER_IDLE_TIMEOUT":           "2m",
		"API_FIREBASE_PROJECT_ID":           "threadcart-prod",
		"API_STORE_CURRENCY":                "usd",
		"API_REDIS_ADDR":                    "redis:6379",
		"API_REDIS_DB":                      "2",
		"API_STORAGE_MEDIA_BUCKET":          "threadcart-media",
		"API_STORAGE_SIGNER_ACCOUNT":        "secret://storage/signer",
		"API_PUBSUB_EMAIL_TOPIC":            "email-jobs",
		"API_PSP_STRIPE_API_KEY":            "secret://stripe/api",
		"API_PSP_STRIPE_WEBHOOK_SECRET":     "sm://stripe/webhook",
		"API_SHIPPING_EMAIL":                "ops@threadcart.in",
		"API_SHIPPING_PASSWORD":             "secret://shipping/password",
		"API_SHIPPING_PICKUP_POSTCODE":      "560001",
		"API_EMAIL_API_KEY":                 "secret://email/key",
		"API_EMAIL_FROM":                    "Threadcart <orders@threadcart.in>",
		"API_SECURITY_OIDC_AUDIENCE":        "https://api.threadcart.in/internal/pubsub/email",
		"API_SECURITY_OIDC_ISSUERS":         "https://accounts.google.com, accounts.google.com",
		"API_SECURITY_HMAC_EMAIL_SECRET":    "secret://hmac/email",
		"API_SECURITY_HMAC_CLOCK_SKEW":      "3m",
		"API_IDEMPOTENCY_CLEANUP_BATCH":     "500",
		"API_JOBS_RECONCILE_INTERVAL":       "1m",
	}
	secrets := map[string]string{
		"secret://storage/signer":    `{"client_email":"signer@threadcart.iam.gserviceaccount.com"}`,
		"secret://stripe/api":        "sk_live_x",
		"secret://stripe/webhook":    "whsec_x",
		"secret://shipping/password": "pw",
		"secret://email/key":         "re_x",
		"secret://hmac/email":        "hmac-secret",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := load(t, env, WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Store.Currency != "USD" {
		t.Errorf("expected upper-cased currency, got %s", cfg.Store.Currency)
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("unexpected redis db %d", cfg.Redis.DB)
	}
	if cfg.PSP.StripeAPIKey != "sk_live_x" || cfg.PSP.StripeWebhookSecret != "whsec_x" {
		t.Errorf("expected resolved stripe secrets, got %+v", cfg.PSP)
	}
	if cfg.Shipping.Password != "pw" || cfg.Email.APIKey != "re_x" {
		t.Errorf("expected resolved integration secrets")
	}
	if cfg.Security.HMAC.EmailSecret != "hmac-secret" || cfg.Security.HMAC.ClockSkew != 3*time.Minute {
		t.Errorf("unexpected hmac config %+v", cfg.Security.HMAC)
	}
	if !slices.Equal(cfg.Security.OIDC.Issuers, []string{"https://accounts.google.com", "accounts.google.com"}) {
		t.Errorf("unexpected issuers %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.CleanupBatchSize != 500 || cfg.Jobs.ReconcileInterval != time.Minute {
		t.Errorf("unexpected overrides %+v %+v", cfg.Idempotency, cfg.Jobs)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env.test")
	content := "# local\nexport API_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=\"threadcart-dot\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv(),
		WithEnvMap(map[string]string{"API_SERVER_PORT": "6060"}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected explicit map to win over dotenv, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "threadcart-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadValidation(t *testing.T) {
	env := map[string]string{
		"API_STORE_CURRENCY":       "RUPEES",
		"API_STORAGE_MEDIA_BUCKET": "media",
		"API_SHIPPING_EMAIL":       "ops@threadcart.in",
		"API_PUBSUB_EMAIL_TOPIC":   "email-jobs",
	}
	_, err := load(t, env)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := []string{
		"Firebase.ProjectID",
		"Store.Currency",
		"Storage.SignerAccount",
		"Shipping.Credentials",
		"Shipping.PickupPostcode",
		"Security.OIDC.Audience",
	}
	if got := validation.Fields(); !slices.Equal(got, want) {
		t.Fatalf("unexpected fields %v", got)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "threadcart-dev",
		"API_PSP_STRIPE_API_KEY":  "secret://missing",
	}
	_, err := load(t, env)
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRETS_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}
	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_REDIS_ADDR", "localhost:6379")

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
	}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}
	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRETS_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv value, got %s", got)
	}
	if got := values["API_REDIS_ADDR"]; got != "localhost:6379" {
		t.Fatalf("expected system env value, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{"API_FIREBASE_PROJECT_ID": "threadcart-dev"}

	_, err := load(t, env, WithRequiredSecrets("PSP.StripeWebhookSecret"))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != redactSecretName("PSP.StripeWebhookSecret") {
		t.Fatalf("unexpected redacted names %v", got)
	}

	defer func() {
		rec := recover()
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if names := missing.Names(); len(names) != 1 || names[0] != "PSP.StripeWebhookSecret" {
			t.Fatalf("unexpected missing secrets %v", names)
		}
	}()
	_, _ = load(t, env, WithRequiredSecrets("PSP.StripeWebhookSecret"), WithPanicOnMissingSecrets())
}

func TestLoadRejectsUnparseableValues(t *testing.T) {
	_, err := load(t, map[string]string{
		"API_FIREBASE_PROJECT_ID": "threadcart-dev",
		"API_SERVER_READ_TIMEOUT": "fifteen",
		"API_REDIS_DB":            "two",
		"API_STORE_NAME":          "  ",
	})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := []string{"API_SERVER_READ_TIMEOUT", "API_REDIS_DB"}
	if got := validation.Fields(); !slices.Equal(got, want) {
		t.Fatalf("unexpected fields %v", got)
	}
}
