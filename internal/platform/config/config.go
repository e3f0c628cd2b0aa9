package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultShutdownTimeout   = 20 * time.Second
	defaultLogLevel          = "info"
	defaultCurrency          = "INR"
	defaultStoreName         = "Threadcart"
	defaultShippingBaseURL   = "https://apiv2.shiprocket.in/v1/external"
	defaultShippingCacheTTL  = 10 * time.Minute
	defaultGeocodingEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"
	defaultEmailEndpoint     = "https://api.resend.com/emails"
	defaultCartTTL           = 30 * 24 * time.Hour
	defaultUploadExpiry      = 15 * time.Minute
	defaultMaxImageBytes     = 10 << 20
	defaultMaxVideoBytes     = 200 << 20
	defaultOIDCJWKSURL       = "https://www.googleapis.com/oauth2/v3/certs"
	defaultHMACClockSkew     = 5 * time.Minute
	defaultIdempotencyHeader = "Idempotency-Key"
	defaultIdempotencyTTL    = 24 * time.Hour
	defaultCleanupInterval   = time.Hour
	defaultCleanupBatchSize  = 200
	defaultReconcileInterval = 10 * time.Minute
	defaultPaymentExpiry     = 24 * time.Hour
	defaultFeedPollInterval  = 5 * time.Second
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Store       StoreConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Redis       RedisConfig
	Storage     StorageConfig
	PubSub      PubSubConfig
	PSP         PSPConfig
	Shipping    ShippingConfig
	Geocoding   GeocodingConfig
	Email       EmailConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
	Jobs        JobsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
}

// StoreConfig carries storefront-wide settings shown to customers.
type StoreConfig struct {
	Name     string
	URL      string
	Currency string
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// RedisConfig points at the cart session and quote cache. An empty Addr keeps carts in memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CartTTL  time.Duration
}

// StorageConfig configures signed media uploads.
type StorageConfig struct {
	MediaBucket   string
	PublicBaseURL string
	SignerAccount string
	UploadExpiry  time.Duration
	MaxImageBytes int64
	MaxVideoBytes int64
}

// PubSubConfig names the topics the API publishes to. Empty topics disable publishing.
type PubSubConfig struct {
	ProjectID        string
	EmailTopic       string
	OrderEventsTopic string
}

// PSPConfig collects payment provider secrets.
type PSPConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
	StripeAccountID     string
}

// ShippingConfig configures the courier rate aggregator.
type ShippingConfig struct {
	BaseURL        string
	Email          string
	Password       string
	PickupPostcode string
	CacheTTL       time.Duration
}

// GeocodingConfig configures reverse geocoding.
type GeocodingConfig struct {
	APIKey   string
	Endpoint string
}

// EmailConfig configures the hosted email provider.
type EmailConfig struct {
	Endpoint string
	APIKey   string
	From     string
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	OIDC OIDCConfig
	HMAC HMACConfig
}

// OIDCConfig controls verification of Pub/Sub push tokens.
type OIDCConfig struct {
	JWKSURL        string
	Audience       string
	ServiceAccount string
	Issuers        []string
}

// HMACConfig captures signing expectations for /internal/email.
type HMACConfig struct {
	EmailSecret string
	ClockSkew   time.Duration
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// JobsConfig schedules background loops. PaymentExpiry is how long an unconfirmed online
// payment stays open before reconciliation marks it failed.
type JobsConfig struct {
	ReconcileInterval time.Duration
	PaymentExpiry     time.Duration
	FeedPollInterval  time.Duration
}

// Load builds the configuration from defaults, the .env file, the process environment and
// explicit overrides, in increasing precedence. Values written as secret:// or sm://
// references are resolved through the configured SecretResolver.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	values, err := options.environment()
	if err != nil {
		return Config{}, err
	}
	env := &reader{values: values}

	cfg := Config{
		Server: ServerConfig{
			Port:            env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:     env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: env.duration("API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
			LogLevel:        env.str("API_LOG_LEVEL", defaultLogLevel),
		},
		Store: StoreConfig{
			Name:     env.str("API_STORE_NAME", defaultStoreName),
			URL:      env.str("API_STORE_URL", ""),
			Currency: strings.ToUpper(env.str("API_STORE_CURRENCY", defaultCurrency)),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Redis: RedisConfig{
			Addr:     env.str("API_REDIS_ADDR", ""),
			Password: env.str("API_REDIS_PASSWORD", ""),
			DB:       env.integer("API_REDIS_DB", 0),
			CartTTL:  env.duration("API_REDIS_CART_TTL", defaultCartTTL),
		},
		Storage: StorageConfig{
			MediaBucket:   env.str("API_STORAGE_MEDIA_BUCKET", ""),
			PublicBaseURL: env.str("API_STORAGE_PUBLIC_BASE_URL", ""),
			SignerAccount: env.str("API_STORAGE_SIGNER_ACCOUNT", ""),
			UploadExpiry:  env.duration("API_STORAGE_UPLOAD_EXPIRY", defaultUploadExpiry),
			MaxImageBytes: int64(env.integer("API_STORAGE_MAX_IMAGE_BYTES", defaultMaxImageBytes)),
			MaxVideoBytes: int64(env.integer("API_STORAGE_MAX_VIDEO_BYTES", defaultMaxVideoBytes)),
		},
		PubSub: PubSubConfig{
			EmailTopic:       env.str("API_PUBSUB_EMAIL_TOPIC", ""),
			OrderEventsTopic: env.str("API_PUBSUB_ORDER_EVENTS_TOPIC", ""),
		},
		PSP: PSPConfig{
			StripeAPIKey:        env.str("API_PSP_STRIPE_API_KEY", ""),
			StripeWebhookSecret: env.str("API_PSP_STRIPE_WEBHOOK_SECRET", ""),
			StripeAccountID:     env.str("API_PSP_STRIPE_ACCOUNT_ID", ""),
		},
		Shipping: ShippingConfig{
			BaseURL:        env.str("API_SHIPPING_BASE_URL", defaultShippingBaseURL),
			Email:          env.str("API_SHIPPING_EMAIL", ""),
			Password:       env.str("API_SHIPPING_PASSWORD", ""),
			PickupPostcode: env.str("API_SHIPPING_PICKUP_POSTCODE", ""),
			CacheTTL:       env.duration("API_SHIPPING_CACHE_TTL", defaultShippingCacheTTL),
		},
		Geocoding: GeocodingConfig{
			APIKey:   env.str("API_GEOCODING_API_KEY", ""),
			Endpoint: env.str("API_GEOCODING_ENDPOINT", defaultGeocodingEndpoint),
		},
		Email: EmailConfig{
			Endpoint: env.str("API_EMAIL_ENDPOINT", defaultEmailEndpoint),
			APIKey:   env.str("API_EMAIL_API_KEY", ""),
			From:     env.str("API_EMAIL_FROM", ""),
		},
		Security: SecurityConfig{
			OIDC: OIDCConfig{
				JWKSURL:        env.str("API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:       env.str("API_SECURITY_OIDC_AUDIENCE", ""),
				ServiceAccount: env.str("API_SECURITY_OIDC_SERVICE_ACCOUNT", ""),
				Issuers:        env.list("API_SECURITY_OIDC_ISSUERS"),
			},
			HMAC: HMACConfig{
				EmailSecret: env.str("API_SECURITY_HMAC_EMAIL_SECRET", ""),
				ClockSkew:   env.duration("API_SECURITY_HMAC_CLOCK_SKEW", defaultHMACClockSkew),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           env.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              env.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  env.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultCleanupInterval),
			CleanupBatchSize: env.integer("API_IDEMPOTENCY_CLEANUP_BATCH", defaultCleanupBatchSize),
		},
		Jobs: JobsConfig{
			ReconcileInterval: env.duration("API_JOBS_RECONCILE_INTERVAL", defaultReconcileInterval),
			PaymentExpiry:     env.duration("API_JOBS_PAYMENT_EXPIRY", defaultPaymentExpiry),
			FeedPollInterval:  env.duration("API_JOBS_FEED_POLL_INTERVAL", defaultFeedPollInterval),
		},
	}
	// Firestore and Pub/Sub live in the Firebase project unless pointed elsewhere.
	cfg.Firestore = FirestoreConfig{
		ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", cfg.Firebase.ProjectID),
		EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
	}
	cfg.PubSub.ProjectID = env.str("API_PUBSUB_PROJECT_ID", cfg.Firebase.ProjectID)

	resolved, err := resolveSecretFields(ctx, &cfg, options.secret)
	if err != nil {
		return Config{}, err
	}

	if invalid := append(env.invalid, validate(cfg)...); len(invalid) > 0 {
		return Config{}, &ValidationError{fields: invalid}
	}

	if missing := missingSecrets(options.requiredSecrets, resolved); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}
	return cfg, nil
}
