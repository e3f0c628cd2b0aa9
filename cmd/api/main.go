package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/threadcart/storefront/internal/email"
	"github.com/threadcart/storefront/internal/geocoding"
	"github.com/threadcart/storefront/internal/handlers"
	"github.com/threadcart/storefront/internal/payments"
	"github.com/threadcart/storefront/internal/platform/auth"
	"github.com/threadcart/storefront/internal/platform/config"
	pfirestore "github.com/threadcart/storefront/internal/platform/firestore"
	"github.com/threadcart/storefront/internal/platform/idempotency"
	"github.com/threadcart/storefront/internal/platform/jobs"
	"github.com/threadcart/storefront/internal/platform/observability"
	"github.com/threadcart/storefront/internal/platform/secrets"
	platformstorage "github.com/threadcart/storefront/internal/platform/storage"
	"github.com/threadcart/storefront/internal/repositories"
	firestoreRepo "github.com/threadcart/storefront/internal/repositories/firestore"
	redisRepo "github.com/threadcart/storefront/internal/repositories/redis"
	"github.com/threadcart/storefront/internal/services"
	"github.com/threadcart/storefront/internal/shipping"
)

func main() {
	ctx := context.Background()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["API_LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	metrics, err := observability.NewMetrics(nil)
	if err != nil {
		logger.Fatal("failed to initialise metrics", zap.Error(err))
	}

	var providerOpts []pfirestore.ProviderOption
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(file)))
	}
	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, providerOpts...)
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()
	unitOfWork := pfirestore.NewUnitOfWork(firestoreProvider)

	repos, err := newFirestoreRepositories(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	redisClient := newRedisClient(cfg.Redis)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
	}

	firebaseClient, err := auth.NewFirebaseClient(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase client", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseClient)

	pubsubClient, err := newPubSubClient(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	if pubsubClient != nil {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	}

	eventLog := func(name string) func(context.Context, string, map[string]any) {
		return observability.EventLogger(logger.Named(name))
	}

	// Email: render locally, deliver through the hosted provider, optionally via a Pub/Sub queue.
	renderer, err := email.NewRenderer(email.RendererOptions{
		StoreName: cfg.Store.Name,
		StoreURL:  cfg.Store.URL,
		Currency:  cfg.Store.Currency,
	})
	if err != nil {
		logger.Fatal("failed to initialise email renderer", zap.Error(err))
	}
	sender, err := email.NewHTTPSender(email.HTTPSenderConfig{
		Endpoint: cfg.Email.Endpoint,
		APIKey:   cfg.Email.APIKey,
		From:     cfg.Email.From,
	})
	if err != nil {
		logger.Fatal("failed to initialise email sender", zap.Error(err))
	}
	emailDeps := services.EmailServiceDeps{
		Renderer: renderer,
		Sender:   sender,
		Logger:   eventLog("email"),
	}
	var orderEvents services.OrderEventPublisher
	if pubsubClient != nil {
		if topic := strings.TrimSpace(cfg.PubSub.EmailTopic); topic != "" {
			publisher, err := jobs.NewPubSubEmailPublisher(pubsubClient.Topic(topic))
			if err != nil {
				logger.Fatal("failed to initialise email publisher", zap.Error(err))
			}
			defer publisher.Stop()
			emailDeps.Publisher = publisher
		}
		if topic := strings.TrimSpace(cfg.PubSub.OrderEventsTopic); topic != "" {
			publisher, err := jobs.NewPubSubOrderEventPublisher(pubsubClient.Topic(topic))
			if err != nil {
				logger.Fatal("failed to initialise order event publisher", zap.Error(err))
			}
			defer publisher.Stop()
			orderEvents = publisher
		}
	}
	emailService, err := services.NewEmailService(emailDeps)
	if err != nil {
		logger.Fatal("failed to initialise email service", zap.Error(err))
	}

	// Pricing and catalog.
	var rates services.ShippingRateSource
	if strings.TrimSpace(cfg.Shipping.Email) != "" {
		shippingClient, err := shipping.NewClient(shipping.ClientConfig{
			BaseURL:        cfg.Shipping.BaseURL,
			Email:          cfg.Shipping.Email,
			Password:       cfg.Shipping.Password,
			PickupPostcode: cfg.Shipping.PickupPostcode,
			Logger:         shipping.Logger(eventLog("shipping")),
		})
		if err != nil {
			logger.Fatal("failed to initialise shipping client", zap.Error(err))
		}
		rates = shippingClient
		if redisClient != nil {
			cache, err := shipping.NewRedisCache(redisClient)
			if err != nil {
				logger.Fatal("failed to initialise shipping cache", zap.Error(err))
			}
			rates = shipping.NewCachingRates(shippingClient, cache, cfg.Shipping.CacheTTL, shipping.Logger(eventLog("shipping")))
		}
	}

	quoteTracker := services.NewQuoteTracker()
	pricingService, err := services.NewPricingService(services.PricingServiceDeps{
		Products: repos.products,
		Offers:   repos.offers,
		Shipping: rates,
		Tracker:  quoteTracker,
		Logger:   eventLog("pricing"),
	})
	if err != nil {
		logger.Fatal("failed to initialise pricing service", zap.Error(err))
	}

	catalogDeps := services.CatalogServiceDeps{
		Products: repos.products,
		Offers:   repos.offers,
		Reels:    repos.reels,
		Pricing:  pricingService,
		Logger:   eventLog("catalog"),
	}
	if uploader := newMediaUploader(logger, cfg.Storage); uploader != nil {
		catalogDeps.Uploader = uploader
	}
	catalogService, err := services.NewCatalogService(catalogDeps)
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	// Carts live in Redis when configured so every instance sees the same session.
	var cartStore services.CartStore = services.NewMemoryCartStore()
	if redisClient != nil {
		store, err := redisRepo.NewCartStore(redisClient, cfg.Redis.CartTTL)
		if err != nil {
			logger.Fatal("failed to initialise cart store", zap.Error(err))
		}
		cartStore = store
	} else {
		logger.Warn("redis not configured; carts are held in process memory")
	}
	cartService, err := services.NewCartService(services.CartServiceDeps{
		Store:    cartStore,
		Products: repos.products,
		Tracker:  quoteTracker,
		Logger:   eventLog("cart"),
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}

	// Accounts and addresses.
	addressDeps := services.AddressServiceDeps{
		Profiles: repos.profiles,
		Logger:   eventLog("address"),
	}
	if strings.TrimSpace(cfg.Geocoding.APIKey) != "" {
		geocoder, err := geocoding.NewClient(geocoding.Config{APIKey: cfg.Geocoding.APIKey, Endpoint: cfg.Geocoding.Endpoint})
		if err != nil {
			logger.Fatal("failed to initialise geocoder", zap.Error(err))
		}
		addressDeps.Geocoder = geocoder
	}
	addressService, err := services.NewAddressService(addressDeps)
	if err != nil {
		logger.Fatal("failed to initialise address service", zap.Error(err))
	}
	accountService, err := services.NewAccountService(services.AccountServiceDeps{
		Identities: firebaseClient,
		Profiles:   repos.profiles,
		Emails:     emailService,
		Logger:     eventLog("account"),
	})
	if err != nil {
		logger.Fatal("failed to initialise account service", zap.Error(err))
	}

	// Orders and checkout.
	orderFeed := services.NewPollingOrderFeed(repos.orders, cfg.Jobs.FeedPollInterval, eventLog("order_feed"))
	orderDeps := services.OrderServiceDeps{
		Orders:        repos.orders,
		Notifications: repos.notifications,
		Feed:          orderFeed,
		UnitOfWork:    unitOfWork,
		Emails:        emailService,
		Events:        orderEvents,
		Logger:        eventLog("orders"),
	}
	orderService, err := services.NewOrderService(orderDeps)
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	gateway, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:        cfg.PSP.StripeAPIKey,
		WebhookSecret: cfg.PSP.StripeWebhookSecret,
		AccountID:     cfg.PSP.StripeAccountID,
		Logger:        payments.StripeLogger(eventLog("payments")),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment gateway", zap.Error(err))
	}
	placementService, err := services.NewPlacementService(services.PlacementServiceDeps{
		Pricing:       pricingService,
		Carts:         cartService,
		Addresses:     addressService,
		Orders:        repos.orders,
		Payments:      repos.payments,
		Notifications: repos.notifications,
		Gateway:       gateway,
		UnitOfWork:    unitOfWork,
		Emails:        emailService,
		Events:        orderEvents,
		Currency:      cfg.Store.Currency,
		PaymentExpiry: cfg.Jobs.PaymentExpiry,
		Logger:        eventLog("checkout"),
	})
	if err != nil {
		logger.Fatal("failed to initialise placement service", zap.Error(err))
	}

	var idempotencyStore idempotency.Store = idempotency.NewFirestoreStore(firestoreProvider)
	if redisClient != nil {
		store, err := idempotency.NewRedisStore(redisClient)
		if err != nil {
			logger.Fatal("failed to initialise idempotency store", zap.Error(err))
		}
		idempotencyStore = store
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	readiness, err := repositories.NewReadiness(readinessProbes(firestoreProvider, redisClient), nil)
	if err != nil {
		logger.Fatal("failed to initialise readiness checks", zap.Error(err))
	}

	catalogHandlers := handlers.NewCatalogHandlers(authenticator, catalogService)
	accountHandlers := handlers.NewAccountHandlers(accountService, addressService)
	cartHandlers := handlers.NewCartHandlers(cartService, pricingService)
	meHandlers := handlers.NewMeHandlers(authenticator, addressService, orderService)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, placementService, handlers.WithCheckoutIdempotency(idempotencyMiddleware))
	adminOrderHandlers := handlers.NewAdminOrderHandlers(authenticator, orderService, placementService)
	webhookHandlers := handlers.NewWebhookHandlers(placementService)
	emailHandlers := handlers.NewEmailHandlers(emailService,
		handlers.WithEmailHMAC(buildEmailHMACMiddleware(logger.Named("auth"), cfg, redisClient, metrics)),
		handlers.WithEmailPushAuth(buildPushAuthMiddleware(logger.Named("auth"), cfg, metrics)),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.RequestIDMiddleware(),
			observability.TraceMiddleware(nil),
			observability.RequestLoggerMiddleware(logger.Named("http"), metrics),
			observability.RecoveryMiddleware(),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(handlers.WithHealthReadiness(readiness))),
		handlers.WithPublicRoutes(catalogHandlers.PublicRoutes, accountHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithMeRoutes(meHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithAdminRoutes(catalogHandlers.AdminRoutes, adminOrderHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithInternalRoutes(emailHandlers.Routes),
	)

	jobsCtx, jobsCancel := context.WithCancel(context.Background())
	var jobsWG sync.WaitGroup
	runPeriodic(jobsCtx, &jobsWG, cfg.Idempotency.CleanupInterval, func(ctx context.Context) {
		removed, err := idempotencyStore.CleanupExpired(ctx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
		if err != nil {
			logger.Error("idempotency cleanup error", zap.Error(err))
			return
		}
		if removed > 0 {
			logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
		}
	})
	runPeriodic(jobsCtx, &jobsWG, cfg.Jobs.ReconcileInterval, func(ctx context.Context) {
		result, err := placementService.ReconcilePayments(ctx, 0)
		if err != nil {
			logger.Error("payment reconciliation error", zap.Error(err))
			return
		}
		if len(result.Recovered) > 0 || len(result.Failed) > 0 || len(result.Expired) > 0 {
			logger.Info("payment reconciliation finished",
				zap.Int("examined", result.Examined),
				zap.Strings("recovered", result.Recovered),
				zap.Strings("expired", result.Expired),
				zap.Strings("failed", result.Failed),
			)
		}
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront api listening", zap.String("store", cfg.Store.Name))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	jobsCancel()
	jobsWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

type firestoreRepositories struct {
	products      *firestoreRepo.ProductRepository
	offers        *firestoreRepo.OfferRepository
	reels         *firestoreRepo.ReelRepository
	orders        *firestoreRepo.OrderRepository
	payments      *firestoreRepo.PendingPaymentRepository
	notifications *firestoreRepo.NotificationRepository
	profiles      *firestoreRepo.ProfileRepository
}

func newFirestoreRepositories(provider *pfirestore.Provider) (firestoreRepositories, error) {
	var (
		repos firestoreRepositories
		err   error
	)
	if repos.products, err = firestoreRepo.NewProductRepository(provider); err != nil {
		return repos, err
	}
	if repos.offers, err = firestoreRepo.NewOfferRepository(provider); err != nil {
		return repos, err
	}
	if repos.reels, err = firestoreRepo.NewReelRepository(provider); err != nil {
		return repos, err
	}
	if repos.orders, err = firestoreRepo.NewOrderRepository(provider); err != nil {
		return repos, err
	}
	if repos.payments, err = firestoreRepo.NewPendingPaymentRepository(provider); err != nil {
		return repos, err
	}
	if repos.notifications, err = firestoreRepo.NewNotificationRepository(provider); err != nil {
		return repos, err
	}
	if repos.profiles, err = firestoreRepo.NewProfileRepository(provider); err != nil {
		return repos, err
	}
	return repos, nil
}

func newRedisClient(cfg config.RedisConfig) *goredis.Client {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func newPubSubClient(ctx context.Context, cfg config.Config) (*pubsub.Client, error) {
	if cfg.PubSub.EmailTopic == "" && cfg.PubSub.OrderEventsTopic == "" {
		return nil, nil
	}
	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	return pubsub.NewClient(ctx, cfg.PubSub.ProjectID, opts...)
}

// newMediaUploader returns nil when no signer is configured; catalog uploads then report unavailable.
func newMediaUploader(logger *zap.Logger, cfg config.StorageConfig) *platformstorage.MediaUploader {
	if strings.TrimSpace(cfg.SignerAccount) == "" || strings.TrimSpace(cfg.MediaBucket) == "" {
		logger.Warn("storage signer not configured; media uploads disabled")
		return nil
	}
	signer, err := platformstorage.LoadServiceAccountSigner(cfg.SignerAccount)
	if err != nil {
		logger.Fatal("failed to load storage signer", zap.Error(err))
	}
	client, err := platformstorage.NewClient(signer)
	if err != nil {
		logger.Fatal("failed to initialise signed url client", zap.Error(err))
	}
	uploader, err := platformstorage.NewMediaUploader(client, platformstorage.MediaUploaderConfig{
		Bucket:        cfg.MediaBucket,
		PublicBaseURL: cfg.PublicBaseURL,
		MaxImageBytes: cfg.MaxImageBytes,
		MaxVideoBytes: cfg.MaxVideoBytes,
		Expiry:        cfg.UploadExpiry,
	})
	if err != nil {
		logger.Fatal("failed to initialise media uploader", zap.Error(err))
	}
	return uploader
}

func readinessProbes(provider *pfirestore.Provider, redisClient *goredis.Client) []repositories.Probe {
	probes := []repositories.Probe{
		{Name: "firestore", Timeout: 2 * time.Second, Check: provider.Ping},
	}
	if redisClient != nil {
		probes = append(probes, repositories.Probe{
			Name:    "redis",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}
	return probes
}

// buildEmailHMACMiddleware guards the direct email endpoint. Nonces are shared through Redis when available.
func buildEmailHMACMiddleware(logger *zap.Logger, cfg config.Config, redisClient *goredis.Client, metrics *observability.Metrics) func(http.Handler) http.Handler {
	secret := strings.TrimSpace(cfg.Security.HMAC.EmailSecret)
	if secret == "" {
		logger.Warn("auth: email hmac secret not configured; direct email endpoint is unauthenticated")
		return nil
	}

	var nonces auth.NonceStore = auth.NewInMemoryNonceStore()
	if redisClient != nil {
		store, err := redisRepo.NewNonceStore(redisClient)
		if err != nil {
			logger.Fatal("failed to initialise nonce store", zap.Error(err))
		}
		nonces = store
	}

	validator := auth.NewHMACValidator("email", secret, nonces,
		auth.WithHMACLogger(logger),
		auth.WithHMACMetrics(metrics),
		auth.WithHMACClockSkew(cfg.Security.HMAC.ClockSkew),
	)
	return validator.RequireHMAC()
}

func buildPushAuthMiddleware(logger *zap.Logger, cfg config.Config, metrics *observability.Metrics) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	if strings.TrimSpace(cfg.Security.OIDC.Audience) == "" {
		logger.Warn("auth: OIDC audience not configured; push deliveries will be rejected")
	}

	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL)
	validator := auth.NewPushAuthValidator(cache, auth.PushAuthConfig{
		Audience:       cfg.Security.OIDC.Audience,
		ServiceAccount: cfg.Security.OIDC.ServiceAccount,
		Issuers:        cfg.Security.OIDC.Issuers,
	},
		auth.WithPushAuthLogger(logger),
		auth.WithPushAuthMetrics(metrics),
	)
	return validator.RequirePushAuth()
}

// runPeriodic calls fn every interval until ctx is cancelled. A non-positive interval disables the job.
func runPeriodic(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(ctx, time.Minute)
				fn(runCtx)
				cancel()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if file := lookup("API_FIREBASE_CREDENTIALS_FILE"); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists secrets that must resolve to a value before the API can serve.
func requiredSecretNames(env map[string]string) []string {
	required := []string{
		"PSP.StripeAPIKey",
		"PSP.StripeWebhookSecret",
		"Email.APIKey",
	}
	if strings.TrimSpace(env["API_SHIPPING_EMAIL"]) != "" {
		required = append(required, "Shipping.Password")
	}
	if strings.TrimSpace(env["API_REDIS_PASSWORD"]) != "" {
		required = append(required, "Redis.Password")
	}
	return required
}
