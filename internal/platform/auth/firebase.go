package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/threadcart/storefront/internal/platform/config"
)

const defaultFirebaseTimeout = 5 * time.Second

// FirebaseClient wraps the Admin SDK for token verification and shopper registration.
type FirebaseClient struct {
	client  *firebaseauth.Client
	timeout time.Duration
}

// FirebaseOption customises FirebaseClient instances.
type FirebaseOption func(*FirebaseClient)

// WithFirebaseTimeout overrides the timeout used for Admin SDK calls.
func WithFirebaseTimeout(d time.Duration) FirebaseOption {
	return func(c *FirebaseClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewFirebaseClient initialises the Admin SDK for the configured project.
func NewFirebaseClient(ctx context.Context, cfg config.FirebaseConfig, opts ...FirebaseOption) (*FirebaseClient, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}

	client := &FirebaseClient{client: authClient, timeout: defaultFirebaseTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// VerifyIDToken checks the token signature, expiry and revocation state.
func (c *FirebaseClient) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("firebase client not initialised")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
}

// CreateUser registers an email and password account and returns its uid.
// Failures come back classified as *Error.
func (c *FirebaseClient) CreateUser(ctx context.Context, email, password, displayName string) (string, error) {
	if c == nil || c.client == nil {
		return "", NewError(CodeInternal, errors.New("firebase client not initialised"))
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := (&firebaseauth.UserToCreate{}).
		Email(email).
		Password(password)
	if name := strings.TrimSpace(displayName); name != "" {
		params = params.DisplayName(name)
	}
	record, err := c.client.CreateUser(ctx, params)
	if err != nil {
		return "", ClassifyFirebaseError(err)
	}
	return record.UID, nil
}
