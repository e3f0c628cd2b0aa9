package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	domain "github.com/threadcart/storefront/internal/domain"
	"github.com/threadcart/storefront/internal/email"
	"github.com/threadcart/storefront/internal/platform/auth"
	"github.com/threadcart/storefront/internal/repositories"
)

const minPasswordLength = 6

// ErrAccountInvalidInput signals a registration request missing required fields.
var ErrAccountInvalidInput = errors.New("account: invalid input")

// IdentityProvider creates storefront users in the hosted identity service.
type IdentityProvider interface {
	CreateUser(ctx context.Context, emailAddress, password, displayName string) (string, error)
}

// AccountServiceDeps bundles collaborators required by the account service.
type AccountServiceDeps struct {
	Identities IdentityProvider
	Profiles   repositories.ProfileRepository
	Emails     EmailQueue
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type accountService struct {
	identities IdentityProvider
	profiles   repositories.ProfileRepository
	emails     EmailQueue
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewAccountService constructs the account service.
func NewAccountService(deps AccountServiceDeps) (AccountService, error) {
	if deps.Identities == nil {
		return nil, errors.New("account service: identity provider is required")
	}
	if deps.Profiles == nil {
		return nil, errors.New("account service: profile repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &accountService{
		identities: deps.Identities,
		profiles:   deps.Profiles,
		emails:     deps.Emails,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Register creates the identity, then the profile and welcome email on a best-effort basis.
// Provider failures are returned as *auth.Error so callers can show the mapped message.
func (s *accountService) Register(ctx context.Context, cmd RegisterCommand) (domain.Profile, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return domain.Profile{}, fmt.Errorf("%w: name is required", ErrAccountInvalidInput)
	}
	address := strings.TrimSpace(cmd.Email)
	parsed, err := mail.ParseAddress(address)
	if address == "" || err != nil || parsed.Address != address {
		return domain.Profile{}, auth.NewError(auth.CodeInvalidEmail, fmt.Errorf("%w: email %q", ErrAccountInvalidInput, address))
	}
	if len(cmd.Password) < minPasswordLength {
		return domain.Profile{}, auth.NewError(auth.CodeWeakPassword, fmt.Errorf("%w: password too short", ErrAccountInvalidInput))
	}

	uid, err := s.identities.CreateUser(ctx, address, cmd.Password, name)
	if err != nil {
		return domain.Profile{}, auth.ClassifyFirebaseError(err)
	}

	now := s.clock()
	profile := domain.Profile{
		UserID:    uid,
		Name:      name,
		Email:     address,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.profiles.Save(ctx, profile); err != nil {
		s.logger(ctx, "account.profile.save.failed", map[string]any{
			"user":  uid,
			"error": err.Error(),
		})
	}

	if s.emails != nil {
		msg := EmailMessage{
			To:       address,
			Template: email.TemplateWelcome,
			Props:    map[string]any{"name": name},
		}
		if err := s.emails.Enqueue(ctx, msg); err != nil {
			s.logger(ctx, "account.email.enqueue.failed", map[string]any{
				"user":  uid,
				"error": err.Error(),
			})
		}
	}
	return profile, nil
}
