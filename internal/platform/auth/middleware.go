package auth

import (
	"context"
	"net/http"
	"slices"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/threadcart/storefront/internal/platform/httpx"
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator turns Firebase ID tokens into request identities.
type Authenticator struct {
	verifier  TokenVerifier
	roleClaim string
}

type Option func(*Authenticator)

// WithRoleClaim changes the custom claim holding the role list. Defaults to "role".
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{verifier: verifier, roleClaim: "role"}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth admits requests carrying a valid bearer ID token. With roles, the
// identity must also hold at least one of them.
func (a *Authenticator) RequireFirebaseAuth(roles ...string) func(http.Handler) http.Handler {
	required := make([]string, 0, len(roles))
	for _, role := range roles {
		if role = normaliseRole(role); role != "" {
			required = append(required, role)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			idToken, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(ctx, w, http.StatusUnauthorized, CodeInvalidCredential, "Please sign in to continue.")
				return
			}
			if a == nil || a.verifier == nil {
				respondAuthError(ctx, w, http.StatusServiceUnavailable, CodeInternal, DefaultErrorMessage)
				return
			}

			token, err := a.verifier.VerifyIDToken(ctx, idToken)
			if err != nil {
				failure := ClassifyFirebaseError(err)
				// Only token-specific codes are worth surfacing; anything else reads as a bad credential.
				if failure.Code == CodeInternal || failure.Code == CodeWeakPassword {
					failure.Code = CodeInvalidCredential
				}
				respondAuthError(ctx, w, http.StatusUnauthorized, failure.Code, failure.Message())
				return
			}

			identity := tokenClaims(token.Claims).identity(token.UID, a.roleClaim)
			if len(required) > 0 && !slices.ContainsFunc(required, identity.HasRole) {
				respondAuthError(ctx, w, http.StatusForbidden, "insufficient_role", "You do not have access to this page.")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

// tokenClaims reads the Firebase claims the storefront relies on.
type tokenClaims map[string]any

func (c tokenClaims) str(key string) string {
	v, _ := c[key].(string)
	return strings.TrimSpace(v)
}

// roles accepts a single role string or a list, lower-cased and de-duplicated.
func (c tokenClaims) roles(key string) []string {
	var raw []string
	switch v := c[key].(type) {
	case string:
		raw = append(raw, v)
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}
	out := make([]string, 0, len(raw)+2)
	for _, role := range raw {
		if role = normaliseRole(role); role != "" && !slices.Contains(out, role) {
			out = append(out, role)
		}
	}
	return out
}

// identity builds the request identity. Every signed-in user is a customer; the boolean
// "admin" claim set by the console grants the admin role as well.
func (c tokenClaims) identity(uid, roleClaim string) *Identity {
	roles := c.roles(roleClaim)
	if flag, _ := c["admin"].(bool); flag && !slices.Contains(roles, RoleAdmin) {
		roles = append(roles, RoleAdmin)
	}
	if !slices.Contains(roles, RoleCustomer) {
		roles = append(roles, RoleCustomer)
	}
	return &Identity{UID: uid, Email: c.str("email"), Name: c.str("name"), Roles: roles}
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}
