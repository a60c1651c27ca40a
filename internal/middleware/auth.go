// internal/middleware/auth.go
package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gurkanbulca/taskassign/internal/models"
	"github.com/gurkanbulca/taskassign/internal/policy"
	"github.com/gurkanbulca/taskassign/pkg/auth"
)

// Session is the identity attached to an authenticated request.
type Session struct {
	UserID    string
	Email     string
	Role      models.Role
	ExpiresAt time.Time
}

// Expired reports whether the credential behind s is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Requester converts the session into the identity the policy engine uses.
func (s Session) Requester() policy.Requester {
	return policy.Requester{ID: s.UserID, Role: s.Role}
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ContextKeySession, s)
}

// SessionFromContext returns the session stored by RequireAuth.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ContextKeySession).(Session)
	return s, ok
}

// CurrentSession returns the session stored on c by RequireAuth.
func CurrentSession(c *fiber.Ctx) (Session, bool) {
	s, ok := c.Locals(LocalsSession).(Session)
	return s, ok
}

// AccessTokenValidator is satisfied by *auth.TokenManager.
type AccessTokenValidator interface {
	ValidateAccessToken(token string) (*auth.CustomClaims, error)
}

// Authenticator turns bearer tokens into sessions.
type Authenticator struct {
	tokens AccessTokenValidator
	now    func() time.Time
}

func NewAuthenticator(tokens AccessTokenValidator) *Authenticator {
	return &Authenticator{tokens: tokens, now: time.Now}
}

// Identify validates token and returns the identity it carries. Expired,
// forged and malformed tokens, as well as tokens naming an unknown role, all
// yield policy.ErrInvalidCredential.
func (a *Authenticator) Identify(token string) (Session, error) {
	if token == "" {
		return Session{}, fmt.Errorf("%w: missing token", policy.ErrInvalidCredential)
	}

	claims, err := a.tokens.ValidateAccessToken(token)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", policy.ErrInvalidCredential, err)
	}

	// ParseRole maps "" to employee, which must not happen for a token.
	if claims.Role == "" {
		return Session{}, fmt.Errorf("%w: missing role", policy.ErrInvalidCredential)
	}
	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", policy.ErrInvalidCredential, err)
	}

	s := Session{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Role:      role,
		ExpiresAt: claims.Expiry(),
	}
	if s.Expired(a.now()) {
		return Session{}, fmt.Errorf("%w: %v", policy.ErrInvalidCredential, auth.ErrExpiredToken)
	}
	return s, nil
}

// RequireAuth rejects requests without a valid bearer token. On success the
// session is stored both in c.Locals and in the request's user context.
func (a *Authenticator) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := auth.ExtractTokenFromHeader(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return fmt.Errorf("%w: %v", policy.ErrInvalidCredential, err)
		}

		s, err := a.Identify(token)
		if err != nil {
			return err
		}

		c.Locals(LocalsSession, s)
		c.SetUserContext(WithSession(c.UserContext(), s))
		return c.Next()
	}
}

// RequireRole only lets sessions with one of roles through. It must run after
// RequireAuth.
func RequireRole(roles ...models.Role) fiber.Handler {
	allowed := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *fiber.Ctx) error {
		s, ok := CurrentSession(c)
		if !ok {
			return policy.ErrInvalidCredential
		}
		if !allowed[s.Role] {
			return policy.ErrAccessDenied
		}
		return c.Next()
	}
}
