package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
)

type contextKey string

const identityKey contextKey = "identity"

// TokenCookie is the httpOnly cookie that may carry the bearer token.
const TokenCookie = "token"

// Identity is the authenticated caller attached to each request.
type Identity struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Email    string    `json:"email"`
	Role     Role      `json:"role"`
}

// UserLookup resolves a token subject to a current identity. Implementations
// return an apperr NotFound error (or pgx.ErrNoRows) when the user is gone.
type UserLookup interface {
	LookupIdentity(ctx context.Context, id uuid.UUID) (*Identity, error)
}

// UserLookupFunc adapts a function to UserLookup.
type UserLookupFunc func(ctx context.Context, id uuid.UUID) (*Identity, error)

func (f UserLookupFunc) LookupIdentity(ctx context.Context, id uuid.UUID) (*Identity, error) {
	return f(ctx, id)
}

// Verifier is the token verification half of TokenService.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// MiddlewareConfig configures Authenticate.
type MiddlewareConfig struct {
	Tokens  Verifier
	Users   UserLookup
	Skipper func(echo.Context) bool
}

// Authenticate resolves the bearer token (header first, then cookie) to a
// user and attaches the Identity to the request context. Every request pays
// one store lookup so deleted users are rejected immediately.
func Authenticate(cfg MiddlewareConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, err := extractToken(c)
			if err != nil {
				return err
			}

			claims, err := cfg.Tokens.Verify(tokenStr)
			if err != nil {
				return err
			}

			id, err := uuid.Parse(claims.Subject)
			if err != nil {
				return ErrInvalidToken
			}

			ctx := c.Request().Context()
			ident, err := cfg.Users.LookupIdentity(ctx, id)
			if err != nil {
				if k := apperr.KindOf(apperr.FromStore(err)); k == apperr.KindNotFound {
					return apperr.Unauthenticated("user no longer exists")
				}
				return err
			}
			if ident == nil {
				return apperr.Unauthenticated("user no longer exists")
			}

			c.Set("user_id", ident.ID.String())
			c.Set("user_role", string(ident.Role))
			c.SetRequest(c.Request().WithContext(WithIdentity(ctx, ident)))
			return next(c)
		}
	}
}

func extractToken(c echo.Context) (string, error) {
	if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", apperr.Unauthenticated("invalid authorization format")
		}
		return strings.TrimSpace(parts[1]), nil
	}
	if cookie, err := c.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	return "", apperr.Unauthenticated("authentication required")
}

// WithIdentity returns a copy of ctx carrying ident.
func WithIdentity(ctx context.Context, ident *Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// IdentityFromContext returns the authenticated caller, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	ident, _ := ctx.Value(identityKey).(*Identity)
	return ident
}

// ErrNoIdentity is returned by RequireIdentity when the request is anonymous.
var ErrNoIdentity = errors.New("no identity in context")

// RequireIdentity returns the caller or an Unauthenticated error.
func RequireIdentity(c echo.Context) (*Identity, error) {
	ident := IdentityFromContext(c.Request().Context())
	if ident == nil {
		return nil, apperr.Wrap(apperr.KindUnauthenticated, "authentication required", ErrNoIdentity)
	}
	return ident, nil
}
