package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// RequireRole returns middleware that admits only callers whose role is in
// roles. It must run after Authenticate.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	allowed := make(map[Role]struct{}, len(roles))
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
		names = append(names, string(r))
	}
	msg := "required role: " + strings.Join(names, " or ")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ident, err := RequireIdentity(c)
			if err != nil {
				return err
			}
			if _, ok := allowed[ident.Role]; !ok {
				return apperr.Forbidden(msg)
			}
			return next(c)
		}
	}
}

// RequireCapability guards a route by the capability table.
func RequireCapability(cap Capability) echo.MiddlewareFunc {
	return RequireRole(RolesWith(cap)...)
}
