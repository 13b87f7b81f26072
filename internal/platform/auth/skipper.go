package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths lists route paths that bypass authentication.
var publicPaths = map[string]bool{
	"/health":                      true,
	"/health/db":                   true,
	"/metrics":                     true,
	"/api/v1/auth/register":        true,
	"/api/v1/auth/login":           true,
	"/api/v1/auth/logout":          true,
	"/api/v1/auth/google":          true,
	"/api/v1/auth/google/callback": true,
}

// publicPrefixes are path prefixes served without credentials.
var publicPrefixes = []string{
	"/uploads/",
}

// AuthSkipper returns true for requests whose path should skip authentication.
func AuthSkipper(c echo.Context) bool {
	if publicPaths[c.Path()] {
		return true
	}
	return IsPublicPath(c.Request().URL.Path)
}

// IsPublicPath reports whether the given path is public.
func IsPublicPath(path string) bool {
	if publicPaths[path] {
		return true
	}
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
