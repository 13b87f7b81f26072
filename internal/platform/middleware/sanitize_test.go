package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
)

func runSanitize(req *http.Request) error {
	e := echo.New()
	c := e.NewContext(req, httptest.NewRecorder())
	return Sanitize(zerolog.Nop())(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
}

func TestSanitize_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		build func() *http.Request
	}{
		{"path traversal", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/uploads/x", nil)
			r.URL.Path = "/uploads/../config.env"
			return r
		}},
		{"encoded traversal", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/uploads/x", nil)
			r.URL.RawPath = "/uploads/%2e%2e/secret"
			return r
		}},
		{"null byte", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/uploads/x", nil)
			r.URL.Path = "/uploads/a\x00.png"
			return r
		}},
		{"script in query", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/api/v1/patients?search=%3Cscript%3E", nil)
		}},
		{"header injection", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
			r.Header["X-Test"] = []string{"a\r\nSet-Cookie: x"}
			return r
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runSanitize(tt.build())
			if !apperr.Is(err, apperr.KindInvalidInput) {
				t.Errorf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestSanitize_AllowsNormalRequests(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients?search=O%27Brien&page=2", nil)
	if err := runSanitize(req); err != nil {
		t.Errorf("unexpected rejection: %v", err)
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Penicillin\x00 ", "Penicillin"},
		{"line1\nline2\tend", "line1\nline2\tend"},
		{"bell\x07", "bell"},
	}
	for _, tt := range tests {
		if got := CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
