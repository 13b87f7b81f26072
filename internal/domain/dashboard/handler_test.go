package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

func get(t *testing.T, h echo.HandlerFunc, id *auth.Identity) (*httptest.ResponseRecorder, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), id))
	}
	rec := httptest.NewRecorder()
	return rec, h(echo.New().NewContext(req, rec))
}

func TestHandler_Stats_OmitsRevenueForNurse(t *testing.T) {
	h := NewHandler(newFixture().svc)
	rec, err := get(t, h.Stats, ident(auth.RoleNurse))
	if err != nil {
		t.Fatal(err)
	}

	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if _, ok := body.Data["revenue"]; ok {
		t.Error("revenue should be omitted")
	}
	if _, ok := body.Data["today_appointments"]; !ok {
		t.Error("today_appointments missing")
	}
}

func TestHandler_Stats_Anonymous(t *testing.T) {
	h := NewHandler(newFixture().svc)
	_, err := get(t, h.Stats, nil)
	if !apperr.Is(err, apperr.KindUnauthenticated) {
		t.Errorf("expected unauthenticated, got %v", err)
	}
}

func TestRoutes_RevenueDataGuard(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		status, env := apperr.Translate(err)
		_ = c.JSON(status, env)
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := auth.Role(c.Request().Header.Get("X-Role"))
			r := c.Request()
			c.SetRequest(r.WithContext(auth.WithIdentity(r.Context(), ident(role))))
			return next(c)
		}
	})
	NewHandler(newFixture().svc).RegisterRoutes(e.Group("/api/v1"))

	tests := []struct {
		role auth.Role
		want int
	}{
		{auth.RoleAdmin, http.StatusOK},
		{auth.RoleDoctor, http.StatusOK},
		{auth.RoleNurse, http.StatusForbidden},
		{auth.RolePatient, http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/revenue-data", nil)
		req.Header.Set("X-Role", string(tt.role))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.role, tt.want, rec.Code)
		}
	}
}
