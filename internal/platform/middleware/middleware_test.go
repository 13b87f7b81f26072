package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var rid string
	handler := func(c echo.Context) error {
		rid, _ = c.Get("request_id").(string)
		return c.String(http.StatusOK, "ok")
	}

	if err := RequestID()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := uuid.Parse(rid); err != nil {
		t.Errorf("expected generated uuid request_id, got %q", rid)
	}
	if rec.Header().Get(RequestIDHeader) != rid {
		t.Errorf("expected response header %q, got %q", rid, rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if rid := c.Get("request_id"); rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %v", rid)
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := RequestID()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return line
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-1")
	c.Set("user_id", "user-1")

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	if err := Logger(logger)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line := decodeLogLine(t, &buf)
	if line["request_id"] != "req-1" || line["user_id"] != "user-1" {
		t.Errorf("missing correlation fields: %v", line)
	}
	if line["status"] != float64(200) || line["level"] != "info" {
		t.Errorf("unexpected status/level: %v", line)
	}
}

func TestLogger_UsesErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients/x", nil), httptest.NewRecorder())

	err := Logger(logger)(func(echo.Context) error {
		return apperr.NotFound("patient not found")
	})(c)
	if err == nil {
		t.Fatal("expected error to pass through")
	}

	line := decodeLogLine(t, &buf)
	if line["status"] != float64(404) || line["level"] != "warn" {
		t.Errorf("expected warn with 404, got %v", line)
	}
}

func TestLogger_IncludesTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/doctors", nil), httptest.NewRecorder())

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	// an inner middleware swaps in the traced request
	handler := func(c echo.Context) error {
		c.SetRequest(c.Request().WithContext(trace.ContextWithSpanContext(c.Request().Context(), sc)))
		return c.NoContent(http.StatusNoContent)
	}
	if err := Logger(logger)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line := decodeLogLine(t, &buf)
	if line["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("expected trace_id, got %v", line)
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/panic", nil), httptest.NewRecorder())

	err := Recovery(logger)(func(c echo.Context) error {
		panic("test panic")
	})(c)

	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	status, env := apperr.Translate(err)
	if status != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", status)
	}
	if env.Message != "internal server error" {
		t.Errorf("panic value leaked into response: %q", env.Message)
	}
	if !bytes.Contains(buf.Bytes(), []byte("test panic")) {
		t.Error("expected panic to be logged")
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ok", nil), rec)

	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAudit_RecordsPatientAccess(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/patients/P-001", nil)
	uid := uuid.New()
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{ID: uid, Role: auth.RoleAdmin}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-123")

	var got []AuditEntry
	recorder := AuditRecorderFunc(func(entry AuditEntry) error {
		got = append(got, entry)
		return nil
	})

	err := Audit(zerolog.Nop(), recorder)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	entry := got[0]
	if entry.Resource != "patients" || entry.RecordID != "P-001" || entry.Action != "delete" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.UserID != uid.String() || entry.UserRole != "admin" || entry.RequestID != "req-123" {
		t.Errorf("identity not captured: %+v", entry)
	}
}

func TestAudit_SkipsOtherResources(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/doctors", nil), httptest.NewRecorder())

	called := false
	recorder := AuditRecorderFunc(func(AuditEntry) error { called = true; return nil })
	_ = Audit(zerolog.Nop(), recorder)(func(c echo.Context) error { return nil })(c)
	if called {
		t.Error("doctors listing should not be audited")
	}
}

func TestSplitResourcePath(t *testing.T) {
	tests := []struct {
		path, resource, id string
	}{
		{"/api/v1/patients", "patients", ""},
		{"/api/v1/appointments/abc/status", "appointments", "abc"},
		{"/health", "", ""},
	}
	for _, tt := range tests {
		r, id := splitResourcePath(tt.path)
		if r != tt.resource || id != tt.id {
			t.Errorf("splitResourcePath(%q) = (%q, %q), want (%q, %q)", tt.path, r, id, tt.resource, tt.id)
		}
	}
}
