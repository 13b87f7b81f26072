package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/clinic/clinic/internal/platform/apperr"
)

func newTestProvider(t *testing.T) (*Provider, *tracetest.SpanRecorder, *echo.Echo) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	p := newProvider(Config{}, sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(zerolog.Nop())
	e.Use(p.Middleware())
	e.GET("/api/v1/patients/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/appointments", func(c echo.Context) error {
		return apperr.Validation("validation failed")
	})
	e.GET("/api/v1/dashboard/stats", func(c echo.Context) error {
		return errors.New("boom")
	})
	e.GET("/metrics", p.Handler())
	return p, sr, e
}

func do(e *echo.Echo, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func attr(kvs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range kvs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{SampleRate: 4}
	cfg.applyDefaults()
	assert.Equal(t, "clinic-server", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestNewProvider_WithoutEndpoint(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Environment: "test"})
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestMiddleware_SpanPerRequest(t *testing.T) {
	_, sr, e := newTestProvider(t)

	rec := do(e, http.MethodGet, "/api/v1/patients/123", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "GET /api/v1/patients/:id", s.Name())

	route, ok := attr(s.Attributes(), "http.route")
	require.True(t, ok)
	assert.Equal(t, "/api/v1/patients/:id", route.AsString())
	status, ok := attr(s.Attributes(), "http.response.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(200), status.AsInt64())
	assert.Equal(t, codes.Unset, s.Status().Code)
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	_, sr, e := newTestProvider(t)

	do(e, http.MethodGet, "/api/v1/patients/1", map[string]string{
		"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	})

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent().SpanID().String())
}

func TestMiddleware_ServerErrorMarksSpan(t *testing.T) {
	_, sr, e := newTestProvider(t)

	rec := do(e, http.MethodGet, "/api/v1/dashboard/stats", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestMiddleware_ClientErrorUsesTranslatedStatus(t *testing.T) {
	_, sr, e := newTestProvider(t)

	do(e, http.MethodPost, "/api/v1/appointments", nil)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	status, _ := attr(spans[0].Attributes(), "http.response.status_code")
	assert.Equal(t, int64(http.StatusBadRequest), status.AsInt64())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestHandler_PrometheusText(t *testing.T) {
	p, _, e := newTestProvider(t)
	p.RegisterGauge("db_pool_acquired_conns", "Connections in use.", func() int64 { return 3 })

	do(e, http.MethodGet, "/api/v1/patients/1", nil)
	do(e, http.MethodGet, "/api/v1/patients/2", nil)
	do(e, http.MethodPost, "/api/v1/appointments", nil)

	rec := do(e, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/plain"))

	body := rec.Body.String()
	assert.Contains(t, body, "# TYPE http_server_request_duration_seconds histogram")
	assert.Contains(t, body, `http_server_request_duration_seconds_count{method="GET",route="/api/v1/patients/:id",status_code="200"} 2`)
	assert.Contains(t, body, `http_server_request_duration_seconds_count{method="POST",route="/api/v1/appointments",status_code="400"} 1`)
	assert.Contains(t, body, `clinic_operations_total{resource="patients",action="read"} 2`)
	assert.NotContains(t, body, `resource="appointments"`)
	assert.Contains(t, body, "db_pool_acquired_conns 3")
	assert.Contains(t, body, "http_server_active_requests 0")
}

func TestOperation(t *testing.T) {
	tests := []struct {
		method, route    string
		resource, action string
		ok               bool
	}{
		{http.MethodGet, "/api/v1/patients", "patients", "read", true},
		{http.MethodPost, "/api/v1/invoices", "invoices", "create", true},
		{http.MethodPatch, "/api/v1/invoices/:id/pay", "invoices", "update", true},
		{http.MethodDelete, "/api/v1/patients/:id", "patients", "delete", true},
		{http.MethodGet, "/health", "", "", false},
		{http.MethodGet, "/api/v1/", "", "", false},
		{http.MethodOptions, "/api/v1/patients", "", "", false},
	}
	for _, tt := range tests {
		res, action, ok := operation(tt.method, tt.route)
		assert.Equal(t, tt.ok, ok, tt.route)
		assert.Equal(t, tt.resource, res, tt.route)
		assert.Equal(t, tt.action, action, tt.route)
	}
}

func TestHistogram_CumulativeBuckets(t *testing.T) {
	h := newHistogram([]float64{1, 5, 10})
	for _, v := range []float64{0.5, 2, 3, 7, 20} {
		h.Observe(v)
	}
	assert.Equal(t, []int64{1, 3, 4}, h.cumulativeBuckets())
	assert.Equal(t, int64(5), h.Count())
	assert.InDelta(t, 32.5, h.Sum(), 1e-9)
}

func TestMetrics_ConcurrentSafe(t *testing.T) {
	v := newInt64Vec()
	hv := newHistogramVec(durationBuckets)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v.add("k", 1)
				hv.with("GET|/x|200").Observe(0.01)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(5000), v.get("k"))
	assert.Equal(t, int64(5000), hv.with("GET|/x|200").Count())
}
