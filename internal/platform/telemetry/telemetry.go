// Package telemetry traces HTTP requests with OpenTelemetry and keeps
// in-process request metrics served in the Prometheus text format.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/clinic/clinic/internal/platform/apperr"
)

const instrumentationName = "github.com/clinic/clinic/internal/platform/telemetry"

// Config controls tracing export. An empty OTLPEndpoint keeps spans local:
// they still carry trace ids into logs but are never exported.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	// SampleRate is the fraction of new traces recorded, 0 to 1.
	SampleRate float64
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "clinic-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "dev"
	}
	if c.SampleRate <= 0 || c.SampleRate > 1 {
		c.SampleRate = 1
	}
}

var durationBuckets = []float64{0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0}

type gaugeFunc struct {
	name string
	help string
	fn   func() int64
}

// Provider owns the tracer provider and the request metrics.
type Provider struct {
	cfg    Config
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer

	durations  *histogramVec
	operations *int64Vec
	inFlight   *int64Vec

	gaugesMu sync.Mutex
	gauges   []gaugeFunc
}

// NewProvider builds the provider and installs it as the global tracer
// provider with W3C trace-context propagation.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	cfg.applyDefaults()

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentKey.String(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	}

	if cfg.OTLPEndpoint != "" {
		conn, err := grpc.NewClient(cfg.OTLPEndpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("otlp dial: %w", err)
		}
		exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	p := newProvider(cfg, opts...)
	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return p, nil
}

func newProvider(cfg Config, opts ...sdktrace.TracerProviderOption) *Provider {
	tp := sdktrace.NewTracerProvider(opts...)
	return &Provider{
		cfg:        cfg,
		tp:         tp,
		tracer:     tp.Tracer(instrumentationName),
		durations:  newHistogramVec(durationBuckets),
		operations: newInt64Vec(),
		inFlight:   newInt64Vec(),
	}
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// RegisterGauge adds a gauge evaluated on every scrape.
func (p *Provider) RegisterGauge(name, help string, fn func() int64) {
	p.gaugesMu.Lock()
	defer p.gaugesMu.Unlock()
	p.gauges = append(p.gauges, gaugeFunc{name: name, help: help, fn: fn})
}

func labelsKey(parts ...string) string {
	return strings.Join(parts, "|")
}

// operation maps an /api/v1 route to its resource collection and an action
// derived from the method. ok is false outside the API.
func operation(method, route string) (collection, action string, ok bool) {
	const prefix = "/api/v1/"
	if !strings.HasPrefix(route, prefix) {
		return "", "", false
	}
	collection = strings.TrimPrefix(route, prefix)
	if i := strings.IndexByte(collection, '/'); i >= 0 {
		collection = collection[:i]
	}
	if collection == "" {
		return "", "", false
	}
	switch method {
	case http.MethodGet, http.MethodHead:
		action = "read"
	case http.MethodPost:
		action = "create"
	case http.MethodPut, http.MethodPatch:
		action = "update"
	case http.MethodDelete:
		action = "delete"
	default:
		return "", "", false
	}
	return collection, action, true
}

// Middleware starts a server span per request, continuing any incoming
// trace context, and records duration and operation metrics keyed by the
// matched route.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}

			ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))
			ctx, span := p.tracer.Start(ctx, req.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(req.Method),
					semconv.HTTPRouteKey.String(route),
					semconv.URLPathKey.String(req.URL.Path),
				))
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			p.inFlight.add("", 1)
			start := time.Now()
			err := next(c)
			elapsed := time.Since(start).Seconds()
			p.inFlight.add("", -1)

			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status, _ = apperr.Translate(err)
			}
			span.SetAttributes(semconv.HTTPResponseStatusCodeKey.Int(status))
			if status >= 500 {
				span.SetStatus(codes.Error, http.StatusText(status))
				if err != nil {
					span.RecordError(err)
				}
			}

			p.durations.with(labelsKey(req.Method, route, strconv.Itoa(status))).Observe(elapsed)
			if collection, action, ok := operation(req.Method, route); ok && status < 400 {
				p.operations.add(labelsKey(collection, action), 1)
			}
			return err
		}
	}
}

// Handler serves the collected metrics in the Prometheus text format.
func (p *Provider) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		b.WriteString("# HELP http_server_request_duration_seconds Duration of HTTP requests in seconds.\n")
		b.WriteString("# TYPE http_server_request_duration_seconds histogram\n")
		hists := p.durations.snapshot()
		for _, key := range sortedKeys(hists) {
			parts := strings.SplitN(key, "|", 3)
			if len(parts) != 3 {
				continue
			}
			labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", parts[0], parts[1], parts[2])
			writeHistogram(&b, "http_server_request_duration_seconds", labels, hists[key])
		}
		b.WriteByte('\n')

		b.WriteString("# HELP http_server_active_requests Number of in-flight HTTP requests.\n")
		b.WriteString("# TYPE http_server_active_requests gauge\n")
		fmt.Fprintf(&b, "http_server_active_requests %d\n\n", p.inFlight.get(""))

		b.WriteString("# HELP clinic_operations_total Successful API operations by resource and action.\n")
		b.WriteString("# TYPE clinic_operations_total counter\n")
		ops := p.operations.snapshot()
		for _, key := range sortedKeys(ops) {
			parts := strings.SplitN(key, "|", 2)
			if len(parts) != 2 {
				continue
			}
			fmt.Fprintf(&b, "clinic_operations_total{resource=%q,action=%q} %d\n", parts[0], parts[1], ops[key])
		}
		b.WriteByte('\n')

		p.gaugesMu.Lock()
		gauges := append([]gaugeFunc(nil), p.gauges...)
		p.gaugesMu.Unlock()
		for _, g := range gauges {
			fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", g.name, g.help, g.name, g.name, g.fn())
		}

		return c.Blob(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulativeBuckets()
	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", name, labels, boundary, cum[i])
	}
	total := h.Count()
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, total)
	fmt.Fprintf(b, "%s_sum{%s} %g\n", name, labels, h.Sum())
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, total)
}
