package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/leafsii/sqlkv/pkg/kv"
)

type Metrics struct {
	HTTPRequests    metric.Int64Counter
	HTTPDuration    metric.Float64Histogram
	GetHits         metric.Int64Counter
	GetMisses       metric.Int64Counter
	BackendCalls    metric.Int64Counter
	BackendErrors   metric.Int64Counter
	BackendDuration metric.Float64Histogram
}

// Setup registers the exporter with the default Prometheus registry and
// installs the meter provider globally.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m, err := newMetrics(provider.Meter(serviceName))
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.Handler(), nil
}

// New is like Setup but exports to reg and leaves the global provider alone.
func New(serviceName string, reg *promclient.Registry) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	m, err := newMetrics(provider.Meter(serviceName))
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.HTTPRequests, err = meter.Int64Counter(
		"sqlkv_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"sqlkv_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	m.GetHits, err = meter.Int64Counter(
		"sqlkv_get_hits_total",
		metric.WithDescription("Total number of gets that found a live record"),
	)
	if err != nil {
		return nil, err
	}

	m.GetMisses, err = meter.Int64Counter(
		"sqlkv_get_misses_total",
		metric.WithDescription("Total number of gets that found no live record"),
	)
	if err != nil {
		return nil, err
	}

	m.BackendCalls, err = meter.Int64Counter(
		"sqlkv_backend_calls_total",
		metric.WithDescription("Total number of statements sent to the backend"),
	)
	if err != nil {
		return nil, err
	}

	m.BackendErrors, err = meter.Int64Counter(
		"sqlkv_backend_errors_total",
		metric.WithDescription("Total number of backend statements that failed"),
	)
	if err != nil {
		return nil, err
	}

	m.BackendDuration, err = meter.Float64Histogram(
		"sqlkv_backend_duration_seconds",
		metric.WithDescription("Backend statement duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordGet(ctx context.Context, table string, present bool) {
	labels := metric.WithAttributes(attribute.String("table", table))
	if present {
		m.GetHits.Add(ctx, 1, labels)
	} else {
		m.GetMisses.Add(ctx, 1, labels)
	}
}

func (m *Metrics) RecordBackendCall(ctx context.Context, op, statement string, duration time.Duration, err error) {
	labels := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("statement", statement),
	)

	m.BackendCalls.Add(ctx, 1, labels)
	m.BackendDuration.Record(ctx, duration.Seconds(), labels)
	if err != nil {
		m.BackendErrors.Add(ctx, 1, labels)
	}
}

// InstrumentBackend wraps b so every call is counted and timed.
func InstrumentBackend(b kv.Backend, m *Metrics) kv.Backend {
	if m == nil {
		return b
	}
	return &instrumentedBackend{next: b, metrics: m}
}

type instrumentedBackend struct {
	next    kv.Backend
	metrics *Metrics
}

func (b *instrumentedBackend) First(ctx context.Context, query string, args ...any) (*kv.Row, error) {
	start := time.Now()
	row, err := b.next.First(ctx, query, args...)
	b.metrics.RecordBackendCall(ctx, "first", statementKind(query), time.Since(start), err)
	return row, err
}

func (b *instrumentedBackend) All(ctx context.Context, query string, args ...any) ([]kv.Row, error) {
	start := time.Now()
	rows, err := b.next.All(ctx, query, args...)
	b.metrics.RecordBackendCall(ctx, "all", statementKind(query), time.Since(start), err)
	return rows, err
}

func (b *instrumentedBackend) Run(ctx context.Context, query string, args ...any) error {
	start := time.Now()
	err := b.next.Run(ctx, query, args...)
	b.metrics.RecordBackendCall(ctx, "run", statementKind(query), time.Since(start), err)
	return err
}

// statementKind returns the leading SQL verb, keeping label cardinality bounded.
func statementKind(query string) string {
	verb, _, _ := strings.Cut(strings.TrimSpace(query), " ")
	switch verb = strings.ToLower(verb); verb {
	case "select", "insert", "update", "delete":
		return verb
	default:
		return "other"
	}
}
