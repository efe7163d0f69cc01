package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"storefront-commerce-api/internal/client"
)

// MeterName identifies this service's instruments
const MeterName = "storefront-commerce-api"

// StorefrontApiTelemetry provides telemetry for the storefront endpoints and
// the Commerce Layer calls behind them
type StorefrontApiTelemetry struct {
	meter metric.Meter

	requestCounter    metric.Int64Counter
	errorCounter      metric.Int64Counter
	durationHistogram metric.Float64Histogram

	productsReturnedCounter metric.Int64Counter

	upstreamCounter   metric.Int64Counter
	upstreamHistogram metric.Float64Histogram
	tokenCacheCounter metric.Int64Counter
}

// StorefrontApiMetrics contains the telemetry data for a request
type StorefrontApiMetrics struct {
	Method     string
	Endpoint   string
	StatusCode int
	Duration   time.Duration
	ErrorKind  string
	// Client information with controlled cardinality
	ClientIP     string // Raw IP, logged only
	ClientIPType string // "internal", "external", "localhost", "invalid" or "unknown"
	// Business data
	Market       string
	ProductCount int
}

// NewStorefrontApiTelemetry creates a new instance of StorefrontApiTelemetry
func NewStorefrontApiTelemetry() *StorefrontApiTelemetry {
	return &StorefrontApiTelemetry{}
}

// InitializeTelemetry creates all instruments. A nil meter uses the global provider.
func (t *StorefrontApiTelemetry) InitializeTelemetry(meter metric.Meter) error {
	slog.Info("Initializing storefront API telemetry")

	if meter == nil {
		meter = otel.Meter(MeterName)
	}
	t.meter = meter

	var err error

	t.requestCounter, err = t.meter.Int64Counter(
		"storefront_api_requests_total",
		metric.WithDescription("Total number of successful storefront API requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create request counter: %w", err)
	}

	t.errorCounter, err = t.meter.Int64Counter(
		"storefront_api_errors_total",
		metric.WithDescription("Total number of failed storefront API requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create error counter: %w", err)
	}

	t.durationHistogram, err = t.meter.Float64Histogram(
		"storefront_api_request_duration_seconds",
		metric.WithDescription("Duration of storefront API requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create duration histogram: %w", err)
	}

	t.productsReturnedCounter, err = t.meter.Int64Counter(
		"storefront_products_returned_total",
		metric.WithDescription("Total number of products returned to clients"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create products returned counter: %w", err)
	}

	t.upstreamCounter, err = t.meter.Int64Counter(
		"storefront_upstream_requests_total",
		metric.WithDescription("Total number of Commerce Layer requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create upstream counter: %w", err)
	}

	t.upstreamHistogram, err = t.meter.Float64Histogram(
		"storefront_upstream_request_duration_seconds",
		metric.WithDescription("Duration of Commerce Layer requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create upstream duration histogram: %w", err)
	}

	t.tokenCacheCounter, err = t.meter.Int64Counter(
		"storefront_token_cache_lookups_total",
		metric.WithDescription("Token cache lookups by market and result"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create token cache counter: %w", err)
	}

	slog.Info("Storefront API telemetry initialized successfully")
	return nil
}

// RegisterRequestReceived records a successful API request
func (t *StorefrontApiTelemetry) RegisterRequestReceived(ctx context.Context, metrics StorefrontApiMetrics) {
	if t == nil || t.requestCounter == nil {
		return
	}

	attrs := requestAttributes(metrics)
	t.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if metrics.ProductCount > 0 && t.productsReturnedCounter != nil {
		t.productsReturnedCounter.Add(ctx, int64(metrics.ProductCount), metric.WithAttributes(
			attribute.String("endpoint", metrics.Endpoint),
			attribute.String("market", metrics.Market),
		))
	}

	slog.Debug("Recorded successful API request",
		"method", metrics.Method,
		"endpoint", metrics.Endpoint,
		"status_code", metrics.StatusCode,
		"client_ip", metrics.ClientIP,
		"market", metrics.Market,
		"duration_ms", metrics.Duration.Milliseconds(),
	)
}

// RegisterRequestError records a failed API request
func (t *StorefrontApiTelemetry) RegisterRequestError(ctx context.Context, metrics StorefrontApiMetrics) {
	if t == nil || t.errorCounter == nil {
		return
	}

	errorKind := metrics.ErrorKind
	if errorKind == "" {
		errorKind = "http_" + statusClass(metrics.StatusCode)
	}
	attrs := append(requestAttributes(metrics), attribute.String("error_kind", errorKind))
	t.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RegisterRequestDuration records the duration of an API request
func (t *StorefrontApiTelemetry) RegisterRequestDuration(ctx context.Context, metrics StorefrontApiMetrics) {
	if t == nil || t.durationHistogram == nil {
		return
	}

	t.durationHistogram.Record(ctx, metrics.Duration.Seconds(), metric.WithAttributes(requestAttributes(metrics)...))
}

// ObserveUpstreamCall records one Commerce Layer call
func (t *StorefrontApiTelemetry) ObserveUpstreamCall(ctx context.Context, operation string, statusCode int, duration time.Duration, err error) {
	if t == nil || t.upstreamCounter == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("outcome", upstreamOutcome(statusCode, err)),
	}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int("status_code", statusCode))
	}

	t.upstreamCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if t.upstreamHistogram != nil {
		t.upstreamHistogram.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
}

// ObserveTokenCache records a token cache hit or miss
func (t *StorefrontApiTelemetry) ObserveTokenCache(ctx context.Context, market string, hit bool) {
	if t == nil || t.tokenCacheCounter == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}
	t.tokenCacheCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("market", market),
		attribute.String("result", result),
	))
}

func requestAttributes(metrics StorefrontApiMetrics) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("method", metrics.Method),
		attribute.String("endpoint", metrics.Endpoint),
		attribute.Int("status_code", metrics.StatusCode),
	}
	if metrics.ClientIPType != "" {
		attrs = append(attrs, attribute.String("client_ip_type", metrics.ClientIPType))
	}
	if metrics.Market != "" {
		attrs = append(attrs, attribute.String("market", metrics.Market))
	}
	return attrs
}

// upstreamOutcome groups upstream results to keep cardinality low
func upstreamOutcome(statusCode int, err error) string {
	if err == nil {
		return "success"
	}

	var netErr net.Error
	switch {
	case statusCode > 0:
		return "http_" + statusClass(statusCode)
	case errors.Is(err, client.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	default:
		return "network"
	}
}

func statusClass(statusCode int) string {
	switch {
	case statusCode >= 500:
		return "5xx"
	case statusCode >= 400:
		return "4xx"
	case statusCode >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// GetEndpointFromPath normalizes the endpoint path for telemetry
func GetEndpointFromPath(path string) string {
	const productsPrefix = "/commerce-layer/products/"

	switch {
	case path == "/commerce-layer/products",
		path == "/commerce-layer/featured-products",
		path == "/commerce-layer/config",
		path == "/commerce-layer/health",
		path == "/auth/cl-access-token2",
		path == "/auth/validate-token",
		path == "/health":
		return path
	case strings.HasPrefix(path, productsPrefix) && len(path) > len(productsPrefix):
		return "/commerce-layer/products/{skuCode}"
	default:
		// Unrouted paths collapse to one series
		return "other"
	}
}

// NormalizeClientIP categorizes client IPs to control cardinality
func NormalizeClientIP(clientIP string) string {
	if clientIP == "" {
		return "unknown"
	}

	ip := net.ParseIP(clientIP)
	if ip == nil {
		return "invalid"
	}

	if ip.IsLoopback() {
		return "localhost"
	}
	if ip.IsPrivate() || ip.IsLinkLocalUnicast() {
		return "internal"
	}

	return "external"
}
