package telemetry

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// TelemetryMiddleware wraps HTTP handlers to automatically collect telemetry
type TelemetryMiddleware struct {
	telemetry *StorefrontApiTelemetry
}

// NewTelemetryMiddleware creates a new telemetry middleware
func NewTelemetryMiddleware(telemetry *StorefrontApiTelemetry) *TelemetryMiddleware {
	return &TelemetryMiddleware{
		telemetry: telemetry,
	}
}

// Middleware returns the HTTP middleware function
func (tm *TelemetryMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Handlers annotate the request through this holder
		ctx, notes := withAnnotations(r.Context())
		r = r.WithContext(ctx)

		metrics := extractMetricsFromRequest(r)

		next.ServeHTTP(wrapper, r)

		metrics.StatusCode = wrapper.statusCode
		metrics.Duration = time.Since(start)
		notes.apply(&metrics)

		if wrapper.statusCode >= 400 {
			tm.telemetry.RegisterRequestError(ctx, metrics)
		} else {
			tm.telemetry.RegisterRequestReceived(ctx, metrics)
		}

		tm.telemetry.RegisterRequestDuration(ctx, metrics)
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.statusCode = statusCode
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriterWrapper) Write(data []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(data)
}

// extractMetricsFromRequest extracts telemetry data from the HTTP request
func extractMetricsFromRequest(r *http.Request) StorefrontApiMetrics {
	clientIP := getClientIP(r)

	return StorefrontApiMetrics{
		Method:       r.Method,
		Endpoint:     endpointForRequest(r),
		ClientIP:     clientIP,
		ClientIPType: NormalizeClientIP(clientIP),
	}
}

// endpointForRequest prefers the matched route template over the raw path
func endpointForRequest(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if template, err := route.GetPathTemplate(); err == nil {
			return template
		}
	}
	return GetEndpointFromPath(r.URL.Path)
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs, take the first one
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type annotationsKey struct{}

// annotations carries handler-supplied values back out to the middleware
type annotations struct {
	mu           sync.Mutex
	market       string
	productCount int
	errorKind    string
}

func withAnnotations(ctx context.Context) (context.Context, *annotations) {
	notes := &annotations{}
	return context.WithValue(ctx, annotationsKey{}, notes), notes
}

func annotationsFrom(ctx context.Context) *annotations {
	notes, _ := ctx.Value(annotationsKey{}).(*annotations)
	return notes
}

func (a *annotations) apply(metrics *StorefrontApiMetrics) {
	a.mu.Lock()
	defer a.mu.Unlock()

	metrics.Market = a.market
	metrics.ProductCount = a.productCount
	metrics.ErrorKind = a.errorKind
}

// SetMarket records the market a request targeted
func SetMarket(ctx context.Context, market string) {
	if notes := annotationsFrom(ctx); notes != nil {
		notes.mu.Lock()
		notes.market = market
		notes.mu.Unlock()
	}
}

// SetProductCount records how many products a response carried
func SetProductCount(ctx context.Context, count int) {
	if notes := annotationsFrom(ctx); notes != nil {
		notes.mu.Lock()
		notes.productCount = count
		notes.mu.Unlock()
	}
}

// SetErrorKind records the service error kind behind a failed response
func SetErrorKind(ctx context.Context, kind string) {
	if notes := annotationsFrom(ctx); notes != nil {
		notes.mu.Lock()
		notes.errorKind = kind
		notes.mu.Unlock()
	}
}

// GetMarket retrieves the market from context
func GetMarket(ctx context.Context) string {
	notes := annotationsFrom(ctx)
	if notes == nil {
		return ""
	}
	notes.mu.Lock()
	defer notes.mu.Unlock()
	return notes.market
}

// GetProductCount retrieves the product count from context
func GetProductCount(ctx context.Context) int {
	notes := annotationsFrom(ctx)
	if notes == nil {
		return 0
	}
	notes.mu.Lock()
	defer notes.mu.Unlock()
	return notes.productCount
}
