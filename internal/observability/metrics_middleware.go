package observability

import (
	"net/http"
	"strings"
	"time"
)

// ProxyMetricsMiddleware wraps the proxy handler to record
// proxy_request_duration_seconds/proxy_requests_total, labeled by the
// service name parsed from the request path. Grounded on the teacher's
// MetricsMiddleware status-recorder wrapper; Guardian labels by service
// instead of HTTP method, since method is nearly always POST for MCP
// traffic and service is the dimension operators actually want to slice.
func ProxyMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			service := serviceLabelFromPath(r.URL.Path)
			status := statusToLabel(wrapped.status)
			metrics.ObserveProxyRequest(service, status, duration)
		})
	}
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush delegates to the underlying ResponseWriter if it supports
// http.Flusher, required for SSE connections to pass through the
// middleware without buffering.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// statusToLabel converts an HTTP status code to a coarse label value.
func statusToLabel(code int) string {
	if code >= 200 && code < 400 {
		return "ok"
	}
	return "error"
}

// serviceLabelFromPath extracts the leading path segment as a metrics
// label, matching proxyhttp.parseServicePath's notion of service_name
// without importing that inbound package.
func serviceLabelFromPath(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "unknown"
	}
	parts := strings.SplitN(trimmed, "/", 2)
	return parts[0]
}
