// Package proxyhttp implements the Streamable-HTTP proxy engine (spec.md
// §4.G): dispatch on /{service_name}/mcp, registry lookup, and response
// bridging for both buffered JSON and streaming SSE upstream replies.
// Grounded on the teacher's httpgw.ReverseProxy.Forward — registry lookup
// replaces target-list prefix matching, and outbound.UpstreamClient
// replaces the teacher's raw *http.Client call, but the header-filtering
// and copy-then-flush shape is the same. No X-Forwarded-* headers are added.
package proxyhttp

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jacklatrobe/MCP-Guardian/internal/domain/registry"
	"github.com/jacklatrobe/MCP-Guardian/internal/port/outbound"
)

// DefaultFirstByteTimeout is the request timeout the composition root
// passes to mcpclient.WithRequestTimeout. The client applies it to its
// typed snapshot calls only; requests forwarded by this engine carry no
// deadline beyond the inbound request's context.
const DefaultFirstByteTimeout = 30 * time.Second

// Proxy is the inbound HTTP handler for /{service_name}/mcp.
type Proxy struct {
	registry *registry.Registry
	client   outbound.UpstreamClient
	logger   *slog.Logger
}

// New creates a Proxy backed by reg for route lookups and client for
// upstream calls.
func New(reg *registry.Registry, client outbound.UpstreamClient, logger *slog.Logger) *Proxy {
	return &Proxy{registry: reg, client: client, logger: logger}
}

// ServeHTTP implements http.Handler, dispatching POST/GET/DELETE on
// /{service_name}/mcp per spec.md §4.G.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	serviceName, ok := parseServicePath(r.URL.Path)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "Service not configured")
		return
	}

	switch r.Method {
	case http.MethodPost, http.MethodGet, http.MethodDelete:
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entry, ok := p.registry.Lookup(serviceName)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "Service not configured")
		return
	}
	if !entry.Enabled {
		writeJSONError(w, http.StatusForbidden, "Service disabled pending review")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		p.logger.Error("read proxy request body failed", "service", serviceName, "error", err)
		writeJSONError(w, http.StatusBadGateway, "failed to read request body")
		return
	}

	resp, err := p.client.ForwardRequest(r.Context(), entry.UpstreamURL, r.Method, r.Header, body)
	if err != nil {
		p.handleUpstreamError(w, serviceName, err)
		return
	}

	if resp.IsSSE() {
		p.bridgeSSE(w, r, resp)
		return
	}
	p.bridgeJSON(w, resp)
}

// timeoutError is the net.Error-style duck type mcpclient.UpstreamTimeout
// implements, letting this package distinguish a timeout from a bare
// connection failure without importing the outbound adapter package.
type timeoutError interface {
	Timeout() bool
}

// handleUpstreamError maps an outbound upstream error to the status codes
// named in spec.md §6 ("502 upstream unreachable, 504 upstream timeout").
func (p *Proxy) handleUpstreamError(w http.ResponseWriter, serviceName string, err error) {
	var timeoutErr timeoutError
	switch {
	case errors.As(err, &timeoutErr) && timeoutErr.Timeout():
		p.logger.Warn("upstream timeout", "service", serviceName, "error", err)
		writeJSONError(w, http.StatusGatewayTimeout, "upstream timed out")
	default:
		p.logger.Warn("upstream unreachable", "service", serviceName, "error", err)
		writeJSONError(w, http.StatusBadGateway, "upstream unreachable")
	}
}

// bridgeJSON mirrors status, Content-Type, and the upstream's other
// headers (notably Mcp-Session-Id, which the upstream may assign on
// initialize) for a buffered JSON response (spec.md §4.G step 4).
func (p *Proxy) bridgeJSON(w http.ResponseWriter, resp *outbound.UpstreamResponse) {
	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.JSONBody); err != nil {
		p.logger.Debug("error writing proxied json response", "error", err)
	}
}

// bridgeSSE streams the upstream's event-stream response through
// byte-for-byte, flushing after every write so `id:`/`data:`/`event:`/
// `retry:` lines arrive at the client promptly enough to resume via
// Last-Event-ID (spec.md §4.G steps 4-6).
func (p *Proxy) bridgeSSE(w http.ResponseWriter, r *http.Request, resp *outbound.UpstreamResponse) {
	defer func() { _ = resp.SSEStream.Close() }()

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(resp.StatusCode)

	flusher, canFlush := w.(http.Flusher)

	done := make(chan struct{})
	go func() {
		select {
		case <-r.Context().Done():
			_ = resp.SSEStream.Close()
		case <-done:
		}
	}()
	defer close(done)

	// Copy raw bytes rather than scanning lines: an SSE frame's exact byte
	// sequence (CRLF or LF) must reach the client unchanged for byte-for-byte
	// transparency (spec.md §8 property 6). flushWriter flushes after every
	// underlying Write so frames still arrive promptly for Last-Event-ID
	// resumption, without re-splitting/re-joining lines in between.
	fw := &flushWriter{w: w, flusher: flusher, canFlush: canFlush}
	if _, err := io.Copy(fw, resp.SSEStream); err != nil {
		// A copy error or upstream EOF both end the stream cleanly; the
		// proxy does not reconnect (spec.md §4.G step 5).
		p.logger.Debug("sse stream ended with error", "error", err)
	}
}

// flushWriter flushes the underlying http.ResponseWriter after every Write
// so io.Copy's natural read-sized chunks are delivered to the client as
// soon as they arrive, without buffering an entire frame first.
type flushWriter struct {
	w        io.Writer
	flusher  http.Flusher
	canFlush bool
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err == nil && fw.canFlush {
		fw.flusher.Flush()
	}
	return n, err
}

// parseServicePath extracts service_name from a path of the exact shape
// /{service_name}/mcp.
func parseServicePath(path string) (string, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[1] != "mcp" || parts[0] == "" {
		return "", false
	}
	return parts[0], true
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
