// Package mcpclient implements the outbound.UpstreamClient port: a typed
// JSON-RPC 2.0 client for MCP over Streamable HTTP. It is grounded on the
// teacher's internal/adapter/outbound/mcp.HTTPClient (TLS minimum version,
// bounded response reads, Mcp-Session-Id propagation) but reshaped around
// typed initialize/list/forward/SSE calls instead of a raw stdin/stdout
// pipe adapter, per spec.md §4.B. Envelope encode/decode for the typed
// calls goes through github.com/modelcontextprotocol/go-sdk/jsonrpc, the
// same package the teacher's pkg/mcp codec wraps; ForwardRequest/OpenSSE
// never touch it, since the proxy engine passes those bytes through
// unparsed.
package mcpclient

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/jacklatrobe/MCP-Guardian/internal/port/outbound"
)

const (
	// maxResponseBodySize bounds buffered JSON reads from an upstream,
	// preventing OOM from a malicious or misbehaving server (matches the
	// teacher's 10MB ceiling).
	maxResponseBodySize = 10 * 1024 * 1024

	// clientName/clientVersion identify Guardian to upstreams during
	// initialize, per spec.md §4.B "fixed client identity".
	clientName    = "mcp-guardian"
	clientVersion = "1.0.0"
	// protocolVersion is the MCP protocol version Guardian speaks when
	// initializing upstreams.
	protocolVersion = "2025-06-18"
)

// hopByHopHeaders lists headers that copyFilteredHeaders never forwards
// to the upstream; every other request header passes through verbatim.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Transfer-Encoding", "TE", "Upgrade",
	"Proxy-Authenticate", "Proxy-Authorization", "Proxy-Connection",
}

// UpstreamUnreachable wraps a network-level failure reaching the upstream.
type UpstreamUnreachable struct{ Err error }

func (e *UpstreamUnreachable) Error() string { return fmt.Sprintf("upstream unreachable: %v", e.Err) }
func (e *UpstreamUnreachable) Unwrap() error { return e.Err }

// UpstreamTimeout wraps a deadline-exceeded failure reaching the upstream.
type UpstreamTimeout struct{ Err error }

func (e *UpstreamTimeout) Error() string { return fmt.Sprintf("upstream timeout: %v", e.Err) }
func (e *UpstreamTimeout) Unwrap() error { return e.Err }

// Timeout reports true, letting callers distinguish a timeout from a bare
// connection failure via errors.As on an `interface{ Timeout() bool }`
// without importing this adapter package (net.Error-style duck typing).
func (e *UpstreamTimeout) Timeout() bool { return true }

// UpstreamProtocolError wraps a non-2xx or malformed JSON-RPC response.
type UpstreamProtocolError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamProtocolError) Error() string {
	return fmt.Sprintf("upstream protocol error (status %d): %s", e.StatusCode, e.Message)
}

// JSONRPCError wraps an upstream JSON-RPC error object.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// jsonRPCErrorCodeMethodNotFound is the standard JSON-RPC code for an
// unknown method, used to treat missing optional listing methods (e.g.
// resources/templates/list) as an empty list per spec.md §9.
const jsonRPCErrorCodeMethodNotFound = -32601

// Client implements outbound.UpstreamClient over HTTP.
type Client struct {
	httpClient       *http.Client
	requestTimeout   time.Duration
	nextID           func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRequestTimeout sets the per-call deadline of the typed JSON-RPC calls
// (Initialize, List), covering the whole exchange including the read of
// the response body. ForwardRequest and OpenSSE do not apply it.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// New creates an UpstreamClient.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		requestTimeout: 30 * time.Second,
		nextID:         defaultNextID(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultNextID() func() string {
	var n int64
	return func() string {
		n++
		return fmt.Sprintf("guardian-%d", n)
	}
}

// call encodes and decodes the JSON-RPC 2.0 envelope via go-sdk/jsonrpc
// (the same package the teacher's pkg/mcp codec wraps), rather than
// hand-rolling the envelope on encoding/json: Guardian is precisely the
// component initiating these calls, so it builds a *jsonrpc.Request
// directly instead of going through an intermediate wrapper type.
func (c *Client) call(ctx context.Context, url, method string, params any) (json.RawMessage, error) {
	reqCtx := ctx
	var cancel context.CancelFunc
	if c.requestTimeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	id, err := jsonrpc.MakeID(c.nextID())
	if err != nil {
		return nil, fmt.Errorf("make request id: %w", err)
	}

	var paramsRaw json.RawMessage
	if params != nil {
		paramsRaw, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
	}

	body, err := jsonrpc.EncodeMessage(&jsonrpc.Request{
		ID:     id,
		Method: method,
		Params: paramsRaw,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	httpReq.Header.Set("MCP-Protocol-Version", protocolVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, &UpstreamTimeout{Err: err}
		}
		return nil, &UpstreamUnreachable{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, &UpstreamProtocolError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("read body: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamProtocolError{StatusCode: resp.StatusCode, Message: string(raw)}
	}

	decoded, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return nil, &UpstreamProtocolError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("malformed json-rpc response: %v", err)}
	}
	rpcResp, ok := decoded.(*jsonrpc.Response)
	if !ok {
		return nil, &UpstreamProtocolError{StatusCode: resp.StatusCode, Message: "expected a json-rpc response, got a request"}
	}
	if rpcResp.Error != nil {
		return nil, &JSONRPCError{Code: int(rpcResp.Error.Code), Message: rpcResp.Error.Message, Data: rpcResp.Error.Data}
	}
	return rpcResp.Result, nil
}

// Initialize performs the MCP initialize handshake (spec.md §4.B, §4.C step 1).
func (c *Client) Initialize(ctx context.Context, url string) (*outbound.InitResult, error) {
	result, err := c.call(ctx, url, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	})
	if err != nil {
		return nil, err
	}

	var init outbound.InitResult
	if err := json.Unmarshal(result, &init); err != nil {
		return nil, &UpstreamProtocolError{Message: fmt.Sprintf("malformed initialize result: %v", err)}
	}
	return &init, nil
}

// List paginates through method until no cursor is returned (spec.md §4.B, §9).
func (c *Client) List(ctx context.Context, url string, method outbound.ListMethod) ([]map[string]any, error) {
	var items []map[string]any
	var cursor string

	for {
		params := map[string]any{}
		if cursor != "" {
			params["cursor"] = cursor
		}

		result, err := c.call(ctx, url, string(method), params)
		if err != nil {
			var rpcErr *JSONRPCError
			if asJSONRPCError(err, &rpcErr) && rpcErr.Code == jsonRPCErrorCodeMethodNotFound {
				// Some upstreams omit optional listing methods; treat as empty.
				return items, nil
			}
			return nil, err
		}

		page, nextCursor, err := parseListPage(method, result)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)

		if nextCursor == "" {
			return items, nil
		}
		cursor = nextCursor
	}
}

func asJSONRPCError(err error, target **JSONRPCError) bool {
	rpcErr, ok := err.(*JSONRPCError)
	if ok {
		*target = rpcErr
	}
	return ok
}

// listKeyForMethod maps each listing method to the array key MCP uses in
// its result object.
func listKeyForMethod(method outbound.ListMethod) string {
	switch method {
	case outbound.MethodToolsList:
		return "tools"
	case outbound.MethodResourcesList:
		return "resources"
	case outbound.MethodResourceTemplatesList:
		return "resourceTemplates"
	case outbound.MethodPromptsList:
		return "prompts"
	default:
		return ""
	}
}

func parseListPage(method outbound.ListMethod, raw json.RawMessage) ([]map[string]any, string, error) {
	var page struct {
		NextCursor string           `json:"nextCursor"`
		Tools      []map[string]any `json:"tools"`
		Resources  []map[string]any `json:"resources"`
		Templates  []map[string]any `json:"resourceTemplates"`
		Prompts    []map[string]any `json:"prompts"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, "", &UpstreamProtocolError{Message: fmt.Sprintf("malformed %s result: %v", method, err)}
	}

	switch listKeyForMethod(method) {
	case "tools":
		return page.Tools, page.NextCursor, nil
	case "resources":
		return page.Resources, page.NextCursor, nil
	case "resourceTemplates":
		return page.Templates, page.NextCursor, nil
	case "prompts":
		return page.Prompts, page.NextCursor, nil
	default:
		return nil, "", fmt.Errorf("unknown list method %q", method)
	}
}

// ForwardRequest passes an opaque JSON-RPC request through to url, per
// spec.md §4.B/§4.G. The caller (proxy engine) supplies the inbound
// request headers; ForwardRequest forwards them minus hop-by-hop ones. It
// sets no deadline
// of its own (requestTimeout is not applied): the call is bounded only by
// ctx, and a failure after ctx is done is reported as UpstreamTimeout. An
// upstream text/event-stream response is returned with its stream unread.
func (c *Client) ForwardRequest(ctx context.Context, url, method string, headers http.Header, body []byte) (*outbound.UpstreamResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	copyFilteredHeaders(httpReq.Header, headers)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &UpstreamTimeout{Err: err}
		}
		return nil, &UpstreamUnreachable{Err: err}
	}

	return c.wrapResponse(resp)
}

// OpenSSE issues a GET for server-push streams (spec.md §4.B).
func (c *Client) OpenSSE(ctx context.Context, url string, headers http.Header) (*outbound.UpstreamResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	copyFilteredHeaders(httpReq.Header, headers)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &UpstreamTimeout{Err: err}
		}
		return nil, &UpstreamUnreachable{Err: err}
	}

	return c.wrapResponse(resp)
}

func (c *Client) wrapResponse(resp *http.Response) (*outbound.UpstreamResponse, error) {
	contentType := resp.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "text/event-stream") {
		return &outbound.UpstreamResponse{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			SSEStream:  resp.Body,
		}, nil
	}

	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, &UpstreamProtocolError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("read body: %v", err)}
	}
	return &outbound.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		JSONBody:   raw,
	}, nil
}

// copyFilteredHeaders forwards everything except hop-by-hop headers
// (spec.md §4.B). It never synthesizes or strips MCP-Protocol-Version,
// Mcp-Session-Id, Last-Event-ID, Accept, Content-Type, or Authorization.
func copyFilteredHeaders(dst http.Header, src http.Header) {
	for k, values := range src {
		if isHopByHop(k) {
			continue
		}
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}

func isHopByHop(header string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(h, header) {
			return true
		}
	}
	return false
}

// ScannerForSSE builds a bufio.Scanner suitable for reading line-delimited
// SSE frames from a stream, with the same buffer sizing the teacher's
// HTTPClient applies to its JSON-RPC message scanner. The proxy engine does
// not use it: it copies SSE bytes through unscanned.
func ScannerForSSE(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	return scanner
}

var _ outbound.UpstreamClient = (*Client)(nil)
