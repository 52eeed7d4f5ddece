package outbound

import (
	"context"
	"io"
	"net/http"
)

// InitResult is the subset of an MCP `initialize` response the snapshotter
// uses (spec.md §4.B).
type InitResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      map[string]any `json:"serverInfo"`
}

// ListMethod enumerates the MCP listing methods the Snapshotter calls, in
// the fixed order spec.md §4.C mandates.
type ListMethod string

const (
	MethodToolsList             ListMethod = "tools/list"
	MethodResourcesList         ListMethod = "resources/list"
	MethodResourceTemplatesList ListMethod = "resources/templates/list"
	MethodPromptsList           ListMethod = "prompts/list"
)

// UpstreamResponse is the result of ForwardRequest: either a buffered JSON
// body or a streaming SSE reader, mutually exclusive, selected by the
// upstream's Content-Type (spec.md §4.B, §4.G).
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	// JSONBody is set when the upstream responded with application/json.
	JSONBody []byte
	// SSEStream is set when the upstream responded with text/event-stream.
	// Callers must close it when done.
	SSEStream io.ReadCloser
}

// IsSSE reports whether the response is a Server-Sent Events stream.
func (r *UpstreamResponse) IsSSE() bool {
	return r.SSEStream != nil
}

// UpstreamClient is the outbound port for typed JSON-RPC calls to an
// upstream MCP endpoint over Streamable HTTP (spec.md §4.B). Unlike the
// teacher's stdio-oriented MCPClient (raw stdin/stdout pipe, one process
// per upstream), Guardian's upstreams are always reached over HTTP and
// the snapshotter needs structured InitResult/list responses rather than
// a byte pipe, so this port is reshaped around typed request/response
// methods while keeping the teacher's adapter-per-transport shape.
type UpstreamClient interface {
	// Initialize performs the MCP initialize handshake against url.
	Initialize(ctx context.Context, url string) (*InitResult, error)

	// List performs repeated JSON-RPC calls to method, advancing
	// params.cursor from each response's nextCursor until the response
	// carries no cursor. A JSON-RPC "method not found" error is treated
	// as an empty list (spec.md §9 Open Questions) rather than a fatal
	// error, since some upstreams omit optional listing methods.
	List(ctx context.Context, url string, method ListMethod) ([]map[string]any, error)

	// ForwardRequest passes method/headers/body through to url verbatim
	// and returns either a buffered JSON body or an SSE stream depending
	// on the upstream's Content-Type (spec.md §4.G).
	ForwardRequest(ctx context.Context, url, method string, headers http.Header, body []byte) (*UpstreamResponse, error)

	// OpenSSE issues a GET to url for server-push streams (spec.md §4.B).
	OpenSSE(ctx context.Context, url string, headers http.Header) (*UpstreamResponse, error)
}
