// Package guardianclient is a thin HTTP client over MCP Guardian's admin
// API (spec.md §6), used by integration tests and operator scripts. It is
// adapted from the teacher's sdks/go SentinelGate SDK client: the options
// pattern, doRequest JSON-over-HTTP helper, and typed sentinel errors are
// kept and retargeted at the admin surface; the policy-evaluation response
// cache and approval-polling loop are dropped since admin operations
// (create/list/get/update/delete/approve) are not policy decisions and
// have no server-side async "approval_required" state to poll for.
package guardianclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client is the MCP Guardian admin API client.
type Client struct {
	serverAddr string
	password   string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a new Guardian admin API client. It reads
// MCP_GUARDIAN_ADMIN_ADDR and MCP_GUARDIAN_ADMIN_PASSWORD by default;
// Options override these.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr: os.Getenv("MCP_GUARDIAN_ADMIN_ADDR"),
		password:   os.Getenv("MCP_GUARDIAN_ADMIN_PASSWORD"),
		timeout:    10 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}

	return c
}

// CreateService calls POST /admin/api/v1/services (spec.md §6 "create service").
func (c *Client) CreateService(ctx context.Context, req CreateServiceRequest) (*ServiceResponse, error) {
	var resp ServiceResponse
	if err := c.doRequest(ctx, http.MethodPost, "/admin/api/v1/services", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListServices calls GET /admin/api/v1/services (spec.md §6 "list services").
func (c *Client) ListServices(ctx context.Context) ([]ServiceWithStatusResponse, error) {
	var resp []ServiceWithStatusResponse
	if err := c.doRequest(ctx, http.MethodGet, "/admin/api/v1/services", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetService calls GET /admin/api/v1/services/{name} (spec.md §6 "get service").
func (c *Client) GetService(ctx context.Context, name string) (*GetServiceResponse, error) {
	var resp GetServiceResponse
	path := "/admin/api/v1/services/" + url.PathEscape(name)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateService calls PATCH /admin/api/v1/services/{name} (spec.md §6
// "update service"). Callers are responsible for re-snapshotting and
// approving if UpstreamURL changed, per the operation's stated effect.
func (c *Client) UpdateService(ctx context.Context, name string, req UpdateServiceRequest) (*ServiceResponse, error) {
	var resp ServiceResponse
	path := "/admin/api/v1/services/" + url.PathEscape(name)
	if err := c.doRequest(ctx, http.MethodPatch, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteService calls DELETE /admin/api/v1/services/{name} (spec.md §6
// "delete service"): cascade delete of the service and its snapshots.
func (c *Client) DeleteService(ctx context.Context, name string) error {
	path := "/admin/api/v1/services/" + url.PathEscape(name)
	return c.doRequest(ctx, http.MethodDelete, path, nil, nil)
}

// ListSnapshots calls GET /admin/api/v1/services/{name}/snapshots?limit=N
// (spec.md §6 "list snapshots"), most-recent first.
func (c *Client) ListSnapshots(ctx context.Context, name string, limit int) ([]SnapshotResponse, error) {
	var resp []SnapshotResponse
	path := "/admin/api/v1/services/" + url.PathEscape(name) + "/snapshots"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Diff calls GET /admin/api/v1/services/{name}/diff (spec.md §6 "diff"):
// the structural diff between the latest approved and latest overall
// snapshot.
func (c *Client) Diff(ctx context.Context, name string) (*DiffResponse, error) {
	var resp DiffResponse
	path := "/admin/api/v1/services/" + url.PathEscape(name) + "/diff"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ApproveLatest calls POST /admin/api/v1/services/{name}/approve
// (spec.md §6 "approve latest"): flips the latest snapshot to
// user_approved and re-enables the service.
func (c *Client) ApproveLatest(ctx context.Context, name string) (*ApproveResponse, error) {
	var resp ApproveResponse
	path := "/admin/api/v1/services/" + url.PathEscape(name) + "/approve"
	if err := c.doRequest(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// doRequest performs an HTTP request against the Guardian admin server.
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	reqURL := strings.TrimRight(c.serverAddr, "/") + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.password != "" {
		httpReq.SetBasicAuth("admin", c.password)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &ServerUnreachableError{Cause: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	switch httpResp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		// fall through to decode below
	case http.StatusNotFound:
		return &NotFoundError{Name: extractName(path)}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &ValidationError{Message: string(respBody)}
	default:
		return &GuardianError{
			Code: fmt.Sprintf("HTTP_%d", httpResp.StatusCode),
			Err:  fmt.Errorf("server returned %d: %s", httpResp.StatusCode, string(respBody)),
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// extractName pulls the {name} path segment back out of an admin API path
// for error reporting, since the server's 404 body format is not fixed.
func extractName(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/admin/api/v1/services/"), "/")
	if len(segments) == 0 {
		return ""
	}
	name, err := url.PathUnescape(segments[0])
	if err != nil {
		return segments[0]
	}
	return name
}
