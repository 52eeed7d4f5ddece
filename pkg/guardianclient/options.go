package guardianclient

import (
	"net/http"
	"time"
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithServerAddr sets the Guardian admin server address.
// If not set, defaults to the MCP_GUARDIAN_ADMIN_ADDR environment variable.
func WithServerAddr(addr string) Option {
	return func(c *Client) { c.serverAddr = addr }
}

// WithPassword sets the admin basic-auth password (spec.md §6 admin.password).
// If not set, defaults to the MCP_GUARDIAN_ADMIN_PASSWORD environment variable.
func WithPassword(password string) Option {
	return func(c *Client) { c.password = password }
}

// WithTimeout sets the HTTP request timeout. Defaults to 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient sets a custom http.Client, useful for testing or custom
// transport configuration.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}
