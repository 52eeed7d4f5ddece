// Package config provides configuration types for MCP Guardian.
//
// GuardianConfig is loaded via Viper (YAML file + MCP_GUARDIAN_* environment
// overrides) and validated with struct tags, the same split the teacher's
// OSSConfig uses. Guardian's surface is narrower than the teacher's: no
// auth/policy/audit sections, since those belong to the admin router and
// persistence collaborators spec.md §1 names out of scope — only the
// sections the core engine itself consumes are represented here.
package config

import "github.com/spf13/viper"

// GuardianConfig is the top-level configuration for MCP Guardian.
type GuardianConfig struct {
	// Server configures the HTTP listener serving both the proxy surface
	// (/{service_name}/mcp) and the admin API that adminhttp.Handler serves
	// on top of AdminService.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Database configures the persistent Repository store.
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Polling configures the route poller and check scheduler intervals
	// (spec.md §4.H).
	Polling PollingConfig `yaml:"polling" mapstructure:"polling"`

	// Admin configures the admin surface's password and UI gate (spec.md
	// §6 "Configuration"). Consumed directly by adminhttp.Handler's Basic
	// Auth check.
	Admin AdminConfig `yaml:"admin" mapstructure:"admin"`

	// Services are seed entries upserted at startup via
	// upsert_service_from_config (spec.md §4.E).
	Services []ServiceSeedConfig `yaml:"services" mapstructure:"services" validate:"omitempty,dive"`

	// DevMode enables verbose logging, matching the teacher's dev-mode knob.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080").
	// Defaults to "127.0.0.1:8080" if empty. MCP_GUARDIAN_SERVER_HTTP_ADDR
	// overrides it; the HOST and PORT environment variables are not read.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// DatabaseConfig configures the persistent Repository store.
type DatabaseConfig struct {
	// URL is the store connection string — a SQLite DSN (file path or
	// ":memory:") consumed by internal/adapter/outbound/sqlite.Open.
	URL string `yaml:"url" mapstructure:"url" validate:"required"`
}

// PollingConfig configures the two schedulers (spec.md §4.H).
type PollingConfig struct {
	// IntervalSeconds is the tick interval for both the route poller and
	// the check scheduler. Must be >= 1. Defaults to 60.
	IntervalSeconds int `yaml:"interval_seconds" mapstructure:"interval_seconds" validate:"omitempty,min=1"`

	// MinCheckFrequency is the floor, in minutes, for a service's
	// check_frequency_minutes when nonzero. Defaults to 5.
	MinCheckFrequency int `yaml:"min_check_frequency" mapstructure:"min_check_frequency" validate:"omitempty,min=1"`
}

// AdminConfig configures the admin surface (spec.md §6).
type AdminConfig struct {
	// Password is an argon2id hash (see argon2id.CreateHash) compared by
	// adminhttp.Handler against the cleartext password on each Basic Auth
	// request. Empty falls back to a localhost-only bypass, matching the
	// teacher's zero-config admin auth.
	Password string `yaml:"password" mapstructure:"password"`

	// DisableUI, when true, unmounts the /admin/api/ routes entirely so
	// the admin surface is not served at all (spec.md §6).
	DisableUI bool `yaml:"disable_ui" mapstructure:"disable_ui"`
}

// ServiceSeedConfig is a seed entry upserted at startup.
type ServiceSeedConfig struct {
	Name                  string `yaml:"name" mapstructure:"name" validate:"required"`
	UpstreamURL           string `yaml:"upstream_url" mapstructure:"upstream_url" validate:"required,url"`
	Enabled               bool   `yaml:"enabled" mapstructure:"enabled"`
	CheckFrequencyMinutes int    `yaml:"check_frequency_minutes" mapstructure:"check_frequency_minutes" validate:"omitempty,min=0"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *GuardianConfig) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Database.URL == "" {
		c.Database.URL = "guardian.db"
	}
	if c.Polling.IntervalSeconds == 0 {
		c.Polling.IntervalSeconds = 60
	}
	if c.Polling.MinCheckFrequency == 0 {
		c.Polling.MinCheckFrequency = 5
	}

	// DevMode forces debug logging and, unless database.url is set
	// explicitly, an in-memory database, matching the teacher's
	// SetDevDefaults habit of making the zero-config path work.
	if c.DevMode {
		c.Server.LogLevel = "debug"
		if !viper.IsSet("database.url") {
			c.Database.URL = ":memory:"
		}
	}
}
