package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestGuardianConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg GuardianConfig
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:8080")
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, "info")
	}
	if cfg.Database.URL != "guardian.db" {
		t.Errorf("Database.URL = %q, want %q", cfg.Database.URL, "guardian.db")
	}
	if cfg.Polling.IntervalSeconds != 60 {
		t.Errorf("IntervalSeconds = %d, want 60", cfg.Polling.IntervalSeconds)
	}
	if cfg.Polling.MinCheckFrequency != 5 {
		t.Errorf("MinCheckFrequency = %d, want 5", cfg.Polling.MinCheckFrequency)
	}
}

func TestGuardianConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := GuardianConfig{
		Server:   ServerConfig{HTTPAddr: ":9090", LogLevel: "warn"},
		Database: DatabaseConfig{URL: "/var/lib/guardian/guardian.db"},
		Polling:  PollingConfig{IntervalSeconds: 30, MinCheckFrequency: 10},
	}
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr was overwritten: got %q, want %q", cfg.Server.HTTPAddr, ":9090")
	}
	if cfg.Server.LogLevel != "warn" {
		t.Errorf("LogLevel was overwritten: got %q, want %q", cfg.Server.LogLevel, "warn")
	}
	if cfg.Database.URL != "/var/lib/guardian/guardian.db" {
		t.Errorf("Database.URL was overwritten: got %q", cfg.Database.URL)
	}
	if cfg.Polling.IntervalSeconds != 30 {
		t.Errorf("IntervalSeconds was overwritten: got %d, want 30", cfg.Polling.IntervalSeconds)
	}
	if cfg.Polling.MinCheckFrequency != 10 {
		t.Errorf("MinCheckFrequency was overwritten: got %d, want 10", cfg.Polling.MinCheckFrequency)
	}
}

func TestGuardianConfig_SetDefaults_DevModeForcesDebugAndInMemoryDB(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfg := GuardianConfig{DevMode: true}
	cfg.SetDefaults()

	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q in dev mode", cfg.Server.LogLevel, "debug")
	}
	if cfg.Database.URL != ":memory:" {
		t.Errorf("Database.URL = %q, want %q in dev mode", cfg.Database.URL, ":memory:")
	}
}

func TestGuardianConfig_SetDefaults_DevModeRespectsExplicitDatabaseURL(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	viper.Set("database.url", "/tmp/explicit.db")

	cfg := GuardianConfig{DevMode: true, Database: DatabaseConfig{URL: "/tmp/explicit.db"}}
	cfg.SetDefaults()

	if cfg.Database.URL != "/tmp/explicit.db" {
		t.Errorf("Database.URL = %q, want explicit value preserved", cfg.Database.URL)
	}
}

func TestFindConfigFileInPaths_EmptyDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths(empty dir) = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_MatchesYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "mcp-guardian.yaml")
	_ = os.WriteFile(cfgPath, []byte("server:\n  http_addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_MatchesYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "mcp-guardian.yml")
	_ = os.WriteFile(cfgPath, []byte("server:\n  http_addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_IgnoresNoExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// Simulate the binary: a file named "mcp-guardian" with no extension
	_ = os.WriteFile(filepath.Join(dir, "mcp-guardian"), []byte("\x7fELF binary"), 0755)

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths matched binary = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_PrefersYAMLOverYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "mcp-guardian.yaml")
	ymlPath := filepath.Join(dir, "mcp-guardian.yml")
	_ = os.WriteFile(yamlPath, []byte("server:\n  http_addr: :8080\n"), 0644)
	_ = os.WriteFile(ymlPath, []byte("server:\n  http_addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != yamlPath {
		t.Errorf("findConfigFileInPaths = %q, want %q (.yaml preferred)", got, yamlPath)
	}
}
