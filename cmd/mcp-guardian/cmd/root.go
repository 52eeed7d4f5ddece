// Package cmd provides the CLI commands for MCP Guardian. Grounded on
// the teacher's cmd/sentinel-gate/cmd: the persistent --config flag bound
// to cobra.OnInitialize(config.InitViper), and the long-form help text
// describing config file search order and the env-var override prefix.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jacklatrobe/MCP-Guardian/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mcp-guardian",
	Short: "MCP Guardian - validating reverse proxy for MCP servers",
	Long: `MCP Guardian fronts one or more Model Context Protocol (MCP) servers
behind stable public paths. It periodically snapshots each upstream's
capability surface (tools, resources, prompts) and disables any service
whose surface drifts from its last approved snapshot, until an operator
reviews the diff and re-approves it.

Quick start:
  1. Create a config file: mcp-guardian.yaml
  2. Run: mcp-guardian migrate && mcp-guardian seed && mcp-guardian serve

Configuration:
  Config is loaded from mcp-guardian.yaml in the current directory,
  $HOME/.mcp-guardian/, or /etc/mcp-guardian/.

  Environment variables can override config values with the
  MCP_GUARDIAN_ prefix. Example: MCP_GUARDIAN_SERVER_HTTP_ADDR=:9090

Commands:
  serve     Start the proxy server
  migrate   Apply the database schema
  seed      Upsert services listed in config into the database
  version   Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcp-guardian.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
