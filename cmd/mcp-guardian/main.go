// Command mcp-guardian is the validating reverse proxy described by
// spec.md: it fronts one or more MCP servers, snapshots their capability
// surface, and disables any service whose surface drifts from its last
// approved snapshot until an operator re-approves it.
package main

import "github.com/jacklatrobe/MCP-Guardian/cmd/mcp-guardian/cmd"

func main() {
	cmd.Execute()
}
