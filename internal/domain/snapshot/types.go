// Package snapshot contains the domain type for a stored capability-surface
// observation and the pure structural diff used by the admin review surface
// (spec.md §3, §4.D).
package snapshot

import (
	"time"

	"github.com/jacklatrobe/MCP-Guardian/internal/domain/mcpservice"
)

// Snapshot is an observation of an upstream's capability surface, stored
// append-only against its owning Service.
type Snapshot struct {
	ID        int64
	ServiceID int64
	// Payload is the normalized JSON object assembled by the Snapshotter
	// (spec.md §4.C step 3), stored verbatim so diffs are reproducible.
	Payload   map[string]any
	Hash      string
	Status    mcpservice.SnapshotStatus
	CreatedAt time.Time
	// Seq breaks created_at ties in insertion order (spec.md §3).
	Seq int64
}
