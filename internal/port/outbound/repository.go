// Package outbound defines the outbound port interfaces MCP Guardian's
// domain and service layers depend on: durable storage (Repository) and
// upstream MCP connectivity (UpstreamClient). Concrete adapters live under
// internal/adapter/outbound, mirroring the teacher's hexagonal layout
// (internal/port/outbound/mcp_client.go -> internal/adapter/outbound/mcp).
package outbound

import (
	"context"
	"time"

	"github.com/jacklatrobe/MCP-Guardian/internal/domain/mcpservice"
	"github.com/jacklatrobe/MCP-Guardian/internal/domain/snapshot"
)

// Repository is the durable-storage contract from spec.md §4.E. Adapters
// must satisfy the atomicity requirement on DisableOnDrift: a concurrent
// ListServices observes either both the new snapshot row and enabled=false,
// or neither.
type Repository interface {
	CreateService(ctx context.Context, svc *mcpservice.Service) (*mcpservice.Service, error)
	GetService(ctx context.Context, name string) (*mcpservice.Service, error)
	ListServices(ctx context.Context) ([]mcpservice.WithLatestStatus, error)
	// UpdateService applies patch fields that are non-nil. Name is immutable
	// and not settable via patch.
	UpdateService(ctx context.Context, name string, patch ServicePatch) (*mcpservice.Service, error)
	DeleteService(ctx context.Context, name string) error

	InsertSnapshot(ctx context.Context, serviceID int64, payload map[string]any, hash string, status mcpservice.SnapshotStatus) (*snapshot.Snapshot, error)
	LatestSnapshot(ctx context.Context, serviceID int64) (*snapshot.Snapshot, error)
	LatestApprovedSnapshot(ctx context.Context, serviceID int64) (*snapshot.Snapshot, error)
	ListSnapshots(ctx context.Context, serviceID int64, limit int) ([]snapshot.Snapshot, error)

	// ServicesDueForCheck returns enabled services with CheckFrequencyMinutes
	// > 0 whose last check is older than now - CheckFrequencyMinutes, or
	// which have no checks yet.
	ServicesDueForCheck(ctx context.Context, now time.Time) ([]mcpservice.Service, error)

	// DisableOnDrift atomically inserts an unapproved snapshot row and sets
	// enabled=false for the service (spec.md §4.E, §4.H step 2, §8 property 4).
	DisableOnDrift(ctx context.Context, serviceID int64, payload map[string]any, hash string) (*snapshot.Snapshot, error)

	// ApproveLatestSnapshot flips the latest snapshot to user_approved and
	// re-enables the service if it was unapproved; no-op success if the
	// latest snapshot is already approved (spec.md §4.H, §8 property 7).
	ApproveLatestSnapshot(ctx context.Context, name string) (*mcpservice.Service, *snapshot.Snapshot, error)

	// UpsertServiceFromConfig idempotently seeds a service at startup; if
	// the name already exists, nothing is changed (spec.md §4.E).
	UpsertServiceFromConfig(ctx context.Context, name, upstreamURL string, enabled bool, checkFrequencyMinutes int) (*mcpservice.Service, bool, error)
}

// ServicePatch carries the mutable Service fields for UpdateService. Nil
// pointers mean "leave unchanged".
type ServicePatch struct {
	UpstreamURL           *string
	Enabled               *bool
	CheckFrequencyMinutes *int
}
