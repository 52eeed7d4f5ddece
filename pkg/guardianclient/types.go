package guardianclient

import "time"

// CreateServiceRequest is the body for POST /admin/api/v1/services.
type CreateServiceRequest struct {
	Name                  string `json:"name"`
	UpstreamURL           string `json:"upstream_url"`
	Enabled               bool   `json:"enabled"`
	CheckFrequencyMinutes int    `json:"check_frequency_minutes"`
}

// UpdateServiceRequest is the body for PATCH /admin/api/v1/services/{name}.
// Nil fields are left unchanged (spec.md §6 "update service").
type UpdateServiceRequest struct {
	UpstreamURL           *string `json:"upstream_url,omitempty"`
	Enabled               *bool   `json:"enabled,omitempty"`
	CheckFrequencyMinutes *int    `json:"check_frequency_minutes,omitempty"`
}

// ServiceResponse mirrors internal/domain/mcpservice.Service across the
// admin HTTP boundary.
type ServiceResponse struct {
	Name                  string    `json:"name"`
	UpstreamURL           string    `json:"upstream_url"`
	Enabled               bool      `json:"enabled"`
	CheckFrequencyMinutes int       `json:"check_frequency_minutes"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// ServiceWithStatusResponse is one row of a list-services response,
// mirroring internal/domain/mcpservice.WithLatestStatus.
type ServiceWithStatusResponse struct {
	ServiceResponse
	LatestSnapshotStatus string `json:"latest_snapshot_status,omitempty"`
}

// SnapshotResponse mirrors internal/domain/snapshot.Snapshot across the
// admin HTTP boundary.
type SnapshotResponse struct {
	ID        int64          `json:"id"`
	Payload   map[string]any `json:"payload"`
	Hash      string         `json:"hash"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	Seq       int64          `json:"seq"`
}

// GetServiceResponse is the body of GET /admin/api/v1/services/{name}:
// the service plus its most recent snapshots (spec.md §6 "get service").
type GetServiceResponse struct {
	Service   ServiceResponse    `json:"service"`
	Snapshots []SnapshotResponse `json:"snapshots"`
}

// ChangeResponse mirrors internal/domain/snapshot.Change.
type ChangeResponse struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
	Old  any    `json:"old,omitempty"`
	New  any    `json:"new,omitempty"`
}

// DiffResponse is the body of GET /admin/api/v1/services/{name}/diff.
type DiffResponse struct {
	Changes []ChangeResponse `json:"changes"`
}

// ApproveResponse is the body of POST /admin/api/v1/services/{name}/approve.
type ApproveResponse struct {
	Service  ServiceResponse  `json:"service"`
	Snapshot SnapshotResponse `json:"snapshot"`
}
