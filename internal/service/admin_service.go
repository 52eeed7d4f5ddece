package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/jacklatrobe/MCP-Guardian/internal/domain/mcpservice"
	"github.com/jacklatrobe/MCP-Guardian/internal/domain/registry"
	"github.com/jacklatrobe/MCP-Guardian/internal/domain/snapshot"
	"github.com/jacklatrobe/MCP-Guardian/internal/port/outbound"
)

// CreateServiceInput is the admin API's create-service request shape
// (spec.md §6 admin API table). Struct-level validation mirrors the
// teacher's OSSConfig.Validate() split between tag-driven shape checks
// (here) and cross-field/business-rule checks (mcpservice.Service.Validate,
// which needs the operator-configured minCheckFrequency floor).
type CreateServiceInput struct {
	Name                  string `validate:"required,max=64"`
	UpstreamURL           string `validate:"required,url"`
	Enabled               bool
	CheckFrequencyMinutes int `validate:"min=0"`
}

// UpdateServiceInput carries optional patch fields; nil means unchanged.
type UpdateServiceInput struct {
	UpstreamURL           *string `validate:"omitempty,url"`
	Enabled               *bool
	CheckFrequencyMinutes *int `validate:"omitempty,min=0"`
}

// AdminService implements the admin operations table from spec.md §6. It
// has no HTTP awareness of its own: adminhttp.Handler serves it over HTTP,
// and pkg/guardianclient's methods call that HTTP surface.
type AdminService struct {
	repo              outbound.Repository
	registry          *registry.Registry
	snapshotter       *Snapshotter
	minCheckFrequency int
	logger            *slog.Logger
	validate          *validator.Validate
}

// NewAdminService creates an AdminService. minCheckFrequency is the
// operator-configured floor (polling.min_check_frequency, default
// mcpservice.DefaultMinCheckFrequencyMinutes).
func NewAdminService(repo outbound.Repository, reg *registry.Registry, snapshotter *Snapshotter, minCheckFrequency int, logger *slog.Logger) *AdminService {
	return &AdminService{
		repo:              repo,
		registry:          reg,
		snapshotter:       snapshotter,
		minCheckFrequency: minCheckFrequency,
		logger:            logger,
		validate:          validator.New(validator.WithRequiredStructEnabled()),
	}
}

// CreateService validates input, snapshots the upstream immediately,
// inserts the service with a user_approved snapshot, and reloads the
// registry (spec.md §6 "create service").
func (a *AdminService) CreateService(ctx context.Context, input CreateServiceInput) (*mcpservice.Service, error) {
	if err := a.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", mcpservice.ErrValidation, err)
	}

	svc := &mcpservice.Service{
		Name:                  input.Name,
		UpstreamURL:           input.UpstreamURL,
		Enabled:               input.Enabled,
		CheckFrequencyMinutes: input.CheckFrequencyMinutes,
	}
	if err := svc.Validate(a.minCheckFrequency); err != nil {
		return nil, err
	}

	payload, hash, err := a.snapshotter.Snapshot(ctx, svc.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("initial snapshot: %w", err)
	}

	created, err := a.repo.CreateService(ctx, svc)
	if err != nil {
		return nil, err
	}
	if _, err := a.repo.InsertSnapshot(ctx, created.ID, payload, hash, mcpservice.StatusUserApproved); err != nil {
		return nil, fmt.Errorf("insert initial snapshot: %w", err)
	}

	if err := a.registry.Reload(ctx, a.repo); err != nil {
		a.logger.Error("registry reload after create failed", "service", created.Name, "error", err)
	}
	return created, nil
}

// ListServices returns every service with its latest snapshot status.
func (a *AdminService) ListServices(ctx context.Context) ([]mcpservice.WithLatestStatus, error) {
	return a.repo.ListServices(ctx)
}

// GetService returns a service plus its recent snapshots (spec.md §6
// "get service").
func (a *AdminService) GetService(ctx context.Context, name string, snapshotLimit int) (*mcpservice.Service, []snapshot.Snapshot, error) {
	svc, err := a.repo.GetService(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	snaps, err := a.repo.ListSnapshots(ctx, svc.ID, snapshotLimit)
	if err != nil {
		return nil, nil, err
	}
	return svc, snaps, nil
}

// UpdateService applies patch fields and reloads the registry. Per
// spec.md §6, if upstream_url changed the caller is expected to
// separately re-snapshot and re-approve; this method does not do that
// automatically.
func (a *AdminService) UpdateService(ctx context.Context, name string, input UpdateServiceInput) (*mcpservice.Service, error) {
	if err := a.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", mcpservice.ErrValidation, err)
	}
	if input.CheckFrequencyMinutes != nil && *input.CheckFrequencyMinutes != 0 && *input.CheckFrequencyMinutes < a.minCheckFrequency {
		return nil, fmt.Errorf("%w: check_frequency_minutes must be 0 or >= %d", mcpservice.ErrValidation, a.minCheckFrequency)
	}

	patch := outbound.ServicePatch{
		UpstreamURL:           input.UpstreamURL,
		Enabled:               input.Enabled,
		CheckFrequencyMinutes: input.CheckFrequencyMinutes,
	}
	updated, err := a.repo.UpdateService(ctx, name, patch)
	if err != nil {
		return nil, err
	}
	if err := a.registry.Reload(ctx, a.repo); err != nil {
		a.logger.Error("registry reload after update failed", "service", name, "error", err)
	}
	return updated, nil
}

// DeleteService cascades the delete and reloads the registry.
func (a *AdminService) DeleteService(ctx context.Context, name string) error {
	if err := a.repo.DeleteService(ctx, name); err != nil {
		return err
	}
	if err := a.registry.Reload(ctx, a.repo); err != nil {
		a.logger.Error("registry reload after delete failed", "service", name, "error", err)
	}
	return nil
}

// ListSnapshots returns up to limit snapshots, newest first.
func (a *AdminService) ListSnapshots(ctx context.Context, name string, limit int) ([]snapshot.Snapshot, error) {
	svc, err := a.repo.GetService(ctx, name)
	if err != nil {
		return nil, err
	}
	return a.repo.ListSnapshots(ctx, svc.ID, limit)
}

// Diff computes the structural diff between the latest approved snapshot
// and the latest overall snapshot for human review (spec.md §4.D, §6).
func (a *AdminService) Diff(ctx context.Context, name string) ([]snapshot.Change, error) {
	svc, err := a.repo.GetService(ctx, name)
	if err != nil {
		return nil, err
	}
	approved, err := a.repo.LatestApprovedSnapshot(ctx, svc.ID)
	if err != nil {
		return nil, err
	}
	latest, err := a.repo.LatestSnapshot(ctx, svc.ID)
	if err != nil {
		return nil, err
	}
	return snapshot.Diff(approved.Payload, latest.Payload), nil
}

// ApproveLatest flips the latest snapshot to user_approved and re-enables
// the service (spec.md §4.H, §6 "approve latest").
func (a *AdminService) ApproveLatest(ctx context.Context, name string) (*mcpservice.Service, *snapshot.Snapshot, error) {
	svc, snap, err := a.repo.ApproveLatestSnapshot(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if err := a.registry.Reload(ctx, a.repo); err != nil {
		a.logger.Error("registry reload after approve failed", "service", name, "error", err)
	}
	return svc, snap, nil
}
