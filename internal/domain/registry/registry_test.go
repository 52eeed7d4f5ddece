package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jacklatrobe/MCP-Guardian/internal/domain/mcpservice"
	"github.com/jacklatrobe/MCP-Guardian/internal/domain/snapshot"
	"github.com/jacklatrobe/MCP-Guardian/internal/port/outbound"
)

// fakeRepository is a minimal outbound.Repository stub backing ListServices
// for registry reload tests; every other method panics if called.
type fakeRepository struct {
	services []mcpservice.WithLatestStatus
	err      error
}

func (f *fakeRepository) ListServices(ctx context.Context) ([]mcpservice.WithLatestStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.services, nil
}

func (f *fakeRepository) CreateService(context.Context, *mcpservice.Service) (*mcpservice.Service, error) {
	panic("not implemented")
}
func (f *fakeRepository) GetService(context.Context, string) (*mcpservice.Service, error) {
	panic("not implemented")
}
func (f *fakeRepository) UpdateService(context.Context, string, outbound.ServicePatch) (*mcpservice.Service, error) {
	panic("not implemented")
}
func (f *fakeRepository) DeleteService(context.Context, string) error { panic("not implemented") }
func (f *fakeRepository) InsertSnapshot(context.Context, int64, map[string]any, string, mcpservice.SnapshotStatus) (*snapshot.Snapshot, error) {
	panic("not implemented")
}
func (f *fakeRepository) LatestSnapshot(context.Context, int64) (*snapshot.Snapshot, error) {
	panic("not implemented")
}
func (f *fakeRepository) LatestApprovedSnapshot(context.Context, int64) (*snapshot.Snapshot, error) {
	panic("not implemented")
}
func (f *fakeRepository) ListSnapshots(context.Context, int64, int) ([]snapshot.Snapshot, error) {
	panic("not implemented")
}
func (f *fakeRepository) ServicesDueForCheck(context.Context, time.Time) ([]mcpservice.Service, error) {
	panic("not implemented")
}
func (f *fakeRepository) DisableOnDrift(context.Context, int64, map[string]any, string) (*snapshot.Snapshot, error) {
	panic("not implemented")
}
func (f *fakeRepository) ApproveLatestSnapshot(context.Context, string) (*mcpservice.Service, *snapshot.Snapshot, error) {
	panic("not implemented")
}
func (f *fakeRepository) UpsertServiceFromConfig(context.Context, string, string, bool, int) (*mcpservice.Service, bool, error) {
	panic("not implemented")
}

var _ outbound.Repository = (*fakeRepository)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReloadKeepsDisabledServicesInTable(t *testing.T) {
	repo := &fakeRepository{services: []mcpservice.WithLatestStatus{
		{Service: mcpservice.Service{Name: "svc1", UpstreamURL: "https://svc1.example.com/mcp", Enabled: true}},
		{Service: mcpservice.Service{Name: "svc2", UpstreamURL: "https://svc2.example.com/mcp", Enabled: false}},
	}}

	r := New(discardLogger())
	if err := r.Reload(context.Background(), repo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, ok := r.Lookup("svc1")
	if !ok {
		t.Fatal("expected svc1 to be routable")
	}
	if entry.UpstreamURL != "https://svc1.example.com/mcp" {
		t.Errorf("unexpected upstream url: %s", entry.UpstreamURL)
	}
	if !entry.Enabled {
		t.Error("expected svc1 entry to be enabled")
	}

	disabled, ok := r.Lookup("svc2")
	if !ok {
		t.Fatal("expected svc2 (disabled) to still be present so the proxy can distinguish it from unknown")
	}
	if disabled.Enabled {
		t.Error("expected svc2 entry to be disabled")
	}

	if _, ok := r.Lookup("unknown"); ok {
		t.Error("expected unknown service to be absent")
	}
}

func TestReloadPropagatesRepositoryError(t *testing.T) {
	repo := &fakeRepository{err: errors.New("db unavailable")}
	r := New(discardLogger())
	if err := r.Reload(context.Background(), repo); err == nil {
		t.Fatal("expected error")
	}
}

func TestDigestStableAcrossMapOrder(t *testing.T) {
	repoA := &fakeRepository{services: []mcpservice.WithLatestStatus{
		{Service: mcpservice.Service{Name: "a", UpstreamURL: "https://a.example.com", Enabled: true}},
		{Service: mcpservice.Service{Name: "b", UpstreamURL: "https://b.example.com", Enabled: true}},
	}}
	repoB := &fakeRepository{services: []mcpservice.WithLatestStatus{
		{Service: mcpservice.Service{Name: "b", UpstreamURL: "https://b.example.com", Enabled: true}},
		{Service: mcpservice.Service{Name: "a", UpstreamURL: "https://a.example.com", Enabled: true}},
	}}

	r1, r2 := New(discardLogger()), New(discardLogger())
	if err := r1.Reload(context.Background(), repoA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r2.Reload(context.Background(), repoB); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r1.Digest() != r2.Digest() {
		t.Errorf("expected identical digest regardless of insertion order, got %016x vs %016x", r1.Digest(), r2.Digest())
	}
}

func TestDigestChangesOnRouteTableChange(t *testing.T) {
	repo := &fakeRepository{services: []mcpservice.WithLatestStatus{
		{Service: mcpservice.Service{Name: "svc1", UpstreamURL: "https://svc1.example.com", Enabled: true}},
	}}
	r := New(discardLogger())
	if err := r.Reload(context.Background(), repo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := r.Digest()

	repo.services = append(repo.services, mcpservice.WithLatestStatus{
		Service: mcpservice.Service{Name: "svc2", UpstreamURL: "https://svc2.example.com", Enabled: true},
	})
	if err := r.Reload(context.Background(), repo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Digest() == before {
		t.Error("expected digest to change when route table changes")
	}
}
