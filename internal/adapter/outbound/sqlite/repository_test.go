package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jacklatrobe/MCP-Guardian/internal/domain/mcpservice"
	"github.com/jacklatrobe/MCP-Guardian/internal/port/outbound"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), ":memory:", testLogger())
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func TestCreateAndGetService(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateService(ctx, &mcpservice.Service{
		Name:                  "svc1",
		UpstreamURL:           "https://svc1.example.com/mcp",
		Enabled:               true,
		CheckFrequencyMinutes: 15,
	})
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if created.ID == 0 {
		t.Error("expected non-zero id")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}

	got, err := store.GetService(ctx, "svc1")
	if err != nil {
		t.Fatalf("get service: %v", err)
	}
	if got.UpstreamURL != "https://svc1.example.com/mcp" {
		t.Errorf("unexpected upstream url: %s", got.UpstreamURL)
	}
}

func TestCreateServiceDuplicateName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := &mcpservice.Service{Name: "dup", UpstreamURL: "https://a.example.com", Enabled: true, CheckFrequencyMinutes: 5}

	if _, err := store.CreateService(ctx, svc); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := store.CreateService(ctx, svc)
	if !errors.Is(err, mcpservice.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestGetServiceNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetService(context.Background(), "missing")
	if !errors.Is(err, mcpservice.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListServicesIncludesLatestStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	svc1, err := store.CreateService(ctx, &mcpservice.Service{Name: "svc1", UpstreamURL: "https://a.example.com", Enabled: true, CheckFrequencyMinutes: 5})
	if err != nil {
		t.Fatalf("create svc1: %v", err)
	}
	if _, err := store.CreateService(ctx, &mcpservice.Service{Name: "svc2", UpstreamURL: "https://b.example.com", Enabled: true, CheckFrequencyMinutes: 5}); err != nil {
		t.Fatalf("create svc2: %v", err)
	}

	if _, err := store.InsertSnapshot(ctx, svc1.ID, map[string]any{"v": 1}, "hash-1", mcpservice.StatusUserApproved); err != nil {
		t.Fatalf("insert snapshot: %v", err)
	}

	list, err := store.ListServices(ctx)
	if err != nil {
		t.Fatalf("list services: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 services, got %d", len(list))
	}

	var found1, found2 bool
	for _, item := range list {
		switch item.Name {
		case "svc1":
			found1 = true
			if item.LatestSnapshotStatus == nil || *item.LatestSnapshotStatus != mcpservice.StatusUserApproved {
				t.Errorf("expected svc1 latest status user_approved, got %v", item.LatestSnapshotStatus)
			}
		case "svc2":
			found2 = true
			if item.LatestSnapshotStatus != nil {
				t.Errorf("expected svc2 to have no snapshot status, got %v", *item.LatestSnapshotStatus)
			}
		}
	}
	if !found1 || !found2 {
		t.Fatal("expected both services in list")
	}
}

func TestUpdateServicePartialPatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.CreateService(ctx, &mcpservice.Service{Name: "svc1", UpstreamURL: "https://a.example.com", Enabled: true, CheckFrequencyMinutes: 5}); err != nil {
		t.Fatalf("create: %v", err)
	}

	newFreq := 30
	updated, err := store.UpdateService(ctx, "svc1", outbound.ServicePatch{CheckFrequencyMinutes: &newFreq})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.CheckFrequencyMinutes != 30 {
		t.Errorf("expected check frequency 30, got %d", updated.CheckFrequencyMinutes)
	}
	if updated.UpstreamURL != "https://a.example.com" {
		t.Errorf("expected upstream url unchanged, got %s", updated.UpstreamURL)
	}
}

func TestDeleteServiceCascadesSnapshots(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc, err := store.CreateService(ctx, &mcpservice.Service{Name: "svc1", UpstreamURL: "https://a.example.com", Enabled: true, CheckFrequencyMinutes: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.InsertSnapshot(ctx, svc.ID, map[string]any{}, "h1", mcpservice.StatusUnapproved); err != nil {
		t.Fatalf("insert snapshot: %v", err)
	}

	if err := store.DeleteService(ctx, "svc1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetService(ctx, "svc1"); !errors.Is(err, mcpservice.ErrNotFound) {
		t.Fatalf("expected service gone, got %v", err)
	}
	snaps, err := store.ListSnapshots(ctx, svc.ID, 10)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("expected cascaded snapshot deletion, got %d remaining", len(snaps))
	}
}

func TestDeleteServiceNotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.DeleteService(context.Background(), "missing")
	if !errors.Is(err, mcpservice.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertSnapshotAssignsIncrementingSeq(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc, err := store.CreateService(ctx, &mcpservice.Service{Name: "svc1", UpstreamURL: "https://a.example.com", Enabled: true, CheckFrequencyMinutes: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := store.InsertSnapshot(ctx, svc.ID, map[string]any{"v": 1}, "h1", mcpservice.StatusUnapproved)
	if err != nil {
		t.Fatalf("insert first: %v", err)
	}
	second, err := store.InsertSnapshot(ctx, svc.ID, map[string]any{"v": 2}, "h2", mcpservice.StatusUnapproved)
	if err != nil {
		t.Fatalf("insert second: %v", err)
	}
	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("expected seq 1 then 2, got %d then %d", first.Seq, second.Seq)
	}

	latest, err := store.LatestSnapshot(ctx, svc.ID)
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if latest.Hash != "h2" {
		t.Errorf("expected latest hash h2, got %s", latest.Hash)
	}
}

func TestLatestApprovedSnapshotSkipsUnapproved(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc, err := store.CreateService(ctx, &mcpservice.Service{Name: "svc1", UpstreamURL: "https://a.example.com", Enabled: true, CheckFrequencyMinutes: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.InsertSnapshot(ctx, svc.ID, map[string]any{}, "h1", mcpservice.StatusUserApproved); err != nil {
		t.Fatalf("insert approved: %v", err)
	}
	if _, err := store.InsertSnapshot(ctx, svc.ID, map[string]any{}, "h2", mcpservice.StatusUnapproved); err != nil {
		t.Fatalf("insert unapproved: %v", err)
	}

	approved, err := store.LatestApprovedSnapshot(ctx, svc.ID)
	if err != nil {
		t.Fatalf("latest approved: %v", err)
	}
	if approved.Hash != "h1" {
		t.Errorf("expected last approved hash h1, got %s", approved.Hash)
	}
}

func TestLatestApprovedSnapshotNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc, err := store.CreateService(ctx, &mcpservice.Service{Name: "svc1", UpstreamURL: "https://a.example.com", Enabled: true, CheckFrequencyMinutes: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = store.LatestApprovedSnapshot(ctx, svc.ID)
	if !errors.Is(err, mcpservice.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDisableOnDriftIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc, err := store.CreateService(ctx, &mcpservice.Service{Name: "svc1", UpstreamURL: "https://a.example.com", Enabled: true, CheckFrequencyMinutes: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	snap, err := store.DisableOnDrift(ctx, svc.ID, map[string]any{"v": "drifted"}, "drift-hash")
	if err != nil {
		t.Fatalf("disable on drift: %v", err)
	}
	if snap.Status != mcpservice.StatusUnapproved {
		t.Errorf("expected unapproved status, got %s", snap.Status)
	}

	got, err := store.GetService(ctx, "svc1")
	if err != nil {
		t.Fatalf("get service: %v", err)
	}
	if got.Enabled {
		t.Error("expected service disabled after drift")
	}
}

func TestApproveLatestSnapshotReenablesService(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc, err := store.CreateService(ctx, &mcpservice.Service{Name: "svc1", UpstreamURL: "https://a.example.com", Enabled: true, CheckFrequencyMinutes: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.DisableOnDrift(ctx, svc.ID, map[string]any{"v": "drifted"}, "drift-hash"); err != nil {
		t.Fatalf("disable on drift: %v", err)
	}

	updatedSvc, snap, err := store.ApproveLatestSnapshot(ctx, "svc1")
	if err != nil {
		t.Fatalf("approve latest: %v", err)
	}
	if !updatedSvc.Enabled {
		t.Error("expected service re-enabled after approval")
	}
	if snap.Status != mcpservice.StatusUserApproved {
		t.Errorf("expected user_approved status, got %s", snap.Status)
	}
}

func TestApproveLatestSnapshotNoSnapshotsIsNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.CreateService(ctx, &mcpservice.Service{Name: "svc1", UpstreamURL: "https://a.example.com", Enabled: true, CheckFrequencyMinutes: 5}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _, err := store.ApproveLatestSnapshot(ctx, "svc1")
	if !errors.Is(err, mcpservice.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServicesDueForCheck(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	due, err := store.CreateService(ctx, &mcpservice.Service{Name: "due", UpstreamURL: "https://a.example.com", Enabled: true, CheckFrequencyMinutes: 5})
	if err != nil {
		t.Fatalf("create due: %v", err)
	}
	notDue, err := store.CreateService(ctx, &mcpservice.Service{Name: "not-due", UpstreamURL: "https://b.example.com", Enabled: true, CheckFrequencyMinutes: 5})
	if err != nil {
		t.Fatalf("create not-due: %v", err)
	}
	if _, err := store.CreateService(ctx, &mcpservice.Service{Name: "unpolled", UpstreamURL: "https://c.example.com", Enabled: true, CheckFrequencyMinutes: 0}); err != nil {
		t.Fatalf("create unpolled: %v", err)
	}

	// notDue just got a fresh snapshot, so it should not be due yet.
	if _, err := store.InsertSnapshot(ctx, notDue.ID, map[string]any{}, "fresh", mcpservice.StatusSystemApproved); err != nil {
		t.Fatalf("insert fresh snapshot: %v", err)
	}

	results, err := store.ServicesDueForCheck(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("services due for check: %v", err)
	}

	var names []string
	for _, svc := range results {
		names = append(names, svc.Name)
	}
	foundDue := false
	for _, n := range names {
		if n == "due" {
			foundDue = true
		}
		if n == "not-due" || n == "unpolled" {
			t.Errorf("did not expect %q in due list, got %v", n, names)
		}
	}
	if !foundDue {
		t.Errorf("expected %q (never checked) to be due, got %v", due.Name, names)
	}
}

func TestUpsertServiceFromConfigIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	svc1, created1, err := store.UpsertServiceFromConfig(ctx, "seeded", "https://a.example.com", true, 10)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !created1 {
		t.Error("expected created=true on first upsert")
	}

	svc2, created2, err := store.UpsertServiceFromConfig(ctx, "seeded", "https://changed.example.com", false, 99)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created2 {
		t.Error("expected created=false on second upsert")
	}
	if svc2.UpstreamURL != svc1.UpstreamURL {
		t.Errorf("expected existing service left unchanged, got %s", svc2.UpstreamURL)
	}
}
