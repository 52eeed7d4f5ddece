package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jacklatrobe/MCP-Guardian/internal/port/outbound"
)

// fakeUpstreamClient is a scripted outbound.UpstreamClient for Snapshotter tests.
type fakeUpstreamClient struct {
	initResult *outbound.InitResult
	initErr    error
	lists      map[outbound.ListMethod][]map[string]any
	listErrs   map[outbound.ListMethod]error
}

func (f *fakeUpstreamClient) Initialize(ctx context.Context, url string) (*outbound.InitResult, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	return f.initResult, nil
}

func (f *fakeUpstreamClient) List(ctx context.Context, url string, method outbound.ListMethod) ([]map[string]any, error) {
	if err, ok := f.listErrs[method]; ok {
		return nil, err
	}
	return f.lists[method], nil
}

func (f *fakeUpstreamClient) ForwardRequest(ctx context.Context, url, method string, headers http.Header, body []byte) (*outbound.UpstreamResponse, error) {
	panic("not used by snapshotter")
}

func (f *fakeUpstreamClient) OpenSSE(ctx context.Context, url string, headers http.Header) (*outbound.UpstreamResponse, error) {
	panic("not used by snapshotter")
}

var _ outbound.UpstreamClient = (*fakeUpstreamClient)(nil)

func baseFakeClient() *fakeUpstreamClient {
	return &fakeUpstreamClient{
		initResult: &outbound.InitResult{
			ProtocolVersion: "2025-06-18",
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo: map[string]any{
				"name":      "upstream-1",
				"version":   "1.0.0",
				"build":     "abc123",
				"buildTime": "2026-01-01T00:00:00Z",
				"uptime":    float64(12345),
			},
		},
		lists: map[outbound.ListMethod][]map[string]any{
			outbound.MethodToolsList:             {{"name": "ping"}, {"name": "echo"}},
			outbound.MethodResourcesList:         {{"uri": "res://b"}, {"uri": "res://a"}},
			outbound.MethodResourceTemplatesList: {{"uriTemplate": "tmpl://{id}"}},
			outbound.MethodPromptsList:           {},
		},
	}
}

func TestSnapshotNormalizesAndSortsAndStripsVolatile(t *testing.T) {
	client := baseFakeClient()
	snap := NewSnapshotter(client)

	payload, hash, err := snap.Snapshot(context.Background(), "https://upstream.example.com/mcp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}

	serverInfo, ok := payload["serverInfo"].(map[string]any)
	if !ok {
		t.Fatal("expected serverInfo object")
	}
	for _, volatile := range []string{"build", "buildTime", "uptime"} {
		if _, present := serverInfo[volatile]; present {
			t.Errorf("expected %q to be stripped from serverInfo", volatile)
		}
	}
	if serverInfo["name"] != "upstream-1" {
		t.Errorf("expected name preserved, got %v", serverInfo["name"])
	}

	tools, ok := payload["tools"].([]any)
	if !ok || len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %v", payload["tools"])
	}
	first := tools[0].(map[string]any)
	if first["name"] != "echo" {
		t.Errorf("expected tools sorted ascending by name, first=%v", first["name"])
	}

	resources := payload["resources"].([]any)
	if resources[0].(map[string]any)["uri"] != "res://a" {
		t.Errorf("expected resources sorted ascending by uri")
	}
}

func TestSnapshotFailsOnInitializeError(t *testing.T) {
	client := baseFakeClient()
	client.initErr = errors.New("connection refused")

	snap := NewSnapshotter(client)
	_, _, err := snap.Snapshot(context.Background(), "https://upstream.example.com/mcp")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSnapshotFailsOnListError(t *testing.T) {
	client := baseFakeClient()
	client.listErrs = map[outbound.ListMethod]error{
		outbound.MethodPromptsList: errors.New("upstream exploded"),
	}

	snap := NewSnapshotter(client)
	_, _, err := snap.Snapshot(context.Background(), "https://upstream.example.com/mcp")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSnapshotAmbiguousOnDuplicateSortKey(t *testing.T) {
	client := baseFakeClient()
	client.lists[outbound.MethodToolsList] = []map[string]any{{"name": "dup"}, {"name": "dup"}}

	snap := NewSnapshotter(client)
	_, _, err := snap.Snapshot(context.Background(), "https://upstream.example.com/mcp")
	if !errors.Is(err, ErrSnapshotAmbiguous) {
		t.Fatalf("expected ErrSnapshotAmbiguous, got %v", err)
	}
}

func TestSnapshotDeterministicHashAcrossKeyOrder(t *testing.T) {
	client1 := baseFakeClient()
	client2 := baseFakeClient()
	// Reconstruct serverInfo with a different map insertion order; Go maps
	// don't preserve insertion order anyway, but this documents the intent
	// that hash stability comes from canon.Canonicalize, not map order.
	client2.initResult.ServerInfo = map[string]any{
		"version":   "1.0.0",
		"name":      "upstream-1",
		"uptime":    float64(99999),
		"build":     "xyz789",
		"buildTime": "2026-06-01T00:00:00Z",
	}

	_, hash1, err := NewSnapshotter(client1).Snapshot(context.Background(), "https://upstream.example.com/mcp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, hash2, err := NewSnapshotter(client2).Snapshot(context.Background(), "https://upstream.example.com/mcp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash1 != hash2 {
		t.Errorf("expected identical hash despite differing volatile fields, got %s vs %s", hash1, hash2)
	}
}
