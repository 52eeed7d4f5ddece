package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jacklatrobe/MCP-Guardian/internal/canon"
	"github.com/jacklatrobe/MCP-Guardian/internal/observability"
	"github.com/jacklatrobe/MCP-Guardian/internal/port/outbound"
)

// ErrSnapshotAmbiguous is returned when an upstream exposes two items of
// the same kind with the same sort key (spec.md §4.C "Sort stability").
var ErrSnapshotAmbiguous = errors.New("snapshot ambiguous: duplicate sort key")

// volatileServerInfoFields are stripped from serverInfo because they
// fluctuate without semantic change (spec.md §4.C step 4).
var volatileServerInfoFields = []string{"build", "buildTime", "uptime", "instructions"}

// knownItemFields are the MCP schema fields retained verbatim on each
// listed item; everything else not in this set but present upstream is
// still retained, per spec.md §4.C step 4 ("unknown keys are retained
// verbatim so upstream additions are detected") — this list exists only
// to document which fields are expected, not to filter them out.
var knownItemFields = []string{
	"name", "description", "title", "inputSchema", "uri", "uriTemplate",
	"mimeType", "arguments", "annotations",
}

// Snapshotter assembles a normalized capability-surface observation for
// an upstream and computes its canonical fingerprint (spec.md §4.C).
type Snapshotter struct {
	client outbound.UpstreamClient
}

// NewSnapshotter creates a Snapshotter backed by client.
func NewSnapshotter(client outbound.UpstreamClient) *Snapshotter {
	return &Snapshotter{client: client}
}

// Snapshot performs the full initialize + four listing calls against
// upstreamURL and returns the normalized payload and its hash. Any
// failure in initialize or any listing call is fatal to the attempt; no
// partial snapshot is ever returned.
func (s *Snapshotter) Snapshot(ctx context.Context, upstreamURL string) (_ map[string]any, _ string, err error) {
	ctx, span := observability.StartSpan(ctx, "snapshotter.Snapshot")
	defer func() {
		observability.RecordError(ctx, err)
		span.End()
	}()
	observability.AddSpanAttributes(ctx, attribute.String("upstream_url", upstreamURL))

	initResult, err := s.client.Initialize(ctx, upstreamURL)
	if err != nil {
		return nil, "", fmt.Errorf("initialize: %w", err)
	}

	tools, err := s.client.List(ctx, upstreamURL, outbound.MethodToolsList)
	if err != nil {
		return nil, "", fmt.Errorf("tools/list: %w", err)
	}
	if err := sortBySortKey(tools, "name"); err != nil {
		return nil, "", err
	}

	resources, err := s.client.List(ctx, upstreamURL, outbound.MethodResourcesList)
	if err != nil {
		return nil, "", fmt.Errorf("resources/list: %w", err)
	}
	if err := sortBySortKey(resources, "uri"); err != nil {
		return nil, "", err
	}

	templates, err := s.client.List(ctx, upstreamURL, outbound.MethodResourceTemplatesList)
	if err != nil {
		return nil, "", fmt.Errorf("resources/templates/list: %w", err)
	}
	if err := sortBySortKey(templates, "uriTemplate"); err != nil {
		return nil, "", err
	}

	prompts, err := s.client.List(ctx, upstreamURL, outbound.MethodPromptsList)
	if err != nil {
		return nil, "", fmt.Errorf("prompts/list: %w", err)
	}
	if err := sortBySortKey(prompts, "name"); err != nil {
		return nil, "", err
	}

	payload := map[string]any{
		"protocolVersion":    initResult.ProtocolVersion,
		"capabilities":       initResult.Capabilities,
		"serverInfo":         stripVolatileFields(initResult.ServerInfo),
		"tools":              toAnySlice(tools),
		"resources":          toAnySlice(resources),
		"resource_templates": toAnySlice(templates),
		"prompts":            toAnySlice(prompts),
	}

	hash, err := canon.Fingerprint(payload)
	if err != nil {
		return nil, "", fmt.Errorf("fingerprint snapshot: %w", err)
	}

	return payload, hash, nil
}

// sortBySortKey sorts items ascending by the string value of field key,
// failing with ErrSnapshotAmbiguous if any two items share a key
// (spec.md §4.C "Sort stability").
func sortBySortKey(items []map[string]any, key string) error {
	sort.Slice(items, func(i, j int) bool {
		return fmt.Sprint(items[i][key]) < fmt.Sprint(items[j][key])
	})
	for i := 1; i < len(items); i++ {
		if fmt.Sprint(items[i][key]) == fmt.Sprint(items[i-1][key]) {
			return fmt.Errorf("%w: duplicate %q %q", ErrSnapshotAmbiguous, key, fmt.Sprint(items[i][key]))
		}
	}
	return nil
}

// stripVolatileFields removes fields known to fluctuate without semantic
// change from a serverInfo object (spec.md §4.C step 4). A nil input
// yields an empty, non-nil object so canonicalization never sees nil.
func stripVolatileFields(serverInfo map[string]any) map[string]any {
	out := make(map[string]any, len(serverInfo))
	for k, v := range serverInfo {
		out[k] = v
	}
	for _, field := range volatileServerInfoFields {
		delete(out, field)
	}
	return out
}

func toAnySlice(items []map[string]any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
