// Package registry holds the in-memory route table the proxy engine
// consults on every request (spec.md §4.F). It is grounded on the
// teacher's httpgw.ReverseProxy: an atomic.Pointer swap gives lock-free
// reads on the hot path while reload() rebuilds the whole table from the
// repository and swaps it in one step.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/jacklatrobe/MCP-Guardian/internal/port/outbound"
)

// Entry is one routable service: its public name, the upstream it
// forwards to, and whether it is currently enabled. Disabled services stay
// in the table (rather than being absent) so the proxy can tell "disabled
// pending review" apart from "unknown service" (spec.md §4.G step 1).
type Entry struct {
	Name        string
	UpstreamURL string
	Enabled     bool
}

// Registry is the proxy engine's route table. Reload replaces the whole
// table atomically; Lookup is lock-free.
type Registry struct {
	entries atomic.Pointer[map[string]Entry]
	digest  atomic.Uint64
	logger  *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	r := &Registry{logger: logger}
	empty := make(map[string]Entry)
	r.entries.Store(&empty)
	return r
}

// Reload rebuilds the route table from every known service, enabled or
// not, and swaps it in atomically (spec.md §4.F, §4.H "route poller").
// Disabled services stay in the table so Lookup can report them back to
// the proxy instead of looking unknown. Idempotent: safe to call
// repeatedly, including concurrently with Lookup.
func (r *Registry) Reload(ctx context.Context, repo outbound.Repository) error {
	services, err := repo.ListServices(ctx)
	if err != nil {
		return fmt.Errorf("reload route registry: %w", err)
	}

	table := make(map[string]Entry, len(services))
	for _, svc := range services {
		table[svc.Name] = Entry{Name: svc.Name, UpstreamURL: svc.UpstreamURL, Enabled: svc.Enabled}
	}

	digest := digestTable(table)
	r.entries.Store(&table)
	r.digest.Store(digest)

	if r.logger != nil {
		r.logger.Debug("route registry reloaded",
			"route_count", len(table),
			"digest", fmt.Sprintf("%016x", digest),
		)
	}
	return nil
}

// Lookup returns the route for name, if known. Callers must check
// entry.Enabled themselves: a disabled service is still returned here.
func (r *Registry) Lookup(name string) (Entry, bool) {
	table := r.entries.Load()
	if table == nil {
		return Entry{}, false
	}
	entry, ok := (*table)[name]
	return entry, ok
}

// Digest returns the xxhash of the current route table, for log/metric
// correlation across reloads (spec.md §4.F, SPEC_FULL.md §13).
func (r *Registry) Digest() uint64 {
	return r.digest.Load()
}

// Size returns the number of entries in the current table, disabled
// services included.
func (r *Registry) Size() int {
	table := r.entries.Load()
	if table == nil {
		return 0
	}
	return len(*table)
}

// digestTable computes a deterministic xxhash over the sorted route table
// so the same set of routes always yields the same digest regardless of
// map iteration order.
func digestTable(table map[string]Entry) uint64 {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	h := xxhash.New()
	for _, name := range names {
		entry := table[name]
		_, _ = h.WriteString(entry.Name)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(entry.UpstreamURL)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
