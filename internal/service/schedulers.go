package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jacklatrobe/MCP-Guardian/internal/domain/mcpservice"
	"github.com/jacklatrobe/MCP-Guardian/internal/domain/registry"
	"github.com/jacklatrobe/MCP-Guardian/internal/observability"
	"github.com/jacklatrobe/MCP-Guardian/internal/port/outbound"
)

// DefaultSchedulerInterval is the default tick interval for both
// schedulers (spec.md §6 "polling.interval_seconds", default 60).
const DefaultSchedulerInterval = 60 * time.Second

// RoutePoller periodically reloads the route registry from the
// repository so externally-made changes (e.g. the admin API running on
// another worker) eventually propagate (spec.md §4.H "Route poller").
// Grounded on the teacher's ToolDiscoveryService.StartPeriodicRetry
// ticker/cooperative-shutdown pattern.
type RoutePoller struct {
	registry *registry.Registry
	repo     outbound.Repository
	interval time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	stopped bool
}

// NewRoutePoller creates a RoutePoller with the given tick interval.
func NewRoutePoller(reg *registry.Registry, repo outbound.Repository, interval time.Duration, logger *slog.Logger) *RoutePoller {
	return &RoutePoller{registry: reg, repo: repo, interval: interval, logger: logger}
}

// SetMetrics attaches a metrics recorder. Optional; a nil or unset
// recorder is a no-op (observability.Metrics methods are nil-safe).
func (p *RoutePoller) SetMetrics(m *observability.Metrics) {
	p.metrics = m
}

// Start begins the periodic reload loop. Safe to call once; a second
// call is a no-op.
func (p *RoutePoller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				start := time.Now()
				if err := p.registry.Reload(p.ctx, p.repo); err != nil {
					p.logger.Error("route poller reload failed", "error", err)
				}
				p.metrics.ObserveSchedulerTick("route_poller", time.Since(start).Seconds())
				p.metrics.SetRegistrySize(p.registry.Size())
			case <-p.ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the poller and waits for its goroutine to exit. Idempotent.
func (p *RoutePoller) Stop() {
	p.mu.Lock()
	if p.stopped || p.cancel == nil {
		p.stopped = true
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
}

// CheckScheduler periodically re-snapshots services due for a check and
// disables them on drift (spec.md §4.H "Check scheduler"). Services are
// checked sequentially, never in parallel for the same run, matching the
// spec's simple-POC sequencing.
type CheckScheduler struct {
	repo        outbound.Repository
	registry    *registry.Registry
	snapshotter *Snapshotter
	interval    time.Duration
	logger      *slog.Logger
	metrics     *observability.Metrics

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	stopped bool
}

// NewCheckScheduler creates a CheckScheduler with the given tick interval.
func NewCheckScheduler(repo outbound.Repository, reg *registry.Registry, snapshotter *Snapshotter, interval time.Duration, logger *slog.Logger) *CheckScheduler {
	return &CheckScheduler{repo: repo, registry: reg, snapshotter: snapshotter, interval: interval, logger: logger}
}

// SetMetrics attaches a metrics recorder. Optional; a nil or unset
// recorder is a no-op (observability.Metrics methods are nil-safe).
func (c *CheckScheduler) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// Start begins the periodic check loop. Safe to call once; a second call
// is a no-op.
func (c *CheckScheduler) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.tick(c.ctx)
			case <-c.ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the scheduler and waits for its goroutine to exit. Idempotent.
func (c *CheckScheduler) Stop() {
	c.mu.Lock()
	if c.stopped || c.cancel == nil {
		c.stopped = true
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
}

// tick runs one check-scheduler pass (spec.md §4.H "Check scheduler").
func (c *CheckScheduler) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveSchedulerTick("check_scheduler", time.Since(start).Seconds())
	}()

	due, err := c.repo.ServicesDueForCheck(ctx, time.Now())
	if err != nil {
		c.logger.Error("list services due for check failed", "error", err)
		return
	}

	var disabledAny bool
	for i := range due {
		svc := &due[i]

		payload, hash, err := c.snapshotter.Snapshot(ctx, svc.UpstreamURL)
		if err != nil {
			// Snapshot failure: log and continue. No row written, service
			// not disabled (spec.md §4.H step 2 bullet 2).
			c.logger.Warn("scheduled snapshot failed", "service", svc.Name, "error", err)
			continue
		}

		last, err := c.repo.LatestApprovedSnapshot(ctx, svc.ID)
		switch {
		case err == nil && last != nil && last.Hash == hash:
			if _, err := c.repo.InsertSnapshot(ctx, svc.ID, payload, hash, mcpservice.StatusSystemApproved); err != nil {
				c.logger.Error("insert system_approved snapshot failed", "service", svc.Name, "error", err)
			} else {
				c.metrics.RecordApproval(string(mcpservice.StatusSystemApproved))
			}
		case err != nil && !errors.Is(err, mcpservice.ErrNotFound):
			c.logger.Error("latest approved snapshot lookup failed", "service", svc.Name, "error", err)
		default:
			if _, err := c.repo.DisableOnDrift(ctx, svc.ID, payload, hash); err != nil {
				c.logger.Error("disable on drift failed", "service", svc.Name, "error", err)
				continue
			}
			c.logger.Info("service disabled on drift", "service", svc.Name, "hash", hash)
			c.metrics.RecordDrift(svc.Name)
			disabledAny = true
		}
	}

	if disabledAny {
		if err := c.registry.Reload(ctx, c.repo); err != nil {
			c.logger.Error("registry reload after drift disable failed", "error", err)
		}
	}
}
