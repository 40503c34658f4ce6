// Package expirer implements the background sweeper that revokes leases past
// their absolute max_timeout ceiling (spec §4.5). It shares the same
// resource.Store as the request handlers; there is no duplicate state.
package expirer

import (
	"context"
	"log/slog"
	"time"

	"github.com/sbgisen/resource-broker/pkg/clock"
	"github.com/sbgisen/resource-broker/pkg/resource"
)

// Period is the fixed tick interval between sweeps.
const Period = 1 * time.Second

// Metrics is the subset of observability counters the expirer updates on
// each tick. Implementations live in pkg/observability; this interface keeps
// expirer from importing that package.
type Metrics interface {
	RecordSweep(ctx context.Context, revoked int)
}

// noopMetrics discards every call; used when no Metrics is supplied.
type noopMetrics struct{}

func (noopMetrics) RecordSweep(context.Context, int) {}

// Expirer loops at Period, sweeping the store for expired leases. It is a
// daemon: cancel its context to stop it at process shutdown (spec §4.5,
// "Termination").
type Expirer struct {
	store   resource.Store
	clock   clock.Clock
	logger  *slog.Logger
	metrics Metrics
}

// New builds an Expirer over store, reading time from clk.
func New(store resource.Store, clk clock.Clock, logger *slog.Logger, metrics Metrics) *Expirer {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Expirer{store: store, clock: clk, logger: logger.With("component", "expirer"), metrics: metrics}
}

// Run loops until ctx is cancelled, ticking every Period. Storage errors
// during a tick are logged and the tick is skipped; the next tick retries
// (spec §4.5, "Storage errors during a tick").
func (x *Expirer) Run(ctx context.Context) {
	ticker := time.NewTicker(Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			x.logger.InfoContext(ctx, "expirer stopping")
			return
		case <-ticker.C:
			x.tick(ctx)
		}
	}
}

func (x *Expirer) tick(ctx context.Context) {
	now := x.clock.Now()
	revoked, err := x.store.SweepExpired(ctx, now)
	if err != nil {
		x.logger.ErrorContext(ctx, "sweep failed, retrying next tick", "error", err)
		return
	}
	for _, r := range revoked {
		x.logger.InfoContext(ctx, "revoked expired lease",
			"bldg_id", r.BldgID, "resource_id", r.ResourceID, "robot_id", r.LockedBy,
			"locked_time_ms", r.LockedTimeMs, "max_timeout_ms", r.MaxTimeoutMs)
	}
	x.metrics.RecordSweep(ctx, len(revoked))
}
