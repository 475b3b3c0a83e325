// Package scheduler runs the acquisition and analysis sweeps on their
// cadence. Acquisition fires immediately at startup and every interval
// after; analysis trails it by a fixed offset so freshly captured items are
// analyzed in the same wake-up.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"nfpwatch/internal/collector"
	"nfpwatch/internal/store"
)

// Acquirer is the acquisition engine the daemon drives.
type Acquirer interface {
	RunSweep(ctx context.Context) ([]collector.Outcome, error)
	AcquireFor(ctx context.Context, target store.Target) (collector.Outcome, error)
}

// Analyzer is the analysis engine the daemon drives.
type Analyzer interface {
	RunSweep(ctx context.Context) (int, error)
	RunSweepForTarget(ctx context.Context, targetID string) (int, error)
}

// TargetFinder resolves handles for the on-demand path.
type TargetFinder interface {
	FindTarget(ctx context.Context, handle string) (store.Target, bool, error)
}

// Daemon owns the sweep cadence.
type Daemon struct {
	acq     Acquirer
	inv     Analyzer
	targets TargetFinder

	collectEvery   time.Duration
	analysisOffset time.Duration

	// flight collapses overlapping requests for the same sweep kind: a
	// sweep still running when its next tick arrives is joined, not
	// duplicated.
	flight singleflight.Group
	log    *zap.Logger
}

// New creates a daemon.
func New(acq Acquirer, inv Analyzer, targets TargetFinder, collectEvery, analysisOffset time.Duration, log *zap.Logger) *Daemon {
	return &Daemon{
		acq:            acq,
		inv:            inv,
		targets:        targets,
		collectEvery:   collectEvery,
		analysisOffset: analysisOffset,
		log:            log,
	}
}

// Run blocks until ctx is canceled, driving both sweep loops. The first
// acquisition runs immediately; the first analysis runs after the offset.
func (d *Daemon) Run(ctx context.Context) error {
	d.log.Info("daemon starting",
		zap.Duration("collect_every", d.collectEvery),
		zap.Duration("analysis_offset", d.analysisOffset))

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		d.sweepLoop(ctx, 0, d.collect)
	}()
	go func() {
		defer wg.Done()
		d.sweepLoop(ctx, d.analysisOffset, d.analyze)
	}()

	wg.Wait()
	d.log.Info("daemon stopped")
	return ctx.Err()
}

// sweepLoop runs fn after the initial delay, then every collectEvery.
func (d *Daemon) sweepLoop(ctx context.Context, initialDelay time.Duration, fn func(ctx context.Context)) {
	if initialDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialDelay):
		}
	}
	fn(ctx)

	ticker := time.NewTicker(d.collectEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (d *Daemon) collect(ctx context.Context) {
	_, err, _ := d.flight.Do("acquisition", func() (any, error) {
		outcomes, err := d.acq.RunSweep(ctx)
		if err != nil {
			return nil, err
		}
		var saved int
		for _, out := range outcomes {
			saved += out.Saved
		}
		d.log.Info("acquisition sweep done",
			zap.Int("targets", len(outcomes)),
			zap.Int("saved", saved))
		return nil, nil
	})
	if err != nil && ctx.Err() == nil {
		d.log.Error("acquisition sweep failed", zap.Error(err))
	}
}

func (d *Daemon) analyze(ctx context.Context) {
	_, err, _ := d.flight.Do("analysis", func() (any, error) {
		n, err := d.inv.RunSweep(ctx)
		if err != nil {
			return nil, err
		}
		d.log.Info("analysis sweep done", zap.Int("analyzed", n))
		return nil, nil
	})
	if err != nil && ctx.Err() == nil {
		d.log.Error("analysis sweep failed", zap.Error(err))
	}
}

// RunOnce drives the full pipeline for a single tracked target: acquire its
// feed now, then analyze whatever is pending for it.
func (d *Daemon) RunOnce(ctx context.Context, handle string) (collector.Outcome, int, error) {
	target, ok, err := d.targets.FindTarget(ctx, handle)
	if err != nil {
		return collector.Outcome{}, 0, err
	}
	if !ok {
		return collector.Outcome{}, 0, fmt.Errorf("target %q is not tracked, add it first", handle)
	}

	out, err := d.acq.AcquireFor(ctx, target)
	if err != nil {
		return out, 0, err
	}
	analyzed, err := d.inv.RunSweepForTarget(ctx, target.ID)
	return out, analyzed, err
}
