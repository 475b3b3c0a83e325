// Package collector implements the acquisition engine: it walks tracked
// targets, pulls their ephemeral feeds, and persists anything unseen.
// Acquisition is idempotent; running a sweep twice changes nothing.
package collector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"nfpwatch/internal/platform"
	"nfpwatch/internal/store"
)

// SessionSource hands out verified platform sessions.
type SessionSource interface {
	Obtain(ctx context.Context) (*platform.Session, error)
	Invalidate()
}

// Feed is the slice of the platform API the collector needs.
type Feed interface {
	ResolveIdentity(ctx context.Context, sess *platform.Session, handle string) (string, error)
	FetchEphemeralFeed(ctx context.Context, sess *platform.Session, userID string) ([]platform.FeedItem, error)
}

// ItemStore is the slice of the persistence layer the collector needs.
type ItemStore interface {
	ListTargets(ctx context.Context) ([]store.Target, error)
	ItemExists(ctx context.Context, nativeID string) (bool, error)
	SaveItem(ctx context.Context, p store.SaveItemParams) error
}

// Outcome summarizes one target's acquisition pass.
type Outcome struct {
	Handle  string
	Found   int
	Saved   int
	Skipped int
}

// Collector acquires content for tracked targets, one at a time.
type Collector struct {
	store    ItemStore
	sessions SessionSource
	feed     Feed
	pacer    platform.Pacer
	log      *zap.Logger
}

// New creates a collector. A nil pacer disables pacing.
func New(st ItemStore, sessions SessionSource, feed Feed, pacer platform.Pacer, log *zap.Logger) *Collector {
	if pacer == nil {
		pacer = platform.NopPacer{}
	}
	return &Collector{
		store:    st,
		sessions: sessions,
		feed:     feed,
		pacer:    pacer,
		log:      log,
	}
}

// AcquireFor pulls the target's current feed and saves every unseen item.
// A target with no platform account or an empty feed yields a zero outcome
// and no error. Transient platform failures abort this target only.
func (c *Collector) AcquireFor(ctx context.Context, target store.Target) (Outcome, error) {
	out := Outcome{Handle: target.Handle}

	items, err := c.fetchFeed(ctx, target.Handle)
	if errors.Is(err, platform.ErrTargetNotFound) {
		c.log.Info("target has no platform account",
			zap.String("handle", target.Handle))
		return out, nil
	}
	if err != nil {
		return out, err
	}

	out.Found = len(items)
	if len(items) == 0 {
		c.log.Debug("feed empty", zap.String("handle", target.Handle))
		return out, nil
	}

	for _, item := range items {
		if err := c.pacer.Wait(ctx); err != nil {
			return out, err
		}

		exists, err := c.store.ItemExists(ctx, item.NativeID)
		if err != nil {
			// Fall through to SaveItem; the unique constraint still
			// guards against duplicates.
			c.log.Warn("existence check failed, attempting save anyway",
				zap.String("native_id", item.NativeID), zap.Error(err))
		} else if exists {
			out.Skipped++
			continue
		}

		err = c.store.SaveItem(ctx, store.SaveItemParams{
			TargetID:   target.ID,
			NativeID:   item.NativeID,
			Kind:       item.Kind,
			CapturedAt: item.CapturedAt,
			Locator:    item.Locator,
			Caption:    item.Caption,
		})
		if err != nil {
			c.log.Error("save item",
				zap.String("handle", target.Handle),
				zap.String("native_id", item.NativeID),
				zap.Error(err))
			continue
		}
		out.Saved++
	}

	c.log.Info("acquisition pass complete",
		zap.String("handle", target.Handle),
		zap.Int("found", out.Found),
		zap.Int("saved", out.Saved),
		zap.Int("skipped", out.Skipped))
	return out, nil
}

// fetchFeed resolves the handle and pulls its feed under a verified session.
// A session the platform rejects, before or during the fetch, is discarded
// and the whole sequence retried once with a fresh login.
func (c *Collector) fetchFeed(ctx context.Context, handle string) ([]platform.FeedItem, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		sess, err := c.sessions.Obtain(ctx)
		if errors.Is(err, platform.ErrSessionInvalid) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("obtain session: %w", err)
		}

		userID, err := c.feed.ResolveIdentity(ctx, sess, handle)
		if err == nil {
			items, fetchErr := c.feed.FetchEphemeralFeed(ctx, sess, userID)
			err = fetchErr
			if err == nil {
				return items, nil
			}
		}
		if errors.Is(err, platform.ErrSessionInvalid) {
			c.log.Warn("session rejected mid-fetch, forcing relogin",
				zap.String("handle", handle))
			c.sessions.Invalidate()
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("fetch feed for %s: %w", handle, lastErr)
}

// RunSweep acquires for every tracked target in sequence. A failing target
// is logged and skipped; only context cancellation stops the sweep.
func (c *Collector) RunSweep(ctx context.Context) ([]Outcome, error) {
	targets, err := c.store.ListTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	c.log.Info("acquisition sweep starting", zap.Int("targets", len(targets)))

	outcomes := make([]Outcome, 0, len(targets))
	for _, target := range targets {
		out, err := c.AcquireFor(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return outcomes, ctx.Err()
			}
			c.log.Error("acquisition failed for target",
				zap.String("handle", target.Handle), zap.Error(err))
			continue
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}
