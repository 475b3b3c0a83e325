package platform

import (
	"context"
	"math/rand"
	"time"
)

// Pacer inserts delays between platform requests so the request cadence
// stays human-shaped. Implementations must honor context cancellation.
type Pacer interface {
	Wait(ctx context.Context) error
}

// JitterPacer sleeps a uniformly random duration in [Min, Max].
type JitterPacer struct {
	Min time.Duration
	Max time.Duration
}

// NewJitterPacer builds a pacer, fixing an inverted or empty range.
func NewJitterPacer(min, max time.Duration) *JitterPacer {
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}
	return &JitterPacer{Min: min, Max: max}
}

func (p *JitterPacer) Wait(ctx context.Context) error {
	d := p.Min
	if span := p.Max - p.Min; span > 0 {
		d += time.Duration(rand.Int63n(int64(span) + 1))
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NopPacer waits for nothing. Used by tests and the on-demand path.
type NopPacer struct{}

func (NopPacer) Wait(ctx context.Context) error { return ctx.Err() }
