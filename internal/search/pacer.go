package search

import (
	"context"
	"sync"
	"time"
)

// Pacer is a single-slot limiter: successive Wait calls return at least
// interval apart. It is not a queue; concurrent callers serialize on the
// mutex while the holder sleeps out the remaining delta.
type Pacer struct {
	interval time.Duration

	mu    sync.Mutex
	last  time.Time
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a pacer on the wall clock.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval, now: time.Now, sleep: sleepContext}
}

// Interval returns the configured spacing.
func (p *Pacer) Interval() time.Duration { return p.interval }

// Wait blocks until the slot is free and marks it taken. Returns ctx.Err()
// if the context ends while waiting; the slot is not taken in that case.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() {
		if wait := p.interval - p.now().Sub(p.last); wait > 0 {
			if err := p.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.last = p.now()
	return nil
}
