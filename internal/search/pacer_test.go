package search

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock only moves when something sleeps on it.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func fakePacer(interval time.Duration, clk *fakeClock) *Pacer {
	p := NewPacer(interval)
	p.now = clk.Now
	p.sleep = clk.Sleep
	return p
}

func TestPacerSpacing(t *testing.T) {
	clk := newFakeClock()
	p := fakePacer(1200*time.Millisecond, clk)
	ctx := context.Background()

	var starts []time.Time
	for i := 0; i < 4; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatal(err)
		}
		starts = append(starts, clk.Now())
	}
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < p.Interval() {
			t.Errorf("gap %d = %v, want >= %v", i, gap, p.Interval())
		}
	}
}

func TestPacerWaitsOnlyRemainingDelta(t *testing.T) {
	clk := newFakeClock()
	p := fakePacer(1200*time.Millisecond, clk)
	ctx := context.Background()

	_ = p.Wait(ctx)
	clk.Advance(500 * time.Millisecond)
	_ = p.Wait(ctx)
	clk.Advance(2 * time.Second)
	_ = p.Wait(ctx)

	sleeps := clk.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 700*time.Millisecond {
		t.Errorf("sleeps = %v, want [700ms]", sleeps)
	}
}

func TestPacerSerializesConcurrentCallers(t *testing.T) {
	clk := newFakeClock()
	p := fakePacer(time.Second, clk)

	const callers = 6
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Wait(context.Background())
		}()
	}
	wg.Wait()

	// The clock never moves on its own, so every caller after the first
	// must have slept out a full interval.
	sleeps := clk.Sleeps()
	if len(sleeps) != callers-1 {
		t.Fatalf("sleeps = %d, want %d", len(sleeps), callers-1)
	}
	for _, d := range sleeps {
		if d != time.Second {
			t.Errorf("sleep = %v, want 1s", d)
		}
	}
}

func TestPacerCancelled(t *testing.T) {
	clk := newFakeClock()
	p := fakePacer(time.Second, clk)
	_ = p.Wait(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Wait(ctx); err == nil {
		t.Error("Wait on cancelled context should fail")
	}
}

func TestPacerSeparateInstances(t *testing.T) {
	clk := newFakeClock()
	a := fakePacer(time.Second, clk)
	b := fakePacer(time.Second, clk)
	_ = a.Wait(context.Background())
	_ = b.Wait(context.Background())
	if n := len(clk.Sleeps()); n != 0 {
		t.Errorf("independent pacers interfered: %d sleeps", n)
	}
}
