package rate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryDeniesAfterBudget(t *testing.T) {
	clock := newTestClock()
	l := NewMemory(Config{Now: clock.Now})
	ctx := context.Background()

	for i := 1; i <= DefaultMaxAttempts; i++ {
		d, err := l.Check(ctx, "a@b.com", Options{})
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("check %d: expected allowed", i)
		}
		if d.Remaining != DefaultMaxAttempts-i {
			t.Fatalf("check %d: expected remaining %d, got %d", i, DefaultMaxAttempts-i, d.Remaining)
		}
		clock.Advance(time.Second)
	}

	d, err := l.Check(ctx, "a@b.com", Options{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("expected denial, got %+v", d)
	}
	want := time.Unix(1_700_000_000, 0).Add(DefaultWindow)
	if !d.ResetAt.Equal(want) {
		t.Fatalf("expected resetAt %v, got %v", want, d.ResetAt)
	}
}

func TestMemoryDenialDoesNotRecord(t *testing.T) {
	clock := newTestClock()
	l := NewMemory(Config{Now: clock.Now})
	ctx := context.Background()
	opts := Options{MaxAttempts: 2, Window: time.Minute}

	l.Check(ctx, "k", opts)
	clock.Advance(10 * time.Second)
	l.Check(ctx, "k", opts)

	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		if d, _ := l.Check(ctx, "k", opts); d.Allowed {
			t.Fatal("expected denial while window is full")
		}
	}

	// Only the first attempt leaves the window; denied checks were not recorded.
	clock.Advance(45 * time.Second)
	d, err := l.Check(ctx, "k", opts)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed || d.Remaining != 0 {
		t.Fatalf("expected one slot to reopen, got %+v", d)
	}
}

func TestMemoryWindowSlides(t *testing.T) {
	clock := newTestClock()
	l := NewMemory(Config{Now: clock.Now})
	ctx := context.Background()
	opts := Options{MaxAttempts: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		l.Check(ctx, "k", opts)
	}
	if d, _ := l.Check(ctx, "k", opts); d.Allowed {
		t.Fatal("expected denial")
	}

	clock.Advance(time.Minute)
	d, err := l.Check(ctx, "k", opts)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed {
		t.Fatal("expected allowance once the window passed the earliest attempt")
	}
}

func TestMemoryPerCheckOverrides(t *testing.T) {
	l := NewMemory(Config{})
	ctx := context.Background()

	if d, _ := l.Check(ctx, "k", Options{MaxAttempts: 1}); !d.Allowed {
		t.Fatal("expected first attempt allowed")
	}
	if d, _ := l.Check(ctx, "k", Options{MaxAttempts: 1}); d.Allowed {
		t.Fatal("expected override budget of 1 to deny")
	}
	if _, err := l.Check(ctx, "k", Options{MaxAttempts: -1}); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestMemoryKeysAreIndependent(t *testing.T) {
	l := NewMemory(Config{MaxAttempts: 1})
	ctx := context.Background()

	if d, _ := l.Check(ctx, "a", Options{}); !d.Allowed {
		t.Fatal("expected a allowed")
	}
	if d, _ := l.Check(ctx, "b", Options{}); !d.Allowed {
		t.Fatal("expected b allowed")
	}
	if d, _ := l.Check(ctx, "a", Options{}); d.Allowed {
		t.Fatal("expected a denied")
	}
}

func TestMemoryReset(t *testing.T) {
	l := NewMemory(Config{MaxAttempts: 1})
	ctx := context.Background()

	l.Check(ctx, "k", Options{})
	if err := l.Reset(ctx, "k"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if d, _ := l.Check(ctx, "k", Options{}); !d.Allowed {
		t.Fatal("expected allowance after reset")
	}
}

func TestMemorySweepReclaimsEmptyKeys(t *testing.T) {
	clock := newTestClock()
	l := NewMemory(Config{Window: time.Minute, Now: clock.Now})
	ctx := context.Background()

	l.Check(ctx, "old", Options{})
	clock.Advance(30 * time.Second)
	l.Check(ctx, "fresh", Options{})
	clock.Advance(45 * time.Second)

	if removed := l.Sweep(); removed != 1 {
		t.Fatalf("expected 1 key reclaimed, got %d", removed)
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 key left, got %d", l.Len())
	}

	clock.Advance(time.Minute)
	l.Sweep()
	if l.Len() != 0 {
		t.Fatalf("expected all keys reclaimed, got %d", l.Len())
	}
}

func TestMemorySweepKeepsOverriddenWindow(t *testing.T) {
	clock := newTestClock()
	l := NewMemory(Config{Window: 15 * time.Minute, Now: clock.Now})
	ctx := context.Background()
	opts := Options{MaxAttempts: 3, Window: time.Hour}

	for i := 0; i < 3; i++ {
		if d, _ := l.Check(ctx, "link:a@b.com", opts); !d.Allowed {
			t.Fatalf("check %d: expected allowed", i)
		}
	}
	clock.Advance(20 * time.Minute)
	if removed := l.Sweep(); removed != 0 {
		t.Fatalf("expected no keys reclaimed inside the hour window, got %d", removed)
	}
	if d, _ := l.Check(ctx, "link:a@b.com", opts); d.Allowed {
		t.Fatal("expected denial: sweep must not erase attempts still inside the window")
	}

	clock.Advance(41 * time.Minute)
	if removed := l.Sweep(); removed != 1 {
		t.Fatalf("expected key reclaimed once the hour passed, got %d", removed)
	}
}

func TestMemoryConcurrentChecksNeverOvercount(t *testing.T) {
	l := NewMemory(Config{MaxAttempts: 10, Window: time.Hour})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		allowed atomic.Int64
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Check(ctx, "shared", Options{})
			if err == nil && d.Allowed {
				allowed.Add(1)
			}
		}()
		if i%20 == 0 {
			go l.Sweep()
		}
	}
	wg.Wait()

	if got := allowed.Load(); got != 10 {
		t.Fatalf("expected exactly 10 allowed checks, got %d", got)
	}
}
