package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Limiter basics
// ---------------------------------------------------------------------------

func TestNewLimiter_Empty(t *testing.T) {
	l := NewLimiter()
	// No configs; Acquire/Release should always succeed.
	if !l.Acquire("any-queue") {
		t.Fatal("expected Acquire to succeed for unconfigured queue")
	}
	l.Release("any-queue")
}

func TestNewLimiter_WithConfig(t *testing.T) {
	l := NewLimiter(Config{
		Name:           "catalog",
		MaxConcurrency: 2,
	})
	if l.ActiveCount("catalog") != 0 {
		t.Fatal("expected 0 active jobs initially")
	}
}

// ---------------------------------------------------------------------------
// Concurrency limits
// ---------------------------------------------------------------------------

func TestLimiter_MaxConcurrency(t *testing.T) {
	l := NewLimiter(Config{
		Name:           "catalog",
		MaxConcurrency: 2,
	})

	if !l.Acquire("catalog") {
		t.Fatal("first Acquire should succeed")
	}
	if !l.Acquire("catalog") {
		t.Fatal("second Acquire should succeed")
	}
	// Third should be blocked.
	if l.Acquire("catalog") {
		t.Fatal("third Acquire should fail (max concurrency 2)")
	}

	// Release one slot.
	l.Release("catalog")
	if !l.Acquire("catalog") {
		t.Fatal("Acquire should succeed after Release")
	}
}

func TestLimiter_AcquireRelease_ActiveCount(t *testing.T) {
	l := NewLimiter(Config{
		Name:           "q",
		MaxConcurrency: 5,
	})

	for i := range 3 {
		if !l.Acquire("q") {
			t.Fatalf("Acquire %d should succeed", i)
		}
	}
	if l.ActiveCount("q") != 3 {
		t.Fatalf("expected 3 active, got %d", l.ActiveCount("q"))
	}

	l.Release("q")
	l.Release("q")
	if l.ActiveCount("q") != 1 {
		t.Fatalf("expected 1 active, got %d", l.ActiveCount("q"))
	}
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestLimiter_RateLimit_Throttles(t *testing.T) {
	l := NewLimiter(Config{
		Name:      "limited",
		RateLimit: 1.0, // 1 per second
		RateBurst: 1,
	})

	// First should succeed (burst allows it).
	if !l.Acquire("limited") {
		t.Fatal("first Acquire should succeed (within burst)")
	}
	l.Release("limited")

	// Immediately after, token bucket is empty.
	if l.Acquire("limited") {
		t.Fatal("second Acquire should fail (rate limited)")
	}

	// Wait for token refill.
	time.Sleep(1100 * time.Millisecond)
	if !l.Acquire("limited") {
		t.Fatal("Acquire should succeed after token refill")
	}
	l.Release("limited")
}

func TestLimiter_RateLimit_BurstAllows(t *testing.T) {
	l := NewLimiter(Config{
		Name:      "bursty",
		RateLimit: 10.0,
		RateBurst: 3,
	})

	// Three immediate acquires should succeed (burst = 3).
	for i := range 3 {
		if !l.Acquire("bursty") {
			t.Fatalf("Acquire %d should succeed (within burst)", i)
		}
		l.Release("bursty")
	}
}

// ---------------------------------------------------------------------------
// Dynamic reconfiguration
// ---------------------------------------------------------------------------

func TestLimiter_SetConfig(t *testing.T) {
	l := NewLimiter(Config{
		Name:           "dyn",
		MaxConcurrency: 1,
	})

	l.Acquire("dyn")
	if l.Acquire("dyn") {
		t.Fatal("should be blocked at concurrency 1")
	}

	// Raise the limit dynamically.
	l.SetConfig(Config{
		Name:           "dyn",
		MaxConcurrency: 3,
	})

	// Now should succeed.
	if !l.Acquire("dyn") {
		t.Fatal("should succeed after raising concurrency")
	}
	l.Release("dyn")
	l.Release("dyn")
}

// ---------------------------------------------------------------------------
// Concurrency safety
// ---------------------------------------------------------------------------

func TestLimiter_ConcurrentAccess(t *testing.T) {
	l := NewLimiter(Config{
		Name:           "concurrent",
		MaxConcurrency: 50,
	})

	var acquired atomic.Int64
	var wg sync.WaitGroup

	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Acquire("concurrent") {
				acquired.Add(1)
				// Simulate work.
				time.Sleep(time.Millisecond)
				l.Release("concurrent")
			}
		}()
	}

	wg.Wait()

	// At least some should have succeeded.
	if acquired.Load() == 0 {
		t.Fatal("expected some Acquires to succeed")
	}

	// Active should be back to 0.
	if l.ActiveCount("concurrent") != 0 {
		t.Fatalf("expected 0 active after all goroutines, got %d", l.ActiveCount("concurrent"))
	}
}

func TestLimiter_UnconfiguredQueue_AlwaysSucceeds(t *testing.T) {
	l := NewLimiter(Config{
		Name:           "configured",
		MaxConcurrency: 1,
	})

	// "other" queue has no config, so no limits apply.
	for range 10 {
		if !l.Acquire("other") {
			t.Fatal("unconfigured queue should always allow Acquire")
		}
	}
	for range 10 {
		l.Release("other")
	}
}

func TestLimiter_ReleaseUnderflow(t *testing.T) {
	l := NewLimiter(Config{
		Name:           "q",
		MaxConcurrency: 5,
	})

	// Release without Acquire should not go negative.
	l.Release("q")
	if l.ActiveCount("q") != 0 {
		t.Fatal("active count should not go below 0")
	}
}
