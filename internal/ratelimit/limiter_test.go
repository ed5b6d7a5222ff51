package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock returns a limiter driven by a manually advanced clock.
func fakeClock(l *Limiter) *time.Time {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.nowFunc = func() time.Time { return now }
	return &now
}

func TestAllow_WithinBurst(t *testing.T) {
	l := NewLimiter(1.0, 3)
	fakeClock(l)

	for i := 0; i < 3; i++ {
		if !l.Allow("key1") {
			t.Errorf("request %d should be allowed (within burst)", i+1)
		}
	}
	if l.Allow("key1") {
		t.Error("request after burst exhaustion should be rejected")
	}
}

func TestAllow_Refill(t *testing.T) {
	l := NewLimiter(2.0, 1)
	now := fakeClock(l)

	if !l.Allow("k") {
		t.Fatal("first request should be allowed")
	}
	if l.Allow("k") {
		t.Fatal("second immediate request should be rejected")
	}

	*now = now.Add(600 * time.Millisecond)
	if !l.Allow("k") {
		t.Error("request after refill interval should be allowed")
	}
}

func TestAllow_RefillCapsAtBurst(t *testing.T) {
	l := NewLimiter(10.0, 2)
	now := fakeClock(l)

	l.Allow("k")
	*now = now.Add(time.Hour)

	allowed := 0
	for i := 0; i < 5; i++ {
		if l.Allow("k") {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("allowed %d after long idle, want burst of 2", allowed)
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	l := NewLimiter(1.0, 1)
	fakeClock(l)

	if !l.Allow("a") {
		t.Error("key a should be allowed")
	}
	if !l.Allow("b") {
		t.Error("key b has its own bucket and should be allowed")
	}
	if l.Allow("a") {
		t.Error("key a should now be limited")
	}
}

func TestAllow_Concurrent(t *testing.T) {
	l := NewLimiter(0.001, 100)
	fakeClock(l)

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Allow("concurrent-key")
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for a := range allowed {
		if a {
			count++
		}
	}
	if count != 100 {
		t.Errorf("allowed %d requests with a frozen clock, want exactly 100", count)
	}
}

func TestToolLimits(t *testing.T) {
	limiters := NewToolLimiters()

	tests := []struct {
		tool  string
		burst int
	}{
		{"ser_simulate", 2},
		{"ser_runs", 10},
		{"ser_run", 10},
		{"ser_config", 5},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			limiter, ok := limiters[tt.tool]
			if !ok {
				t.Fatalf("missing limiter for %s", tt.tool)
			}
			if limiter.Burst() != tt.burst {
				t.Errorf("burst = %d, want %d", limiter.Burst(), tt.burst)
			}
		})
	}
}

func TestCheckLimit(t *testing.T) {
	limiters := NewToolLimiters()
	for _, l := range limiters {
		fakeClock(l)
	}

	if err := CheckLimit(limiters, "unknown_tool"); err != nil {
		t.Errorf("unknown tool should never be limited: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := CheckLimit(limiters, "ser_simulate"); err != nil {
			t.Fatalf("call %d within burst: %v", i+1, err)
		}
	}
	if err := CheckLimit(limiters, "ser_simulate"); err == nil {
		t.Error("expected rate limit error after burst exhaustion")
	}
}
