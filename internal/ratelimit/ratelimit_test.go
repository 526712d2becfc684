package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestAllow_Burst(t *testing.T) {
	l := New(&Config{RequestsPerMinute: 60, BurstSize: 3})

	for i := 0; i < 3; i++ {
		if err := l.Allow("key-a"); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if err := l.Allow("key-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestAllow_Refill(t *testing.T) {
	l := New(&Config{RequestsPerMinute: 60, BurstSize: 1})
	clock := time.Unix(1000, 0)
	l.now = func() time.Time { return clock }

	if err := l.Allow("key-a"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := l.Allow("key-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// 60/min refills one token per second.
	clock = clock.Add(time.Second)
	if err := l.Allow("key-a"); err != nil {
		t.Fatalf("after refill: %v", err)
	}
}

func TestAllow_KeysIndependent(t *testing.T) {
	l := New(&Config{RequestsPerMinute: 60, BurstSize: 1})

	if err := l.Allow("key-a"); err != nil {
		t.Fatalf("key-a: %v", err)
	}
	if err := l.Allow("key-b"); err != nil {
		t.Fatalf("key-b: %v", err)
	}
	if err := l.Allow("key-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("key-a second: expected ErrRateLimited, got %v", err)
	}
}

func TestAllow_NilLimiter(t *testing.T) {
	var l *Limiter
	for i := 0; i < 100; i++ {
		if err := l.Allow("any"); err != nil {
			t.Fatalf("nil limiter should allow all: %v", err)
		}
	}
}

func TestNew_Disabled(t *testing.T) {
	if l := New(nil); l != nil {
		t.Error("nil config should yield nil limiter")
	}
	if l := New(&Config{RequestsPerMinute: 0}); l != nil {
		t.Error("zero rate should yield nil limiter")
	}
}

func TestReset(t *testing.T) {
	l := New(&Config{RequestsPerMinute: 60, BurstSize: 1})

	if err := l.Allow("key-a"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	l.Reset("key-a")
	if err := l.Allow("key-a"); err != nil {
		t.Fatalf("after reset: %v", err)
	}
}
