package ratelimit

import (
	"testing"
	"time"
)

func TestAllow_WithinBurst(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 5, CleanupInterval: time.Minute})
	defer l.Stop()

	for i := 0; i < 5; i++ {
		if !l.Allow("device-1") {
			t.Fatalf("request %d within burst should be allowed", i)
		}
	}
}

func TestAllow_ExceedsBurst(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 3, CleanupInterval: time.Minute})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		l.Allow("device-1")
	}
	if l.Allow("device-1") {
		t.Error("request beyond burst should be rejected")
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	l.Allow("device-1")
	if l.Allow("device-1") {
		t.Error("device-1 should be exhausted")
	}
	if !l.Allow("device-2") {
		t.Error("device-2 should have its own bucket")
	}
}

func TestAllow_RefillsOverTime(t *testing.T) {
	l := New(Config{RequestsPerMinute: 6000, BurstSize: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	l.Allow("device-1")
	if l.Allow("device-1") {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(20 * time.Millisecond) // 100 tokens/sec refill rate
	if !l.Allow("device-1") {
		t.Error("bucket should have refilled")
	}
}
