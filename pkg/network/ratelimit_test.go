package network

import (
	"testing"
	"time"
)

func TestRateLimiterBoundary(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(5*time.Second, 10)
	rl.now = func() time.Time { return now }

	// 10 requests within one second all pass
	for i := 0; i < 10; i++ {
		now = now.Add(100 * time.Millisecond)
		if !rl.Allow(1) {
			t.Fatalf("Allow() call %d = false, want true", i+1)
		}
	}

	// The 11th inside the window is rejected
	if rl.Allow(1) {
		t.Error("Allow() call 11 = true, want false")
	}

	// After the window passes the identity is readmitted
	now = now.Add(5*time.Second + time.Millisecond)
	if !rl.Allow(1) {
		t.Error("Allow() after window = false, want true")
	}
}

// A denied request is not recorded, so hammering while limited does not
// extend the lockout.
func TestRateLimiterDeniedNotRecorded(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(5*time.Second, 2)
	rl.now = func() time.Time { return now }

	rl.Allow(1)
	rl.Allow(1)

	for i := 0; i < 20; i++ {
		now = now.Add(100 * time.Millisecond)
		if rl.Allow(1) {
			t.Fatal("Allow() = true while window full")
		}
	}

	// Both recorded entries are now older than the window
	now = now.Add(5 * time.Second)
	if !rl.Allow(1) {
		t.Error("Allow() = false after original entries expired")
	}
}

func TestRateLimiterPerIdentity(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(5*time.Second, 1)
	rl.now = func() time.Time { return now }

	if !rl.Allow(1) {
		t.Fatal("Allow(1) = false, want true")
	}
	if rl.Allow(1) {
		t.Error("Allow(1) second call = true, want false")
	}
	if !rl.Allow(2) {
		t.Error("Allow(2) = false, identities must be throttled independently")
	}
}

// Memory per identity stays bounded by the window capacity.
func TestRateLimiterPrunes(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(time.Second, 5)
	rl.now = func() time.Time { return now }

	for i := 0; i < 100; i++ {
		now = now.Add(300 * time.Millisecond)
		rl.Allow(1)
	}

	rl.mu.Lock()
	tracked := len(rl.hits[1])
	rl.mu.Unlock()

	if tracked > 5 {
		t.Errorf("tracked %d timestamps, want at most 5", tracked)
	}
}
