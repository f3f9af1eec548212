package sshmanager

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gluk-w/claworc/log-viewer/internal/sshconn"
)

var (
	epA = sshconn.NewEndpoint("10.0.0.1", 22)
	epB = sshconn.NewEndpoint("10.0.0.2", 2222)
)

func TestNewRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimitConfig())
	if rl.config.MaxAttemptsPerMinute != DefaultMaxAttemptsPerMinute {
		t.Errorf("expected MaxAttemptsPerMinute %d, got %d", DefaultMaxAttemptsPerMinute, rl.config.MaxAttemptsPerMinute)
	}
	if rl.config.MaxConsecFailures != DefaultMaxConsecFailures {
		t.Errorf("expected MaxConsecFailures %d, got %d", DefaultMaxConsecFailures, rl.config.MaxConsecFailures)
	}
	if rl.config.BlockDuration != DefaultBlockDuration {
		t.Errorf("expected BlockDuration %v, got %v", DefaultBlockDuration, rl.config.BlockDuration)
	}
}

func TestAllowExceedsPerMinuteLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		MaxAttemptsPerMinute: 3,
		MaxConsecFailures:    10,
		BlockDuration:        time.Minute,
	})

	for i := 0; i < 3; i++ {
		if err := rl.Allow(epA); err != nil {
			t.Fatalf("attempt %d should be allowed: %v", i+1, err)
		}
	}

	err := rl.Allow(epA)
	if !errors.Is(err, sshconn.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if sshconn.KindOf(err) != sshconn.KindRateLimited {
		t.Errorf("expected rate_limited kind, got %q", sshconn.KindOf(err))
	}
}

func TestAllowResetsAfterWindowExpires(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(RateLimitConfig{
		MaxAttemptsPerMinute: 2,
		MaxConsecFailures:    10,
		BlockDuration:        time.Minute,
	})
	rl.nowFn = func() time.Time { return now }

	rl.Allow(epA)
	rl.Allow(epA)
	if err := rl.Allow(epA); err == nil {
		t.Fatal("should be rate limited")
	}

	now = now.Add(61 * time.Second)
	if err := rl.Allow(epA); err != nil {
		t.Fatalf("should be allowed after window expiry: %v", err)
	}
}

func TestBlockAfterConsecutiveFailures(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(RateLimitConfig{
		MaxAttemptsPerMinute: 100,
		MaxConsecFailures:    3,
		BlockDuration:        5 * time.Minute,
	})
	rl.nowFn = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		rl.RecordFailure(epA)
	}
	if err := rl.Allow(epA); err != nil {
		t.Fatalf("below threshold should be allowed: %v", err)
	}

	rl.RecordFailure(epA)
	if err := rl.Allow(epA); !errors.Is(err, sshconn.ErrRateLimited) {
		t.Fatalf("expected block after 3 failures, got %v", err)
	}

	now = now.Add(5*time.Minute + time.Second)
	if err := rl.Allow(epA); err != nil {
		t.Fatalf("block should expire: %v", err)
	}
}

func TestRecordSuccessClearsBlock(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		MaxAttemptsPerMinute: 100,
		MaxConsecFailures:    2,
		BlockDuration:        time.Hour,
	})
	rl.RecordFailure(epA)
	rl.RecordFailure(epA)
	if !rl.GetStatus(epA).Blocked {
		t.Fatal("expected endpoint to be blocked")
	}

	rl.RecordSuccess(epA)
	status := rl.GetStatus(epA)
	if status.Blocked || status.ConsecFailures != 0 {
		t.Errorf("expected cleared status, got %+v", status)
	}
}

func TestIndependentEndpoints(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		MaxAttemptsPerMinute: 1,
		MaxConsecFailures:    1,
		BlockDuration:        time.Hour,
	})
	if err := rl.Allow(epA); err != nil {
		t.Fatalf("first attempt on A: %v", err)
	}
	if err := rl.Allow(epA); err == nil {
		t.Fatal("second attempt on A should be limited")
	}
	if err := rl.Allow(epB); err != nil {
		t.Fatalf("B should be unaffected by A: %v", err)
	}

	rl.RecordFailure(epB)
	if rl.GetStatus(epA).Blocked {
		t.Error("blocking B must not block A")
	}
}

func TestGetStatus(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(RateLimitConfig{
		MaxAttemptsPerMinute: 10,
		MaxConsecFailures:    2,
		BlockDuration:        time.Minute,
	})
	rl.nowFn = func() time.Time { return now }

	status := rl.GetStatus(epA)
	if status.RecentAttempts != 0 || status.MaxAttemptsPerMin != 10 || status.MaxConsecFailures != 2 {
		t.Errorf("unexpected default status %+v", status)
	}

	rl.Allow(epA)
	rl.Allow(epA)
	rl.RecordFailure(epA)
	rl.RecordFailure(epA)

	status = rl.GetStatus(epA)
	if status.RecentAttempts != 2 {
		t.Errorf("expected 2 recent attempts, got %d", status.RecentAttempts)
	}
	if !status.Blocked || status.BlockedUntil == nil {
		t.Fatalf("expected blocked status, got %+v", status)
	}
	if !status.BlockedUntil.Equal(now.Add(time.Minute)) {
		t.Errorf("unexpected BlockedUntil %v", status.BlockedUntil)
	}
}

func TestResetClearsState(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		MaxAttemptsPerMinute: 1,
		MaxConsecFailures:    1,
		BlockDuration:        time.Hour,
	})
	rl.Allow(epA)
	rl.RecordFailure(epA)

	rl.Reset(epA)
	if err := rl.Allow(epA); err != nil {
		t.Errorf("expected allow after reset, got %v", err)
	}
	rl.Reset(epB) // absent endpoint is a no-op
}

func TestRateLimiterConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		MaxAttemptsPerMinute: 1000,
		MaxConsecFailures:    1000,
		BlockDuration:        time.Minute,
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ep := sshconn.NewEndpoint("10.0.0.9", 22+i%3)
			for j := 0; j < 20; j++ {
				rl.Allow(ep)
				if j%2 == 0 {
					rl.RecordFailure(ep)
				} else {
					rl.RecordSuccess(ep)
				}
				rl.GetStatus(ep)
			}
		}(i)
	}
	wg.Wait()
}
