package sshmanager

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gluk-w/claworc/log-viewer/internal/sshconn"
)

// Rate limiting defaults. Two independent mechanisms guard against
// connection storms against one endpoint:
//   - Sliding-window limit: max attempts per minute per endpoint.
//   - Consecutive failure block: after N failures in a row, the endpoint is
//     blocked for BlockDuration.
//
// The limiter only refuses attempts. Nothing here retries.
const (
	DefaultMaxAttemptsPerMinute = 10
	DefaultMaxConsecFailures    = 5
	DefaultBlockDuration        = 5 * time.Minute
)

// RateLimitConfig holds configuration for the connection rate limiter.
type RateLimitConfig struct {
	MaxAttemptsPerMinute int           // Maximum connection attempts per endpoint per minute
	MaxConsecFailures    int           // Consecutive failures before temporary block
	BlockDuration        time.Duration // Duration to block after max consecutive failures
}

// DefaultRateLimitConfig returns the default rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxAttemptsPerMinute: DefaultMaxAttemptsPerMinute,
		MaxConsecFailures:    DefaultMaxConsecFailures,
		BlockDuration:        DefaultBlockDuration,
	}
}

type endpointRateState struct {
	attempts       []time.Time
	consecFailures int
	blockedUntil   time.Time
}

// RateLimiter enforces per-endpoint limits on connection attempts.
type RateLimiter struct {
	mu     sync.Mutex
	config RateLimitConfig
	state  map[sshconn.Endpoint]*endpointRateState
	nowFn  func() time.Time // injectable clock for testing
}

// NewRateLimiter creates a new RateLimiter with the given configuration.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config: config,
		state:  make(map[sshconn.Endpoint]*endpointRateState),
		nowFn:  time.Now,
	}
}

// Allow records an attempt against ep, or refuses it with an error wrapping
// sshconn.ErrRateLimited.
func (rl *RateLimiter) Allow(ep sshconn.Endpoint) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.nowFn()
	s := rl.getOrCreateState(ep)

	if now.Before(s.blockedUntil) {
		remaining := s.blockedUntil.Sub(now).Truncate(time.Second)
		log.Printf("[ssh] rate limit: %s is blocked for %s (consecutive failures: %d)", ep, remaining, s.consecFailures)
		return fmt.Errorf("%w: %s blocked after %d consecutive failures; retry after %s",
			sshconn.ErrRateLimited, ep, s.consecFailures, remaining)
	}

	cutoff := now.Add(-1 * time.Minute)
	pruned := s.attempts[:0]
	for _, t := range s.attempts {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}
	s.attempts = pruned

	if len(s.attempts) >= rl.config.MaxAttemptsPerMinute {
		log.Printf("[ssh] rate limit: %s exceeded %d attempts/min", ep, rl.config.MaxAttemptsPerMinute)
		return fmt.Errorf("%w: %d connection attempts to %s in the last minute (max %d)",
			sshconn.ErrRateLimited, len(s.attempts), ep, rl.config.MaxAttemptsPerMinute)
	}

	s.attempts = append(s.attempts, now)
	return nil
}

// RecordSuccess resets the consecutive failure counter for ep.
func (rl *RateLimiter) RecordSuccess(ep sshconn.Endpoint) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	s := rl.getOrCreateState(ep)
	s.consecFailures = 0
	s.blockedUntil = time.Time{}
}

// RecordFailure increments the consecutive failure counter for ep and
// blocks it once the threshold is reached.
func (rl *RateLimiter) RecordFailure(ep sshconn.Endpoint) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.nowFn()
	s := rl.getOrCreateState(ep)
	s.consecFailures++

	if s.consecFailures >= rl.config.MaxConsecFailures {
		s.blockedUntil = now.Add(rl.config.BlockDuration)
		log.Printf("[ssh] rate limit: blocking %s until %s (%d consecutive failures)",
			ep, s.blockedUntil.Format(time.RFC3339), s.consecFailures)
	}
}

// RateLimitStatus is the current rate limit state of an endpoint.
type RateLimitStatus struct {
	RecentAttempts    int        `json:"recent_attempts"`
	MaxAttemptsPerMin int        `json:"max_attempts_per_min"`
	ConsecFailures    int        `json:"consec_failures"`
	MaxConsecFailures int        `json:"max_consec_failures"`
	Blocked           bool       `json:"blocked"`
	BlockedUntil      *time.Time `json:"blocked_until,omitempty"`
}

// GetStatus returns the current rate limit status for ep.
func (rl *RateLimiter) GetStatus(ep sshconn.Endpoint) RateLimitStatus {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	status := RateLimitStatus{
		MaxAttemptsPerMin: rl.config.MaxAttemptsPerMinute,
		MaxConsecFailures: rl.config.MaxConsecFailures,
	}
	s, ok := rl.state[ep]
	if !ok {
		return status
	}

	now := rl.nowFn()
	cutoff := now.Add(-1 * time.Minute)
	for _, t := range s.attempts {
		if t.After(cutoff) {
			status.RecentAttempts++
		}
	}
	status.ConsecFailures = s.consecFailures
	if now.Before(s.blockedUntil) {
		bu := s.blockedUntil
		status.Blocked = true
		status.BlockedUntil = &bu
	}
	return status
}

// Reset clears all rate limiting state for ep.
func (rl *RateLimiter) Reset(ep sshconn.Endpoint) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.state, ep)
}

// Must be called with rl.mu held.
func (rl *RateLimiter) getOrCreateState(ep sshconn.Endpoint) *endpointRateState {
	s, ok := rl.state[ep]
	if !ok {
		s = &endpointRateState{}
		rl.state[ep] = s
	}
	return s
}
