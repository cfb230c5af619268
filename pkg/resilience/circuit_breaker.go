// Package resilience holds the rate-limit error type shared by vendor
// adapters and the breaker that trips on it.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// RateLimitError is returned when a vendor answers 429.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e RateLimitError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "rate limit"
	}
	if e.Provider != "" {
		return e.Provider + ": " + msg
	}
	return msg
}

func IsRateLimit(err error) bool {
	var rl RateLimitError
	return errors.As(err, &rl)
}

// CircuitBreaker opens after threshold consecutive rate limits. Once the
// cooldown passes a single trial request is let through; its outcome
// closes or reopens the breaker. Other errors do not count.
type CircuitBreaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	cooldown  time.Duration
	openUntil time.Time
	trial     bool
	now       func() time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openUntil.IsZero() {
		return true
	}
	if c.now().Before(c.openUntil) || c.trial {
		return false
	}
	c.trial = true
	return true
}

func (c *CircuitBreaker) OnSuccess() {
	c.mu.Lock()
	c.failures = 0
	c.openUntil = time.Time{}
	c.trial = false
	c.mu.Unlock()
}

func (c *CircuitBreaker) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !IsRateLimit(err) {
		c.trial = false
		return
	}
	c.failures++
	if c.trial || c.failures >= c.threshold {
		c.openUntil = c.now().Add(c.cooldown)
		c.trial = false
	}
}

// Open reports whether requests are currently refused.
func (c *CircuitBreaker) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.openUntil.IsZero() && c.now().Before(c.openUntil)
}
