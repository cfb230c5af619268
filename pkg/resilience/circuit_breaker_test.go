package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRateLimitErrorWrapped(t *testing.T) {
	err := fmt.Errorf("generate: %w", RateLimitError{Provider: "openai", Message: "429 Too Many Requests"})
	if !IsRateLimit(err) {
		t.Fatalf("expected rate limit through wrap")
	}
	if IsRateLimit(errors.New("boom")) {
		t.Fatalf("plain error is not a rate limit")
	}
	if got := (RateLimitError{}).Error(); got != "rate limit" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestBreakerOpensAndRecoversThroughTrial(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(2, 10*time.Second)
	cb.now = func() time.Time { return now }
	rl := RateLimitError{Provider: "openai"}

	cb.OnError(errors.New("timeout"))
	cb.OnError(rl)
	if !cb.Allow() {
		t.Fatalf("one rate limit must not open the breaker")
	}
	cb.OnError(rl)
	if cb.Allow() || !cb.Open() {
		t.Fatalf("expected breaker open after threshold")
	}

	now = now.Add(11 * time.Second)
	if !cb.Allow() {
		t.Fatalf("expected trial after cooldown")
	}
	if cb.Allow() {
		t.Fatalf("only one trial may run")
	}
	cb.OnError(rl)
	if cb.Allow() {
		t.Fatalf("failed trial must reopen")
	}

	now = now.Add(11 * time.Second)
	if !cb.Allow() {
		t.Fatalf("expected second trial")
	}
	cb.OnSuccess()
	if !cb.Allow() || !cb.Allow() || cb.Open() {
		t.Fatalf("successful trial must close the breaker")
	}
}
