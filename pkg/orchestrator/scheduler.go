package orchestrator

import (
	"context"
	"time"
)

// Scheduler runs deferred session work such as follow-ups and the greeting.
type Scheduler interface {
	// Schedule runs fn once after delay unless ctx is done first.
	Schedule(ctx context.Context, delay time.Duration, fn func())
}

// TimerScheduler is the wall-clock Scheduler.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(ctx context.Context, delay time.Duration, fn func()) {
	if ctx.Err() != nil {
		return
	}
	timer := time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		fn()
	})
	context.AfterFunc(ctx, func() { timer.Stop() })
}
