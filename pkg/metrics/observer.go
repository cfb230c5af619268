package metrics

import "time"

// Session event names. They double as event_type values in the Postgres
// event log, so renaming one is a data migration.
const (
	EventSessionStarted    = "session_started"
	EventSessionEnded      = "session_ended"
	EventStateChanged      = "state_changed"
	EventTurnCompleted     = "turn_completed"
	EventMessageSuppressed = "message_suppressed"
	EventFunctionCalled    = "function_called"
	EventEscalationStarted = "escalation_started"
	EventEscalationFailed  = "escalation_failed"
	EventEscalationSkipped = "escalation_skipped"
	EventHumanJoined       = "human_joined"
	EventHumanLeft         = "human_left"
	EventFollowUpScheduled = "followup_scheduled"
	EventFollowUpFired     = "followup_fired"
	EventImageAnalyzed     = "image_analyzed"
	EventBreakerOpen       = "llm_breaker_open"
	EventBreakerClose      = "llm_breaker_close"
	EventBreakerDenied     = "llm_breaker_denied"
	EventRateLimit         = "llm_rate_limit"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
