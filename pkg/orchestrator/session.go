// Package orchestrator runs one conversational session: it owns the
// AI/human ownership state, gates model turns on it, dispatches function
// calls and drives escalation to a human agent.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/knolabs/daela/pkg/conversation"
	"github.com/knolabs/daela/pkg/errorsx"
	"github.com/knolabs/daela/pkg/functions"
	"github.com/knolabs/daela/pkg/llm"
	"github.com/knolabs/daela/pkg/logging"
	"github.com/knolabs/daela/pkg/metrics"
	"github.com/knolabs/daela/pkg/redact"
	"github.com/knolabs/daela/pkg/room"
	"github.com/knolabs/daela/pkg/vision"
)

const (
	defaultFollowUpDelay = 20 * time.Second
	defaultTurnQueue     = 16
	defaultTurnTimeout   = 60 * time.Second
	maxFunctionSteps     = 3
)

const (
	msgModelUnavailable = "Sorry, I'm having a little trouble right now. Could you say that again?"
	msgEscalationFailed = "I'm sorry, I couldn't reach a human agent right now. I'm still here to help you."
	msgNoFrame          = "I can't see any video from you yet. Could you turn on your camera and show me?"
	toolAnalyzing       = "Analyzing the latest video frame."
)

// StatusChecker answers follow-up appointment status lookups.
type StatusChecker interface {
	CheckStatus(ctx context.Context, email string) string
}

// Reporter forwards errors to an external error tracker.
type Reporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

type Config struct {
	Profile functions.Profile
	// HumanAgentPhone is dialed on escalation.
	HumanAgentPhone      string
	HumanIdentityPrefix  string
	HumanParticipantName string
	FollowUpDelay        time.Duration
	// GreetingDelay of zero speaks the greeting as soon as Run starts.
	GreetingDelay time.Duration
	TurnQueueSize int
	TurnTimeout   time.Duration
}

type Deps struct {
	Room      room.Room
	LLM       llm.LLMAdapter
	Registry  *functions.Registry
	Status    StatusChecker
	Dialer    room.Dialer
	Frames    *vision.FrameCache
	Scheduler Scheduler
	Observer  metrics.Observer
	Reporter  Reporter
	Logger    *slog.Logger
}

type turnKind int

const (
	turnUser turnKind = iota
	turnAssist
	turnImage
	turnFollowUp
	turnPrompt
	turnSay
)

func (k turnKind) String() string {
	switch k {
	case turnUser:
		return "user"
	case turnAssist:
		return "assist"
	case turnImage:
		return "image"
	case turnFollowUp:
		return "followup"
	case turnPrompt:
		return "prompt"
	case turnSay:
		return "say"
	default:
		return "unknown"
	}
}

type turn struct {
	kind  turnKind
	text  string
	email string
}

// Internal events posted back to the session loop.
type (
	functionDone struct {
		call   llm.ToolCall
		result functions.Result
	}
	dialResult struct {
		identity string
		err      error
	}
	followUpDue struct{ id string }
	assistDone  struct{}
)

type followUp struct {
	email string
	due   time.Time
}

// Session is one room's conversation. State is written only by the Run
// loop; the turn worker reads it before invoking the model and again
// before speaking.
type Session struct {
	id    string
	cfg   Config
	deps  Deps
	convo *conversation.Context
	log   *slog.Logger
	obs   metrics.Observer
	state atomic.Int32

	turns    chan turn
	internal chan any
	// wg tracks the turn worker and in-flight dials.
	wg sync.WaitGroup

	// owned by the Run loop
	humanIdentity string
	escalating    bool
	pending       map[string]followUp
}

func NewSession(cfg Config, deps Deps) (*Session, error) {
	if deps.Room == nil {
		return nil, errors.New("orchestrator: room is required")
	}
	if deps.LLM == nil {
		return nil, errors.New("orchestrator: llm adapter is required")
	}
	if deps.Registry == nil {
		deps.Registry = functions.NewRegistry()
	}
	if deps.Frames == nil {
		deps.Frames = vision.NewFrameCache()
	}
	if deps.Scheduler == nil {
		deps.Scheduler = TimerScheduler{}
	}
	if deps.Observer == nil {
		deps.Observer = metrics.NoopObserver{}
	}
	if cfg.FollowUpDelay <= 0 {
		cfg.FollowUpDelay = defaultFollowUpDelay
	}
	if cfg.TurnQueueSize <= 0 {
		cfg.TurnQueueSize = defaultTurnQueue
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	if cfg.HumanIdentityPrefix == "" {
		cfg.HumanIdentityPrefix = room.DefaultIdentityPrefix
	}
	if cfg.HumanParticipantName == "" {
		cfg.HumanParticipantName = room.DefaultHumanAgentName
	}
	id := uuid.NewString()
	s := &Session{
		id:       id,
		cfg:      cfg,
		deps:     deps,
		convo:    conversation.New(cfg.Profile.Persona),
		obs:      deps.Observer,
		turns:    make(chan turn, cfg.TurnQueueSize),
		internal: make(chan any, 16),
		pending:  make(map[string]followUp),
	}
	s.log = logging.NewComponentLogger(deps.Logger, "orchestrator").With(
		"session_id", id,
		"room", deps.Room.Name(),
		"profile", cfg.Profile.Name,
	)
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

// Conversation exposes the transcript for inspection.
func (s *Session) Conversation() *conversation.Context { return s.convo }

// Run drives the session until the room disconnects or ctx is done.
// Pending follow-ups are dropped on exit.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.wg.Wait()
		s.record(metrics.EventSessionEnded, nil, map[string]any{"pending_followups": len(s.pending)})
		s.log.Info("session_ended", "state", s.State().String())
	}()

	s.record(metrics.EventSessionStarted, nil, nil)
	s.log.Info("session_started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.turnWorker(ctx)
	}()

	if g := s.cfg.Profile.Greeting; g != "" {
		if s.cfg.GreetingDelay > 0 {
			s.deps.Scheduler.Schedule(ctx, s.cfg.GreetingDelay, func() { s.enqueue(turn{kind: turnSay, text: g}) })
		} else {
			s.enqueue(turn{kind: turnSay, text: g})
		}
	}

	events := s.deps.Room.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.handleRoomEvent(ctx, ev)
		case ev := <-s.internal:
			s.handleInternal(ctx, ev)
		}
	}
}

func (s *Session) handleRoomEvent(ctx context.Context, ev room.Event) {
	switch e := ev.(type) {
	case room.ChatMessage:
		s.onUserText(e.Text, "chat")
	case room.Transcript:
		if e.Final {
			s.onUserText(e.Text, "speech")
		}
	case room.VideoFrame:
		s.deps.Frames.Offer(e.Frame)
	case room.ParticipantJoined:
		if s.isHuman(e.Identity) {
			s.record(metrics.EventHumanJoined, map[string]string{"identity": e.Identity}, nil)
			s.log.Info("human_joined", "identity", e.Identity)
		}
	case room.ParticipantLeft:
		s.onParticipantLeft(e.Identity)
	}
}

func (s *Session) handleInternal(ctx context.Context, ev any) {
	switch e := ev.(type) {
	case functionDone:
		s.onFunctionDone(ctx, e)
	case dialResult:
		s.onDialResult(e)
	case followUpDue:
		fu, ok := s.pending[e.id]
		if !ok {
			return
		}
		delete(s.pending, e.id)
		s.record(metrics.EventFollowUpFired, nil, nil)
		s.enqueue(turn{kind: turnFollowUp, email: fu.email})
	case assistDone:
		if s.State() == StateHumanAssisting {
			s.transition(TriggerAssistDone)
		}
	}
}

func (s *Session) onUserText(text, source string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	st := s.State()
	if st == StateAIActive {
		s.enqueue(turn{kind: turnUser, text: text})
		return
	}
	if s.helpRequested(text) {
		s.transition(TriggerHelpRequested)
		s.enqueue(turn{kind: turnAssist, text: text})
		return
	}
	s.record(metrics.EventMessageSuppressed, map[string]string{"source": source, "state": st.String()}, nil)
	s.log.Debug("message_suppressed", "source", source, "state", st.String())
}

func (s *Session) helpRequested(text string) bool {
	phrase := strings.ToLower(strings.TrimSpace(s.cfg.Profile.HelpPhrase))
	if phrase == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), phrase)
}

func (s *Session) isHuman(identity string) bool {
	if identity == "" {
		return false
	}
	if s.humanIdentity != "" && identity == s.humanIdentity {
		return true
	}
	return strings.HasPrefix(identity, s.cfg.HumanIdentityPrefix)
}

func (s *Session) onParticipantLeft(identity string) {
	if s.State() == StateAIActive || !s.isHuman(identity) {
		return
	}
	s.transition(TriggerHumanLeft)
	s.humanIdentity = ""
	s.record(metrics.EventHumanLeft, map[string]string{"identity": identity}, nil)
	s.log.Info("human_left", "identity", identity)
	if p := s.cfg.Profile.ReEngagementPrompt; p != "" {
		s.enqueue(turn{kind: turnPrompt, text: p})
	}
}

func (s *Session) onFunctionDone(ctx context.Context, e functionDone) {
	if e.result.FollowUpEmail != "" {
		s.scheduleFollowUp(ctx, e.result.FollowUpEmail)
	}
	switch e.result.Outcome {
	case functions.OutcomeEscalate:
		s.startEscalation(ctx)
	case functions.OutcomeAnalyzeImage:
		s.enqueue(turn{kind: turnImage, text: e.result.Text})
	}
}

func (s *Session) scheduleFollowUp(ctx context.Context, email string) {
	if s.deps.Status == nil {
		s.log.Warn("followup_skipped", "reason", "no status checker", "email", redact.Email(email))
		return
	}
	id := uuid.NewString()
	delay := s.cfg.FollowUpDelay
	s.pending[id] = followUp{email: email, due: time.Now().Add(delay)}
	s.deps.Scheduler.Schedule(ctx, delay, func() { s.post(ctx, followUpDue{id: id}) })
	s.record(metrics.EventFollowUpScheduled, nil, map[string]any{"delay_ms": delay.Milliseconds()})
	s.log.Info("followup_scheduled", "email", redact.Email(email), "delay", delay)
}

func (s *Session) startEscalation(ctx context.Context) {
	if s.State() != StateAIActive || s.escalating {
		s.log.Debug("escalation_ignored", "state", s.State().String(), "in_flight", s.escalating)
		return
	}
	if !s.cfg.Profile.Escalates {
		s.record(metrics.EventEscalationSkipped, nil, nil)
		s.log.Info("escalation_skipped", "reason", "profile does not dial")
		if advice := s.cfg.Profile.UrgentAdvice; advice != "" {
			s.enqueue(turn{kind: turnSay, text: advice})
		}
		return
	}
	s.escalating = true
	phone := s.cfg.HumanAgentPhone
	identity := room.PhoneIdentity(s.cfg.HumanIdentityPrefix, phone)
	s.record(metrics.EventEscalationStarted, nil, nil)
	s.log.Info("escalation_started", "phone", redact.Phone(phone))

	req := room.DialRequest{
		RoomName:            s.deps.Room.Name(),
		PhoneNumber:         phone,
		ParticipantIdentity: identity,
		ParticipantName:     s.cfg.HumanParticipantName,
	}
	announcement := s.cfg.Profile.EscalationAnnouncement
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if announcement != "" {
			if err := s.deps.Room.Say(ctx, announcement); err != nil {
				s.log.Warn("announcement_failed", "error", errorsx.Wrap(err, errorsx.ReasonRoomPublish))
			}
		}
		var err error
		switch {
		case s.deps.Dialer == nil:
			err = errors.New("no dialer configured")
		case strings.TrimSpace(phone) == "":
			err = errors.New("no human agent phone configured")
		default:
			_, err = s.deps.Dialer.Dial(ctx, req)
		}
		s.post(ctx, dialResult{identity: identity, err: err})
	}()
}

func (s *Session) onDialResult(e dialResult) {
	s.escalating = false
	if e.err != nil {
		err := errorsx.Wrap(fmt.Errorf("dial human agent: %w", e.err), errorsx.ReasonEscalationDial)
		s.log.Error("escalation_failed", "error", err, "reason", errorsx.Reason(err))
		if s.deps.Reporter != nil {
			s.deps.Reporter.Report(context.Background(), err, map[string]string{
				"room":    s.deps.Room.Name(),
				"session": s.id,
			})
		}
		s.record(metrics.EventEscalationFailed, map[string]string{"reason": string(errorsx.Reason(err))}, nil)
		s.enqueue(turn{kind: turnSay, text: msgEscalationFailed})
		return
	}
	if s.State() != StateAIActive {
		s.log.Warn("dial_result_ignored", "state", s.State().String())
		return
	}
	s.transition(TriggerEscalated)
	s.humanIdentity = e.identity
	s.log.Info("escalated", "identity", e.identity)
}

func (s *Session) transition(trigger Trigger) {
	from := s.State()
	next, err := Transition(from, trigger)
	if err != nil {
		s.log.Warn("state_transition_rejected", "error", err)
		return
	}
	s.state.Store(int32(next))
	if next == from {
		return
	}
	s.record(metrics.EventStateChanged, map[string]string{
		"from":    from.String(),
		"to":      next.String(),
		"trigger": string(trigger),
	}, nil)
	s.log.Info("state_changed", "from", from.String(), "to", next.String(), "trigger", string(trigger))
}

// enqueue never blocks the loop; a full queue drops the turn.
func (s *Session) enqueue(t turn) {
	select {
	case s.turns <- t:
	default:
		s.log.Warn("turn_dropped", "kind", t.kind.String(), "reason", "queue full")
	}
}

func (s *Session) post(ctx context.Context, ev any) {
	select {
	case s.internal <- ev:
	case <-ctx.Done():
	}
}

func (s *Session) turnWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.turns:
			s.runTurn(ctx, t)
		}
	}
}

func (s *Session) runTurn(parent context.Context, t turn) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.TurnTimeout)
	defer cancel()

	if t.kind == turnSay {
		s.say(ctx, t.text)
		return
	}
	if !s.mayAnswer(t) {
		s.log.Debug("turn_skipped", "kind", t.kind.String(), "state", s.State().String())
		return
	}

	start := time.Now()
	var msg conversation.Message
	switch t.kind {
	case turnImage:
		frame, ok := s.deps.Frames.Latest()
		if !ok {
			s.log.Info("image_unavailable")
			s.say(ctx, msgNoFrame)
			return
		}
		msg = conversation.UserWithImage(t.text, conversation.Image{MIME: frame.MIME(), Data: frame.Data(), URL: frame.URL()})
		s.record(metrics.EventImageAnalyzed, map[string]string{"track_id": frame.TrackID()}, nil)
	case turnFollowUp:
		msg = conversation.UserText(s.deps.Status.CheckStatus(ctx, t.email))
	default:
		msg = conversation.UserText(t.text)
	}
	if err := s.convo.Append(msg); err != nil {
		s.log.Error("context_append_failed", "error", err)
		return
	}

	s.respond(ctx, t)
	if t.kind == turnAssist {
		s.post(parent, assistDone{})
	}
	s.record(metrics.EventTurnCompleted, map[string]string{"kind": t.kind.String()}, map[string]any{
		"latency_ms": time.Since(start).Milliseconds(),
	})
}

// mayAnswer gates model replies on session state. Assist turns are the
// only ones allowed while a human owns the conversation.
func (s *Session) mayAnswer(t turn) bool {
	if t.kind == turnAssist || t.kind == turnSay {
		return true
	}
	return s.State() == StateAIActive
}

func (s *Session) respond(ctx context.Context, t turn) {
	for step := 0; ; step++ {
		resp, err := s.deps.LLM.Generate(ctx, s.convo.Request(s.deps.Registry.Tools()))
		if err != nil {
			s.log.Error("llm_generate_failed", "error", err, "reason", errorsx.Reason(err))
			s.speak(ctx, t, msgModelUnavailable)
			return
		}
		call, ok := functions.FirstCall(resp.ToolCalls)
		if !ok || step >= maxFunctionSteps {
			s.speak(ctx, t, resp.Text)
			return
		}
		if n := len(resp.ToolCalls); n > 1 {
			s.log.Warn("tool_calls_discarded", "dispatched", call.Name, "discarded", n-1)
		}
		if err := s.convo.Append(conversation.AssistantCall(call)); err != nil {
			s.log.Error("context_append_failed", "error", err)
			return
		}
		res := s.deps.Registry.Call(ctx, call)
		s.record(metrics.EventFunctionCalled, map[string]string{
			"function": call.Name,
			"outcome":  res.Outcome.String(),
		}, nil)
		s.log.Info("function_called", "function", call.Name, "outcome", res.Outcome.String())

		switch res.Outcome {
		case functions.OutcomeEscalate:
			_ = s.convo.Append(conversation.ToolResult(call.ID, functions.EscalationSentinel))
			s.post(ctx, functionDone{call: call, result: res})
			return
		case functions.OutcomeAnalyzeImage:
			_ = s.convo.Append(conversation.ToolResult(call.ID, toolAnalyzing))
			s.post(ctx, functionDone{call: call, result: res})
			return
		case functions.OutcomeError:
			_ = s.convo.Append(conversation.ToolResult(call.ID, "The function failed: "+res.Text))
		default:
			_ = s.convo.Append(conversation.ToolResult(call.ID, res.Text))
			if res.FollowUpEmail != "" {
				s.post(ctx, functionDone{call: call, result: res})
			}
		}
	}
}

// speak publishes a model reply if the session state still allows it.
func (s *Session) speak(ctx context.Context, t turn, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if !s.mayAnswer(t) {
		s.record(metrics.EventMessageSuppressed, map[string]string{"source": "reply", "state": s.State().String()}, nil)
		s.log.Info("reply_suppressed", "kind", t.kind.String(), "state", s.State().String())
		return
	}
	s.say(ctx, text)
}

func (s *Session) say(ctx context.Context, text string) {
	_ = s.convo.Append(conversation.AssistantText(text))
	if err := s.deps.Room.Say(ctx, text); err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonRoomPublish)
		s.log.Error("room_say_failed", "error", err, "reason", errorsx.Reason(err))
	}
}

func (s *Session) record(name string, tags map[string]string, fields map[string]any) {
	if tags == nil {
		tags = map[string]string{}
	}
	tags["session_id"] = s.id
	tags["room"] = s.deps.Room.Name()
	s.obs.RecordEvent(metrics.MetricsEvent{
		Name:   name,
		Time:   time.Now(),
		Tags:   tags,
		Fields: fields,
	})
}
