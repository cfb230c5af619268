// Package agent runs one orchestrator session per room and exposes the
// worker's dispatch and health endpoints.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/knolabs/daela/pkg/config"
	"github.com/knolabs/daela/pkg/functions"
	"github.com/knolabs/daela/pkg/logging"
	"github.com/knolabs/daela/pkg/metrics"
	"github.com/knolabs/daela/pkg/orchestrator"
	"github.com/knolabs/daela/pkg/room"
	"github.com/knolabs/daela/pkg/speech"
)

type Options struct {
	Config    config.Config
	Providers *ProviderRegistry
	CRM       functions.CRM
	Observer  metrics.Observer
	Reporter  orchestrator.Reporter
	// Scheduler overrides the timer scheduler, mainly for tests.
	Scheduler    orchestrator.Scheduler
	DrainTimeout time.Duration
	Logger       *slog.Logger
}

// Agent joins rooms on request and keeps their sessions running.
type Agent struct {
	cfg       config.Config
	profile   functions.Profile
	providers *ProviderRegistry
	connector Connector
	dialer    room.Dialer
	crm       functions.CRM
	obs       metrics.Observer
	reporter  orchestrator.Reporter
	scheduler orchestrator.Scheduler
	sessions  *SessionRegistry
	drainWait time.Duration
	log       *slog.Logger
}

func New(opts Options) (*Agent, error) {
	if opts.Providers == nil {
		return nil, errors.New("agent: provider registry is required")
	}
	if opts.CRM == nil {
		return nil, errors.New("agent: crm is required")
	}
	profile, err := opts.Config.ResolvedProfile()
	if err != nil {
		return nil, err
	}
	connector, err := opts.Providers.BuildConnector(opts.Config)
	if err != nil {
		return nil, err
	}
	dialer, err := opts.Providers.BuildDialer(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 10 * time.Second
	}
	a := &Agent{
		cfg:       opts.Config,
		profile:   profile,
		providers: opts.Providers,
		connector: connector,
		dialer:    dialer,
		crm:       opts.CRM,
		obs:       opts.Observer,
		reporter:  opts.Reporter,
		scheduler: opts.Scheduler,
		drainWait: opts.DrainTimeout,
		log:       logging.NewComponentLogger(opts.Logger, "agent"),
	}
	a.sessions = NewSessionRegistry(a.startSession)
	a.sessions.onExit = a.sessionExited
	a.log.Info("agent_init",
		"environment", opts.Config.Environment,
		"profile", profile.Name,
		"llm_provider", opts.Config.Vendors.LLM.Provider,
		"stt_provider", opts.Config.Vendors.STT.Provider,
		"tts_provider", opts.Config.Vendors.TTS.Provider,
		"room_provider", opts.Config.Room.Provider,
		"handoff_provider", opts.Config.Handoff.Provider,
	)
	return a, nil
}

// Dispatch joins roomName unless a session is already running there.
func (a *Agent) Dispatch(ctx context.Context, roomName string) (*Session, bool, error) {
	if roomName == "" {
		return nil, false, errors.New("room name is required")
	}
	sess, created, err := a.sessions.GetOrCreate(roomName, uuid.NewString())
	if err != nil {
		return nil, false, err
	}
	if created {
		a.log.Info("session_dispatched", "room", roomName, "trace_id", sess.TraceID, "session_id", sess.ID())
	}
	return sess, created, nil
}

func (a *Agent) Count() int { return a.sessions.Count() }

func (a *Agent) Draining() bool { return a.sessions.Draining() }

// Drain stops accepting rooms and ends every running session.
func (a *Agent) Drain() error {
	a.sessions.SetDraining(true)
	ctx, cancel := context.WithTimeout(context.Background(), a.drainWait)
	defer cancel()
	if err := a.sessions.CloseAll(ctx); err != nil {
		return fmt.Errorf("drain sessions: %w", err)
	}
	return nil
}

// liveSession ties an orchestrator session to the room it runs in.
type liveSession struct {
	*orchestrator.Session
	room room.Room
}

func (l liveSession) Close() error { return l.room.Close() }

func (a *Agent) startSession(ctx context.Context, roomName, traceID string) (Runnable, error) {
	log := a.log.With("room", roomName, "trace_id", traceID)

	joined, err := a.connector.Join(ctx, roomName)
	if err != nil {
		return nil, fmt.Errorf("join room %s: %w", roomName, err)
	}
	r, err := a.withVoice(ctx, joined, traceID, log)
	if err != nil {
		_ = joined.Close()
		return nil, err
	}
	model, err := a.providers.BuildLLM(a.cfg)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	registry, dental, err := functions.BuildRegistry(a.profile, a.crm, functions.DentalOptions{Logger: log})
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	sess, err := orchestrator.NewSession(orchestrator.Config{
		Profile:              a.profile,
		HumanAgentPhone:      a.cfg.Handoff.PhoneNumber,
		HumanIdentityPrefix:  a.cfg.Handoff.IdentityPrefix,
		HumanParticipantName: a.cfg.Handoff.ParticipantName,
		FollowUpDelay:        a.cfg.FollowUp.Delay,
		GreetingDelay:        a.cfg.GreetingDelay,
	}, orchestrator.Deps{
		Room:      r,
		LLM:       model,
		Registry:  registry,
		Status:    dental,
		Dialer:    a.dialer,
		Scheduler: a.scheduler,
		Observer:  a.obs,
		Reporter:  a.reporter,
		Logger:    log,
	})
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	return liveSession{Session: sess, room: r}, nil
}

// withVoice adds speech engines when either is configured.
func (a *Agent) withVoice(ctx context.Context, r room.Room, traceID string, log *slog.Logger) (room.Room, error) {
	sttEngine, err := a.providers.BuildSTT(a.cfg, r.Name(), traceID)
	if err != nil {
		return nil, err
	}
	ttsEngine, err := a.providers.BuildTTS(a.cfg, r.Name())
	if err != nil {
		return nil, err
	}
	if sttEngine == nil && ttsEngine == nil {
		return r, nil
	}
	v := speech.NewVoice(r, sttEngine, ttsEngine, log)
	if err := v.Start(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

func (a *Agent) sessionExited(s *Session, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error("session_failed", "room", s.Room, "trace_id", s.TraceID, "error", err)
		if a.reporter != nil {
			a.reporter.Report(context.Background(), err, map[string]string{"room": s.Room, "trace_id": s.TraceID})
		}
		return
	}
	a.log.Info("session_closed", "room", s.Room, "trace_id", s.TraceID, "duration", time.Since(s.Created))
}
