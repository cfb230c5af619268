package agent

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrDraining        = errors.New("agent is draining")
	ErrSessionStarting = errors.New("session is starting")
)

// Runnable is a session the registry drives until it returns.
type Runnable interface {
	ID() string
	Run(ctx context.Context) error
	Close() error
}

type Session struct {
	Room    string
	TraceID string
	Created time.Time
	run     Runnable
	cancel  context.CancelFunc
	done    chan struct{}
}

func (s *Session) ID() string { return s.run.ID() }

// Done is closed after the session stopped and its room was closed.
func (s *Session) Done() <-chan struct{} { return s.done }

type SessionFactory func(ctx context.Context, roomName, traceID string) (Runnable, error)

// SessionRegistry holds at most one running session per room.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	starting map[string]bool
	draining bool
	factory  SessionFactory
	onExit   func(s *Session, err error)
}

func NewSessionRegistry(factory SessionFactory) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		starting: make(map[string]bool),
		factory:  factory,
	}
}

// GetOrCreate returns the room's running session or starts one. The bool
// is true when a new session was started.
func (r *SessionRegistry) GetOrCreate(roomName, traceID string) (*Session, bool, error) {
	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		return nil, false, ErrDraining
	}
	if s, ok := r.sessions[roomName]; ok {
		r.mu.Unlock()
		return s, false, nil
	}
	if r.starting[roomName] {
		r.mu.Unlock()
		return nil, false, ErrSessionStarting
	}
	r.starting[roomName] = true
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	run, err := r.factory(ctx, roomName, traceID)

	r.mu.Lock()
	delete(r.starting, roomName)
	if err != nil {
		r.mu.Unlock()
		cancel()
		return nil, false, err
	}
	sess := &Session{
		Room:    roomName,
		TraceID: traceID,
		Created: time.Now(),
		run:     run,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	r.sessions[roomName] = sess
	r.mu.Unlock()

	go r.drive(ctx, sess)
	return sess, true, nil
}

func (r *SessionRegistry) drive(ctx context.Context, sess *Session) {
	err := sess.run.Run(ctx)
	_ = sess.run.Close()
	sess.cancel()

	r.mu.Lock()
	if r.sessions[sess.Room] == sess {
		delete(r.sessions, sess.Room)
	}
	onExit := r.onExit
	r.mu.Unlock()
	if onExit != nil {
		onExit(sess, err)
	}
	close(sess.done)
}

func (r *SessionRegistry) Get(roomName string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[roomName]
	return s, ok
}

// Stop cancels the room's session and waits for it to exit.
func (r *SessionRegistry) Stop(roomName string) bool {
	s, ok := r.Get(roomName)
	if !ok {
		return false
	}
	s.cancel()
	<-s.done
	return true
}

func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *SessionRegistry) SetDraining(v bool) {
	r.mu.Lock()
	r.draining = v
	r.mu.Unlock()
}

func (r *SessionRegistry) Draining() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draining
}

// CloseAll cancels every session and waits until they have exited or ctx
// is done.
func (r *SessionRegistry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.Unlock()
	for _, s := range list {
		s.cancel()
	}
	for _, s := range list {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
