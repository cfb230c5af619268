package mock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/knolabs/daela/pkg/frames"
	"github.com/knolabs/daela/pkg/room"
)

// Room is an in-memory room for local runs and tests.
type Room struct {
	name   string
	events chan room.Event
	closed atomic.Bool
	mu     sync.Mutex
	said   []string
	audio  []frames.AudioFrame
	sayErr error
	saidCh chan string
}

func New(name string) *Room {
	return &Room{
		name:   name,
		events: make(chan room.Event, 256),
		saidCh: make(chan string, 256),
	}
}

func (r *Room) Name() string { return r.name }

func (r *Room) Events() <-chan room.Event { return r.events }

func (r *Room) Say(ctx context.Context, text string) error {
	if r.closed.Load() {
		return errors.New("room closed")
	}
	r.mu.Lock()
	err := r.sayErr
	if err == nil {
		r.said = append(r.said, text)
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case r.saidCh <- text:
	default:
	}
	return nil
}

func (r *Room) PublishAudio(ctx context.Context, frame frames.AudioFrame) error {
	r.mu.Lock()
	r.audio = append(r.audio, frame)
	r.mu.Unlock()
	return nil
}

// Close disconnects the room; Events is closed.
func (r *Room) Close() error {
	if r.closed.CompareAndSwap(false, true) {
		r.mu.Lock()
		close(r.events)
		r.mu.Unlock()
	}
	return nil
}

// Push injects an inbound event.
func (r *Room) Push(ev room.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return
	}
	r.events <- ev
}

// Said returns every reply published so far.
func (r *Room) Said() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.said...)
}

// SaidCh delivers replies as they are published.
func (r *Room) SaidCh() <-chan string { return r.saidCh }

func (r *Room) Audio() []frames.AudioFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]frames.AudioFrame(nil), r.audio...)
}

// FailSay makes subsequent Say calls return err.
func (r *Room) FailSay(err error) {
	r.mu.Lock()
	r.sayErr = err
	r.mu.Unlock()
}

// Dialer records dial requests.
type Dialer struct {
	mu       sync.Mutex
	requests []room.DialRequest
	err      error
	dialed   chan room.DialRequest
}

func NewDialer(err error) *Dialer {
	return &Dialer{err: err, dialed: make(chan room.DialRequest, 16)}
}

func (d *Dialer) Dial(ctx context.Context, req room.DialRequest) (string, error) {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.mu.Unlock()
	select {
	case d.dialed <- req:
	default:
	}
	if d.err != nil {
		return "", d.err
	}
	return "PA_" + req.ParticipantIdentity, nil
}

func (d *Dialer) Requests() []room.DialRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]room.DialRequest(nil), d.requests...)
}

// Dialed delivers requests as they are made.
func (d *Dialer) Dialed() <-chan room.DialRequest { return d.dialed }

var (
	_ room.Room           = (*Room)(nil)
	_ room.AudioPublisher = (*Room)(nil)
	_ room.Dialer         = (*Dialer)(nil)
)
