package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/knolabs/daela/pkg/adapters/stt"
	"github.com/knolabs/daela/pkg/frames"
)

type STTConfig struct {
	RoomName          string
	TraceID           string
	Transcript        string
	InterimTranscript string
	EmitInterim       bool
}

// StreamingSTT emits one scripted transcript for the first audio frame.
type StreamingSTT struct {
	cfg     STTConfig
	out     chan frames.Frame
	mu      sync.Mutex
	started bool
	emitted bool
}

func NewSTT(cfg STTConfig) *StreamingSTT {
	if cfg.Transcript == "" {
		cfg.Transcript = "mock transcript"
	}
	return &StreamingSTT{cfg: cfg, out: make(chan frames.Frame, 16)}
}

func (s *StreamingSTT) Name() string { return "mock_stt" }

func (s *StreamingSTT) Start(ctx context.Context) error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *StreamingSTT) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out != nil {
		close(s.out)
		s.out = nil
	}
	s.started = false
	return nil
}

func (s *StreamingSTT) SendAudio(frame frames.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return errors.New("not started")
	}
	if s.emitted {
		return nil
	}
	s.emitted = true

	if s.cfg.EmitInterim {
		interim := s.cfg.InterimTranscript
		if interim == "" {
			interim = s.cfg.Transcript
		}
		s.out <- frames.NewTextFrame(s.cfg.RoomName, time.Now().UnixNano(), interim, s.meta("false", frame))
	}
	s.out <- frames.NewTextFrame(s.cfg.RoomName, time.Now().UnixNano(), s.cfg.Transcript, s.meta("true", frame))
	return nil
}

func (s *StreamingSTT) meta(final string, frame frames.AudioFrame) map[string]string {
	meta := map[string]string{
		frames.MetaStreamID: s.cfg.RoomName,
		frames.MetaSource:   "stt",
		frames.MetaIsFinal:  final,
	}
	if p := frame.Meta()[frames.MetaParticipant]; p != "" {
		meta[frames.MetaParticipant] = p
	}
	if s.cfg.TraceID != "" {
		meta[frames.MetaTraceID] = s.cfg.TraceID
	}
	return meta
}

func (s *StreamingSTT) Results() <-chan frames.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out
}

var _ stt.StreamingSTT = (*StreamingSTT)(nil)
