package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/knolabs/daela/pkg/adapters/tts"
	"github.com/knolabs/daela/pkg/frames"
)

type TTSConfig struct {
	RoomName   string
	SampleRate int
	Channels   int
}

// StreamingTTS answers every SendText with one silent audio frame.
type StreamingTTS struct {
	cfg     TTSConfig
	out     chan frames.Frame
	mu      sync.Mutex
	started bool
	texts   []string
}

func NewTTS(cfg TTSConfig) *StreamingTTS {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	return &StreamingTTS{
		cfg: cfg,
		out: make(chan frames.Frame, 16),
	}
}

func (s *StreamingTTS) Name() string { return "mock_tts" }

func (s *StreamingTTS) Start(ctx context.Context) error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *StreamingTTS) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out != nil {
		close(s.out)
		s.out = nil
	}
	s.started = false
	return nil
}

func (s *StreamingTTS) SendText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return errors.New("not started")
	}
	s.texts = append(s.texts, text)

	pcm := make([]byte, 320)
	meta := map[string]string{
		frames.MetaStreamID: s.cfg.RoomName,
		frames.MetaSource:   "tts",
	}
	s.out <- frames.NewAudioFrame(s.cfg.RoomName, time.Now().UnixNano(), pcm, s.cfg.SampleRate, s.cfg.Channels, meta)
	return nil
}

func (s *StreamingTTS) Flush() {}

func (s *StreamingTTS) Results() <-chan frames.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out
}

// Texts returns everything sent for synthesis.
func (s *StreamingTTS) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

var _ tts.StreamingTTS = (*StreamingTTS)(nil)
