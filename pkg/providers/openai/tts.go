package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/knolabs/daela/pkg/adapters/tts"
	"github.com/knolabs/daela/pkg/errorsx"
	"github.com/knolabs/daela/pkg/frames"
	"github.com/knolabs/daela/pkg/logging"
	"github.com/knolabs/daela/pkg/resilience"
)

// The speech endpoint's "pcm" format is 24kHz 16-bit mono.
const speechSampleRate = 24000

type TTSConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Voice    string `mapstructure:"voice"`
	BaseURL  string `mapstructure:"base_url"`
	RoomName string `mapstructure:"-"`
}

// SpeechTTS synthesizes each reply with one /audio/speech request.
type SpeechTTS struct {
	cfg    TTSConfig
	client *http.Client
	out    chan frames.Frame
	queue  chan string
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	done   chan struct{}
	log    *slog.Logger
}

func NewTTS(cfg TTSConfig, client *http.Client, logger *slog.Logger) *SpeechTTS {
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SpeechTTS{
		cfg:    cfg,
		client: client,
		out:    make(chan frames.Frame, 64),
		queue:  make(chan string, 16),
		done:   make(chan struct{}),
		log:    logging.NewComponentLogger(logger, "openai_tts").With("room", cfg.RoomName),
	}
}

func (s *SpeechTTS) Name() string { return "openai_tts" }

func (s *SpeechTTS) Start(ctx context.Context) error {
	if s.cfg.APIKey == "" {
		return errorsx.Wrap(errors.New("openai api key required"), errorsx.ReasonTTSConnect)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	go s.loop()
	return nil
}

func (s *SpeechTTS) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case text := <-s.queue:
			pcm, err := s.synthesize(s.ctx, text)
			if err != nil {
				s.log.Error("openai_tts_failed", "error", err, "reason", errorsx.Reason(err))
				continue
			}
			s.emit(frames.NewAudioFrame(s.cfg.RoomName, time.Now().UnixNano(), pcm, speechSampleRate, 1, map[string]string{
				frames.MetaStreamID: s.cfg.RoomName,
				frames.MetaSource:   "openai_tts",
				frames.MetaEncoding: "pcm16",
			}))
		}
	}
}

func (s *SpeechTTS) synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]any{
		"model":           s.cfg.Model,
		"voice":           s.cfg.Voice,
		"input":           text,
		"response_format": "pcm",
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.cfg.BaseURL, "/")+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("openai speech: %w", err), errorsx.ReasonTTSSend)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errorsx.Wrap(resilience.RateLimitError{Provider: "openai_tts", Message: resp.Status}, errorsx.ReasonTTSRateLimit)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errorsx.Wrap(fmt.Errorf("openai speech status %d", resp.StatusCode), errorsx.ReasonTTSSend)
	}
	return io.ReadAll(resp.Body)
}

func (s *SpeechTTS) emit(f frames.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- f:
	default:
		s.log.Warn("openai_tts_output_full")
	}
}

func (s *SpeechTTS) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if s.ctx == nil {
		return errorsx.Wrap(errors.New("not started"), errorsx.ReasonTTSSend)
	}
	select {
	case s.queue <- text:
		return nil
	default:
		return errorsx.Wrap(errors.New("openai tts queue full"), errorsx.ReasonTTSSend)
	}
}

func (s *SpeechTTS) Flush() {
	for {
		select {
		case <-s.queue:
		default:
			return
		}
	}
}

func (s *SpeechTTS) Results() <-chan frames.Frame { return s.out }

func (s *SpeechTTS) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
	return nil
}

var _ tts.StreamingTTS = (*SpeechTTS)(nil)
