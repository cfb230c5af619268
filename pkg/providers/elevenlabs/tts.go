package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/knolabs/daela/pkg/adapters/tts"
	"github.com/knolabs/daela/pkg/errorsx"
	"github.com/knolabs/daela/pkg/frames"
	"github.com/knolabs/daela/pkg/logging"
	"github.com/knolabs/daela/pkg/resilience"
)

type Config struct {
	APIKey       string `mapstructure:"api_key"`
	VoiceID      string `mapstructure:"voice_id"`
	ModelID      string `mapstructure:"model_id"`
	OutputFormat string `mapstructure:"output_format"`
	SampleRate   int    `mapstructure:"sample_rate"`
	BaseURL      string `mapstructure:"base_url"`
	RoomName     string `mapstructure:"-"`
}

// ElevenLabsTTS synthesizes PCM speech over the stream-input websocket.
type ElevenLabsTTS struct {
	cfg     Config
	conn    *websocket.Conn
	out     chan frames.Frame
	writeCh chan ttsMessage
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	outMu   sync.Mutex
	closed  bool
	log     *slog.Logger
}

type ttsMessage struct {
	text  string
	flush bool
}

func New(cfg Config, logger *slog.Logger) *ElevenLabsTTS {
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "pcm_16000"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "wss://api.elevenlabs.io"
	}
	return &ElevenLabsTTS{
		cfg:     cfg,
		out:     make(chan frames.Frame, 256),
		writeCh: make(chan ttsMessage, 64),
		log:     logging.NewComponentLogger(logger, "elevenlabs_tts").With("room", cfg.RoomName),
	}
}

func (s *ElevenLabsTTS) Name() string { return "elevenlabs_tts" }

func (s *ElevenLabsTTS) Start(ctx context.Context) error {
	if s.cfg.APIKey == "" || s.cfg.VoiceID == "" {
		return errorsx.Wrap(errors.New("missing elevenlabs config"), errorsx.ReasonTTSConnect)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	u := s.buildURL()

	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(s.ctx, u, http.Header{
		"xi-api-key": []string{s.cfg.APIKey},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return errorsx.Wrap(resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}, errorsx.ReasonTTSRateLimit)
		}
		return errorsx.Wrap(fmt.Errorf("elevenlabs dial: %w", err), errorsx.ReasonTTSConnect)
	}
	s.conn = conn
	s.log.Info("elevenlabs_connected", "output_format", s.cfg.OutputFormat)

	_ = s.send(map[string]any{
		"text": " ",
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.8,
		},
		"generation_config": map[string]any{
			"chunk_length_schedule": []int{120, 160, 250, 290},
		},
	})
	go s.readLoop()
	go s.writeLoop()
	return nil
}

// Close ends the websocket and closes Results.
func (s *ElevenLabsTTS) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.outMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
	s.outMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return s.conn.Close()
	}
	return nil
}

// SendText queues a whole reply and asks for immediate generation.
func (s *ElevenLabsTTS) SendText(text string) error {
	if s.conn == nil {
		return errorsx.Wrap(errors.New("not connected"), errorsx.ReasonTTSSend)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	select {
	case s.writeCh <- ttsMessage{text: text + " ", flush: true}:
		return nil
	default:
		return errorsx.Wrap(errors.New("elevenlabs write queue full"), errorsx.ReasonTTSSend)
	}
}

// Flush drops buffered audio that has not been played yet.
func (s *ElevenLabsTTS) Flush() {
	if s.conn != nil {
		_ = s.send(map[string]any{"text": " ", "flush": true})
	}
	for {
		select {
		case <-s.out:
		default:
			return
		}
	}
}

func (s *ElevenLabsTTS) Results() <-chan frames.Frame { return s.out }

func (s *ElevenLabsTTS) buildURL() string {
	q := url.Values{}
	if s.cfg.ModelID != "" {
		q.Set("model_id", s.cfg.ModelID)
	}
	q.Set("output_format", s.cfg.OutputFormat)
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(s.cfg.VoiceID) + "/stream-input?" + q.Encode()
}

func (s *ElevenLabsTTS) writeLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.writeCh:
			payload := map[string]any{"text": msg.text}
			if msg.flush {
				payload["flush"] = true
			}
			if err := s.send(payload); err != nil {
				s.log.Warn("elevenlabs_send_failed", "error", errorsx.Wrap(err, errorsx.ReasonTTSSend))
			}
		case <-ticker.C:
			// keep-alive
			_ = s.send(map[string]any{"text": " "})
		}
	}
}

func (s *ElevenLabsTTS) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				s.log.Error("elevenlabs_read_failed", "error", err)
			}
			return
		}
		s.handleMessage(data)
	}
}

func (s *ElevenLabsTTS) handleMessage(data []byte) {
	var msg struct {
		Audio   string `json:"audio"`
		IsFinal bool   `json:"isFinal"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Warn("elevenlabs_bad_message", "error", err)
		return
	}
	if msg.Audio == "" {
		return
	}
	raw, err := base64.StdEncoding.DecodeString(msg.Audio)
	if err != nil {
		s.log.Error("elevenlabs_audio_decode_failed", "error", err)
		return
	}
	meta := map[string]string{
		frames.MetaStreamID: s.cfg.RoomName,
		frames.MetaSource:   "elevenlabs",
		frames.MetaEncoding: "pcm16",
	}
	f := frames.NewAudioFrame(s.cfg.RoomName, time.Now().UnixNano(), raw, s.cfg.SampleRate, 1, meta)

	s.outMu.Lock()
	defer s.outMu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- f:
	default:
		s.log.Warn("elevenlabs_output_full")
	}
}

func (s *ElevenLabsTTS) send(payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

var _ tts.StreamingTTS = (*ElevenLabsTTS)(nil)
