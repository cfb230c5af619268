package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/knolabs/daela/pkg/adapters/stt"
	"github.com/knolabs/daela/pkg/errorsx"
	"github.com/knolabs/daela/pkg/frames"
	"github.com/knolabs/daela/pkg/logging"
)

type Config struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	Language       string `mapstructure:"language"`
	Encoding       string `mapstructure:"encoding"`
	Interim        bool   `mapstructure:"interim"`
	UtteranceEndMS int    `mapstructure:"utterance_end_ms"`
	SampleRate     int    `mapstructure:"sample_rate"`
	RoomName       string `mapstructure:"-"`
	TraceID        string `mapstructure:"-"`
}

// StreamingSTT transcribes one room's PCM audio over a Deepgram live
// websocket.
type StreamingSTT struct {
	cfg        Config
	dgClient   *client.WSCallback
	out        chan frames.Frame
	ctx        context.Context
	cancel     context.CancelFunc
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	mu         sync.Mutex
	closed     bool
	metaLogged bool
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *StreamingSTT {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "linear16"
	}
	return &StreamingSTT{
		cfg:    cfg,
		out:    make(chan frames.Frame, 256),
		logger: logging.NewComponentLogger(logger, "deepgram_stt").With("room", cfg.RoomName),
	}
}

func (s *StreamingSTT) Name() string { return "deepgram_streaming" }

func (s *StreamingSTT) Start(ctx context.Context) error {
	if s.cfg.APIKey == "" {
		return errorsx.Wrap(errors.New("deepgram api key required"), errorsx.ReasonSTTConnect)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.pipeReader, s.pipeWriter = io.Pipe()

	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          s.cfg.Model,
		Language:       s.cfg.Language,
		Encoding:       s.cfg.Encoding,
		SampleRate:     s.cfg.SampleRate,
		Channels:       1,
		InterimResults: s.cfg.Interim,
		SmartFormat:    true,
	}
	if s.cfg.UtteranceEndMS > 0 {
		transcriptOptions.UtteranceEndMs = fmt.Sprintf("%d", s.cfg.UtteranceEndMS)
	}

	s.logger.Info("deepgram_connecting", "model", s.cfg.Model, "sample_rate", s.cfg.SampleRate)
	dgClient, err := client.NewWSUsingCallback(s.ctx, s.cfg.APIKey, &interfaces.ClientOptions{EnableKeepAlive: true}, transcriptOptions, &callback{parent: s})
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("deepgram client: %w", err), errorsx.ReasonSTTConnect)
	}
	s.dgClient = dgClient
	if connected := s.dgClient.Connect(); !connected {
		return errorsx.Wrap(errors.New("deepgram connection failed"), errorsx.ReasonSTTConnect)
	}
	s.logger.Info("deepgram_connected")

	go func() {
		if err := s.dgClient.Stream(s.pipeReader); err != nil && s.ctx.Err() == nil {
			s.logger.Error("deepgram_stream_error", "error", err)
		}
	}()
	return nil
}

// Close stops the stream and closes Results.
func (s *StreamingSTT) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.out)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.pipeWriter != nil {
		_ = s.pipeWriter.Close()
	}
	if s.dgClient != nil {
		s.dgClient.Stop()
	}
	s.logger.Info("deepgram_closed")
	return nil
}

func (s *StreamingSTT) SendAudio(frame frames.AudioFrame) error {
	if s.pipeWriter == nil {
		return errorsx.Wrap(errors.New("not started"), errorsx.ReasonSTTSend)
	}
	if _, err := s.pipeWriter.Write(frame.RawPayload()); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonSTTSend)
	}
	return nil
}

func (s *StreamingSTT) Results() <-chan frames.Frame { return s.out }

func (s *StreamingSTT) emit(f frames.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- f:
	default:
		s.logger.Warn("deepgram_out_channel_full")
	}
}

// handleTranscript turns one Deepgram result into a text frame.
func (s *StreamingSTT) handleTranscript(mr *msginterfaces.MessageResponse) {
	if len(mr.Channel.Alternatives) == 0 {
		return
	}
	transcript := mr.Channel.Alternatives[0].Transcript
	if transcript == "" {
		return
	}
	isFinal := mr.IsFinal || mr.SpeechFinal
	meta := map[string]string{
		frames.MetaStreamID: s.cfg.RoomName,
		frames.MetaSource:   "stt",
		frames.MetaIsFinal:  "false",
	}
	if isFinal {
		meta[frames.MetaIsFinal] = "true"
	}
	if s.cfg.TraceID != "" {
		meta[frames.MetaTraceID] = s.cfg.TraceID
	}
	s.emit(frames.NewTextFrame(s.cfg.RoomName, time.Now().UnixNano(), transcript, meta))
}

type callback struct {
	parent *StreamingSTT
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error { return nil }

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	c.parent.handleTranscript(mr)
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	if !c.parent.metaLogged {
		c.parent.metaLogged = true
		c.parent.logger.Info("deepgram_metadata_received", "request_id", md.RequestID)
	}
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error { return nil }

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error { return nil }

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	c.parent.logger.Info("deepgram_connection_closed")
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.logger.Error("deepgram_error", "error_code", er.ErrCode, "error_message", er.ErrMsg)
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("deepgram_unhandled_event", "data", string(byData))
	return nil
}

var _ stt.StreamingSTT = (*StreamingSTT)(nil)
