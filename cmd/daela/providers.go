package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knolabs/daela/pkg/adapters/stt"
	"github.com/knolabs/daela/pkg/adapters/tts"
	"github.com/knolabs/daela/pkg/agent"
	"github.com/knolabs/daela/pkg/config"
	"github.com/knolabs/daela/pkg/configutil"
	twiliohandoff "github.com/knolabs/daela/pkg/handoff/twilio"
	"github.com/knolabs/daela/pkg/llm"
	"github.com/knolabs/daela/pkg/metrics"
	"github.com/knolabs/daela/pkg/providers/deepgram"
	"github.com/knolabs/daela/pkg/providers/elevenlabs"
	"github.com/knolabs/daela/pkg/providers/mock"
	"github.com/knolabs/daela/pkg/providers/openai"
	"github.com/knolabs/daela/pkg/resilience"
	"github.com/knolabs/daela/pkg/room"
	"github.com/knolabs/daela/pkg/room/lkroom"
)

type openAISettings struct {
	APIKey            string   `mapstructure:"api_key"`
	Model             string   `mapstructure:"model"`
	BaseURL           string   `mapstructure:"base_url"`
	Temperature       *float64 `mapstructure:"temperature"`
	Retries           *int     `mapstructure:"retries"`
	UseCircuitBreaker *bool    `mapstructure:"use_circuit_breaker"`
	CircuitThreshold  int      `mapstructure:"circuit_threshold"`
	CircuitCooldownMs int      `mapstructure:"circuit_cooldown_ms"`
}

type mockLLMSettings struct {
	ResponseText string `mapstructure:"response_text"`
}

func validateSettings(path string, settings map[string]any, schema configutil.Schema) error {
	if err := configutil.ValidateSettings(settings, schema); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// decode validates a vendor settings block and decodes it into out.
func decode(path string, settings map[string]any, schema configutil.Schema, out any) error {
	if err := validateSettings(path, settings, schema); err != nil {
		return err
	}
	if err := configutil.DecodeSettings(settings, out); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func registerProviders(reg *agent.ProviderRegistry, obs metrics.Observer, logger *slog.Logger) {
	reg.RegisterLLM("openai", func(cfg config.Config) (llm.LLMAdapter, error) {
		var s openAISettings
		if err := decode("vendors.llm.settings", cfg.Vendors.LLM.Settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model", "base_url", "temperature", "retries", "use_circuit_breaker", "circuit_threshold", "circuit_cooldown_ms"},
		}, &s); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(s.APIKey, "vendors.llm.settings.api_key"); err != nil {
			return nil, err
		}
		adapter := openai.NewAdapter(s.APIKey, s.Model)
		if s.BaseURL != "" {
			adapter.BaseURL = strings.TrimRight(s.BaseURL, "/")
		}
		adapter.Temperature = s.Temperature
		var out llm.LLMAdapter = adapter
		if retries := configutil.IntValue(s.Retries, 2); retries > 0 {
			out = llm.NewRetryAdapter(out, llm.RetryConfig{MaxAttempts: retries + 1, Jitter: 0.2})
		}
		if configutil.BoolValue(s.UseCircuitBreaker, true) {
			breaker := resilience.NewCircuitBreaker(s.CircuitThreshold, time.Duration(s.CircuitCooldownMs)*time.Millisecond)
			cb := llm.NewCircuitBreakerAdapter(out, breaker)
			cb.SetObserver(obs)
			out = cb
		}
		return out, nil
	})
	reg.RegisterLLM("mock", func(cfg config.Config) (llm.LLMAdapter, error) {
		var s mockLLMSettings
		if err := decode("vendors.llm.settings", cfg.Vendors.LLM.Settings, configutil.Schema{
			Optional: []string{"response_text", "model"},
		}, &s); err != nil {
			return nil, err
		}
		return mock.NewLLMAdapter(mock.LLMConfig{ResponseText: s.ResponseText}), nil
	})

	reg.RegisterSTT("deepgram", func(cfg config.Config, roomName, traceID string) (stt.StreamingSTT, error) {
		var s deepgram.Config
		if err := decode("vendors.stt.settings", cfg.Vendors.STT.Settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model", "language", "encoding", "interim", "utterance_end_ms", "sample_rate"},
		}, &s); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(s.APIKey, "vendors.stt.settings.api_key"); err != nil {
			return nil, err
		}
		if s.Language == "" {
			s.Language = "en-GB"
		}
		s.RoomName = roomName
		s.TraceID = traceID
		return deepgram.New(s, logger), nil
	})
	reg.RegisterSTT("mock", func(cfg config.Config, roomName, traceID string) (stt.StreamingSTT, error) {
		var s mock.STTConfig
		if err := configutil.DecodeSettings(cfg.Vendors.STT.Settings, &s); err != nil {
			return nil, err
		}
		s.RoomName = roomName
		s.TraceID = traceID
		return mock.NewSTT(s), nil
	})

	reg.RegisterTTS("openai", func(cfg config.Config, roomName string) (tts.StreamingTTS, error) {
		var s openai.TTSConfig
		if err := decode("vendors.tts.settings", cfg.Vendors.TTS.Settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model", "voice", "base_url"},
		}, &s); err != nil {
			return nil, err
		}
		s.RoomName = roomName
		return openai.NewTTS(s, nil, logger), nil
	})
	reg.RegisterTTS("elevenlabs", func(cfg config.Config, roomName string) (tts.StreamingTTS, error) {
		var s elevenlabs.Config
		if err := decode("vendors.tts.settings", cfg.Vendors.TTS.Settings, configutil.Schema{
			Required: []string{"api_key", "voice_id"},
			Optional: []string{"model_id", "output_format", "sample_rate", "base_url"},
		}, &s); err != nil {
			return nil, err
		}
		s.RoomName = roomName
		return elevenlabs.New(s, logger), nil
	})
	reg.RegisterTTS("mock", func(cfg config.Config, roomName string) (tts.StreamingTTS, error) {
		var s mock.TTSConfig
		if err := configutil.DecodeSettings(cfg.Vendors.TTS.Settings, &s); err != nil {
			return nil, err
		}
		s.RoomName = roomName
		return mock.NewTTS(s), nil
	})

	reg.RegisterRoom("livekit", func(cfg config.Config) (agent.Connector, error) {
		lk, err := livekitConfig(cfg)
		if err != nil {
			return nil, err
		}
		return lkroom.NewConnector(lk, logger), nil
	})

	reg.RegisterDialer("twilio", func(cfg config.Config) (room.Dialer, error) {
		var s twiliohandoff.Config
		if err := decode("handoff.settings", cfg.Handoff.Settings, configutil.Schema{
			Required: []string{"account_sid", "auth_token", "caller_id", "sip_domain"},
			Optional: []string{"sip_transport"},
		}, &s); err != nil {
			return nil, err
		}
		return twiliohandoff.NewDialer(s, logger), nil
	})
	reg.RegisterDialer("livekit_sip", func(cfg config.Config) (room.Dialer, error) {
		lk, err := livekitConfig(cfg)
		if err != nil {
			return nil, err
		}
		if err := configutil.RequireString(lk.SIPTrunkID, "room.settings.sip_trunk_id"); err != nil {
			return nil, err
		}
		return lkroom.NewSIPDialer(lk, logger), nil
	})
}

func livekitConfig(cfg config.Config) (lkroom.Config, error) {
	var lk lkroom.Config
	if err := decode("room.settings", cfg.Room.Settings, configutil.Schema{
		Required: []string{"url", "api_key", "api_secret"},
		Optional: []string{"identity", "name", "sip_trunk_id", "chat_topic", "frame_topic", "audio_in_topic", "audio_out_topic", "sample_rate", "data_media"},
	}, &lk); err != nil {
		return lkroom.Config{}, err
	}
	lk = lk.WithDefaults()
	if err := lk.Validate(); err != nil {
		return lkroom.Config{}, err
	}
	return lk, nil
}
