package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/knolabs/daela/pkg/adapters/stt"
	"github.com/knolabs/daela/pkg/adapters/tts"
	"github.com/knolabs/daela/pkg/config"
	"github.com/knolabs/daela/pkg/llm"
	"github.com/knolabs/daela/pkg/room"
)

// Connector joins a room by name.
type Connector interface {
	Join(ctx context.Context, roomName string) (room.Room, error)
}

type STTFactory func(cfg config.Config, roomName, traceID string) (stt.StreamingSTT, error)
type TTSFactory func(cfg config.Config, roomName string) (tts.StreamingTTS, error)
type LLMFactory func(cfg config.Config) (llm.LLMAdapter, error)
type RoomFactory func(cfg config.Config) (Connector, error)
type DialerFactory func(cfg config.Config) (room.Dialer, error)

// ProviderRegistry maps provider names from the config to constructors.
// Names are matched case-insensitively.
type ProviderRegistry struct {
	stt     map[string]STTFactory
	tts     map[string]TTSFactory
	llm     map[string]LLMFactory
	rooms   map[string]RoomFactory
	dialers map[string]DialerFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt:     make(map[string]STTFactory),
		tts:     make(map[string]TTSFactory),
		llm:     make(map[string]LLMFactory),
		rooms:   make(map[string]RoomFactory),
		dialers: make(map[string]DialerFactory),
	}
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *ProviderRegistry) RegisterSTT(name string, f STTFactory) { r.stt[providerKey(name)] = f }

func (r *ProviderRegistry) RegisterTTS(name string, f TTSFactory) { r.tts[providerKey(name)] = f }

func (r *ProviderRegistry) RegisterLLM(name string, f LLMFactory) { r.llm[providerKey(name)] = f }

func (r *ProviderRegistry) RegisterRoom(name string, f RoomFactory) { r.rooms[providerKey(name)] = f }

func (r *ProviderRegistry) RegisterDialer(name string, f DialerFactory) {
	r.dialers[providerKey(name)] = f
}

// BuildSTT returns nil when speech recognition is disabled.
func (r *ProviderRegistry) BuildSTT(cfg config.Config, roomName, traceID string) (stt.StreamingSTT, error) {
	if !cfg.Vendors.STT.Enabled() {
		return nil, nil
	}
	fn := r.stt[providerKey(cfg.Vendors.STT.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("stt provider not registered: %s", cfg.Vendors.STT.Provider)
	}
	return fn(cfg, roomName, traceID)
}

// BuildTTS returns nil when speech synthesis is disabled.
func (r *ProviderRegistry) BuildTTS(cfg config.Config, roomName string) (tts.StreamingTTS, error) {
	if !cfg.Vendors.TTS.Enabled() {
		return nil, nil
	}
	fn := r.tts[providerKey(cfg.Vendors.TTS.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("tts provider not registered: %s", cfg.Vendors.TTS.Provider)
	}
	return fn(cfg, roomName)
}

func (r *ProviderRegistry) BuildLLM(cfg config.Config) (llm.LLMAdapter, error) {
	fn := r.llm[providerKey(cfg.Vendors.LLM.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", cfg.Vendors.LLM.Provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildConnector(cfg config.Config) (Connector, error) {
	fn := r.rooms[providerKey(cfg.Room.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("room provider not registered: %s", cfg.Room.Provider)
	}
	return fn(cfg)
}

// BuildDialer returns nil when no handoff provider is configured.
func (r *ProviderRegistry) BuildDialer(cfg config.Config) (room.Dialer, error) {
	if !cfg.Handoff.Vendor().Enabled() {
		return nil, nil
	}
	fn := r.dialers[providerKey(cfg.Handoff.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("handoff provider not registered: %s", cfg.Handoff.Provider)
	}
	return fn(cfg)
}
