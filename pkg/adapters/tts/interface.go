package tts

import (
	"context"

	"github.com/knolabs/daela/pkg/frames"
)

// StreamingTTS defines the contract for any TTS vendor implementation.
type StreamingTTS interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start initializes the TTS connection.
	Start(ctx context.Context) error
	// Close shuts down the TTS connection.
	Close() error
	// SendText sends text to be synthesized.
	SendText(text string) error
	// Flush stops current synthesis and clears buffers.
	Flush()
	// Results returns a channel of audio frames.
	Results() <-chan frames.Frame
}

// Config contains vendor-agnostic TTS configuration for one room.
type Config struct {
	RoomName   string
	SampleRate int
	Channels   int
}
