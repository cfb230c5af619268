// Package room is the boundary to the real-time session provider.
package room

import (
	"context"
	"strings"

	"github.com/knolabs/daela/pkg/frames"
)

// Event is one typed inbound room event. Ordering holds within a room's
// event stream only.
type Event interface {
	isRoomEvent()
}

// ChatMessage is a text message published on the room chat.
type ChatMessage struct {
	Sender string
	Text   string
}

// Transcript is speech-derived text from a participant.
type Transcript struct {
	Speaker string
	Text    string
	Final   bool
}

// VideoFrame is a still frame from a participant's video track.
type VideoFrame struct {
	Participant string
	Frame       frames.ImageFrame
}

// Audio is a chunk of a participant's microphone audio.
type Audio struct {
	Participant string
	Frame       frames.AudioFrame
}

type ParticipantJoined struct {
	Identity string
	Name     string
}

type ParticipantLeft struct {
	Identity string
}

func (ChatMessage) isRoomEvent()       {}
func (Transcript) isRoomEvent()        {}
func (VideoFrame) isRoomEvent()        {}
func (Audio) isRoomEvent()             {}
func (ParticipantJoined) isRoomEvent() {}
func (ParticipantLeft) isRoomEvent()   {}

// Room is one joined session. Events is closed when the room disconnects.
type Room interface {
	Name() string
	Events() <-chan Event
	// Say publishes an agent reply to the room.
	Say(ctx context.Context, text string) error
	Close() error
}

// AudioPublisher is implemented by rooms that can play synthesized speech.
type AudioPublisher interface {
	PublishAudio(ctx context.Context, frame frames.AudioFrame) error
}

// DialRequest places a phone participant into a room.
type DialRequest struct {
	RoomName            string
	PhoneNumber         string
	ParticipantIdentity string
	ParticipantName     string
}

// Dialer places an outbound call leg into a room and returns the
// provider's id for it.
type Dialer interface {
	Dial(ctx context.Context, req DialRequest) (string, error)
}

const (
	DefaultIdentityPrefix = "sip_"
	DefaultHumanAgentName = "Human Agent"
)

// PhoneIdentity builds the participant identity for a dialed phone leg.
func PhoneIdentity(prefix, phone string) string {
	if prefix == "" {
		prefix = DefaultIdentityPrefix
	}
	return prefix + strings.TrimSpace(phone)
}
