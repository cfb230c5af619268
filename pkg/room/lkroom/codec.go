package lkroom

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/knolabs/daela/pkg/frames"
	"github.com/knolabs/daela/pkg/room"
)

// chatPayload matches the LiveKit components chat message shape.
type chatPayload struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// framePayload is a still frame the web client snapshots from its camera
// track and publishes on the frame topic.
type framePayload struct {
	TrackSID string `json:"track_sid"`
	MIME     string `json:"mime"`
	Data     []byte `json:"data"`
}

var errUnknownTopic = errors.New("lkroom: unknown data topic")

func encodeChat(text string, now time.Time) ([]byte, error) {
	return json.Marshal(chatPayload{
		ID:        uuid.NewString(),
		Timestamp: now.UnixMilli(),
		Message:   text,
	})
}

// decodePacket maps one inbound data packet to a room event. Media topics
// are only read when DataMedia is set; otherwise media arrives on tracks.
func decodePacket(cfg Config, roomName, topic, sender string, payload []byte) (room.Event, error) {
	if !cfg.DataMedia && topic != cfg.ChatTopic {
		return nil, errUnknownTopic
	}
	switch topic {
	case cfg.ChatTopic:
		var msg chatPayload
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("decode chat: %w", err)
		}
		return room.ChatMessage{Sender: sender, Text: msg.Message}, nil
	case cfg.FrameTopic:
		var fp framePayload
		if err := json.Unmarshal(payload, &fp); err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
		if len(fp.Data) == 0 {
			return nil, errors.New("decode frame: empty image")
		}
		mime := fp.MIME
		if mime == "" {
			mime = "image/jpeg"
		}
		meta := map[string]string{
			frames.MetaTrackID:     fp.TrackSID,
			frames.MetaParticipant: sender,
			frames.MetaSource:      "livekit",
		}
		return room.VideoFrame{
			Participant: sender,
			Frame:       frames.NewImageFrame(roomName, time.Now().UnixNano(), fp.Data, mime, "", meta),
		}, nil
	case cfg.AudioInTopic:
		meta := map[string]string{
			frames.MetaParticipant: sender,
			frames.MetaSource:      "livekit",
			frames.MetaEncoding:    "pcm16",
		}
		pcm := append([]byte(nil), payload...)
		return room.Audio{
			Participant: sender,
			Frame:       frames.NewAudioFrame(roomName, time.Now().UnixNano(), pcm, cfg.SampleRate, 1, meta),
		}, nil
	default:
		return nil, errUnknownTopic
	}
}

// chunk splits b into pieces no larger than size.
func chunk(b []byte, size int) [][]byte {
	if size <= 0 || len(b) <= size {
		return [][]byte{b}
	}
	out := make([][]byte, 0, len(b)/size+1)
	for len(b) > size {
		out = append(out, b[:size])
		b = b[size:]
	}
	if len(b) > 0 {
		out = append(out, b)
	}
	return out
}
