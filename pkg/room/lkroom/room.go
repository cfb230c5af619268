// Package lkroom joins LiveKit rooms as the agent participant. It reads
// the caller's camera and microphone tracks, speaks on its own microphone
// track and carries chat over the data channel. The older data-channel
// contract for camera stills and PCM audio is available behind DataMedia.
package lkroom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lksdk "github.com/livekit/server-sdk-go/v2"

	"github.com/knolabs/daela/pkg/errorsx"
	"github.com/knolabs/daela/pkg/frames"
	"github.com/knolabs/daela/pkg/logging"
	"github.com/knolabs/daela/pkg/room"
)

// maxAudioPacket keeps reliable data packets under the SFU size limit.
const maxAudioPacket = 12 * 1024

type Config struct {
	URL           string `mapstructure:"url"`
	APIKey        string `mapstructure:"api_key"`
	APISecret     string `mapstructure:"api_secret"`
	Identity      string `mapstructure:"identity"`
	Name          string `mapstructure:"name"`
	SIPTrunkID    string `mapstructure:"sip_trunk_id"`
	ChatTopic     string `mapstructure:"chat_topic"`
	FrameTopic    string `mapstructure:"frame_topic"`
	AudioInTopic  string `mapstructure:"audio_in_topic"`
	AudioOutTopic string `mapstructure:"audio_out_topic"`
	SampleRate    int    `mapstructure:"sample_rate"`
	// DataMedia also carries stills and PCM on data topics for clients
	// that cannot publish tracks.
	DataMedia bool `mapstructure:"data_media"`
}

func (c Config) WithDefaults() Config {
	if c.Identity == "" {
		c.Identity = "daela-agent"
	}
	if c.Name == "" {
		c.Name = "Daela"
	}
	if c.ChatTopic == "" {
		c.ChatTopic = "lk-chat-topic"
	}
	if c.FrameTopic == "" {
		c.FrameTopic = "lk-video-frame"
	}
	if c.AudioInTopic == "" {
		c.AudioInTopic = "lk-user-audio"
	}
	if c.AudioOutTopic == "" {
		c.AudioOutTopic = "lk-agent-audio"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	return c
}

func (c Config) Validate() error {
	var missing []string
	if c.URL == "" {
		missing = append(missing, "url")
	}
	if c.APIKey == "" {
		missing = append(missing, "api_key")
	}
	if c.APISecret == "" {
		missing = append(missing, "api_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("livekit: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Room is a joined LiveKit room.
type Room struct {
	cfg    Config
	name   string
	lk     *lksdk.Room
	send   func(topic string, payload []byte) error
	events chan room.Event
	mu     sync.Mutex
	closed bool
	log    *slog.Logger

	// Guarded by mu.
	videoSID   string
	audioSID   string
	writeVoice func(data []byte, d time.Duration) error

	// Guarded by voiceMu.
	voiceMu     sync.Mutex
	encoder     pcmEncoder
	encoderRate int
	voiceNext   time.Time

	newVideoDecoder func() imageDecoder
	newAudioDecoder func(rate int) (pcmDecoder, error)
	newAudioEncoder func(rate int) (pcmEncoder, error)
}

func newRoom(cfg Config, name string, logger *slog.Logger) *Room {
	return &Room{
		cfg:             cfg,
		name:            name,
		events:          make(chan room.Event, 256),
		log:             logging.NewComponentLogger(logger, "livekit").With("room", name),
		newVideoDecoder: newVP8Decoder,
		newAudioDecoder: newOpusDecoder,
		newAudioEncoder: newOpusEncoder,
	}
}

var connectToRoom = func(url string, info lksdk.ConnectInfo, cb *lksdk.RoomCallback) (*lksdk.Room, error) {
	return lksdk.ConnectToRoom(url, info, cb)
}

// joinRoom bounds the SDK join by ctx. A join that completes after ctx is
// done is disconnected.
func joinRoom(ctx context.Context, url string, info lksdk.ConnectInfo, cb *lksdk.RoomCallback) (*lksdk.Room, error) {
	type joined struct {
		lk  *lksdk.Room
		err error
	}
	done := make(chan joined, 1)
	go func() {
		lk, err := connectToRoom(url, info, cb)
		done <- joined{lk: lk, err: err}
	}()
	select {
	case res := <-done:
		return res.lk, res.err
	case <-ctx.Done():
		go func() {
			if res := <-done; res.lk != nil {
				res.lk.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
}

// Connect joins roomName as the agent identity.
func Connect(ctx context.Context, cfg Config, roomName string, logger *slog.Logger) (*Room, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if roomName == "" {
		return nil, errors.New("livekit: room name required")
	}
	r := newRoom(cfg, roomName, logger)
	cb := &lksdk.RoomCallback{
		OnParticipantConnected: func(p *lksdk.RemoteParticipant) {
			r.emit(room.ParticipantJoined{Identity: p.Identity(), Name: p.Name()})
		},
		OnParticipantDisconnected: func(p *lksdk.RemoteParticipant) {
			r.emit(room.ParticipantLeft{Identity: p.Identity()})
		},
		OnDisconnected: func() {
			r.log.Info("room_disconnected")
			r.shutdown()
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnDataPacket:      r.onData,
			OnTrackSubscribed: r.onTrackSubscribed,
		},
	}
	lk, err := joinRoom(ctx, cfg.URL, lksdk.ConnectInfo{
		APIKey:              cfg.APIKey,
		APISecret:           cfg.APISecret,
		RoomName:            roomName,
		ParticipantIdentity: cfg.Identity,
		ParticipantName:     cfg.Name,
	}, cb)
	if err != nil {
		return nil, errorsx.Wrapf(err, errorsx.ReasonRoomConnect, "connect room %s", roomName)
	}
	r.lk = lk
	r.send = func(topic string, payload []byte) error {
		return lk.LocalParticipant.PublishDataPacket(
			lksdk.UserData(payload),
			lksdk.WithDataPublishTopic(topic),
			lksdk.WithDataPublishReliable(true),
		)
	}
	if err := r.publishVoice(lk); err != nil {
		r.log.Warn("voice_track_unavailable", "error", err)
	}
	for _, p := range lk.GetRemoteParticipants() {
		r.emit(room.ParticipantJoined{Identity: p.Identity(), Name: p.Name()})
	}
	r.log.Info("room_joined", "identity", cfg.Identity)
	return r, nil
}

func (r *Room) Name() string { return r.name }

func (r *Room) Events() <-chan room.Event { return r.events }

// Say publishes text on the chat topic.
func (r *Room) Say(ctx context.Context, text string) error {
	payload, err := encodeChat(text, time.Now())
	if err != nil {
		return err
	}
	return r.publish(r.cfg.ChatTopic, payload)
}

// PublishAudio speaks PCM16 on the agent's voice track, and on the agent
// audio topic when DataMedia is set.
func (r *Room) PublishAudio(ctx context.Context, frame frames.AudioFrame) error {
	r.mu.Lock()
	closed, write := r.closed, r.writeVoice
	r.mu.Unlock()
	if closed {
		return errorsx.New(errorsx.ReasonRoomPublish, "room closed")
	}
	if write == nil && !r.cfg.DataMedia {
		return errorsx.New(errorsx.ReasonRoomPublish, "no voice track")
	}
	if write != nil {
		if err := r.speak(ctx, write, frame); err != nil {
			return err
		}
	}
	if !r.cfg.DataMedia {
		return nil
	}
	for _, part := range chunk(frame.RawPayload(), maxAudioPacket) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.publish(r.cfg.AudioOutTopic, part); err != nil {
			return err
		}
	}
	return nil
}

func (r *Room) publish(topic string, payload []byte) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed || r.send == nil {
		return errorsx.New(errorsx.ReasonRoomPublish, "room closed")
	}
	if err := r.send(topic, payload); err != nil {
		return errorsx.Wrapf(err, errorsx.ReasonRoomPublish, "publish %s", topic)
	}
	return nil
}

func (r *Room) onData(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
	pkt, ok := data.(*lksdk.UserDataPacket)
	if !ok {
		return
	}
	ev, err := decodePacket(r.cfg, r.name, pkt.Topic, params.SenderIdentity, pkt.Payload)
	if errors.Is(err, errUnknownTopic) {
		return
	}
	if err != nil {
		r.log.Warn("data_packet_dropped", "topic", pkt.Topic, "sender", params.SenderIdentity, "error", err)
		return
	}
	r.emit(ev)
}

func (r *Room) emit(ev room.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.log.Warn("room_event_dropped", "type", fmt.Sprintf("%T", ev))
	}
}

func (r *Room) shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.events)
}

// Close leaves the room; Events is closed.
func (r *Room) Close() error {
	if r.lk != nil {
		r.lk.Disconnect()
	}
	r.shutdown()
	return nil
}

// Connector joins rooms with a fixed configuration.
type Connector struct {
	cfg Config
	log *slog.Logger
}

func NewConnector(cfg Config, logger *slog.Logger) *Connector {
	return &Connector{cfg: cfg.WithDefaults(), log: logger}
}

func (c *Connector) Join(ctx context.Context, roomName string) (room.Room, error) {
	return Connect(ctx, c.cfg, roomName, c.log)
}

var (
	_ room.Room           = (*Room)(nil)
	_ room.AudioPublisher = (*Room)(nil)
)
