package lkroom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"github.com/knolabs/daela/pkg/errorsx"
	"github.com/knolabs/daela/pkg/frames"
	"github.com/knolabs/daela/pkg/room"
)

type sentPacket struct {
	topic   string
	payload []byte
}

func testRoom(t *testing.T) (*Room, *[]sentPacket) {
	t.Helper()
	return testRoomWith(t, Config{DataMedia: true})
}

func testRoomWith(t *testing.T, cfg Config) (*Room, *[]sentPacket) {
	t.Helper()
	var sent []sentPacket
	r := newRoom(cfg.WithDefaults(), "room-1", nil)
	r.send = func(topic string, payload []byte) error {
		sent = append(sent, sentPacket{topic: topic, payload: append([]byte(nil), payload...)})
		return nil
	}
	return r, &sent
}

func nextEvent(t *testing.T, r *Room) room.Event {
	t.Helper()
	select {
	case ev := <-r.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatalf("expected room event")
	}
	return nil
}

func TestSayPublishesChatPayload(t *testing.T) {
	r, sent := testRoom(t)
	if err := r.Say(context.Background(), "Hello!"); err != nil {
		t.Fatalf("say: %v", err)
	}
	if len(*sent) != 1 || (*sent)[0].topic != "lk-chat-topic" {
		t.Fatalf("unexpected packets %+v", *sent)
	}
	var msg chatPayload
	if err := json.Unmarshal((*sent)[0].payload, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Message != "Hello!" || msg.ID == "" || msg.Timestamp == 0 {
		t.Fatalf("unexpected chat payload %+v", msg)
	}
}

func TestInboundChatAndFrame(t *testing.T) {
	r, _ := testRoom(t)
	chat, _ := json.Marshal(chatPayload{ID: "1", Timestamp: 1, Message: "my tooth hurts"})
	r.onData(&lksdk.UserDataPacket{Topic: "lk-chat-topic", Payload: chat}, lksdk.DataReceiveParams{SenderIdentity: "patient"})

	ev := nextEvent(t, r)
	msg, ok := ev.(room.ChatMessage)
	if !ok || msg.Text != "my tooth hurts" || msg.Sender != "patient" {
		t.Fatalf("unexpected event %#v", ev)
	}

	img, _ := json.Marshal(framePayload{TrackSID: "TR_cam", Data: []byte{1, 2, 3}})
	r.onData(&lksdk.UserDataPacket{Topic: "lk-video-frame", Payload: img}, lksdk.DataReceiveParams{SenderIdentity: "patient"})
	ev = nextEvent(t, r)
	vf, ok := ev.(room.VideoFrame)
	if !ok {
		t.Fatalf("expected video frame, got %#v", ev)
	}
	if vf.Frame.TrackID() != "TR_cam" || vf.Frame.MIME() != "image/jpeg" || !bytes.Equal(vf.Frame.Data(), []byte{1, 2, 3}) {
		t.Fatalf("unexpected frame track=%s mime=%s", vf.Frame.TrackID(), vf.Frame.MIME())
	}
}

func TestInboundAudioAndUnknownTopic(t *testing.T) {
	r, _ := testRoom(t)
	r.onData(&lksdk.UserDataPacket{Topic: "something-else", Payload: []byte("x")}, lksdk.DataReceiveParams{})
	r.onData(&lksdk.UserDataPacket{Topic: "lk-chat-topic", Payload: []byte("not json")}, lksdk.DataReceiveParams{})
	r.onData(&lksdk.UserDataPacket{Topic: "lk-user-audio", Payload: make([]byte, 640)}, lksdk.DataReceiveParams{SenderIdentity: "patient"})

	ev := nextEvent(t, r)
	audio, ok := ev.(room.Audio)
	if !ok {
		t.Fatalf("expected audio event first, got %#v", ev)
	}
	if audio.Frame.Rate() != 16000 || len(audio.Frame.RawPayload()) != 640 {
		t.Fatalf("unexpected audio frame rate=%d len=%d", audio.Frame.Rate(), len(audio.Frame.RawPayload()))
	}
	if audio.Frame.Meta()[frames.MetaParticipant] != "patient" {
		t.Fatalf("expected participant meta")
	}
}

func TestPublishAudioChunks(t *testing.T) {
	r, sent := testRoom(t)
	pcm := make([]byte, maxAudioPacket*2+10)
	frame := frames.NewAudioFrame("room-1", 0, pcm, 16000, 1, nil)
	if err := r.PublishAudio(context.Background(), frame); err != nil {
		t.Fatalf("publish audio: %v", err)
	}
	if len(*sent) != 3 {
		t.Fatalf("expected 3 packets, got %d", len(*sent))
	}
	if len((*sent)[2].payload) != 10 || (*sent)[0].topic != "lk-agent-audio" {
		t.Fatalf("unexpected chunking")
	}
}

func TestMediaTopicsIgnoredWithoutDataMedia(t *testing.T) {
	r, sent := testRoomWith(t, Config{})
	img, _ := json.Marshal(framePayload{TrackSID: "TR_cam", Data: []byte{1, 2, 3}})
	r.onData(&lksdk.UserDataPacket{Topic: "lk-video-frame", Payload: img}, lksdk.DataReceiveParams{SenderIdentity: "patient"})
	r.onData(&lksdk.UserDataPacket{Topic: "lk-user-audio", Payload: make([]byte, 640)}, lksdk.DataReceiveParams{SenderIdentity: "patient"})
	chat, _ := json.Marshal(chatPayload{ID: "1", Timestamp: 1, Message: "hello"})
	r.onData(&lksdk.UserDataPacket{Topic: "lk-chat-topic", Payload: chat}, lksdk.DataReceiveParams{SenderIdentity: "patient"})

	if ev := nextEvent(t, r); !isChat(ev) {
		t.Fatalf("expected only the chat message, got %#v", ev)
	}

	err := r.PublishAudio(context.Background(), frames.NewAudioFrame("room-1", 0, make([]byte, 640), 16000, 1, nil))
	if !errorsx.HasReason(err, errorsx.ReasonRoomPublish) {
		t.Fatalf("expected room_publish error without a voice track, got %v", err)
	}
	if len(*sent) != 0 {
		t.Fatalf("expected no data packets, got %d", len(*sent))
	}
}

func isChat(ev room.Event) bool {
	_, ok := ev.(room.ChatMessage)
	return ok
}

func TestCloseStopsEventsAndPublishing(t *testing.T) {
	r, _ := testRoom(t)
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := <-r.Events(); ok {
		t.Fatalf("expected closed event channel")
	}
	r.emit(room.ParticipantLeft{Identity: "x"})
	err := r.Say(context.Background(), "late")
	if !errorsx.HasReason(err, errorsx.ReasonRoomPublish) {
		t.Fatalf("expected room_publish error, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("expected missing credentials error")
	}
	if err := (Config{URL: "wss://x", APIKey: "k", APISecret: "s"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

type stubSIP struct {
	last *livekit.CreateSIPParticipantRequest
	err  error
}

func (s *stubSIP) CreateSIPParticipant(ctx context.Context, req *livekit.CreateSIPParticipantRequest) (*livekit.SIPParticipantInfo, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &livekit.SIPParticipantInfo{ParticipantId: "PA_1", ParticipantIdentity: req.ParticipantIdentity}, nil
}

func TestSIPDialerCreatesParticipant(t *testing.T) {
	stub := &stubSIP{}
	d := NewSIPDialer(Config{SIPTrunkID: "ST_1"}, nil)
	d.client = stub

	id, err := d.Dial(context.Background(), room.DialRequest{
		RoomName:            "room-1",
		PhoneNumber:         "+447700900123",
		ParticipantIdentity: "sip_+447700900123",
		ParticipantName:     "Human Agent",
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if id != "PA_1" {
		t.Fatalf("expected participant id, got %s", id)
	}
	if stub.last.SipTrunkId != "ST_1" || stub.last.SipCallTo != "+447700900123" || stub.last.RoomName != "room-1" {
		t.Fatalf("unexpected request %+v", stub.last)
	}
	if stub.last.ParticipantIdentity != "sip_+447700900123" || stub.last.ParticipantName != "Human Agent" {
		t.Fatalf("unexpected identity %+v", stub.last)
	}
}

func TestSIPDialerErrors(t *testing.T) {
	d := NewSIPDialer(Config{}, nil)
	if _, err := d.Dial(context.Background(), room.DialRequest{RoomName: "r", PhoneNumber: "+1"}); err == nil {
		t.Fatalf("expected trunk id error")
	}
	stub := &stubSIP{err: errors.New("busy")}
	d.trunkID = "ST_1"
	d.client = stub
	_, err := d.Dial(context.Background(), room.DialRequest{RoomName: "r", PhoneNumber: "+1"})
	if !errorsx.HasReason(err, errorsx.ReasonEscalationDial) {
		t.Fatalf("expected escalation_dial reason, got %v", err)
	}
}
