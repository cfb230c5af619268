package deepgram

import (
	"context"
	"testing"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"

	"github.com/knolabs/daela/pkg/errorsx"
	"github.com/knolabs/daela/pkg/frames"
)

func message(text string, final bool) *msginterfaces.MessageResponse {
	mr := &msginterfaces.MessageResponse{IsFinal: final}
	mr.Channel.Alternatives = []msginterfaces.Alternative{{Transcript: text}}
	return mr
}

func TestHandleTranscriptEmitsTextFrames(t *testing.T) {
	s := New(Config{RoomName: "room-1", TraceID: "tr-1"}, nil)
	s.handleTranscript(message("", true))
	s.handleTranscript(message("my tooth", false))
	s.handleTranscript(message("my tooth hurts", true))

	interim := (<-s.Results()).(frames.TextFrame)
	if interim.IsFinal() || interim.Text() != "my tooth" {
		t.Fatalf("unexpected interim frame %q final=%v", interim.Text(), interim.IsFinal())
	}
	final := (<-s.Results()).(frames.TextFrame)
	if !final.IsFinal() || final.Text() != "my tooth hurts" {
		t.Fatalf("unexpected final frame %q", final.Text())
	}
	if final.Meta()[frames.MetaTraceID] != "tr-1" {
		t.Fatalf("expected trace id meta")
	}
}

func TestCloseIsIdempotentAndDropsLateResults(t *testing.T) {
	s := New(Config{}, nil)
	_ = s.Close()
	_ = s.Close()
	s.handleTranscript(message("late", true))
	if _, ok := <-s.Results(); ok {
		t.Fatalf("expected closed results")
	}
}

func TestStartRequiresAPIKey(t *testing.T) {
	s := New(Config{}, nil)
	err := s.Start(context.Background())
	if !errorsx.HasReason(err, errorsx.ReasonSTTConnect) {
		t.Fatalf("expected stt_connect reason, got %v", err)
	}
	if err := s.SendAudio(frames.NewAudioFrame("r", 0, []byte{0}, 16000, 1, nil)); !errorsx.HasReason(err, errorsx.ReasonSTTSend) {
		t.Fatalf("expected stt_send reason, got %v", err)
	}
}
