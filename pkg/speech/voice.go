// Package speech adds a voice channel to a room: participant audio is
// transcribed into Transcript events and every reply is also synthesized
// and played back.
package speech

import (
	"context"
	"log/slog"
	"sync"

	"github.com/knolabs/daela/pkg/adapters/stt"
	"github.com/knolabs/daela/pkg/adapters/tts"
	"github.com/knolabs/daela/pkg/errorsx"
	"github.com/knolabs/daela/pkg/frames"
	"github.com/knolabs/daela/pkg/logging"
	"github.com/knolabs/daela/pkg/room"
)

// Voice decorates a room.Room. Either engine may be nil.
type Voice struct {
	inner  room.Room
	stt    stt.StreamingSTT
	tts    tts.StreamingTTS
	events chan room.Event
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	log    *slog.Logger
	// speaker is the last participant whose audio went to STT.
	speaker string
}

func NewVoice(inner room.Room, s stt.StreamingSTT, t tts.StreamingTTS, logger *slog.Logger) *Voice {
	return &Voice{
		inner:  inner,
		stt:    s,
		tts:    t,
		events: make(chan room.Event, 256),
		log:    logging.NewComponentLogger(logger, "speech").With("room", inner.Name()),
	}
}

// Start connects the engines and begins relaying. Events is closed after
// the inner room's events end and both engines have drained.
func (v *Voice) Start(ctx context.Context) error {
	if v.stt != nil {
		if err := v.stt.Start(ctx); err != nil {
			return errorsx.Wrap(err, errorsx.ReasonSTTConnect)
		}
	}
	if v.tts != nil {
		if err := v.tts.Start(ctx); err != nil {
			if v.stt != nil {
				_ = v.stt.Close()
			}
			return errorsx.Wrap(err, errorsx.ReasonTTSConnect)
		}
	}

	var transcripts sync.WaitGroup
	if v.stt != nil {
		transcripts.Add(1)
		go func() {
			defer transcripts.Done()
			v.relayTranscripts()
		}()
	}
	if v.tts != nil {
		v.wg.Add(1)
		go func() {
			defer v.wg.Done()
			v.relayAudio(ctx)
		}()
	}
	go func() {
		v.relayRoom()
		if v.stt != nil {
			_ = v.stt.Close()
		}
		transcripts.Wait()
		if v.tts != nil {
			_ = v.tts.Close()
		}
		v.wg.Wait()
		v.shutdown()
	}()
	v.log.Info("voice_started", "stt", engineName(v.stt), "tts", engineName(v.tts))
	return nil
}

func engineName(e interface{ Name() string }) string {
	if e == nil {
		return "none"
	}
	return e.Name()
}

func (v *Voice) relayRoom() {
	for ev := range v.inner.Events() {
		audio, ok := ev.(room.Audio)
		if !ok {
			v.emit(ev)
			continue
		}
		if v.stt == nil {
			continue
		}
		v.mu.Lock()
		v.speaker = audio.Participant
		v.mu.Unlock()
		if err := v.stt.SendAudio(audio.Frame); err != nil {
			v.log.Warn("stt_send_failed", "error", err, "reason", errorsx.Reason(err))
		}
	}
}

func (v *Voice) relayTranscripts() {
	for f := range v.stt.Results() {
		text, ok := f.(frames.TextFrame)
		if !ok || text.Text() == "" {
			continue
		}
		speaker := text.Meta()[frames.MetaParticipant]
		if speaker == "" {
			v.mu.Lock()
			speaker = v.speaker
			v.mu.Unlock()
		}
		v.emit(room.Transcript{Speaker: speaker, Text: text.Text(), Final: text.IsFinal()})
	}
}

func (v *Voice) relayAudio(ctx context.Context) {
	pub, _ := v.inner.(room.AudioPublisher)
	for f := range v.tts.Results() {
		audio, ok := f.(frames.AudioFrame)
		if !ok || pub == nil {
			continue
		}
		if err := pub.PublishAudio(ctx, audio); err != nil {
			v.log.Warn("audio_publish_failed", "error", err)
		}
	}
}

func (v *Voice) emit(ev room.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	select {
	case v.events <- ev:
	default:
		v.log.Warn("voice_event_dropped")
	}
}

func (v *Voice) shutdown() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed {
		v.closed = true
		close(v.events)
	}
}

func (v *Voice) Name() string { return v.inner.Name() }

func (v *Voice) Events() <-chan room.Event { return v.events }

// Say publishes the text reply and queues it for synthesis.
func (v *Voice) Say(ctx context.Context, text string) error {
	if err := v.inner.Say(ctx, text); err != nil {
		return err
	}
	if v.tts != nil {
		spoken := Speakable(text)
		if spoken == "" {
			return nil
		}
		if err := v.tts.SendText(spoken); err != nil {
			return errorsx.Wrap(err, errorsx.ReasonTTSSend)
		}
	}
	return nil
}

func (v *Voice) Close() error {
	return v.inner.Close()
}

var _ room.Room = (*Voice)(nil)
