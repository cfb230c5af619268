package lkroom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"

	"github.com/knolabs/daela/pkg/errorsx"
	"github.com/knolabs/daela/pkg/frames"
	"github.com/knolabs/daela/pkg/room"
)

const (
	videoClockRate = 90000
	// maxVideoLate is how many packets the sample builder holds back
	// waiting for reordering.
	maxVideoLate = 128
	voiceFrame   = 20 * time.Millisecond
	voiceTrack   = "daela-voice"
)

// packetReader yields RTP packets until the track ends.
type packetReader func() (*rtp.Packet, error)

func (r *Room) onTrackSubscribed(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	read := func() (*rtp.Packet, error) {
		pkt, _, err := track.ReadRTP()
		return pkt, err
	}
	r.attachTrack(track.Kind(), track.Codec().MimeType, pub.SID(), rp.Identity(), read)
}

// attachTrack locks the session onto the first remote video track and the
// first remote audio track. Later tracks of the same kind are ignored.
func (r *Room) attachTrack(kind webrtc.RTPCodecType, mime, sid, participant string, read packetReader) {
	if participant == r.cfg.Identity {
		return
	}
	log := r.log.With("track_sid", sid, "participant", participant, "mime", mime)
	switch kind {
	case webrtc.RTPCodecTypeVideo:
		if !r.claimTrack(&r.videoSID, sid) {
			log.Debug("video_track_ignored")
			return
		}
		if !strings.EqualFold(mime, webrtc.MimeTypeVP8) {
			log.Warn("video_codec_unsupported")
			return
		}
		log.Info("video_track_attached")
		go r.readVideo(sid, participant, read)
	case webrtc.RTPCodecTypeAudio:
		if !r.claimTrack(&r.audioSID, sid) {
			log.Debug("audio_track_ignored")
			return
		}
		if !strings.EqualFold(mime, webrtc.MimeTypeOpus) {
			log.Warn("audio_codec_unsupported")
			return
		}
		log.Info("audio_track_attached")
		go r.readAudio(sid, participant, read)
	}
}

func (r *Room) claimTrack(slot *string, sid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if *slot != "" {
		return false
	}
	*slot = sid
	return true
}

// readVideo reassembles VP8 frames and emits every decodable keyframe as
// a JPEG still.
func (r *Room) readVideo(sid, participant string, read packetReader) {
	sb := samplebuilder.New(maxVideoLate, &codecs.VP8Packet{}, videoClockRate)
	dec := r.newVideoDecoder()
	meta := map[string]string{
		frames.MetaTrackID:     sid,
		frames.MetaParticipant: participant,
		frames.MetaSource:      "livekit",
	}
	for {
		pkt, err := read()
		if err != nil {
			r.trackEnded("video", sid, err)
			return
		}
		sb.Push(pkt)
		for s := sb.Pop(); s != nil; s = sb.Pop() {
			img, err := dec.Decode(s.Data)
			if errors.Is(err, errNotKeyframe) {
				continue
			}
			if err != nil {
				r.log.Debug("video_decode_failed", "track_sid", sid, "error", err)
				continue
			}
			still, err := encodeJPEG(img)
			if err != nil {
				r.log.Warn("video_encode_failed", "track_sid", sid, "error", err)
				continue
			}
			r.emit(room.VideoFrame{
				Participant: participant,
				Frame:       frames.NewImageFrame(r.name, time.Now().UnixNano(), still, "image/jpeg", "", meta),
			})
		}
	}
}

// readAudio decodes Opus packets to PCM16 at the configured rate.
func (r *Room) readAudio(sid, participant string, read packetReader) {
	dec, err := r.newAudioDecoder(r.cfg.SampleRate)
	if err != nil {
		r.log.Error("audio_decoder_failed", "track_sid", sid, "error", err)
		return
	}
	meta := map[string]string{
		frames.MetaTrackID:     sid,
		frames.MetaParticipant: participant,
		frames.MetaSource:      "livekit",
		frames.MetaEncoding:    "pcm16",
	}
	for {
		pkt, err := read()
		if err != nil {
			r.trackEnded("audio", sid, err)
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		pcm, err := dec.Decode(pkt.Payload)
		if err != nil {
			r.log.Debug("audio_decode_failed", "track_sid", sid, "error", err)
			continue
		}
		r.emit(room.Audio{
			Participant: participant,
			Frame:       frames.NewAudioFrame(r.name, time.Now().UnixNano(), pcm, r.cfg.SampleRate, 1, meta),
		})
	}
}

func (r *Room) trackEnded(kind, sid string, err error) {
	if errors.Is(err, io.EOF) {
		r.log.Info("track_ended", "kind", kind, "track_sid", sid)
		return
	}
	r.log.Warn("track_read_failed", "kind", kind, "track_sid", sid, "error", err)
}

// publishVoice publishes the agent's microphone track.
func (r *Room) publishVoice(lk *lksdk.Room) error {
	track, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus})
	if err != nil {
		return fmt.Errorf("voice track: %w", err)
	}
	_, err = lk.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   voiceTrack,
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		return fmt.Errorf("publish voice track: %w", err)
	}
	r.mu.Lock()
	r.writeVoice = func(data []byte, d time.Duration) error {
		return track.WriteSample(media.Sample{Data: data, Duration: d}, nil)
	}
	r.mu.Unlock()
	return nil
}

// speak encodes PCM16 into 20 ms Opus frames and writes them to the
// voice track in real time.
func (r *Room) speak(ctx context.Context, write func([]byte, time.Duration) error, frame frames.AudioFrame) error {
	r.voiceMu.Lock()
	defer r.voiceMu.Unlock()

	rate := frame.Rate()
	if r.encoder == nil || r.encoderRate != rate {
		enc, err := r.newAudioEncoder(rate)
		if err != nil {
			return errorsx.Wrap(err, errorsx.ReasonRoomPublish)
		}
		r.encoder, r.encoderRate = enc, rate
	}
	perFrame := rate * int(voiceFrame/time.Millisecond) / 1000
	pcm := frame.RawPayload()
	for off := 0; off < len(pcm); off += perFrame * 2 {
		packet, err := r.encoder.Encode(pcmToSamples(pcm[off:], perFrame))
		if err != nil {
			return errorsx.Wrap(fmt.Errorf("encode voice: %w", err), errorsx.ReasonRoomPublish)
		}
		if err := r.paceVoice(ctx); err != nil {
			return err
		}
		if err := write(packet, voiceFrame); err != nil {
			return errorsx.Wrap(fmt.Errorf("write voice: %w", err), errorsx.ReasonRoomPublish)
		}
	}
	return nil
}

// paceVoice holds each frame until its slot on the playout clock.
func (r *Room) paceVoice(ctx context.Context) error {
	now := time.Now()
	if r.voiceNext.Before(now) {
		r.voiceNext = now
	}
	wait := r.voiceNext.Sub(now)
	r.voiceNext = r.voiceNext.Add(voiceFrame)
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
