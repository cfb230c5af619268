package lkroom

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/hraban/opus"
	"golang.org/x/image/vp8"
)

const (
	// maxOpusSamples holds 120 ms at 48 kHz, the longest Opus frame.
	maxOpusSamples = 5760
	maxOpusPacket  = 4000
	jpegQuality    = 80
)

var errNotKeyframe = errors.New("lkroom: not a keyframe")

type pcmDecoder interface {
	// Decode turns one Opus packet into little-endian PCM16.
	Decode(payload []byte) ([]byte, error)
}

type pcmEncoder interface {
	// Encode compresses exactly one frame of samples.
	Encode(samples []int16) ([]byte, error)
}

type imageDecoder interface {
	// Decode returns errNotKeyframe for interframes.
	Decode(frame []byte) (image.Image, error)
}

type opusDecoder struct {
	dec *opus.Decoder
	buf []int16
}

func newOpusDecoder(rate int) (pcmDecoder, error) {
	dec, err := opus.NewDecoder(rate, 1)
	if err != nil {
		return nil, fmt.Errorf("opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec, buf: make([]int16, maxOpusSamples)}, nil
}

func (d *opusDecoder) Decode(payload []byte) ([]byte, error) {
	n, err := d.dec.Decode(payload, d.buf)
	if err != nil {
		return nil, err
	}
	return samplesToPCM(d.buf[:n]), nil
}

type opusEncoder struct {
	enc *opus.Encoder
	buf []byte
}

func newOpusEncoder(rate int) (pcmEncoder, error) {
	enc, err := opus.NewEncoder(rate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc, buf: make([]byte, maxOpusPacket)}, nil
}

func (e *opusEncoder) Encode(samples []int16) ([]byte, error) {
	n, err := e.enc.Encode(samples, e.buf)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), e.buf[:n]...), nil
}

type vp8Decoder struct {
	dec *vp8.Decoder
}

func newVP8Decoder() imageDecoder {
	return &vp8Decoder{dec: vp8.NewDecoder()}
}

// Decode only handles keyframes; the still is all the vision path needs.
func (d *vp8Decoder) Decode(frame []byte) (image.Image, error) {
	// Bit 0 of the frame tag is 0 on keyframes.
	if len(frame) < 10 || frame[0]&0x01 != 0 {
		return nil, errNotKeyframe
	}
	d.dec.Init(bytes.NewReader(frame), len(frame))
	fh, err := d.dec.DecodeFrameHeader()
	if err != nil {
		return nil, fmt.Errorf("vp8 header: %w", err)
	}
	if !fh.KeyFrame {
		return nil, errNotKeyframe
	}
	img, err := d.dec.DecodeFrame()
	if err != nil {
		return nil, fmt.Errorf("vp8 frame: %w", err)
	}
	return img, nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func samplesToPCM(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// pcmToSamples reads PCM16 into a frame of exactly n samples, padding
// with silence.
func pcmToSamples(pcm []byte, n int) []int16 {
	out := make([]int16, n)
	for i := 0; i < n && i*2+1 < len(pcm); i++ {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}
