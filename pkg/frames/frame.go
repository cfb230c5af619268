package frames

type Kind string

const (
	KindAudio Kind = "audio"
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Meta keys shared by providers and rooms.
const (
	MetaStreamID    = "stream_id"
	MetaTraceID     = "trace_id"
	MetaSource      = "source"
	MetaIsFinal     = "is_final"
	MetaReason      = "reason"
	MetaEncoding    = "encoding"
	MetaTrackID     = "track_id"
	MetaParticipant = "participant"
)

type Frame interface {
	Kind() Kind
	PTS() int64
	Meta() map[string]string
}

type AudioFrame struct {
	pts  int64
	data []byte
	rate int
	ch   int
	meta map[string]string
}

func NewAudioFrame(streamID string, pts int64, data []byte, rate, ch int, meta map[string]string) AudioFrame {
	return AudioFrame{
		pts:  pts,
		data: data,
		rate: rate,
		ch:   ch,
		meta: mergeMeta(streamID, meta),
	}
}

func (a AudioFrame) Kind() Kind              { return KindAudio }
func (a AudioFrame) PTS() int64              { return a.pts }
func (a AudioFrame) Meta() map[string]string { return cloneMeta(a.meta) }
func (a AudioFrame) Data() []byte            { return append([]byte(nil), a.data...) }
func (a AudioFrame) RawPayload() []byte      { return a.data }
func (a AudioFrame) Rate() int               { return a.rate }
func (a AudioFrame) Channels() int           { return a.ch }

type TextFrame struct {
	pts  int64
	text string
	meta map[string]string
}

func NewTextFrame(streamID string, pts int64, text string, meta map[string]string) TextFrame {
	return TextFrame{
		pts:  pts,
		text: text,
		meta: mergeMeta(streamID, meta),
	}
}

func (t TextFrame) Kind() Kind              { return KindText }
func (t TextFrame) PTS() int64              { return t.pts }
func (t TextFrame) Meta() map[string]string { return cloneMeta(t.meta) }
func (t TextFrame) Text() string            { return t.text }

// IsFinal reports whether a transcript frame is a final result.
func (t TextFrame) IsFinal() bool { return t.meta[MetaIsFinal] == "true" }

// ImageFrame is one still picture taken from a video track.
type ImageFrame struct {
	pts  int64
	data []byte
	mime string
	url  string
	meta map[string]string
}

func NewImageFrame(streamID string, pts int64, data []byte, mime, url string, meta map[string]string) ImageFrame {
	return ImageFrame{
		pts:  pts,
		data: data,
		mime: mime,
		url:  url,
		meta: mergeMeta(streamID, meta),
	}
}

func (i ImageFrame) Kind() Kind              { return KindImage }
func (i ImageFrame) PTS() int64              { return i.pts }
func (i ImageFrame) Meta() map[string]string { return cloneMeta(i.meta) }
func (i ImageFrame) Data() []byte            { return append([]byte(nil), i.data...) }
func (i ImageFrame) RawPayload() []byte      { return i.data }
func (i ImageFrame) MIME() string            { return i.mime }
func (i ImageFrame) URL() string             { return i.url }
func (i ImageFrame) TrackID() string         { return i.meta[MetaTrackID] }

func mergeMeta(streamID string, meta map[string]string) map[string]string {
	out := make(map[string]string, 2+len(meta))
	if streamID != "" {
		out[MetaStreamID] = streamID
	}
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
