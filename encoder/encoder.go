// Package encoder turns a live stream's tracks into container bytes,
// handed out as an ordered chunk sequence while the recording runs.
package encoder

import (
	"errors"

	"github.com/IamFishR/webcrecorder/capture"
)

const (
	BitsPerSample = 16
	BlockSize     = 4096

	// VideoFPS is the cadence video containers are written at. Sources
	// that produce slower simply repeat their latest frame.
	VideoFPS = 30
)

var ErrUnsupportedStream = errors.New("encoder: no encoder supports this stream")

// Format names a container/codec combination. The recorder picks one per
// session from an ordered preference list and never changes it mid-session.
type Format struct {
	Container  string
	VideoCodec string
	AudioCodec string
	Ext        string
}

func (f Format) String() string {
	s := f.Container
	if f.VideoCodec != "" {
		s += "/" + f.VideoCodec
	}
	if f.AudioCodec != "" {
		s += "+" + f.AudioCodec
	}
	return s
}

// Preferences is the fixed fallback order: the most broadly compatible
// muxed format first, down to the container this build can always write.
func Preferences(mode capture.Mode) []Format {
	if mode == capture.ModeAudio {
		return []Format{
			{Container: "webm", AudioCodec: "opus", Ext: "webm"},
			{Container: "flac", AudioCodec: "flac", Ext: "flac"},
		}
	}
	return []Format{
		{Container: "webm", VideoCodec: "vp9", AudioCodec: "opus", Ext: "webm"},
		{Container: "webm", Ext: "webm"},
		{Container: "avi", VideoCodec: "mjpeg", AudioCodec: "pcm", Ext: "avi"},
	}
}

// Supported reports whether this build can produce the format. Only the
// pure-Go containers are available; the webm entries keep the preference
// order meaningful for builds that link those codecs in.
func Supported(f Format) bool {
	switch f.Container {
	case "flac":
		return true
	case "avi":
		return f.VideoCodec == "mjpeg"
	default:
		return false
	}
}

// Encoder consumes a stream's tracks and accumulates container bytes.
// Drain hands out everything appended since the previous drain; the
// concatenation of all drains plus the Flush tail, passed through
// Finalize, is the finished file.
type Encoder interface {
	Start() error
	Drain() []byte
	SetPaused(paused bool)
	Flush() ([]byte, error)

	// Finalize runs once over the fully assembled byte sequence so
	// containers with size fields can patch them. Append-only formats
	// return data unchanged.
	Finalize(data []byte) []byte

	// OnError registers a handler for asynchronous encode failures.
	// Must be called before Start.
	OnError(fn func(error))
}

// New builds an encoder for the stream in the given format.
func New(f Format, stream capture.Stream) (Encoder, error) {
	switch f.Container {
	case "flac":
		tracks := stream.AudioTracks()
		if len(tracks) == 0 {
			return nil, ErrUnsupportedStream
		}
		return newFlacEncoder(tracks[0])
	case "avi":
		if len(stream.VideoTracks()) == 0 {
			return nil, ErrUnsupportedStream
		}
		var audio capture.AudioTrack
		if tracks := stream.AudioTracks(); len(tracks) > 0 {
			audio = tracks[0]
		}
		return newAVIEncoder(stream.VideoTracks()[0], audio), nil
	default:
		return nil, ErrUnsupportedStream
	}
}
