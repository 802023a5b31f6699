// Package capture acquires and owns device media streams: camera,
// microphone and display capture. Tracks are started and stopped by the
// Manager only; consumers (recorder, compositor) borrow them.
package capture

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// Mode selects which devices a session captures from.
type Mode int

const (
	ModeVideo Mode = iota // camera + microphone
	ModeAudio             // microphone only
	ModeScreen            // display capture, optionally mixed with microphone
)

func (m Mode) String() string {
	switch m {
	case ModeVideo:
		return "video"
	case ModeAudio:
		return "audio"
	case ModeScreen:
		return "screen"
	default:
		return "unknown"
	}
}

// ParseMode maps a mode name back to its Mode. The settings file and the
// library index store modes by name.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "video":
		return ModeVideo, nil
	case "audio":
		return ModeAudio, nil
	case "screen":
		return ModeScreen, nil
	}
	return 0, fmt.Errorf("unknown capture mode %q", s)
}

// Resolution is a fixed capture size. It is immutable once a stream is
// acquired; changing it means re-acquiring.
type Resolution int

const (
	Res720p Resolution = iota
	Res1080p
	Res4K
)

func (r Resolution) Size() (w, h int) {
	switch r {
	case Res1080p:
		return 1920, 1080
	case Res4K:
		return 3840, 2160
	default:
		return 1280, 720
	}
}

func (r Resolution) String() string {
	switch r {
	case Res1080p:
		return "1080p"
	case Res4K:
		return "4k"
	default:
		return "720p"
	}
}

// ParseResolution maps a user-facing label to a Resolution.
func ParseResolution(s string) (Resolution, error) {
	switch s {
	case "720p":
		return Res720p, nil
	case "1080p":
		return Res1080p, nil
	case "4k", "4K":
		return Res4K, nil
	default:
		return Res720p, errors.New("unknown resolution " + s)
	}
}

// Constraints selects devices and resolution for an acquisition.
type Constraints struct {
	VideoDeviceID string
	AudioDeviceID string
	Resolution    Resolution
}

type DeviceKind int

const (
	KindVideoInput DeviceKind = iota
	KindAudioInput
)

func (k DeviceKind) String() string {
	if k == KindVideoInput {
		return "videoinput"
	}
	return "audioinput"
}

type DeviceInfo struct {
	ID    string
	Kind  DeviceKind
	Label string
}

// Acquisition errors. Overconstrained and Unsupported are handled inside
// Acquire via a one-shot fallback and normally not surfaced.
var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrUserCancelled     = errors.New("user cancelled source selection")
	ErrOverconstrained   = errors.New("constraints cannot be satisfied")
	ErrUnsupported       = errors.New("capture not supported on this platform")
	ErrSuperseded        = errors.New("acquisition superseded by a newer request")
)

// Frame is one decoded video frame. Tracks hand out the most recent frame;
// a consumer that polls faster than the device produces simply sees the
// same frame again.
type Frame struct {
	Image *image.RGBA
	TS    time.Time
}

// DataCallback receives interleaved little-endian S16 PCM.
type DataCallback func(data []byte, frameCount uint32)

// VideoTrack is a pull-model video source. Frame returns the latest decoded
// frame, or ok=false while no frame is ready yet.
type VideoTrack interface {
	Label() string
	Frame() (*Frame, bool)
	Live() bool
	OnEnded(fn func())
	Stop()
}

// AudioTrack is a push-model PCM source.
type AudioTrack interface {
	Label() string
	SampleRate() uint32
	Channels() uint32
	SetCallback(cb DataCallback)
	ClearCallback()
	Live() bool
	OnEnded(fn func())
	Stop()
}

// Stream is the read side shared by live and composited streams.
type Stream interface {
	VideoTracks() []VideoTrack
	AudioTracks() []AudioTrack
	Active() bool
}

// LiveStream owns one or more hardware tracks. Release stops every track
// exactly once; a second Release is a no-op.
type LiveStream struct {
	mode     Mode
	video    []VideoTrack
	audio    []AudioTrack
	released atomic.Bool

	mu      sync.Mutex
	err     error
	onEnded func(error)
}

func newLiveStream(mode Mode, video []VideoTrack, audio []AudioTrack) *LiveStream {
	return &LiveStream{mode: mode, video: video, audio: audio}
}

func (s *LiveStream) Mode() Mode                { return s.mode }
func (s *LiveStream) VideoTracks() []VideoTrack { return s.video }
func (s *LiveStream) AudioTracks() []AudioTrack { return s.audio }

func (s *LiveStream) Active() bool {
	if s == nil || s.released.Load() {
		return false
	}
	for _, t := range s.video {
		if t.Live() {
			return true
		}
	}
	for _, t := range s.audio {
		if t.Live() {
			return true
		}
	}
	return false
}

// Release stops all underlying tracks. Idempotent.
func (s *LiveStream) Release() {
	if s == nil || !s.released.CompareAndSwap(false, true) {
		return
	}
	for _, t := range s.video {
		t.Stop()
	}
	for _, t := range s.audio {
		t.Stop()
	}
}

// Err reports why the stream ended unexpectedly, if it did.
func (s *LiveStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *LiveStream) fail(err error) {
	s.mu.Lock()
	s.err = err
	fn := s.onEnded
	s.mu.Unlock()
	s.Release()
	if fn != nil {
		fn(err)
	}
}

// OnEnded registers a handler for unexpected track termination (device
// unplugged, screen share stopped from OS chrome).
func (s *LiveStream) OnEnded(fn func(error)) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}
