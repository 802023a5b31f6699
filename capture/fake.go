package capture

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"
)

// FakeBackend is an in-process Backend for tests and headless runs. Tracks
// produce frames only when asked to, so tests control time.
type FakeBackend struct {
	mu          sync.Mutex
	DeviceList  []DeviceInfo
	CameraErr   error // returned on every OpenCamera
	StrictErr   error // returned on the first (strict) OpenCamera only
	MicErr      error
	DisplayErr  error
	DisplayHas  bool // display source carries its own audio
	LabelsBlank bool // labels blank until a successful acquire

	granted     bool
	cameraCalls int
	micCalls    int
	opened      []*FakeVideoTrack
	openedMics  []*FakeAudioTrack

	// AcquireDelay simulates a slow permission prompt.
	AcquireDelay time.Duration
	// BeforeCommit runs after hardware opens, before the result is
	// returned; tests use it to race a second acquisition.
	BeforeCommit func()
}

func NewFakeBackend(devices ...DeviceInfo) *FakeBackend {
	return &FakeBackend{DeviceList: devices}
}

func (b *FakeBackend) Devices() ([]DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]DeviceInfo, len(b.DeviceList))
	copy(out, b.DeviceList)
	if b.LabelsBlank && !b.granted {
		for i := range out {
			out[i].Label = ""
		}
	}
	return out, nil
}

func (b *FakeBackend) OpenCamera(ctx context.Context, deviceID string, res Resolution) (VideoTrack, error) {
	if b.AcquireDelay > 0 {
		time.Sleep(b.AcquireDelay)
	}
	b.mu.Lock()
	b.cameraCalls++
	first := b.cameraCalls == 1
	b.mu.Unlock()

	if b.CameraErr != nil {
		return nil, b.CameraErr
	}
	if first && b.StrictErr != nil {
		return nil, b.StrictErr
	}
	if b.BeforeCommit != nil {
		b.BeforeCommit()
	}
	w, h := res.Size()
	t := NewFakeVideoTrack("fake camera", w, h)
	b.mu.Lock()
	b.granted = true
	b.opened = append(b.opened, t)
	b.mu.Unlock()
	return t, nil
}

func (b *FakeBackend) OpenMicrophone(ctx context.Context, deviceID string) (AudioTrack, error) {
	b.mu.Lock()
	b.micCalls++
	b.mu.Unlock()
	if b.MicErr != nil {
		return nil, b.MicErr
	}
	t := NewFakeAudioTrack("fake mic")
	b.mu.Lock()
	b.granted = true
	b.openedMics = append(b.openedMics, t)
	b.mu.Unlock()
	return t, nil
}

func (b *FakeBackend) OpenDisplay(ctx context.Context) (VideoTrack, AudioTrack, error) {
	if b.DisplayErr != nil {
		return nil, nil, b.DisplayErr
	}
	t := NewFakeVideoTrack("fake display", 1920, 1080)
	b.mu.Lock()
	b.opened = append(b.opened, t)
	b.mu.Unlock()
	var audio AudioTrack
	if b.DisplayHas {
		at := NewFakeAudioTrack("fake display audio")
		b.mu.Lock()
		b.openedMics = append(b.openedMics, at)
		b.mu.Unlock()
		audio = at
	}
	return t, audio, nil
}

func (b *FakeBackend) Close() {}

// CameraCalls reports how many OpenCamera attempts were made; tests assert
// the one-shot fallback never becomes a third try.
func (b *FakeBackend) CameraCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cameraCalls
}

// LiveTracks counts tracks opened by this backend that are still live.
func (b *FakeBackend) LiveTracks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, t := range b.opened {
		if t.Live() {
			n++
		}
	}
	for _, t := range b.openedMics {
		if t.Live() {
			n++
		}
	}
	return n
}

// FakeVideoTrack publishes solid-color test frames on demand.
type FakeVideoTrack struct {
	baseVideoTrack
	w, h int
}

func NewFakeVideoTrack(label string, w, h int) *FakeVideoTrack {
	t := &FakeVideoTrack{w: w, h: h}
	t.label = label
	return t
}

// Produce publishes one uniform frame of the given color.
func (t *FakeVideoTrack) Produce(c color.RGBA, ts time.Time) {
	img := image.NewRGBA(image.Rect(0, 0, t.w, t.h))
	for y := 0; y < t.h; y++ {
		for x := 0; x < t.w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	t.publish(img, ts)
}

// End simulates the device disappearing (unplug, OS stop of a share).
func (t *FakeVideoTrack) End() { t.end() }

// FakeAudioTrack accepts PCM fed by the test.
type FakeAudioTrack struct {
	label string

	mu      sync.Mutex
	cb      DataCallback
	stopped bool
	onEnded func()
}

func NewFakeAudioTrack(label string) *FakeAudioTrack {
	return &FakeAudioTrack{label: label}
}

func (t *FakeAudioTrack) Label() string      { return t.label }
func (t *FakeAudioTrack) SampleRate() uint32 { return MicSampleRate }
func (t *FakeAudioTrack) Channels() uint32   { return MicChannels }

func (t *FakeAudioTrack) SetCallback(cb DataCallback) {
	t.mu.Lock()
	t.cb = cb
	t.mu.Unlock()
}

func (t *FakeAudioTrack) ClearCallback() {
	t.mu.Lock()
	t.cb = nil
	t.mu.Unlock()
}

// Feed pushes PCM into the registered callback, as the device would.
func (t *FakeAudioTrack) Feed(data []byte) {
	t.mu.Lock()
	cb := t.cb
	stopped := t.stopped
	t.mu.Unlock()
	if cb != nil && !stopped {
		cb(data, uint32(len(data)/2))
	}
}

func (t *FakeAudioTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

func (t *FakeAudioTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

func (t *FakeAudioTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}
