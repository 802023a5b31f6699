package capture

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// AcquireOutcome tags which path an acquisition took, so callers and tests
// can tell a strict success from the one-shot constraint fallback.
type AcquireOutcome int

const (
	AcquireStrict AcquireOutcome = iota
	AcquireFallback
	AcquireFailed
)

func (o AcquireOutcome) String() string {
	switch o {
	case AcquireStrict:
		return "strict"
	case AcquireFallback:
		return "fallback"
	default:
		return "failed"
	}
}

// Manager owns the active LiveStream. Acquisitions are serialized by a
// generation counter: a result that arrives after a newer request started
// is released and discarded rather than overwriting the newer stream.
type Manager struct {
	backend Backend

	mu      sync.Mutex
	current *LiveStream
	gen     uint64
	devices []DeviceInfo
	lastErr error

	onDevices     func([]DeviceInfo)
	onStreamError func(error)
}

func NewManager(backend Backend) *Manager {
	return &Manager{backend: backend}
}

// OnDevicesChanged registers a listener for device-set refreshes.
func (m *Manager) OnDevicesChanged(fn func([]DeviceInfo)) {
	m.mu.Lock()
	m.onDevices = fn
	m.mu.Unlock()
}

// OnStreamError registers a listener for unexpected stream termination.
func (m *Manager) OnStreamError(fn func(error)) {
	m.mu.Lock()
	m.onStreamError = fn
	m.mu.Unlock()
}

// Err returns the last surfaced acquisition or stream error, for the
// boundary to render.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Acquire releases the previous stream, then opens devices for mode.
// Camera overconstrained/unsupported failures are retried exactly once at
// the default resolution with the same device selection.
func (m *Manager) Acquire(ctx context.Context, mode Mode, cons Constraints) (*LiveStream, AcquireOutcome, error) {
	if mode == ModeScreen {
		return nil, AcquireFailed, errors.New("screen capture needs an explicit trigger; use AcquireScreen")
	}
	gen := m.begin()

	var (
		video   []VideoTrack
		audio   []AudioTrack
		outcome = AcquireStrict
	)

	if mode == ModeVideo {
		cam, err := m.backend.OpenCamera(ctx, cons.VideoDeviceID, cons.Resolution)
		if errors.Is(err, ErrOverconstrained) || errors.Is(err, ErrUnsupported) {
			// One-shot fallback: same device, default resolution. Never a
			// third attempt.
			cam, err = m.backend.OpenCamera(ctx, cons.VideoDeviceID, Res720p)
			outcome = AcquireFallback
		}
		if err != nil {
			return nil, AcquireFailed, m.fail(err)
		}
		video = append(video, cam)
	}

	mic, err := m.backend.OpenMicrophone(ctx, cons.AudioDeviceID)
	if err != nil {
		for _, t := range video {
			t.Stop()
		}
		return nil, AcquireFailed, m.fail(err)
	}
	audio = append(audio, mic)

	stream, err := m.commit(gen, mode, video, audio)
	if err != nil {
		return nil, AcquireFailed, err
	}
	return stream, outcome, nil
}

// AcquireScreen opens a display-capture stream. It is never invoked
// implicitly on mode entry; the platform requires a user gesture. When the
// display source has no audio of its own and withMic is set, a microphone
// track is mixed in as secondary audio.
func (m *Manager) AcquireScreen(ctx context.Context, cons Constraints, withMic bool) (*LiveStream, error) {
	gen := m.begin()

	display, sysAudio, err := m.backend.OpenDisplay(ctx)
	if err != nil {
		return nil, m.fail(err)
	}

	var audio []AudioTrack
	if sysAudio != nil {
		audio = append(audio, sysAudio)
	} else if withMic {
		mic, err := m.backend.OpenMicrophone(ctx, cons.AudioDeviceID)
		if err == nil {
			audio = append(audio, mic)
		}
		// A missing microphone does not abort a screen recording.
	}

	return m.commit(gen, ModeScreen, []VideoTrack{display}, audio)
}

// AcquireOverlay opens a camera-only stream to composite over the current
// screen stream. It does not replace the current stream; the caller owns
// the release. The one-shot resolution fallback applies as in Acquire.
func (m *Manager) AcquireOverlay(ctx context.Context, cons Constraints) (*LiveStream, error) {
	cam, err := m.backend.OpenCamera(ctx, cons.VideoDeviceID, cons.Resolution)
	if errors.Is(err, ErrOverconstrained) || errors.Is(err, ErrUnsupported) {
		cam, err = m.backend.OpenCamera(ctx, cons.VideoDeviceID, Res720p)
	}
	if err != nil {
		return nil, m.fail(err)
	}
	return newLiveStream(ModeVideo, []VideoTrack{cam}, nil), nil
}

func (m *Manager) begin() uint64 {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	prev := m.current
	m.current = nil
	m.lastErr = nil
	m.mu.Unlock()

	// Previous tracks are fully released before new hardware is opened; no
	// interval exists with two live acquisitions for the same role.
	prev.Release()
	return gen
}

func (m *Manager) commit(gen uint64, mode Mode, video []VideoTrack, audio []AudioTrack) (*LiveStream, error) {
	stream := newLiveStream(mode, video, audio)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		// A newer acquisition superseded this one while the platform was
		// granting it. Discard, never overwrite.
		stream.Release()
		return nil, ErrSuperseded
	}
	m.current = stream
	m.mu.Unlock()

	for _, t := range video {
		t.OnEnded(func() { m.streamEnded(stream) })
	}

	// Refresh once after a permission-granting acquire so previously blank
	// labels resolve.
	m.RefreshDevices()
	return stream, nil
}

func (m *Manager) fail(err error) error {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
	return err
}

// streamEnded handles a video track ending outside Release: the owning
// stream is released and an error state surfaced. No silent reacquisition.
func (m *Manager) streamEnded(stream *LiveStream) {
	if stream.released.Load() {
		return
	}
	err := errors.New("video track ended unexpectedly")
	stream.fail(err)

	m.mu.Lock()
	if m.current == stream {
		m.current = nil
	}
	m.lastErr = err
	fn := m.onStreamError
	m.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// Release stops the stream's tracks. Idempotent; releasing a stream that is
// no longer current only stops its own tracks.
func (m *Manager) Release(stream *LiveStream) {
	if stream == nil {
		return
	}
	stream.Release()
	m.mu.Lock()
	if m.current == stream {
		m.current = nil
	}
	m.mu.Unlock()
}

// Current returns the active stream, or nil.
func (m *Manager) Current() *LiveStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// ListDevices returns the cached, duplicate-free device list, enumerating
// on first use.
func (m *Manager) ListDevices() []DeviceInfo {
	m.mu.Lock()
	cached := m.devices
	m.mu.Unlock()
	if cached == nil {
		return m.RefreshDevices()
	}
	return cached
}

// RefreshDevices re-enumerates and notifies the change listener when the
// set differs from the cache.
func (m *Manager) RefreshDevices() []DeviceInfo {
	devices, err := m.backend.Devices()
	if err != nil {
		return m.ListDevicesCached()
	}
	deduped := dedupeDevices(devices)

	m.mu.Lock()
	changed := !slices.Equal(m.devices, deduped)
	m.devices = deduped
	fn := m.onDevices
	m.mu.Unlock()

	if changed && fn != nil {
		fn(deduped)
	}
	return deduped
}

// ListDevicesCached returns the cache without touching the platform.
func (m *Manager) ListDevicesCached() []DeviceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devices
}

func dedupeDevices(in []DeviceInfo) []DeviceInfo {
	seen := make(map[string]bool, len(in))
	out := make([]DeviceInfo, 0, len(in))
	for _, d := range in {
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		out = append(out, d)
	}
	return out
}

// SwitchToNextDevice cycles to the next device of the given kind. Returns
// "" when fewer than two such devices exist.
func (m *Manager) SwitchToNextDevice(currentID string, kind DeviceKind) string {
	var ofKind []DeviceInfo
	for _, d := range m.ListDevices() {
		if d.Kind == kind {
			ofKind = append(ofKind, d)
		}
	}
	if len(ofKind) < 2 {
		return ""
	}
	for i, d := range ofKind {
		if d.ID == currentID {
			return ofKind[(i+1)%len(ofKind)].ID
		}
	}
	return ofKind[0].ID
}

// WatchDevices polls for hotplug changes until ctx is cancelled.
func (m *Manager) WatchDevices(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RefreshDevices()
		}
	}
}
