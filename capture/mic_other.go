//go:build !linux

package capture

import (
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func newAudioContext() (audioContext, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	var result []DeviceInfo
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:    hex.EncodeToString(d.ID.Pointer()[:]),
			Kind:  KindAudioInput,
			Label: d.Name(),
		})
	}
	return result, nil
}

func (m *malgoContext) OpenMicrophone(deviceID string) (AudioTrack, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = MicChannels
	deviceConfig.SampleRate = MicSampleRate

	label := "system default"
	if deviceID != "" {
		idBytes, err := hex.DecodeString(deviceID)
		if err != nil {
			return nil, fmt.Errorf("invalid device ID: %w", err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Capture.DeviceID = devID.Pointer()
		label = deviceID
	}

	t := &malgoMicTrack{label: label}
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			cb := t.callback.Load()
			if cb != nil {
				(*cb)(data, frameCount)
			}
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, err
	}
	t.device = dev
	return t, nil
}

func (m *malgoContext) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

type malgoMicTrack struct {
	device   *malgo.Device
	label    string
	callback atomic.Pointer[DataCallback]

	mu      sync.Mutex
	stopped bool
	onEnded func()
}

func (t *malgoMicTrack) Label() string      { return t.label }
func (t *malgoMicTrack) SampleRate() uint32 { return MicSampleRate }
func (t *malgoMicTrack) Channels() uint32   { return MicChannels }

func (t *malgoMicTrack) SetCallback(cb DataCallback) { t.callback.Store(&cb) }
func (t *malgoMicTrack) ClearCallback()              { t.callback.Store(nil) }

func (t *malgoMicTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

func (t *malgoMicTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

func (t *malgoMicTrack) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()
	t.device.Stop()
	t.device.Uninit()
}
