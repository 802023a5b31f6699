//go:build linux

package capture

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
)

type pulseContext struct {
	client *pulse.Client
}

func newAudioContext() (audioContext, error) {
	c, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulseContext{client: c}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	var devices []DeviceInfo
	for _, s := range sources {
		devices = append(devices, DeviceInfo{
			ID:    s.ID(),
			Kind:  KindAudioInput,
			Label: s.Name(),
		})
	}
	return devices, nil
}

func (p *pulseContext) OpenMicrophone(deviceID string) (AudioTrack, error) {
	t := &pulseMicTrack{client: p.client, deviceID: deviceID}
	if err := t.start(); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

type pulseMicTrack struct {
	client   *pulse.Client
	deviceID string
	label    string
	callback atomic.Pointer[DataCallback]

	mu      sync.Mutex
	stream  *pulse.RecordStream
	stop    chan struct{}
	done    chan struct{}
	stopped bool
	onEnded func()
}

func (t *pulseMicTrack) start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	writer := pulse.Int16Writer(func(buf []int16) (int, error) {
		if len(buf) == 0 {
			return 0, nil
		}
		cb := t.callback.Load()
		if cb == nil {
			return len(buf), nil
		}
		data := make([]byte, len(buf)*2)
		for i, s := range buf {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
		}
		(*cb)(data, uint32(len(buf)))
		return len(buf), nil
	})

	opts := []pulse.RecordOption{
		pulse.RecordMono,
		pulse.RecordSampleRate(MicSampleRate),
		pulse.RecordLatency(0.05),
	}
	t.label = "system default"
	if t.deviceID != "" {
		source, err := t.client.SourceByID(t.deviceID)
		if err != nil || source == nil {
			return fmt.Errorf("%w: %s", ErrDeviceUnavailable, t.deviceID)
		}
		t.label = source.Name()
		opts = append(opts, pulse.RecordSource(source))
	}

	stream, err := t.client.NewRecord(writer, opts...)
	if err != nil {
		return fmt.Errorf("pulse record: %w", err)
	}

	t.stream = stream
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		stream.Start()
		<-t.stop
		stream.Stop()
		stream.Close()
	}()

	return nil
}

func (t *pulseMicTrack) Label() string      { return t.label }
func (t *pulseMicTrack) SampleRate() uint32 { return MicSampleRate }
func (t *pulseMicTrack) Channels() uint32   { return MicChannels }

func (t *pulseMicTrack) SetCallback(cb DataCallback) { t.callback.Store(&cb) }
func (t *pulseMicTrack) ClearCallback()              { t.callback.Store(nil) }

func (t *pulseMicTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

func (t *pulseMicTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

func (t *pulseMicTrack) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	close(t.stop)
	done := t.done
	t.mu.Unlock()
	<-done
}
