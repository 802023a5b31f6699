package capture

import "context"

// Microphone PCM shape shared by all platform audio backends.
const (
	MicSampleRate = 44100
	MicChannels   = 1
)

// audioContext is the per-platform microphone backend (pulse on linux,
// malgo elsewhere).
type audioContext interface {
	Devices() ([]DeviceInfo, error)
	OpenMicrophone(deviceID string) (AudioTrack, error)
	Close()
}

// DesktopBackend is the production Backend: platform audio context for
// microphones, registered openers for cameras and displays.
type DesktopBackend struct {
	audio audioContext
}

func NewDesktopBackend() (*DesktopBackend, error) {
	ac, err := newAudioContext()
	if err != nil {
		return nil, err
	}
	return &DesktopBackend{audio: ac}, nil
}

func (b *DesktopBackend) Devices() ([]DeviceInfo, error) {
	var all []DeviceInfo
	if list, _ := cameraOpener(); list != nil {
		cams, err := list()
		if err == nil {
			all = append(all, cams...)
		}
	}
	mics, err := b.audio.Devices()
	if err != nil {
		return all, err
	}
	return append(all, mics...), nil
}

func (b *DesktopBackend) OpenCamera(ctx context.Context, deviceID string, res Resolution) (VideoTrack, error) {
	_, open := cameraOpener()
	if open == nil {
		return nil, ErrUnsupported
	}
	return open(ctx, deviceID, res)
}

func (b *DesktopBackend) OpenMicrophone(ctx context.Context, deviceID string) (AudioTrack, error) {
	return b.audio.OpenMicrophone(deviceID)
}

func (b *DesktopBackend) OpenDisplay(ctx context.Context) (VideoTrack, AudioTrack, error) {
	open := displayOpener()
	if open == nil {
		return nil, nil, ErrUnsupported
	}
	return open(ctx)
}

func (b *DesktopBackend) Close() {
	b.audio.Close()
}
