package capture

import (
	"context"
	"sync"
)

// Backend abstracts platform capture. Exactly one backend is active per
// Manager; platform implementations register openers from init() so the
// desktop backend stays free of build-tag spaghetti.
type Backend interface {
	// Devices enumerates capture devices in a stable order.
	Devices() ([]DeviceInfo, error)

	// OpenCamera opens a camera track at the requested resolution.
	// Returns ErrOverconstrained when the device cannot satisfy it.
	OpenCamera(ctx context.Context, deviceID string, res Resolution) (VideoTrack, error)

	// OpenMicrophone opens a PCM track from the named device, or the
	// system default when deviceID is empty.
	OpenMicrophone(ctx context.Context, deviceID string) (AudioTrack, error)

	// OpenDisplay opens a display-capture track. The platform may show a
	// source picker; a dismissed picker yields ErrUserCancelled. The audio
	// track is non-nil only when the display source carries its own audio.
	OpenDisplay(ctx context.Context) (VideoTrack, AudioTrack, error)

	Close()
}

// CameraOpener produces a camera track. DisplayOpener produces a display
// track plus its own audio when available.
type (
	CameraOpener  func(ctx context.Context, deviceID string, res Resolution) (VideoTrack, error)
	DisplayOpener func(ctx context.Context) (VideoTrack, AudioTrack, error)
	CameraLister  func() ([]DeviceInfo, error)
)

var openers struct {
	mu      sync.RWMutex
	camera  CameraOpener
	display DisplayOpener
	cameras CameraLister
}

// RegisterCamera installs the platform camera opener.
func RegisterCamera(list CameraLister, open CameraOpener) {
	openers.mu.Lock()
	defer openers.mu.Unlock()
	openers.cameras = list
	openers.camera = open
}

// RegisterDisplay installs the platform display opener.
func RegisterDisplay(open DisplayOpener) {
	openers.mu.Lock()
	defer openers.mu.Unlock()
	openers.display = open
}

func cameraOpener() (CameraLister, CameraOpener) {
	openers.mu.RLock()
	defer openers.mu.RUnlock()
	return openers.cameras, openers.camera
}

func displayOpener() DisplayOpener {
	openers.mu.RLock()
	defer openers.mu.RUnlock()
	return openers.display
}
