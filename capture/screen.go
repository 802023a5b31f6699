package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/kbinani/screenshot"
)

// DisplayFPS is the capture cadence for display tracks.
const DisplayFPS = 30

// DisplayPicker selects which display to capture. It stands in for the
// platform's interactive source picker: it must return promptly, and a
// dismissal is reported as ErrUserCancelled. The default takes the primary
// display.
type DisplayPicker func(ctx context.Context, displays int) (int, error)

var pickDisplay DisplayPicker = func(ctx context.Context, displays int) (int, error) {
	if displays == 0 {
		return 0, ErrDeviceUnavailable
	}
	return 0, nil
}

// SetDisplayPicker installs an interactive display picker.
func SetDisplayPicker(p DisplayPicker) {
	if p != nil {
		pickDisplay = p
	}
}

func init() {
	RegisterDisplay(openScreen)
}

func openScreen(ctx context.Context) (VideoTrack, AudioTrack, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, nil, ErrDeviceUnavailable
	}
	idx, err := pickDisplay(ctx, n)
	if err != nil {
		return nil, nil, err
	}
	if idx < 0 || idx >= n {
		return nil, nil, fmt.Errorf("%w: display %d", ErrDeviceUnavailable, idx)
	}

	bounds := screenshot.GetDisplayBounds(idx)
	stop := make(chan struct{})
	t := &screenTrack{
		baseVideoTrack: baseVideoTrack{
			label:  fmt.Sprintf("display %d (%dx%d)", idx, bounds.Dx(), bounds.Dy()),
			stopFn: func() { close(stop) },
		},
	}
	go t.pump(idx, stop)
	// Display capture carries no audio of its own here; the manager mixes
	// a microphone track in when asked to.
	return t, nil, nil
}

type screenTrack struct {
	baseVideoTrack
}

func (t *screenTrack) pump(display int, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second / DisplayFPS)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			bounds := screenshot.GetDisplayBounds(display)
			img, err := screenshot.CaptureRect(bounds)
			if err != nil {
				failures++
				if failures > DisplayFPS { // a full second of misses
					t.end()
					return
				}
				continue
			}
			failures = 0
			t.publish(img, time.Now())
		}
	}
}
