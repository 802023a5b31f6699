package capture

import (
	"image"
	"sync"
	"time"
)

// baseVideoTrack carries the latest-frame cell and lifecycle shared by the
// platform video tracks. The capture goroutine publishes frames; consumers
// poll Frame at their own cadence.
type baseVideoTrack struct {
	label    string
	stopFn   func()
	stopOnce sync.Once

	mu      sync.Mutex
	frame   *Frame
	ended   bool
	onEnded func()
}

func (t *baseVideoTrack) Label() string { return t.label }

func (t *baseVideoTrack) publish(img *image.RGBA, ts time.Time) {
	t.mu.Lock()
	t.frame = &Frame{Image: img, TS: ts}
	t.mu.Unlock()
}

func (t *baseVideoTrack) Frame() (*Frame, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frame == nil {
		return nil, false
	}
	return t.frame, true
}

func (t *baseVideoTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.ended
}

func (t *baseVideoTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

// Stop halts capture. Safe to call more than once.
func (t *baseVideoTrack) Stop() {
	t.mu.Lock()
	t.ended = true
	t.mu.Unlock()
	t.stopOnce.Do(func() {
		if t.stopFn != nil {
			t.stopFn()
		}
	})
}

// end marks the track terminated by the platform (unplug, share stopped)
// and notifies the owner.
func (t *baseVideoTrack) end() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	fn := t.onEnded
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}
