// Package compositor merges a primary stream and an optional secondary
// picture-in-picture stream into one recordable stream. It borrows the
// source tracks and never stops them.
package compositor

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/IamFishR/webcrecorder/capture"
)

// Config fixes the canvas geometry. The output cadence is driven by FPS
// regardless of how fast sources produce frames.
type Config struct {
	Width, Height int
	FPS           int

	PiPWidth, PiPHeight int
	PiPMargin           int
	PiPRadius           int
	BorderWidth         int
	BorderColor         color.RGBA
}

func DefaultConfig() Config {
	return Config{
		Width:       1920,
		Height:      1080,
		FPS:         30,
		PiPWidth:    320,
		PiPHeight:   240,
		PiPMargin:   24,
		PiPRadius:   16,
		BorderWidth: 3,
		BorderColor: color.RGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

// Compositor allocates the canvas once and can start successive composite
// streams (one at a time).
type Compositor struct {
	cfg     Config
	scaler  xdraw.Scaler
	pipMask *image.Alpha
	ringMsk *image.Alpha
}

// New prepares the drawing surface. It fails when the canvas geometry is
// unusable; callers fall back to recording the raw primary stream.
func New(cfg Config) (*Compositor, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.FPS <= 0 {
		return nil, errors.New("compositor: unusable canvas geometry")
	}
	if cfg.PiPWidth <= 0 || cfg.PiPHeight <= 0 {
		return nil, errors.New("compositor: unusable PiP geometry")
	}
	c := &Compositor{
		cfg:     cfg,
		scaler:  xdraw.ApproxBiLinear,
		pipMask: roundedRectMask(cfg.PiPWidth, cfg.PiPHeight, cfg.PiPRadius),
	}
	c.ringMsk = ringMask(cfg.PiPWidth, cfg.PiPHeight, cfg.PiPRadius, cfg.BorderWidth)
	return c, nil
}

// Start begins compositing primary (full canvas) with secondary mirrored
// into the bottom-right PiP region. Secondary may be nil.
func (c *Compositor) Start(primary, secondary capture.Stream) *CompositeStream {
	cs := &CompositeStream{
		comp:      c,
		primary:   primary,
		secondary: secondary,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	cs.track = &canvasTrack{label: "composite canvas"}
	go cs.renderLoop()
	return cs
}

// CompositeStream is the derived stream: canvas video plus the verbatim
// union of both sources' audio tracks. It implements capture.Stream.
type CompositeStream struct {
	comp      *Compositor
	primary   capture.Stream
	secondary capture.Stream
	track     *canvasTrack

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func (cs *CompositeStream) VideoTracks() []capture.VideoTrack {
	return []capture.VideoTrack{cs.track}
}

// AudioTracks returns every audio track of both sources, passed through
// without decoding or re-encoding.
func (cs *CompositeStream) AudioTracks() []capture.AudioTrack {
	var out []capture.AudioTrack
	if cs.primary != nil {
		out = append(out, cs.primary.AudioTracks()...)
	}
	if cs.secondary != nil {
		out = append(out, cs.secondary.AudioTracks()...)
	}
	return out
}

func (cs *CompositeStream) Active() bool {
	return cs.track.Live()
}

// Stop cancels the render loop, effective on the next tick. Source tracks
// are borrowed and remain untouched.
func (cs *CompositeStream) Stop() {
	cs.stopOnce.Do(func() { close(cs.stop) })
	<-cs.done
}

func (cs *CompositeStream) renderLoop() {
	defer close(cs.done)
	defer cs.track.end()

	cfg := cs.comp.cfg
	ticker := time.NewTicker(time.Second / time.Duration(cfg.FPS))
	defer ticker.Stop()

	// Double-buffered canvas: the consumer may hold the published frame
	// while the next one is being drawn.
	buffers := [2]*image.RGBA{
		image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height)),
		image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height)),
	}
	cur := 0
	pip := image.NewRGBA(image.Rect(0, 0, cfg.PiPWidth, cfg.PiPHeight))

	for {
		select {
		case <-cs.stop:
			return
		case now := <-ticker.C:
			canvas := buffers[cur]

			frame, ok := primaryFrame(cs.primary)
			if !ok {
				// Source not ready this tick: keep the previous canvas
				// content in place. Tolerated tearing, not an error.
				continue
			}
			cs.comp.drawPrimary(canvas, frame.Image)

			if cs.secondary != nil {
				if sec, ok := primaryFrame(cs.secondary); ok {
					cs.comp.drawPiP(canvas, pip, sec.Image)
				}
			}

			cs.track.publish(canvas, now)
			cur = 1 - cur
		}
	}
}

func primaryFrame(s capture.Stream) (*capture.Frame, bool) {
	if s == nil {
		return nil, false
	}
	tracks := s.VideoTracks()
	if len(tracks) == 0 {
		return nil, false
	}
	return tracks[0].Frame()
}

// canvasTrack exposes the canvas as a capture.VideoTrack. Stopping it only
// marks the derived track ended; it owns no hardware.
type canvasTrack struct {
	label string

	mu      sync.Mutex
	frame   *capture.Frame
	ended   bool
	onEnded func()
}

func (t *canvasTrack) Label() string { return t.label }

func (t *canvasTrack) publish(img *image.RGBA, ts time.Time) {
	t.mu.Lock()
	t.frame = &capture.Frame{Image: img, TS: ts}
	t.mu.Unlock()
}

func (t *canvasTrack) Frame() (*capture.Frame, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frame == nil {
		return nil, false
	}
	return t.frame, true
}

func (t *canvasTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.ended
}

func (t *canvasTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

func (t *canvasTrack) Stop() { t.end() }

func (t *canvasTrack) end() {
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
