package compositor

import (
	"image/color"
	"testing"
	"time"

	"github.com/IamFishR/webcrecorder/capture"
)

type fakeStream struct {
	video []capture.VideoTrack
	audio []capture.AudioTrack
}

func (s *fakeStream) VideoTracks() []capture.VideoTrack { return s.video }
func (s *fakeStream) AudioTracks() []capture.AudioTrack { return s.audio }
func (s *fakeStream) Active() bool                      { return true }

func streamWith(v *capture.FakeVideoTrack, audioTracks int) *fakeStream {
	s := &fakeStream{}
	if v != nil {
		s.video = append(s.video, v)
	}
	for i := 0; i < audioTracks; i++ {
		s.audio = append(s.audio, capture.NewFakeAudioTrack("a"))
	}
	return s
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 320, 180
	cfg.PiPWidth, cfg.PiPHeight = 64, 48
	cfg.PiPMargin = 8
	cfg.PiPRadius = 8
	cfg.FPS = 60 // keep test latency low
	return cfg
}

func waitFrame(t *testing.T, cs *CompositeStream) *capture.Frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("no composite frame produced")
			return nil
		default:
		}
		if f, ok := cs.VideoTracks()[0].Frame(); ok {
			return f
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBadGeometryFailsConstruction(t *testing.T) {
	cfg := testConfig()
	cfg.Width = 0
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for zero-width canvas")
	}
}

func TestAudioUnionPrimaryOnly(t *testing.T) {
	c, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	primary := streamWith(capture.NewFakeVideoTrack("p", 100, 100), 2)
	cs := c.Start(primary, nil)
	defer cs.Stop()

	if got := len(cs.AudioTracks()); got != 2 {
		t.Fatalf("expected primary's 2 audio tracks, got %d", got)
	}
	if got := len(cs.VideoTracks()); got != 1 {
		t.Fatalf("expected exactly one canvas video track, got %d", got)
	}
}

func TestAudioUnionBothSources(t *testing.T) {
	c, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	primary := streamWith(capture.NewFakeVideoTrack("p", 100, 100), 1)
	secondary := streamWith(capture.NewFakeVideoTrack("s", 64, 48), 2)
	cs := c.Start(primary, secondary)
	defer cs.Stop()

	if got := len(cs.AudioTracks()); got != 3 {
		t.Fatalf("composite audio count should be the sum (3), got %d", got)
	}
}

func TestCanvasDrawsPrimaryAndPiP(t *testing.T) {
	cfg := testConfig()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	red := color.RGBA{R: 200, A: 255}
	blue := color.RGBA{B: 200, A: 255}
	pv := capture.NewFakeVideoTrack("p", 100, 100)
	sv := capture.NewFakeVideoTrack("s", 32, 24)
	pv.Produce(red, time.Now())
	sv.Produce(blue, time.Now())

	cs := c.Start(streamWith(pv, 0), streamWith(sv, 0))
	defer cs.Stop()

	f := waitFrame(t, cs)
	img := f.Image

	// Center of canvas: primary.
	got := img.RGBAAt(cfg.Width/2, cfg.Height/4)
	if got.R < 100 || got.B > 100 {
		t.Fatalf("canvas center should be primary red, got %+v", got)
	}

	// Center of the PiP region: secondary.
	px := cfg.Width - cfg.PiPMargin - cfg.PiPWidth/2
	py := cfg.Height - cfg.PiPMargin - cfg.PiPHeight/2
	got = img.RGBAAt(px, py)
	if got.B < 100 || got.R > 100 {
		t.Fatalf("PiP center should be secondary blue, got %+v", got)
	}

	// Top edge of the PiP region: border stroke.
	got = img.RGBAAt(px, cfg.Height-cfg.PiPMargin-cfg.PiPHeight+1)
	if got.R < 200 || got.G < 200 || got.B < 200 {
		t.Fatalf("expected border stroke pixel, got %+v", got)
	}
}

func TestNotReadyFramesAreSkipped(t *testing.T) {
	c, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	pv := capture.NewFakeVideoTrack("p", 100, 100) // never produces
	cs := c.Start(streamWith(pv, 0), nil)
	defer cs.Stop()

	time.Sleep(100 * time.Millisecond)
	if _, ok := cs.VideoTracks()[0].Frame(); ok {
		t.Fatal("no canvas frame should exist before the source is ready")
	}
}

func TestStopLeavesSourcesRunning(t *testing.T) {
	c, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	pv := capture.NewFakeVideoTrack("p", 100, 100)
	primary := streamWith(pv, 1)
	cs := c.Start(primary, nil)

	cs.Stop()
	if cs.Active() {
		t.Fatal("composite should be inactive after stop")
	}
	if !pv.Live() {
		t.Fatal("stop must not stop borrowed source tracks")
	}
	if !primary.audio[0].Live() {
		t.Fatal("stop must not stop borrowed audio tracks")
	}
}

func TestMirrorHorizontal(t *testing.T) {
	pv := capture.NewFakeVideoTrack("p", 4, 2)
	pv.Produce(color.RGBA{R: 1, A: 255}, time.Now())
	f, _ := pv.Frame()
	img := f.Image
	img.SetRGBA(0, 0, color.RGBA{G: 99, A: 255})

	mirrorHorizontal(img)
	if got := img.RGBAAt(3, 0); got.G != 99 {
		t.Fatalf("left pixel should move to the right edge, got %+v", got)
	}
	if got := img.RGBAAt(0, 0); got.G == 99 {
		t.Fatal("left pixel should no longer hold the marker")
	}
}
