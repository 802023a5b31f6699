package record

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IamFishR/webcrecorder/capture"
	"github.com/IamFishR/webcrecorder/encoder"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeStream struct {
	video []capture.VideoTrack
	audio []capture.AudioTrack
}

func (s *fakeStream) VideoTracks() []capture.VideoTrack { return s.video }
func (s *fakeStream) AudioTracks() []capture.AudioTrack { return s.audio }
func (s *fakeStream) Active() bool                      { return true }

func audioStream() *fakeStream {
	return &fakeStream{audio: []capture.AudioTrack{capture.NewFakeAudioTrack("mic")}}
}

// testSession wires a session whose ticker never fires on its own; tests
// drive tick directly with a controlled clock.
func testSession(sink Sink, opts Options) (*Session, *clock, *[]*encoder.FakeEncoder) {
	clk := newClock()
	var encoders []*encoder.FakeEncoder
	var mu sync.Mutex
	opts.SliceInterval = time.Hour
	opts.Now = clk.Now
	if opts.Supports == nil {
		opts.Supports = func(encoder.Format) bool { return true }
	}
	if opts.NewEncoder == nil {
		opts.NewEncoder = func(f encoder.Format, st capture.Stream) (encoder.Encoder, error) {
			e := encoder.NewFakeEncoder()
			mu.Lock()
			encoders = append(encoders, e)
			mu.Unlock()
			return e, nil
		}
	}
	return NewSession(sink, opts), clk, &encoders
}

func tickSeconds(s *Session, clk *clock, n int) {
	for i := 0; i < n; i++ {
		clk.Advance(time.Second)
		s.tick(clk.Now())
	}
}

func TestStartStopProducesFile(t *testing.T) {
	sink := &MemorySink{}
	var files []RecordedFile
	s, clk, encs := testSession(sink, Options{
		OnFile: func(f RecordedFile) { files = append(files, f) },
	})

	if err := s.Start(audioStream(), capture.ModeAudio); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != StateRecording {
		t.Fatalf("state = %v after start", s.State())
	}

	tickSeconds(s, clk, 3)
	clk.Advance(2 * time.Second)
	file, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if s.State() != StateIdle {
		t.Fatalf("state = %v after stop", s.State())
	}
	if file.ID == "" || file.Segment != 1 || file.Partial {
		t.Fatalf("unexpected file metadata: %+v", file)
	}
	if file.DurationSeconds != 5 {
		t.Fatalf("duration = %v, want 5s", file.DurationSeconds)
	}
	if !strings.HasPrefix(file.FileName, "recording-audio-") {
		t.Fatalf("file name %q missing mode prefix", file.FileName)
	}
	if file.DisplayName != file.FileName {
		t.Fatal("display name should start out as the file name")
	}

	saved := sink.Saved()
	if len(saved) != 1 {
		t.Fatalf("sink holds %d blobs, want 1", len(saved))
	}
	want := "chunkchunkchunktail" // three drained ticks plus the flush tail
	if string(saved[0].Data) != want {
		t.Fatalf("saved data = %q, want %q", saved[0].Data, want)
	}
	if len(files) != 1 || files[0].ID != file.ID {
		t.Fatalf("OnFile delivered %d files", len(files))
	}
	if len(*encs) != 1 || !(*encs)[0].Flushed() {
		t.Fatal("the single encoder should be flushed")
	}
}

func TestStartWhileRecordingRejected(t *testing.T) {
	s, _, _ := testSession(&MemorySink{}, Options{})
	if err := s.Start(audioStream(), capture.ModeAudio); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(audioStream(), capture.ModeAudio); !errors.Is(err, ErrBadState) {
		t.Fatalf("second start: %v", err)
	}
	if _, err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartWithoutStream(t *testing.T) {
	s, _, _ := testSession(&MemorySink{}, Options{})
	if err := s.Start(nil, capture.ModeAudio); !errors.Is(err, ErrNoActiveStream) {
		t.Fatalf("expected ErrNoActiveStream, got %v", err)
	}
}

func TestStopWhileIdle(t *testing.T) {
	s, _, _ := testSession(&MemorySink{}, Options{})
	if _, err := s.Stop(); !errors.Is(err, ErrBadState) {
		t.Fatalf("expected ErrBadState, got %v", err)
	}
}

func TestPausedTimeExcludedFromDuration(t *testing.T) {
	s, clk, encs := testSession(&MemorySink{}, Options{})
	if err := s.Start(audioStream(), capture.ModeAudio); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tickSeconds(s, clk, 2)
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if s.State() != StatePaused {
		t.Fatalf("state = %v after pause", s.State())
	}
	clk.Advance(10 * time.Second)
	s.tick(clk.Now()) // paused tick must not drain or advance
	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	tickSeconds(s, clk, 3)

	file, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if file.DurationSeconds != 5 {
		t.Fatalf("duration = %v, want 5s with the pause excluded", file.DurationSeconds)
	}
	events := (*encs)[0].PauseEvents()
	if len(events) != 2 || !events[0] || events[1] {
		t.Fatalf("pause events = %v, want [true false]", events)
	}
}

func TestPauseResumeIdempotent(t *testing.T) {
	s, _, _ := testSession(&MemorySink{}, Options{})
	if err := s.Pause(); !errors.Is(err, ErrBadState) {
		t.Fatalf("pause while idle: %v", err)
	}
	if err := s.Start(audioStream(), capture.ModeAudio); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("resume while recording should be a no-op, got %v", err)
	}
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := s.Pause(); err != nil {
		t.Fatalf("pause while paused should be a no-op, got %v", err)
	}
	if _, err := s.Stop(); err != nil {
		t.Fatalf("stop while paused: %v", err)
	}
}

func TestContinuousRollsSegments(t *testing.T) {
	sink := &MemorySink{}
	var files []RecordedFile
	var states []State
	s, clk, encs := testSession(sink, Options{
		Continuous:   true,
		SegmentLimit: DefaultSegmentLimit,
		OnFile:       func(f RecordedFile) { files = append(files, f) },
		OnState:      func(st State) { states = append(states, st) },
	})

	if err := s.Start(audioStream(), capture.ModeAudio); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// 2399 seconds of recording: one roll at the 20 minute mark.
	tickSeconds(s, clk, 2399)
	if s.State() != StateRecording {
		t.Fatalf("state = %v after roll, must stay recording", s.State())
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 rolled segment so far, got %d", len(files))
	}

	clk.Advance(time.Second)
	if _, err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if len(files) != 2 {
		t.Fatalf("expected exactly 2 files for 2400s, got %d", len(files))
	}
	first, second := files[0], files[1]
	if !first.Partial || first.Segment != 1 {
		t.Fatalf("rolled segment metadata: %+v", first)
	}
	if second.Partial || second.Segment != 2 {
		t.Fatalf("final segment metadata: %+v", second)
	}
	if first.DurationSeconds != 1200 || second.DurationSeconds != 1200 {
		t.Fatalf("durations = %v / %v, want 1200 each",
			first.DurationSeconds, second.DurationSeconds)
	}
	if len(*encs) != 2 {
		t.Fatalf("expected a fresh encoder per segment, got %d", len(*encs))
	}
	// Rolls emit no state transitions: only start and the final stop do.
	want := []State{StateRecording, StateFinalizing, StateIdle}
	if len(states) != len(want) {
		t.Fatalf("state events = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state events = %v, want %v", states, want)
		}
	}
}

func TestNonContinuousNeverRolls(t *testing.T) {
	sink := &MemorySink{}
	s, clk, encs := testSession(sink, Options{SegmentLimit: time.Minute})
	if err := s.Start(audioStream(), capture.ModeAudio); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tickSeconds(s, clk, 300)
	if _, err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := len(sink.Saved()); got != 1 {
		t.Fatalf("expected a single file without continuous mode, got %d", got)
	}
	if len(*encs) != 1 {
		t.Fatalf("expected a single encoder, got %d", len(*encs))
	}
}

func TestPauseDefersSegmentRoll(t *testing.T) {
	sink := &MemorySink{}
	var files []RecordedFile
	s, clk, _ := testSession(sink, Options{
		Continuous:   true,
		SegmentLimit: 10 * time.Second,
		OnFile:       func(f RecordedFile) { files = append(files, f) },
	})
	if err := s.Start(audioStream(), capture.ModeAudio); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tickSeconds(s, clk, 5)
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	clk.Advance(100 * time.Second)
	s.tick(clk.Now())
	if len(files) != 0 {
		t.Fatal("paused session must not roll segments")
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	tickSeconds(s, clk, 5) // active time reaches the limit only now
	if len(files) != 1 || !files[0].Partial {
		t.Fatalf("expected one rolled segment after resume, got %d", len(files))
	}
	if files[0].DurationSeconds != 10 {
		t.Fatalf("segment duration = %v, want 10s of active time", files[0].DurationSeconds)
	}
	if _, err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestFailedSegmentRollStopsGracefully(t *testing.T) {
	sink := &MemorySink{}
	var mu sync.Mutex
	var reported []error
	calls := 0
	s, clk, _ := testSession(sink, Options{
		Continuous:   true,
		SegmentLimit: 10 * time.Second,
		NewEncoder: func(encoder.Format, capture.Stream) (encoder.Encoder, error) {
			calls++
			if calls > 1 {
				return nil, errors.New("device went away")
			}
			return encoder.NewFakeEncoder(), nil
		},
		OnError: func(err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		},
	})
	if err := s.Start(audioStream(), capture.ModeAudio); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The roll at the limit fails to build the next segment's encoder.
	tickSeconds(s, clk, 10)
	// Further ticks may land before the forced stop does; they must be
	// no-ops rather than touch the missing encoder.
	s.tick(clk.Now())

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != StateIdle {
		if time.Now().After(deadline) {
			t.Fatal("session did not stop after the failed roll")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := len(sink.Saved()); got != 1 {
		t.Fatalf("rolled segment must be preserved, got %d files", got)
	}
	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, err := range reported {
		if errors.Is(err, ErrRecorderInit) {
			found = true
		}
	}
	if !found {
		t.Fatalf("roll failure was not surfaced: %v", reported)
	}
}

func TestAsyncEncoderErrorForcesStop(t *testing.T) {
	sink := &MemorySink{}
	var mu sync.Mutex
	var reported []error
	s, clk, encs := testSession(sink, Options{
		OnError: func(err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		},
	})
	if err := s.Start(audioStream(), capture.ModeAudio); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tickSeconds(s, clk, 2)

	boom := errors.New("device stalled")
	(*encs)[0].FailAsync(boom)

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != StateIdle {
		if time.Now().After(deadline) {
			t.Fatal("session did not stop after an async encoder error")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := len(sink.Saved()); got != 1 {
		t.Fatalf("captured data should be preserved, got %d files", got)
	}
	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, err := range reported {
		if errors.Is(err, boom) {
			found = true
		}
	}
	if !found {
		t.Fatalf("encoder error was not surfaced: %v", reported)
	}
}

func TestSinkFailureSurfaced(t *testing.T) {
	diskFull := errors.New("disk full")
	s, clk, _ := testSession(&MemorySink{Err: diskFull}, Options{})
	if err := s.Start(audioStream(), capture.ModeAudio); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tickSeconds(s, clk, 1)
	if _, err := s.Stop(); !errors.Is(err, diskFull) {
		t.Fatalf("expected sink error from Stop, got %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %v, session must settle idle even on sink failure", s.State())
	}
}

func TestFormatSelectionHonorsPreferenceOrder(t *testing.T) {
	s, _, _ := testSession(&MemorySink{}, Options{
		Supports: func(f encoder.Format) bool {
			return f.Container == "webm" && f.VideoCodec == "vp9"
		},
	})
	stream := &fakeStream{video: []capture.VideoTrack{capture.NewFakeVideoTrack("v", 8, 8)}}
	if err := s.Start(stream, capture.ModeVideo); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if f := s.Format(); f.Container != "webm" || f.VideoCodec != "vp9" {
		t.Fatalf("picked %v, want the first supported preference", f)
	}
	if _, err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	s2, _, _ := testSession(&MemorySink{}, Options{
		Supports: func(encoder.Format) bool { return false },
	})
	if err := s2.Start(stream, capture.ModeVideo); !errors.Is(err, ErrNoFormat) {
		t.Fatalf("expected ErrNoFormat, got %v", err)
	}
}

func TestFileNameLayout(t *testing.T) {
	at := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	name := FileName(capture.ModeScreen, "avi", at)
	if name != "recording-screen-2026-01-02T15-04-05Z.avi" {
		t.Fatalf("FileName = %q", name)
	}
	if strings.Contains(strings.TrimSuffix(name, ".avi"), ":") {
		t.Fatalf("colon left in %q", name)
	}
}
