// Package record drives one recording at a time through its lifecycle:
// idle, recording, paused, finalizing. It drains the encoder on a fixed
// cadence and, in continuous mode, rolls to a new segment once the active
// recording time reaches the segment limit.
package record

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/IamFishR/webcrecorder/capture"
	"github.com/IamFishR/webcrecorder/encoder"
)

const (
	DefaultSliceInterval = time.Second
	DefaultSegmentLimit  = 20 * time.Minute
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

var (
	ErrNoActiveStream = errors.New("record: no active stream")
	ErrBadState       = errors.New("record: operation not valid in this state")
	ErrNoFormat       = errors.New("record: no supported container format")
	ErrRecorderInit   = errors.New("record: recorder failed to initialize")
)

// RecordedFile describes one persisted recording. Partial marks segments
// that were rolled mid-recording; the file produced at Stop is not partial
// even when it is shorter than the segment limit.
type RecordedFile struct {
	ID              string
	DisplayName     string
	Mode            capture.Mode
	FilePath        string
	FileName        string
	CreatedAt       time.Time
	DurationSeconds float64
	SizeBytes       int64
	Segment         int
	Partial         bool
}

type Options struct {
	// SliceInterval is the encoder drain cadence. Defaults to one second.
	SliceInterval time.Duration
	// Continuous enables segment rolling at SegmentLimit of active time.
	Continuous   bool
	SegmentLimit time.Duration

	// Supports and NewEncoder default to the encoder package; tests
	// inject both to pin format selection and encoder behavior.
	Supports   func(encoder.Format) bool
	NewEncoder func(encoder.Format, capture.Stream) (encoder.Encoder, error)
	Now        func() time.Time

	OnFile  func(RecordedFile)
	OnError func(error)
	OnState func(State)
}

// Session is the recording state machine. All operations are safe for
// concurrent use; callbacks fire without the session lock held.
type Session struct {
	sink Sink
	opts Options

	mu        sync.Mutex
	state     State
	stream    capture.Stream
	mode      capture.Mode
	format    encoder.Format
	enc       encoder.Encoder
	buf       bytes.Buffer
	segment   int
	startedAt time.Time
	segStart  time.Time
	pausedAt  time.Time
	pausedSeg time.Duration
	stopTick  chan struct{}
	loopDone  chan struct{}
}

func NewSession(sink Sink, opts Options) *Session {
	if opts.SliceInterval <= 0 {
		opts.SliceInterval = DefaultSliceInterval
	}
	if opts.SegmentLimit <= 0 {
		opts.SegmentLimit = DefaultSegmentLimit
	}
	if opts.Supports == nil {
		opts.Supports = encoder.Supported
	}
	if opts.NewEncoder == nil {
		opts.NewEncoder = encoder.New
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{sink: sink, opts: opts}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Format() encoder.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// Start picks the first supported container format for the mode, builds
// the encoder and begins draining. Valid only while idle.
func (s *Session) Start(stream capture.Stream, mode capture.Mode) error {
	if stream == nil || !stream.Active() {
		return ErrNoActiveStream
	}
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("%w: start while %v", ErrBadState, s.state)
	}
	format, ok := s.pickFormat(mode)
	if !ok {
		s.mu.Unlock()
		return ErrNoFormat
	}
	enc, err := s.opts.NewEncoder(format, stream)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrRecorderInit, err)
	}
	enc.OnError(s.encodeFailed)
	if err := enc.Start(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrRecorderInit, err)
	}

	now := s.opts.Now()
	s.stream = stream
	s.mode = mode
	s.format = format
	s.enc = enc
	s.buf.Reset()
	s.segment = 1
	s.startedAt = now
	s.segStart = now
	s.pausedSeg = 0
	s.state = StateRecording
	s.stopTick = make(chan struct{})
	s.loopDone = make(chan struct{})
	go s.loop(s.stopTick, s.loopDone)
	s.mu.Unlock()

	s.notifyState(StateRecording)
	return nil
}

func (s *Session) pickFormat(mode capture.Mode) (encoder.Format, bool) {
	for _, f := range encoder.Preferences(mode) {
		if s.opts.Supports(f) {
			return f, true
		}
	}
	return encoder.Format{}, false
}

// Pause stops consuming media without tearing anything down. Pausing an
// already paused session is a no-op.
func (s *Session) Pause() error {
	s.mu.Lock()
	switch s.state {
	case StatePaused:
		s.mu.Unlock()
		return nil
	case StateRecording:
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: pause while %v", ErrBadState, s.state)
	}
	s.pausedAt = s.opts.Now()
	s.enc.SetPaused(true)
	s.state = StatePaused
	s.mu.Unlock()
	s.notifyState(StatePaused)
	return nil
}

// Resume continues a paused recording. The paused span is excluded from
// the recording's duration and from segment-limit accounting.
func (s *Session) Resume() error {
	s.mu.Lock()
	switch s.state {
	case StateRecording:
		s.mu.Unlock()
		return nil
	case StatePaused:
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: resume while %v", ErrBadState, s.state)
	}
	s.pausedSeg += s.opts.Now().Sub(s.pausedAt)
	s.enc.SetPaused(false)
	s.state = StateRecording
	s.mu.Unlock()
	s.notifyState(StateRecording)
	return nil
}

// Stop finalizes the recording and hands the result to the sink. The
// returned file is also delivered through OnFile.
func (s *Session) Stop() (RecordedFile, error) {
	s.mu.Lock()
	switch s.state {
	case StateRecording:
	case StatePaused:
		s.pausedSeg += s.opts.Now().Sub(s.pausedAt)
	default:
		s.mu.Unlock()
		return RecordedFile{}, fmt.Errorf("%w: stop while %v", ErrBadState, s.state)
	}
	s.state = StateFinalizing
	stopTick, loopDone := s.stopTick, s.loopDone
	s.mu.Unlock()
	s.notifyState(StateFinalizing)

	close(stopTick)
	<-loopDone

	s.mu.Lock()
	file, err := s.finalizeLocked(s.opts.Now(), false)
	s.resetLocked()
	s.mu.Unlock()

	s.notifyState(StateIdle)
	if err != nil {
		s.reportError(err)
		return file, err
	}
	if file.ID != "" && s.opts.OnFile != nil {
		s.opts.OnFile(file)
	}
	return file, nil
}

func (s *Session) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.opts.SliceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick(s.opts.Now())
		}
	}
}

// tick drains the encoder and rolls the segment when continuous mode hits
// the limit. Paused sessions neither drain nor accrue active time.
func (s *Session) tick(now time.Time) {
	s.mu.Lock()
	if s.state != StateRecording || s.enc == nil {
		// A failed segment roll leaves no encoder while the forced stop is
		// still in flight; those ticks are no-ops.
		s.mu.Unlock()
		return
	}
	if chunk := s.enc.Drain(); len(chunk) > 0 {
		s.buf.Write(chunk)
	}
	if !s.opts.Continuous || now.Sub(s.segStart)-s.pausedSeg < s.opts.SegmentLimit {
		s.mu.Unlock()
		return
	}

	// Roll: finalize this segment and continue into the next one without
	// leaving the recording state.
	file, err := s.finalizeLocked(now, true)
	s.buf.Reset()
	s.segment++
	s.segStart = now
	s.pausedSeg = 0

	var rollErr error
	enc, rerr := s.opts.NewEncoder(s.format, s.stream)
	if rerr != nil {
		rollErr = rerr
	} else {
		enc.OnError(s.encodeFailed)
		if serr := enc.Start(); serr != nil {
			rollErr = serr
		} else {
			s.enc = enc
		}
	}
	if rollErr != nil {
		s.enc = nil
	}
	s.mu.Unlock()

	if err != nil {
		s.reportError(err)
	} else if file.ID != "" && s.opts.OnFile != nil {
		s.opts.OnFile(file)
	}
	if rollErr != nil {
		s.reportError(fmt.Errorf("%w: %v", ErrRecorderInit, rollErr))
		go s.Stop()
	}
}

// finalizeLocked flushes the encoder, assembles the container and saves
// it. An empty recording produces no file. Caller holds s.mu.
func (s *Session) finalizeLocked(now time.Time, partial bool) (RecordedFile, error) {
	if s.enc != nil {
		tail, err := s.enc.Flush()
		s.buf.Write(tail)
		if err != nil {
			s.reportErrorAsync(err)
		}
	}
	if s.buf.Len() == 0 {
		return RecordedFile{}, nil
	}
	data := append([]byte(nil), s.buf.Bytes()...)
	if s.enc != nil {
		data = s.enc.Finalize(data)
	}

	path, name, err := s.sink.Save(data, s.mode, s.format.Ext, now)
	if err != nil {
		return RecordedFile{}, fmt.Errorf("saving recording: %w", err)
	}
	active := now.Sub(s.segStart) - s.pausedSeg
	return RecordedFile{
		ID:              uuid.NewString(),
		DisplayName:     name,
		Mode:            s.mode,
		FilePath:        path,
		FileName:        name,
		CreatedAt:       now,
		DurationSeconds: active.Seconds(),
		SizeBytes:       int64(len(data)),
		Segment:         s.segment,
		Partial:         partial,
	}, nil
}

func (s *Session) resetLocked() {
	s.state = StateIdle
	s.stream = nil
	s.enc = nil
	s.buf.Reset()
	s.segment = 0
	s.pausedSeg = 0
}

// encodeFailed handles asynchronous encoder errors by surfacing them and
// forcing a graceful stop that preserves what was captured so far.
func (s *Session) encodeFailed(err error) {
	s.reportError(err)
	go func() {
		if _, serr := s.Stop(); serr != nil && !errors.Is(serr, ErrBadState) {
			s.reportError(serr)
		}
	}()
}

func (s *Session) notifyState(st State) {
	if s.opts.OnState != nil {
		s.opts.OnState(st)
	}
}

func (s *Session) reportError(err error) {
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}

func (s *Session) reportErrorAsync(err error) {
	if s.opts.OnError != nil {
		go s.opts.OnError(err)
	}
}
