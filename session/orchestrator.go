// Package session coordinates capture, compositing and recording behind
// one serialized command loop, so the tray, hotkeys and the CLI all drive
// the same path and repeated triggers stay idempotent.
package session

import (
	"context"
	"errors"

	"github.com/IamFishR/webcrecorder/capture"
	"github.com/IamFishR/webcrecorder/compositor"
	"github.com/IamFishR/webcrecorder/record"
	"github.com/IamFishR/webcrecorder/settings"
)

type Command int

const (
	CmdStart Command = iota
	CmdStop
	CmdToggle
	// CmdPause toggles between paused and recording.
	CmdPause
)

func (c Command) String() string {
	switch c {
	case CmdStart:
		return "start"
	case CmdStop:
		return "stop"
	case CmdToggle:
		return "toggle"
	case CmdPause:
		return "pause"
	default:
		return "unknown"
	}
}

// Status is pushed to the indicator surface on every state change.
type Status struct {
	Recording bool
	Paused    bool
}

type StatusSink interface {
	SetStatus(Status)
}

// StatusFunc adapts a function to StatusSink.
type StatusFunc func(Status)

func (f StatusFunc) SetStatus(st Status) { f(st) }

// Orchestrator owns the acquire-composite-record wiring for one recording
// at a time. All commands funnel through Run's goroutine; none of the
// internal state needs locking.
type Orchestrator struct {
	manager *capture.Manager
	rec     *record.Session
	comp    *compositor.Compositor // nil records the raw stream

	cfg     settings.Settings
	status  StatusSink
	onError func(error)

	cmds    chan Command
	applyCh chan settings.Settings

	primary   *capture.LiveStream
	overlay   *capture.LiveStream
	composite *compositor.CompositeStream
}

func New(manager *capture.Manager, rec *record.Session, comp *compositor.Compositor, cfg settings.Settings, status StatusSink, onError func(error)) *Orchestrator {
	if onError == nil {
		onError = func(error) {}
	}
	return &Orchestrator{
		manager: manager,
		rec:     rec,
		comp:    comp,
		cfg:     cfg,
		status:  status,
		onError: onError,
		cmds:    make(chan Command, 8),
		applyCh: make(chan settings.Settings, 1),
	}
}

// Send enqueues a command without blocking; a full queue drops the
// command, matching the behavior of mashing a hotkey.
func (o *Orchestrator) Send(cmd Command) {
	select {
	case o.cmds <- cmd:
	default:
	}
}

// Apply updates the defaults used by the next recording. The active
// recording is unaffected.
func (o *Orchestrator) Apply(s settings.Settings) {
	for {
		select {
		case o.applyCh <- s:
			return
		case <-o.applyCh:
		}
	}
}

// Run processes commands until ctx ends, then finalizes any active
// recording before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			o.stopRecording()
			o.pushStatus()
			return ctx.Err()
		case s := <-o.applyCh:
			o.cfg = s
		case cmd := <-o.cmds:
			// A pending settings update always lands before the command.
			select {
			case s := <-o.applyCh:
				o.cfg = s
			default:
			}
			o.handle(ctx, cmd)
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, cmd Command) {
	switch cmd {
	case CmdStart:
		if o.rec.State() == record.StateIdle {
			o.startRecording(ctx)
		}
	case CmdStop:
		o.stopRecording()
	case CmdToggle:
		if o.rec.State() == record.StateIdle {
			o.startRecording(ctx)
		} else {
			o.stopRecording()
		}
	case CmdPause:
		switch o.rec.State() {
		case record.StateRecording:
			if err := o.rec.Pause(); err != nil {
				o.onError(err)
			}
		case record.StatePaused:
			if err := o.rec.Resume(); err != nil {
				o.onError(err)
			}
		}
	}
	o.pushStatus()
}

func (o *Orchestrator) startRecording(ctx context.Context) {
	mode := o.cfg.Mode
	stream, err := o.acquire(ctx, mode)
	if err != nil {
		o.onError(err)
		return
	}
	if err := o.rec.Start(stream, mode); err != nil {
		o.teardown()
		o.onError(err)
	}
}

// acquire opens the streams for mode and returns what the recorder should
// consume. Screen mode composites a camera PiP on top when a compositor
// and a camera are available; either one missing degrades to the raw
// screen stream.
func (o *Orchestrator) acquire(ctx context.Context, mode capture.Mode) (capture.Stream, error) {
	if mode != capture.ModeScreen {
		stream, _, err := o.manager.Acquire(ctx, mode, o.cfg.Constraints)
		if err != nil {
			return nil, err
		}
		o.primary = stream
		return stream, nil
	}

	screen, err := o.manager.AcquireScreen(ctx, o.cfg.Constraints, o.cfg.ScreenMic)
	if err != nil {
		return nil, err
	}
	o.primary = screen

	if o.comp == nil {
		return screen, nil
	}
	overlay, err := o.manager.AcquireOverlay(ctx, o.cfg.Constraints)
	if err != nil {
		// No camera is not fatal for a screen recording.
		overlay = nil
	}
	o.overlay = overlay
	o.composite = o.comp.Start(screen, streamOrNil(overlay))
	return o.composite, nil
}

func streamOrNil(s *capture.LiveStream) capture.Stream {
	if s == nil {
		return nil
	}
	return s
}

// stopRecording finalizes the active recording and always tears down held
// streams, so it doubles as reconciliation after a forced internal stop.
func (o *Orchestrator) stopRecording() {
	if o.rec.State() != record.StateIdle {
		if _, err := o.rec.Stop(); err != nil && !errors.Is(err, record.ErrBadState) {
			o.onError(err)
		}
	}
	o.teardown()
}

// teardown order matters: the composite borrows the source tracks, so it
// stops before any source is released.
func (o *Orchestrator) teardown() {
	if o.composite != nil {
		o.composite.Stop()
		o.composite = nil
	}
	if o.overlay != nil {
		o.manager.Release(o.overlay)
		o.overlay = nil
	}
	if o.primary != nil {
		o.manager.Release(o.primary)
		o.primary = nil
	}
}

func (o *Orchestrator) pushStatus() {
	if o.status == nil {
		return
	}
	st := o.rec.State()
	o.status.SetStatus(Status{
		Recording: st != record.StateIdle,
		Paused:    st == record.StatePaused,
	})
}
