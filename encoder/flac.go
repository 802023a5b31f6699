package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"github.com/IamFishR/webcrecorder/capture"
)

// flacEncoder streams a mono PCM track into a FLAC container. The stream
// header goes out with NSamples=0 so the container stays append-only and
// every drained chunk is final.
type flacEncoder struct {
	track      capture.AudioTrack
	sampleRate uint32

	mu      sync.Mutex
	buf     bytes.Buffer
	enc     *flac.Encoder
	pending []int16
	samples uint64
	off     int
	paused  bool
	closed  bool
	err     error
	onError func(error)
}

func newFlacEncoder(track capture.AudioTrack) (*flacEncoder, error) {
	if track.Channels() != 1 {
		return nil, ErrUnsupportedStream
	}
	e := &flacEncoder{track: track, sampleRate: track.SampleRate()}
	info := &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    e.sampleRate,
		NChannels:     1,
		BitsPerSample: BitsPerSample,
		NSamples:      0,
	}
	enc, err := flac.NewEncoder(&e.buf, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	e.enc = enc
	return e, nil
}

func (e *flacEncoder) Start() error {
	e.track.SetCallback(func(data []byte, nsamples uint32) {
		e.consume(data)
	})
	return nil
}

// consume runs on the capture callback goroutine. Full blocks are encoded
// immediately; the remainder waits for more samples or for Flush.
func (e *flacEncoder) consume(data []byte) {
	e.mu.Lock()
	if e.paused || e.closed || e.err != nil {
		e.mu.Unlock()
		return
	}
	for i := 0; i+1 < len(data); i += 2 {
		e.pending = append(e.pending, int16(binary.LittleEndian.Uint16(data[i:])))
	}
	var err error
	for len(e.pending) >= BlockSize && err == nil {
		err = e.encodeBlock(e.pending[:BlockSize])
		e.pending = e.pending[BlockSize:]
	}
	if err != nil {
		e.err = err
	}
	fn := e.onError
	e.mu.Unlock()
	if err != nil && fn != nil {
		fn(err)
	}
}

// encodeBlock writes one verbatim-predicted frame. Caller holds e.mu.
func (e *flacEncoder) encodeBlock(block []int16) error {
	samples32 := make([]int32, len(block))
	for i, s := range block {
		samples32[i] = int32(s)
	}

	subframe := &frame.Subframe{
		SubHeader: frame.SubHeader{
			Pred: frame.PredVerbatim,
		},
		Samples:  samples32,
		NSamples: len(block),
	}

	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    e.sampleRate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{subframe},
	}

	if err := e.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	e.samples += uint64(len(block))
	return nil
}

func (e *flacEncoder) Drain() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drainLocked()
}

func (e *flacEncoder) drainLocked() []byte {
	all := e.buf.Bytes()
	if e.off >= len(all) {
		return nil
	}
	out := make([]byte, len(all)-e.off)
	copy(out, all[e.off:])
	e.off = len(all)
	return out
}

func (e *flacEncoder) SetPaused(paused bool) {
	e.mu.Lock()
	e.paused = paused
	e.mu.Unlock()
}

func (e *flacEncoder) Flush() ([]byte, error) {
	e.track.ClearCallback()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, e.err
	}
	e.closed = true
	if len(e.pending) > 0 && e.err == nil {
		if err := e.encodeBlock(e.pending); err != nil {
			e.err = err
		}
		e.pending = nil
	}
	if err := e.enc.Close(); err != nil && e.err == nil {
		e.err = err
	}
	return e.drainLocked(), e.err
}

func (e *flacEncoder) Finalize(data []byte) []byte { return data }

func (e *flacEncoder) OnError(fn func(error)) {
	e.mu.Lock()
	e.onError = fn
	e.mu.Unlock()
}

// Samples reports how many PCM samples were encoded so far.
func (e *flacEncoder) Samples() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.samples
}
