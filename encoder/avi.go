package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image/jpeg"
	"sync"
	"time"

	"github.com/IamFishR/webcrecorder/capture"
)

const jpegQuality = 85

// aviEncoder muxes MJPEG video and optional interleaved PCM audio into an
// AVI container. Chunks stream out append-only with zeroed size fields;
// the idx1 index goes out at Flush and Finalize patches the headers once
// the full byte sequence is assembled.
type aviEncoder struct {
	video capture.VideoTrack
	audio capture.AudioTrack

	mu      sync.Mutex
	buf     bytes.Buffer
	off     int
	pcm     []byte
	index   []idxEntry
	frames  uint32
	samples uint32
	width   int
	height  int
	paused  bool
	closed  bool
	err     error
	onError func(error)

	started  bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	moviStart      int
	moviSize       uint32
	offRIFFSize    int
	offTotalFrames int
	offAVIWidth    int
	offAVIHeight   int
	offVidLength   int
	offVidWidth    int
	offVidHeight   int
	offAudLength   int
	offMoviSize    int
}

type idxEntry struct {
	id     string
	flags  uint32
	offset uint32
	size   uint32
}

func newAVIEncoder(video capture.VideoTrack, audio capture.AudioTrack) *aviEncoder {
	return &aviEncoder{
		video: video,
		audio: audio,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (e *aviEncoder) Start() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.writeHeader()
	e.mu.Unlock()

	if e.audio != nil {
		e.audio.SetCallback(func(data []byte, nsamples uint32) {
			e.mu.Lock()
			if !e.paused && !e.closed {
				e.pcm = append(e.pcm, data...)
			}
			e.mu.Unlock()
		})
	}
	go e.pump()
	return nil
}

func (e *aviEncoder) pump() {
	defer close(e.done)
	ticker := time.NewTicker(time.Second / VideoFPS)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

// tick writes one video chunk from the track's latest frame, then drains
// buffered PCM into an interleaved audio chunk. A source without a frame
// yet contributes nothing this tick.
func (e *aviEncoder) tick() {
	frame, ok := e.video.Frame()
	if !ok {
		return
	}

	e.mu.Lock()
	if e.paused || e.closed || e.err != nil {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	var jbuf bytes.Buffer
	if err := jpeg.Encode(&jbuf, frame.Image, &jpeg.Options{Quality: jpegQuality}); err != nil {
		e.fail(fmt.Errorf("encoding video frame: %w", err))
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if e.frames == 0 {
		b := frame.Image.Bounds()
		e.width, e.height = b.Dx(), b.Dy()
	}
	e.writeChunk("00dc", jbuf.Bytes(), 0x10)
	e.frames++
	e.drainPCMLocked()
	e.mu.Unlock()
}

// drainPCMLocked moves buffered audio into one 01wb chunk. Caller holds e.mu.
func (e *aviEncoder) drainPCMLocked() {
	if len(e.pcm) == 0 {
		return
	}
	e.writeChunk("01wb", e.pcm, 0)
	e.samples += uint32(len(e.pcm) / 2)
	e.pcm = nil
}

func (e *aviEncoder) fail(err error) {
	e.mu.Lock()
	if e.err == nil {
		e.err = err
	}
	fn := e.onError
	e.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (e *aviEncoder) Drain() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drainLocked()
}

func (e *aviEncoder) drainLocked() []byte {
	all := e.buf.Bytes()
	if e.off >= len(all) {
		return nil
	}
	out := make([]byte, len(all)-e.off)
	copy(out, all[e.off:])
	e.off = len(all)
	return out
}

func (e *aviEncoder) SetPaused(paused bool) {
	e.mu.Lock()
	e.paused = paused
	e.mu.Unlock()
}

func (e *aviEncoder) Flush() ([]byte, error) {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if started {
		e.stopOnce.Do(func() { close(e.stop) })
		<-e.done
	}
	if e.audio != nil {
		e.audio.ClearCallback()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, e.err
	}
	e.closed = true
	if !started {
		return e.drainLocked(), e.err
	}
	e.drainPCMLocked()
	e.moviSize = uint32(e.buf.Len() - e.moviStart)
	e.writeIndex()
	return e.drainLocked(), e.err
}

func (e *aviEncoder) writeIndex() {
	e.wstr("idx1")
	e.wu32(uint32(16 * len(e.index)))
	for _, ent := range e.index {
		e.wstr(ent.id)
		e.wu32(ent.flags)
		e.wu32(ent.offset)
		e.wu32(ent.size)
	}
}

// Finalize patches the size and count fields the streaming pass left
// zeroed. data is the full assembled container.
func (e *aviEncoder) Finalize(data []byte) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	patch := func(off int, v uint32) {
		if off > 0 && off+4 <= len(data) {
			binary.LittleEndian.PutUint32(data[off:], v)
		}
	}
	patch(e.offRIFFSize, uint32(len(data)-8))
	patch(e.offMoviSize, e.moviSize)
	patch(e.offTotalFrames, e.frames)
	patch(e.offVidLength, e.frames)
	patch(e.offAVIWidth, uint32(e.width))
	patch(e.offAVIHeight, uint32(e.height))
	patch(e.offVidWidth, uint32(e.width))
	patch(e.offVidHeight, uint32(e.height))
	if e.audio != nil {
		patch(e.offAudLength, e.samples)
	}
	return data
}

func (e *aviEncoder) OnError(fn func(error)) {
	e.mu.Lock()
	e.onError = fn
	e.mu.Unlock()
}

// writeChunk appends one movi chunk and its index entry. Caller holds e.mu.
func (e *aviEncoder) writeChunk(id string, data []byte, flags uint32) {
	offset := uint32(e.buf.Len() - e.moviStart)
	e.wstr(id)
	e.wu32(uint32(len(data)))
	e.buf.Write(data)
	if len(data)%2 == 1 {
		e.buf.WriteByte(0)
	}
	e.index = append(e.index, idxEntry{id: id, flags: flags, offset: offset, size: uint32(len(data))})
}

// writeHeader lays out RIFF/hdrl/strl and opens the movi list. All fields
// that depend on the recording's extent are written as zero and patched in
// Finalize. Caller holds e.mu.
func (e *aviEncoder) writeHeader() {
	const (
		vidStrlSize = 4 + 64 + 48 // "strl" + strh chunk + strf chunk
		audStrlSize = 4 + 64 + 24
	)
	streams := uint32(1)
	hdrlSize := uint32(4 + 64 + 8 + vidStrlSize)
	if e.audio != nil {
		streams = 2
		hdrlSize += 8 + audStrlSize
	}

	e.wstr("RIFF")
	e.offRIFFSize = e.mark()
	e.wu32(0)
	e.wstr("AVI ")

	e.wstr("LIST")
	e.wu32(hdrlSize)
	e.wstr("hdrl")

	e.wstr("avih")
	e.wu32(56)
	e.wu32(1000000 / VideoFPS) // microseconds per frame
	e.wu32(0)                  // max bytes per second
	e.wu32(0)                  // padding granularity
	e.wu32(0x10)               // has index
	e.offTotalFrames = e.mark()
	e.wu32(0)
	e.wu32(0) // initial frames
	e.wu32(streams)
	e.wu32(0) // suggested buffer size
	e.offAVIWidth = e.mark()
	e.wu32(0)
	e.offAVIHeight = e.mark()
	e.wu32(0)
	for i := 0; i < 4; i++ {
		e.wu32(0)
	}

	// Video stream.
	e.wstr("LIST")
	e.wu32(vidStrlSize)
	e.wstr("strl")
	e.wstr("strh")
	e.wu32(56)
	e.wstr("vids")
	e.wstr("MJPG")
	e.wu32(0) // flags
	e.wu16(0) // priority
	e.wu16(0) // language
	e.wu32(0) // initial frames
	e.wu32(1) // scale
	e.wu32(VideoFPS)
	e.wu32(0) // start
	e.offVidLength = e.mark()
	e.wu32(0)
	e.wu32(0)          // suggested buffer size
	e.wu32(0xFFFFFFFF) // quality
	e.wu32(0)          // sample size
	e.wu32(0)          // rcFrame left/top
	e.wu32(0)          // rcFrame right/bottom
	e.wstr("strf")
	e.wu32(40)
	e.wu32(40) // biSize
	e.offVidWidth = e.mark()
	e.wu32(0)
	e.offVidHeight = e.mark()
	e.wu32(0)
	e.wu16(1)  // planes
	e.wu16(24) // bit count
	e.wstr("MJPG")
	e.wu32(0) // size image
	e.wu32(0) // x pixels per meter
	e.wu32(0) // y pixels per meter
	e.wu32(0) // colors used
	e.wu32(0) // colors important

	if e.audio != nil {
		rate := e.audio.SampleRate()
		channels := e.audio.Channels()
		blockAlign := 2 * channels

		e.wstr("LIST")
		e.wu32(audStrlSize)
		e.wstr("strl")
		e.wstr("strh")
		e.wu32(56)
		e.wstr("auds")
		e.wu32(0) // handler
		e.wu32(0) // flags
		e.wu16(0)
		e.wu16(0)
		e.wu32(0) // initial frames
		e.wu32(1) // scale
		e.wu32(rate)
		e.wu32(0) // start
		e.offAudLength = e.mark()
		e.wu32(0)
		e.wu32(0)          // suggested buffer size
		e.wu32(0xFFFFFFFF) // quality
		e.wu32(blockAlign) // sample size
		e.wu32(0)
		e.wu32(0)
		e.wstr("strf")
		e.wu32(16)
		e.wu16(1) // PCM
		e.wu16(uint16(channels))
		e.wu32(rate)
		e.wu32(rate * blockAlign)
		e.wu16(uint16(blockAlign))
		e.wu16(BitsPerSample)
	}

	e.wstr("LIST")
	e.offMoviSize = e.mark()
	e.wu32(0)
	e.wstr("movi")
	e.moviStart = e.buf.Len() - 4
}

func (e *aviEncoder) mark() int { return e.buf.Len() }

func (e *aviEncoder) wstr(s string) { e.buf.WriteString(s) }

func (e *aviEncoder) wu32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *aviEncoder) wu16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}
