package encoder

import "sync"

// FakeEncoder is a deterministic Encoder for tests. Every Drain emits
// ChunkData, Flush emits TailData, and the calls are counted so tests can
// assert the recorder's drain cadence and finalize sequence.
type FakeEncoder struct {
	ChunkData []byte
	TailData  []byte
	StartErr  error
	FlushErr  error

	mu          sync.Mutex
	started     bool
	flushed     bool
	paused      bool
	drainCalls  int
	pauseEvents []bool
	onError     func(error)
}

func NewFakeEncoder() *FakeEncoder {
	return &FakeEncoder{
		ChunkData: []byte("chunk"),
		TailData:  []byte("tail"),
	}
}

func (e *FakeEncoder) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.StartErr != nil {
		return e.StartErr
	}
	e.started = true
	return nil
}

func (e *FakeEncoder) Drain() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drainCalls++
	if e.paused || !e.started || e.flushed {
		return nil
	}
	out := make([]byte, len(e.ChunkData))
	copy(out, e.ChunkData)
	return out
}

func (e *FakeEncoder) SetPaused(paused bool) {
	e.mu.Lock()
	e.paused = paused
	e.pauseEvents = append(e.pauseEvents, paused)
	e.mu.Unlock()
}

func (e *FakeEncoder) Flush() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.flushed {
		return nil, e.FlushErr
	}
	e.flushed = true
	if e.FlushErr != nil {
		return nil, e.FlushErr
	}
	out := make([]byte, len(e.TailData))
	copy(out, e.TailData)
	return out, nil
}

func (e *FakeEncoder) Finalize(data []byte) []byte { return data }

func (e *FakeEncoder) OnError(fn func(error)) {
	e.mu.Lock()
	e.onError = fn
	e.mu.Unlock()
}

// FailAsync injects an asynchronous encode error, as a device stall would.
func (e *FakeEncoder) FailAsync(err error) {
	e.mu.Lock()
	fn := e.onError
	e.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (e *FakeEncoder) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

func (e *FakeEncoder) Flushed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushed
}

func (e *FakeEncoder) DrainCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drainCalls
}

// PauseEvents returns the SetPaused argument history.
func (e *FakeEncoder) PauseEvents() []bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]bool, len(e.pauseEvents))
	copy(out, e.pauseEvents)
	return out
}
