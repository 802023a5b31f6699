package record

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IamFishR/webcrecorder/capture"
)

// Sink persists a finalized recording and reports where it landed.
type Sink interface {
	Save(data []byte, mode capture.Mode, ext string, at time.Time) (path, name string, err error)
}

// FileName builds the canonical recording file name: the mode and the
// capture timestamp, with the characters that are unsafe in file names
// replaced by dashes.
func FileName(mode capture.Mode, ext string, at time.Time) string {
	ts := at.Format(time.RFC3339)
	ts = strings.NewReplacer(":", "-", ".", "-", "+", "-").Replace(ts)
	return fmt.Sprintf("recording-%s-%s.%s", mode, ts, ext)
}

// MemorySink keeps finalized recordings in memory for tests and dry runs.
type MemorySink struct {
	Err error // returned by every Save when set

	mu    sync.Mutex
	saved []SavedBlob
}

type SavedBlob struct {
	Data []byte
	Mode capture.Mode
	Ext  string
	At   time.Time
	Name string
}

func (m *MemorySink) Save(data []byte, mode capture.Mode, ext string, at time.Time) (string, string, error) {
	if m.Err != nil {
		return "", "", m.Err
	}
	name := FileName(mode, ext, at)
	blob := SavedBlob{
		Data: append([]byte(nil), data...),
		Mode: mode,
		Ext:  ext,
		At:   at,
		Name: name,
	}
	m.mu.Lock()
	m.saved = append(m.saved, blob)
	m.mu.Unlock()
	return "mem://" + name, name, nil
}

func (m *MemorySink) Saved() []SavedBlob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SavedBlob, len(m.saved))
	copy(out, m.saved)
	return out
}
