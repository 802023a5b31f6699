// Package store keeps the recording library on disk: the finalized media
// files plus a TOML index carrying their metadata.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/IamFishR/webcrecorder/capture"
	"github.com/IamFishR/webcrecorder/record"
)

const indexName = "library.toml"

var ErrNotFound = errors.New("store: recording not found")

// Store is the recording library rooted at one directory. It implements
// record.Sink for finalized recording bytes.
type Store struct {
	dir string

	mu    sync.Mutex
	items []record.RecordedFile
}

// Open loads the library at dir, creating it when absent. Index entries
// whose media file disappeared are pruned on load.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating library dir: %w", err)
	}
	s := &Store{dir: dir}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Dir() string { return s.dir }

type indexFile struct {
	Recording []indexEntry `toml:"recording"`
}

type indexEntry struct {
	ID          string    `toml:"id"`
	DisplayName string    `toml:"display_name"`
	Mode        string    `toml:"mode"`
	FileName    string    `toml:"file_name"`
	CreatedAt   time.Time `toml:"created_at"`
	Duration    float64   `toml:"duration_seconds"`
	SizeBytes   int64     `toml:"size_bytes"`
	Segment     int       `toml:"segment"`
	Partial     bool      `toml:"partial"`
}

func (s *Store) load() error {
	var idx indexFile
	path := filepath.Join(s.dir, indexName)
	if _, err := toml.DecodeFile(path, &idx); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading library index: %w", err)
	}

	pruned := false
	for _, e := range idx.Recording {
		mode, err := capture.ParseMode(e.Mode)
		if err != nil {
			pruned = true
			continue
		}
		filePath := filepath.Join(s.dir, e.FileName)
		if _, err := os.Stat(filePath); err != nil {
			pruned = true
			continue
		}
		s.items = append(s.items, record.RecordedFile{
			ID:              e.ID,
			DisplayName:     e.DisplayName,
			Mode:            mode,
			FilePath:        filePath,
			FileName:        e.FileName,
			CreatedAt:       e.CreatedAt,
			DurationSeconds: e.Duration,
			SizeBytes:       e.SizeBytes,
			Segment:         e.Segment,
			Partial:         e.Partial,
		})
	}
	if pruned {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.persistLocked()
	}
	return nil
}

// persistLocked writes the index atomically. Caller holds s.mu.
func (s *Store) persistLocked() error {
	idx := indexFile{Recording: make([]indexEntry, 0, len(s.items))}
	for _, f := range s.items {
		idx.Recording = append(idx.Recording, indexEntry{
			ID:          f.ID,
			DisplayName: f.DisplayName,
			Mode:        f.Mode.String(),
			FileName:    f.FileName,
			CreatedAt:   f.CreatedAt,
			Duration:    f.DurationSeconds,
			SizeBytes:   f.SizeBytes,
			Segment:     f.Segment,
			Partial:     f.Partial,
		})
	}

	tmp, err := os.CreateTemp(s.dir, indexName+".tmp-*")
	if err != nil {
		return fmt.Errorf("writing library index: %w", err)
	}
	if err := toml.NewEncoder(tmp).Encode(idx); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encoding library index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, indexName))
}

// Save writes finalized recording bytes under the canonical name,
// suffixing a counter when two recordings land in the same second.
func (s *Store) Save(data []byte, mode capture.Mode, ext string, at time.Time) (string, string, error) {
	name := record.FileName(mode, ext, at)
	base := strings.TrimSuffix(name, "."+ext)
	path := filepath.Join(s.dir, name)
	for n := 2; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		name = fmt.Sprintf("%s-%d.%s", base, n, ext)
		path = filepath.Join(s.dir, name)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", fmt.Errorf("writing recording: %w", err)
	}
	return path, name, nil
}

// Add registers a finalized recording in the index.
func (s *Store) Add(f record.RecordedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, f)
	return s.persistLocked()
}

// List returns the library newest first.
func (s *Store) List() []record.RecordedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]record.RecordedFile, len(s.items))
	copy(out, s.items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) Get(id string) (record.RecordedFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.items {
		if f.ID == id {
			return f, true
		}
	}
	return record.RecordedFile{}, false
}

// Rename changes the display name only; the file on disk keeps its
// canonical name.
func (s *Store) Rename(id, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return errors.New("store: display name must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].DisplayName = displayName
			return s.persistLocked()
		}
	}
	return ErrNotFound
}

// Delete removes the recording's file and index entry.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if err := os.Remove(s.items[i].FilePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("deleting recording: %w", err)
		}
		s.items = append(s.items[:i], s.items[i+1:]...)
		return s.persistLocked()
	}
	return ErrNotFound
}

// pruneMissing drops index entries whose media file disappeared. Reports
// whether anything changed.
func (s *Store) pruneMissing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	for _, f := range s.items {
		if _, err := os.Stat(f.FilePath); err == nil {
			kept = append(kept, f)
		}
	}
	if len(kept) == len(s.items) {
		return false
	}
	s.items = kept
	if err := s.persistLocked(); err != nil {
		return true
	}
	return true
}
