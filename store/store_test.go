package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/IamFishR/webcrecorder/capture"
	"github.com/IamFishR/webcrecorder/record"
)

func testFile(id, name string, at time.Time) record.RecordedFile {
	return record.RecordedFile{
		ID:              id,
		DisplayName:     name,
		Mode:            capture.ModeAudio,
		FileName:        name,
		CreatedAt:       at,
		DurationSeconds: 1,
		SizeBytes:       4,
		Segment:         1,
	}
}

// addWithFile saves real bytes and registers the result, the way the
// recording session does.
func addWithFile(t *testing.T, s *Store, id string, at time.Time) record.RecordedFile {
	t.Helper()
	path, name, err := s.Save([]byte("data"), capture.ModeAudio, "flac", at)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	f := testFile(id, name, at)
	f.FilePath = path
	if err := s.Add(f); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return f
}

func TestSaveWritesCanonicalName(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	at := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	path, name, err := s.Save([]byte("payload"), capture.ModeVideo, "avi", at)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if name != "recording-video-2026-01-02T15-04-05Z.avi" {
		t.Fatalf("name = %q", name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading saved file: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("saved data = %q", data)
	}
}

func TestSaveSameSecondGetsSuffix(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	at := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	_, first, err := s.Save([]byte("a"), capture.ModeAudio, "flac", at)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	_, second, err := s.Save([]byte("b"), capture.ModeAudio, "flac", at)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if first == second {
		t.Fatalf("colliding saves produced the same name %q", first)
	}
}

func TestListNewestFirst(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	addWithFile(t, s, "old", base)
	addWithFile(t, s, "new", base.Add(time.Hour))

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("len = %d", len(list))
	}
	if list[0].ID != "new" || list[1].ID != "old" {
		t.Fatalf("order = %s, %s; want newest first", list[0].ID, list[1].ID)
	}
}

func TestRenameChangesDisplayNameOnly(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f := addWithFile(t, s, "r1", time.Now().UTC())

	if err := s.Rename("r1", "standup notes"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	got, ok := s.Get("r1")
	if !ok {
		t.Fatal("entry vanished after rename")
	}
	if got.DisplayName != "standup notes" {
		t.Fatalf("display name = %q", got.DisplayName)
	}
	if got.FileName != f.FileName {
		t.Fatal("rename must not touch the file name")
	}
	if _, err := os.Stat(f.FilePath); err != nil {
		t.Fatalf("file moved on rename: %v", err)
	}

	if err := s.Rename("r1", "   "); err == nil {
		t.Fatal("blank display name should be rejected")
	}
	if err := s.Rename("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rename of unknown id: %v", err)
	}
}

func TestDeleteRemovesFileAndEntry(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f := addWithFile(t, s, "d1", time.Now().UTC())

	if err := s.Delete("d1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := s.Get("d1"); ok {
		t.Fatal("entry still listed after delete")
	}
	if _, err := os.Stat(f.FilePath); !os.IsNotExist(err) {
		t.Fatalf("file still on disk: %v", err)
	}
	if err := s.Delete("d1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	kept := addWithFile(t, s, "kept", base)
	gone := addWithFile(t, s, "gone", base.Add(time.Minute))

	// Simulate an external delete between runs.
	if err := os.Remove(gone.FilePath); err != nil {
		t.Fatalf("removing file: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	list := s2.List()
	if len(list) != 1 || list[0].ID != kept.ID {
		t.Fatalf("reopened list = %+v, want only %q", list, kept.ID)
	}
	if list[0].DisplayName != kept.DisplayName || !list[0].CreatedAt.Equal(kept.CreatedAt) {
		t.Fatalf("metadata did not round-trip: %+v", list[0])
	}
}

func TestWatchPrunesExternalDeletes(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f := addWithFile(t, s, "w1", time.Now().UTC())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := s.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.Remove(f.FilePath); err != nil {
		t.Fatalf("removing file: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not notice the external delete")
	}
	if _, ok := s.Get("w1"); ok {
		t.Fatal("pruned entry still present")
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "library")
	if _, err := Open(dir); err != nil {
		t.Fatalf("Open: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("library dir missing: %v", err)
	}
}
