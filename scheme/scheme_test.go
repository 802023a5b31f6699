package scheme

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestResolveSimpleName(t *testing.T) {
	r := NewResolver("/data/recordings")
	got, err := r.Resolve("webcrec://recording-audio-2026-01-02T15-04-05Z.flac")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join("/data/recordings", "recording-audio-2026-01-02T15-04-05Z.flac")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestResolvePercentDecoding(t *testing.T) {
	r := NewResolver("/data/recordings")
	got, err := r.Resolve("webcrec://my%20clip.avi")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != filepath.Join("/data/recordings", "my clip.avi") {
		t.Fatalf("got %q", got)
	}
}

func TestResolveLeadingSlashTolerated(t *testing.T) {
	r := NewResolver("/data/recordings")
	got, err := r.Resolve("webcrec:///clip.avi")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != filepath.Join("/data/recordings", "clip.avi") {
		t.Fatalf("got %q", got)
	}
}

func TestResolveRejectsEscape(t *testing.T) {
	r := NewResolver("/data/recordings")
	for _, raw := range []string{
		"webcrec://../etc/passwd",
		"webcrec://..%2F..%2Fetc%2Fpasswd",
		"webcrec://a/../../outside.avi",
		"webcrec://",
	} {
		if _, err := r.Resolve(raw); !errors.Is(err, ErrOutsideLibrary) {
			t.Fatalf("%q: expected ErrOutsideLibrary, got %v", raw, err)
		}
	}
}

func TestResolveRejectsOtherSchemes(t *testing.T) {
	r := NewResolver("/data/recordings")
	for _, raw := range []string{"file:///etc/passwd", "http://x/clip.avi", "clip.avi"} {
		if _, err := r.Resolve(raw); !errors.Is(err, ErrBadScheme) {
			t.Fatalf("%q: expected ErrBadScheme, got %v", raw, err)
		}
	}
}
