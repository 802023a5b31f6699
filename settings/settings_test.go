package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/IamFishR/webcrecorder/capture"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s != Default() {
		t.Fatalf("got %+v, want defaults", s)
	}
	if !s.ScreenMic || s.Mode != capture.ModeVideo {
		t.Fatalf("unexpected defaults: %+v", s)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.toml")
	want := Settings{
		Mode: capture.ModeScreen,
		Constraints: capture.Constraints{
			VideoDeviceID: "cam-7",
			AudioDeviceID: "mic-2",
			Resolution:    capture.Res4K,
		},
		Continuous: true,
		ScreenMic:  false,
		OutputDir:  "/data/recordings",
	}
	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("continuous = true\n"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.Continuous {
		t.Fatal("continuous flag not applied")
	}
	if !s.ScreenMic {
		t.Fatal("omitted screen_mic must keep its default")
	}
	if s.Mode != capture.ModeVideo || s.Constraints.Resolution != capture.Res1080p {
		t.Fatalf("omitted fields must keep defaults: %+v", s)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("mode = \"hologram\"\n"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("unknown mode should be an error")
	}

	if err := os.WriteFile(path, []byte("resolution = \"9000p\"\n"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("unknown resolution should be an error")
	}
}
