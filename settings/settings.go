// Package settings persists the user's recording defaults between runs.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/IamFishR/webcrecorder/capture"
)

// Settings are the defaults applied when a new session starts. The
// orchestrator reads them once at startup and accepts later changes only
// through an explicit apply.
type Settings struct {
	Mode        capture.Mode
	Constraints capture.Constraints
	Continuous  bool
	ScreenMic   bool
	OutputDir   string
}

func Default() Settings {
	return Settings{
		Mode:        capture.ModeVideo,
		Constraints: capture.Constraints{Resolution: capture.Res1080p},
		ScreenMic:   true,
	}
}

type fileLayout struct {
	Mode        string `toml:"mode"`
	VideoDevice string `toml:"video_device"`
	AudioDevice string `toml:"audio_device"`
	Resolution  string `toml:"resolution"`
	Continuous  bool   `toml:"continuous"`
	ScreenMic   *bool  `toml:"screen_mic"`
	OutputDir   string `toml:"output_dir"`
}

// DefaultPath is the per-user settings file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "webcrecorder", "config.toml"), nil
}

// Load reads the settings file. A missing file yields the defaults; a
// malformed one is an error so a typo never silently resets everything.
func Load(path string) (Settings, error) {
	var raw fileLayout
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("reading settings: %w", err)
	}

	s := Default()
	if raw.Mode != "" {
		mode, err := capture.ParseMode(raw.Mode)
		if err != nil {
			return Default(), fmt.Errorf("settings: %w", err)
		}
		s.Mode = mode
	}
	if raw.Resolution != "" {
		res, err := capture.ParseResolution(raw.Resolution)
		if err != nil {
			return Default(), fmt.Errorf("settings: %w", err)
		}
		s.Constraints.Resolution = res
	}
	s.Constraints.VideoDeviceID = raw.VideoDevice
	s.Constraints.AudioDeviceID = raw.AudioDevice
	s.Continuous = raw.Continuous
	if raw.ScreenMic != nil {
		s.ScreenMic = *raw.ScreenMic
	}
	s.OutputDir = raw.OutputDir
	return s, nil
}

// Save writes the settings file, creating its directory as needed.
func Save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}
	screenMic := s.ScreenMic
	raw := fileLayout{
		Mode:        s.Mode.String(),
		VideoDevice: s.Constraints.VideoDeviceID,
		AudioDevice: s.Constraints.AudioDeviceID,
		Resolution:  s.Constraints.Resolution.String(),
		Continuous:  s.Continuous,
		ScreenMic:   &screenMic,
		OutputDir:   s.OutputDir,
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "config.toml.tmp-*")
	if err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := toml.NewEncoder(tmp).Encode(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
