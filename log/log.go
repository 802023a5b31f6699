package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog     zerolog.Logger
	diagFile    *os.File
	journalFile *os.File
	logMu       sync.Mutex
	logReady    bool
	pid         int
	dir         string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: WEBCREC_LOG_PATH environment variable
	envPath := os.Getenv("WEBCREC_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	journalPath := filepath.Join(dir, "recordings_log.txt")
	journalFile, err = os.OpenFile(journalPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if journalFile != nil {
		journalFile.Close()
		journalFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(mode, format string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("mode", mode).
		Str("format", format).
		Msg("session_start")
}

func SessionEnd(count int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("count", count).
		Msg("session_end")
}

func RecordingStarted(mode, format string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("mode", mode).
		Str("format", format).
		Msg("recording_start")
}

func RecordingStopped(mode string, seconds float64, bytes int64, path string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("mode", mode).
		Float64("duration_s", seconds).
		Int64("bytes", bytes).
		Str("path", path).
		Msg("recording_stop")
}

func SegmentRolled(mode string, segment int, seconds float64, bytes int64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("mode", mode).
		Int("segment", segment).
		Float64("duration_s", seconds).
		Int64("bytes", bytes).
		Msg("segment_rolled")
}

func AcquireFailed(mode string, err error) {
	if !logReady {
		return
	}
	diagLog.Error().
		Str("mode", mode).
		Err(err).
		Msg("acquire_failed")
}

func EncodeError(err error) {
	if !logReady {
		return
	}
	diagLog.Error().Err(err).Msg("encode_error")
}

func DeviceSwitch(kind, name string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("kind", kind).
		Str("device", name).
		Msg("device_switch")
}

// RecordingSaved appends a line to the plain-text recordings journal.
func RecordingSaved(name string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, name)
	journalFile.WriteString(line)
}
