package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/IamFishR/webcrecorder/beep"
	"github.com/IamFishR/webcrecorder/capture"
	"github.com/IamFishR/webcrecorder/compositor"
	"github.com/IamFishR/webcrecorder/hotkey"
	"github.com/IamFishR/webcrecorder/log"
	"github.com/IamFishR/webcrecorder/record"
	"github.com/IamFishR/webcrecorder/scheme"
	"github.com/IamFishR/webcrecorder/session"
	"github.com/IamFishR/webcrecorder/settings"
	"github.com/IamFishR/webcrecorder/shutdown"
	"github.com/IamFishR/webcrecorder/store"
	"github.com/IamFishR/webcrecorder/tray"
)

var version = "dev"

var (
	shutdownOnce sync.Once

	recordedMu    sync.Mutex
	recordedCount int
)

// initCrashLog routes runtime panics to a file before any CGO code runs.
// run() reopens it under -logpath when one is given.
func initCrashLog() {
	dir, err := log.ResolveDir("")
	if err != nil {
		return
	}
	if os.MkdirAll(dir, 0755) != nil {
		return
	}
	openCrashLog(dir)
}

func openCrashLog(dir string) {
	crashPath := filepath.Join(dir, "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

func defaultLibraryDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Videos", "webcrecorder"), nil
}

func reportRecordingError(err error) {
	if err == nil {
		return
	}
	log.Errorf("recording error: %v", err)
	tray.SetError(err.Error())
	beep.PlayError()
}

func gracefulShutdownFn(cancel context.CancelFunc, done <-chan struct{}, backend *capture.DesktopBackend) func() {
	return func() {
		shutdownOnce.Do(func() {
			cancel()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				log.Warn("shutdown timed out waiting for the recorder")
			}
			recordedMu.Lock()
			n := recordedCount
			recordedMu.Unlock()
			if n > 0 {
				log.SessionEnd(n)
			}
			log.Close()
			tray.Quit()
			backend.Close()
			os.Exit(0)
		})
	}
}

// openSchemeTarget handles a webcrec:// argument: resolve it against the
// library and reveal the file, so the binary can serve as the protocol
// handler.
func openSchemeTarget(raw, libraryDir string) int {
	res := scheme.NewResolver(libraryDir)
	path, err := res.Resolve(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	st, err := store.Open(libraryDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := st.OpenContainingFolder(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println(path)
	return 0
}

func run() {
	setupFlag := flag.Bool("setup", false, "Select camera and microphone devices interactively")
	modeFlag := flag.String("mode", "", "Recording mode: video, audio, or screen")
	resolutionFlag := flag.String("resolution", "", "Camera resolution: 720p, 1080p, or 4k")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	continuousFlag := flag.Bool("continuous", false, "Roll recordings into segments instead of one file")
	dirFlag := flag.String("dir", "", "Recordings directory (default: ~/Videos/webcrecorder)")
	nobeepFlag := flag.Bool("nobeep", false, "Disable start/stop cues")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	flag.Parse()

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)

	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	if *logPathFlag != "" {
		openCrashLog(log.Dir())
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if *versionFlag {
		fmt.Printf("webcrecorder %s\n", version)
		os.Exit(0)
	}

	if *nobeepFlag {
		beep.Disable()
	}

	cfgPath, err := settings.DefaultPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := settings.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *modeFlag != "" {
		mode, err := capture.ParseMode(*modeFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg.Mode = mode
	}
	if *resolutionFlag != "" {
		res, err := capture.ParseResolution(*resolutionFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg.Constraints.Resolution = res
	}
	if *continuousFlag {
		cfg.Continuous = true
	}
	if *dirFlag != "" {
		cfg.OutputDir = *dirFlag
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir, err = defaultLibraryDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	// Protocol handler invocation: webcrecorder webcrec://recording-....avi
	if arg := flag.Arg(0); strings.HasPrefix(arg, scheme.Name+"://") {
		os.Exit(openSchemeTarget(arg, cfg.OutputDir))
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	} else {
		log.SessionStart(cfg.Mode.String(), "auto")
	}

	backend, err := capture.NewDesktopBackend()
	if err != nil {
		log.Errorf("capture backend init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing capture: %v\n", err)
		os.Exit(1)
	}
	manager := capture.NewManager(backend)

	if *deviceFlag != "" {
		for _, d := range manager.ListDevices() {
			if d.Kind == capture.KindAudioInput && d.Label == *deviceFlag {
				cfg.Constraints.AudioDeviceID = d.ID
				break
			}
		}
	} else if *setupFlag {
		if cam, err := selectDevice(manager, capture.KindVideoInput); err == nil && cam != nil {
			cfg.Constraints.VideoDeviceID = cam.ID
		}
		if mic, err := selectDevice(manager, capture.KindAudioInput); err == nil && mic != nil {
			cfg.Constraints.AudioDeviceID = mic.ID
		}
		if err := settings.Save(cfgPath, cfg); err != nil {
			log.Warnf("saving settings: %v", err)
		}
	}

	st, err := store.Open(cfg.OutputDir)
	if err != nil {
		log.Errorf("library init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error opening recordings directory: %v\n", err)
		os.Exit(1)
	}

	comp, err := compositor.New(compositor.DefaultConfig())
	if err != nil {
		log.Warnf("compositor init error: %v", err)
		comp = nil // screen recordings degrade to the raw stream
	}

	rec := record.NewSession(st, record.Options{
		Continuous: cfg.Continuous,
		OnFile: func(f record.RecordedFile) {
			if err := st.Add(f); err != nil {
				log.Errorf("library add error: %v", err)
			}
			if f.Partial {
				log.SegmentRolled(f.Mode.String(), f.Segment, f.DurationSeconds, f.SizeBytes)
			} else {
				log.RecordingStopped(f.Mode.String(), f.DurationSeconds, f.SizeBytes, f.FilePath)
			}
			log.RecordingSaved(f.FileName)
			recordedMu.Lock()
			recordedCount++
			recordedMu.Unlock()
		},
		OnError: reportRecordingError,
	})

	// cfg is mutated by tray callbacks and read from the orchestrator's
	// status pushes; cfgMu covers both once the tray is live.
	var cfgMu sync.Mutex

	var wasRecording bool
	var statusMu sync.Mutex
	status := session.StatusFunc(func(stt session.Status) {
		statusMu.Lock()
		startCue := stt.Recording && !wasRecording
		endCue := !stt.Recording && wasRecording
		wasRecording = stt.Recording
		statusMu.Unlock()

		tray.SetRecording(stt.Recording)
		tray.SetPaused(stt.Paused)
		if startCue {
			cfgMu.Lock()
			mode := cfg.Mode
			cfgMu.Unlock()
			log.RecordingStarted(mode.String(), rec.Format().String())
			beep.PlayStart()
		}
		if endCue {
			beep.PlayEnd()
		}
	})

	orch := session.New(manager, rec, comp, cfg, status, reportRecordingError)

	tray.OnRecord(
		func() { orch.Send(session.CmdStart) },
		func() { orch.Send(session.CmdStop) },
	)
	tray.OnPause(func() { orch.Send(session.CmdPause) })
	tray.OnOpenFolder(func() {
		if err := st.OpenContainingFolder(); err != nil {
			log.Warnf("open folder error: %v", err)
		}
	})
	tray.SetMode(cfg.Mode.String(), func(name string) {
		mode, err := capture.ParseMode(name)
		if err != nil {
			return
		}
		cfgMu.Lock()
		cfg.Mode = mode
		snapshot := cfg
		cfgMu.Unlock()
		orch.Apply(snapshot)
		if err := settings.Save(cfgPath, snapshot); err != nil {
			log.Warnf("saving settings: %v", err)
		}
	})

	micNames, selectedMic := micLabels(manager, cfg.Constraints.AudioDeviceID)
	tray.SetDevices(micNames, selectedMic, func(name string) {
		for _, d := range manager.ListDevices() {
			if d.Kind == capture.KindAudioInput && d.Label == name {
				cfgMu.Lock()
				cfg.Constraints.AudioDeviceID = d.ID
				snapshot := cfg
				cfgMu.Unlock()
				orch.Apply(snapshot)
				log.DeviceSwitch(d.Kind.String(), name)
				if err := settings.Save(cfgPath, snapshot); err != nil {
					log.Warnf("saving settings: %v", err)
				}
				return
			}
		}
		log.Warnf("device not found: %s", name)
	})

	trayQuit := tray.Init()

	ctx, cancel := context.WithCancel(context.Background())
	orchDone := make(chan struct{})
	go func() {
		defer close(orchDone)
		orch.Run(ctx)
	}()

	gracefulShutdown := gracefulShutdownFn(cancel, orchDone, backend)

	// The library watcher prunes index entries when files vanish from disk.
	if changes, err := st.Watch(ctx); err != nil {
		log.Warnf("library watch error: %v", err)
	} else {
		go func() {
			for range changes {
				log.Info("library_pruned")
			}
		}()
	}

	manager.OnDevicesChanged(func(devices []capture.DeviceInfo) {
		cfgMu.Lock()
		micID := cfg.Constraints.AudioDeviceID
		cfgMu.Unlock()
		names, selected := micLabelsFrom(devices, micID)
		tray.RefreshDevices(names, selected)
	})
	go manager.WatchDevices(ctx, 3*time.Second)

	manager.OnStreamError(func(err error) {
		reportRecordingError(err)
		orch.Send(session.CmdStop)
	})

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)

	go beep.Init()

	recordHK := hotkey.New(hotkey.ComboRecord)
	if err := recordHK.Register(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		fmt.Fprintf(os.Stderr, "Error registering hotkey: %v\n", err)
		os.Exit(1)
	}
	defer recordHK.Unregister()

	pauseHK := hotkey.New(hotkey.ComboPause)
	if err := pauseHK.Register(); err != nil {
		log.Warnf("pause hotkey register error: %v", err)
	} else {
		defer pauseHK.Unregister()
	}

	for {
		select {
		case <-recordHK.Keydown():
			log.Info("hotkey_toggle")
			orch.Send(session.CmdToggle)
		case <-pauseHK.Keydown():
			log.Info("hotkey_pause")
			orch.Send(session.CmdPause)
		case <-sigChan:
			gracefulShutdown()
		case <-trayQuit:
			gracefulShutdown()
		}
	}
}

func micLabels(m *capture.Manager, selectedID string) ([]string, string) {
	return micLabelsFrom(m.ListDevices(), selectedID)
}

func micLabelsFrom(devices []capture.DeviceInfo, selectedID string) ([]string, string) {
	var names []string
	selected := ""
	for _, d := range devices {
		if d.Kind != capture.KindAudioInput {
			continue
		}
		names = append(names, d.Label)
		if d.ID == selectedID {
			selected = d.Label
		}
	}
	return names, selected
}
