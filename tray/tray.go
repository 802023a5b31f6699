// Package tray drives the system tray icon and menu: the recording
// toggle, pause, capture mode and device selection, and the shortcut to
// the recordings folder.
package tray

import (
	"sync"
	"time"

	"fyne.io/systray"
	"golang.design/x/hotkey/mainthread"
)

var (
	quitCh    = make(chan struct{})
	closeOnce sync.Once

	startFn  func()
	stopFn   func()
	pauseFn  func()
	folderFn func()

	stateMu   sync.Mutex
	recording bool
	paused    bool

	deviceMu    sync.Mutex
	deviceNames []string
	deviceSel   string
	deviceCb    func(string)

	modeSel string
	modeCb  func(string)

	mRecord     *systray.MenuItem
	mPause      *systray.MenuItem
	mDevices    *systray.MenuItem
	deviceItems []*systray.MenuItem
	modeItems   []*systray.MenuItem
	deviceReady chan struct{}
)

// Modes shown in the tray, in menu order.
var Modes = []string{"video", "audio", "screen"}

var modeLabels = map[string]string{
	"video":  "Camera + Microphone",
	"audio":  "Microphone Only",
	"screen": "Screen",
}

func OnRecord(start, stop func()) { startFn = start; stopFn = stop }
func OnPause(fn func())           { pauseFn = fn }
func OnOpenFolder(fn func())      { folderFn = fn }

func SetMode(mode string, onSwitch func(string)) {
	modeSel = mode
	modeCb = onSwitch
}

func SetDevices(names []string, selected string, onSwitch func(name string)) {
	deviceMu.Lock()
	deviceNames = names
	deviceSel = selected
	if onSwitch != nil {
		deviceCb = onSwitch
	}
	deviceMu.Unlock()
}

func SetRecording(rec bool) {
	stateMu.Lock()
	recording = rec
	if !rec {
		paused = false
	}
	stateMu.Unlock()
	updateRecordingUI(rec)
}

func SetPaused(p bool) {
	stateMu.Lock()
	changed := paused != p
	paused = p
	stateMu.Unlock()
	if changed {
		updatePauseUI(p)
	}
}

// SetError shows the message in the tooltip for a short while.
func SetError(msg string) {
	systray.SetTooltip("webcrecorder: " + msg)
	go func() {
		time.Sleep(10 * time.Second)
		systray.SetTooltip(tooltipIdle)
	}()
}

func Quit() {
	closeOnce.Do(func() { close(quitCh) })
}

const tooltipIdle = "webcrecorder: ready"

// Init hands the tray to the platform loop and returns the quit channel.
// Must run before anything else touches the menu.
func Init() <-chan struct{} {
	deviceReady = make(chan struct{})
	start, _ := systray.RunWithExternalLoop(onReady, onExit)
	done := make(chan struct{})
	mainthread.Call(func() {
		start()
		close(done)
	})
	<-done
	return quitCh
}

// onClick pumps a menu item's click channel into fn.
func onClick(item *systray.MenuItem, fn func()) {
	go func() {
		for {
			select {
			case <-quitCh:
				return
			case _, ok := <-item.ClickedCh:
				if !ok {
					return
				}
				fn()
			}
		}
	}()
}

func onReady() {
	systray.SetTemplateIcon(iconIdleHi, iconIdle)
	systray.SetTooltip(tooltipIdle)

	mRecord = systray.AddMenuItem("Start Recording", "Start or stop recording")
	onClick(mRecord, func() {
		stateMu.Lock()
		rec := recording
		stateMu.Unlock()
		if rec {
			if stopFn != nil {
				stopFn()
			}
		} else if startFn != nil {
			startFn()
		}
	})

	mPause = systray.AddMenuItem("Pause", "Pause or resume the recording")
	mPause.Disable()
	onClick(mPause, func() {
		if pauseFn != nil {
			pauseFn()
		}
	})

	systray.AddSeparator()

	mFolder := systray.AddMenuItem("Open Recordings Folder", "Show recordings in the file browser")
	onClick(mFolder, func() {
		if folderFn != nil {
			folderFn()
		}
	})

	mSettings := systray.AddMenuItem("Settings", "Settings")

	mMode := mSettings.AddSubMenuItem("Mode", "Select what to record")
	modeItems = make([]*systray.MenuItem, 0, len(Modes))
	for i, mode := range Modes {
		idx := i
		label := modeLabels[mode]
		item := mMode.AddSubMenuItemCheckbox(label, label, mode == modeSel)
		onClick(item, func() {
			for j, it := range modeItems {
				if j == idx {
					it.Check()
				} else {
					it.Uncheck()
				}
			}
			modeSel = Modes[idx]
			if modeCb != nil {
				modeCb(Modes[idx])
			}
		})
		modeItems = append(modeItems, item)
	}

	mDevices = mSettings.AddSubMenuItem("Devices", "Select input device")
	deviceMu.Lock()
	deviceItems = make([]*systray.MenuItem, 0, len(deviceNames))
	for i, name := range deviceNames {
		item := addDeviceItem(mDevices, i, name, name == deviceSel)
		deviceItems = append(deviceItems, item)
	}
	deviceMu.Unlock()

	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit webcrecorder")
	onClick(mQuit, func() { Quit() })

	close(deviceReady)
}

func addDeviceItem(parent *systray.MenuItem, idx int, name string, checked bool) *systray.MenuItem {
	item := parent.AddSubMenuItemCheckbox(name, name, checked)
	onClick(item, func() {
		deviceMu.Lock()
		// Use the current name at this position; RefreshDevices may have
		// retitled the item since it was created.
		currentName := ""
		if idx < len(deviceNames) {
			currentName = deviceNames[idx]
		}
		cb := deviceCb
		deviceMu.Unlock()
		if cb != nil && currentName != "" {
			cb(currentName)
		}
		deviceMu.Lock()
		for _, it := range deviceItems {
			it.Uncheck()
		}
		if idx < len(deviceItems) {
			deviceItems[idx].Check()
		}
		deviceMu.Unlock()
	})
	return item
}

// RefreshDevices retitles, shows and hides device entries to match the
// current device set. Blocks until the menu exists.
func RefreshDevices(names []string, selected string) {
	if deviceReady == nil {
		return
	}
	<-deviceReady

	deviceMu.Lock()
	defer deviceMu.Unlock()

	deviceNames = names
	deviceSel = selected

	for i, item := range deviceItems {
		if i < len(names) {
			item.SetTitle(names[i])
			item.SetTooltip(names[i])
			item.Show()
			if names[i] == selected {
				item.Check()
			} else {
				item.Uncheck()
			}
		} else {
			item.Hide()
			item.Uncheck()
		}
	}

	for i := len(deviceItems); i < len(names); i++ {
		item := addDeviceItem(mDevices, i, names[i], names[i] == selected)
		deviceItems = append(deviceItems, item)
	}
}

func updateRecordingUI(rec bool) {
	if mRecord == nil {
		return
	}
	if rec {
		systray.SetIcon(iconRecHi)
		mRecord.SetTitle("Stop Recording")
		mPause.SetTitle("Pause")
		mPause.Enable()
		mDevices.Disable()
	} else {
		systray.SetTemplateIcon(iconIdleHi, iconIdle)
		mRecord.SetTitle("Start Recording")
		mPause.SetTitle("Pause")
		mPause.Disable()
		mDevices.Enable()
	}
}

func updatePauseUI(p bool) {
	if mPause == nil {
		return
	}
	if p {
		systray.SetIcon(iconPauseHi)
		mPause.SetTitle("Resume")
	} else {
		systray.SetIcon(iconRecHi)
		mPause.SetTitle("Pause")
	}
}

func onExit() {
	closeOnce.Do(func() { close(quitCh) })
}
