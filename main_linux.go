//go:build linux

package main

import (
	"golang.design/x/hotkey/mainthread"
)

func main() {
	// Set up crash logging early, before any CGO code runs
	initCrashLog()

	// The tray hands its start callback to the main thread.
	mainthread.Init(run)
}
