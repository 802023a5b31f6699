// Package hotkey registers global keyboard shortcuts. Two chords are
// exposed: Ctrl+Shift+R toggles recording and Ctrl+Shift+P toggles pause.
package hotkey

type Combo int

const (
	// ComboRecord is Ctrl+Shift+R.
	ComboRecord Combo = iota
	// ComboPause is Ctrl+Shift+P.
	ComboPause
)

func (c Combo) String() string {
	switch c {
	case ComboRecord:
		return "ctrl+shift+r"
	case ComboPause:
		return "ctrl+shift+p"
	default:
		return "unknown"
	}
}

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}
