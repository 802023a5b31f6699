package store

import (
	"os/exec"
	"runtime"
)

// OpenContainingFolder shows the library directory in the platform file
// manager.
func (s *Store) OpenContainingFolder() error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", s.dir)
	case "windows":
		cmd = exec.Command("explorer", s.dir)
	default:
		cmd = exec.Command("xdg-open", s.dir)
	}
	return cmd.Start()
}
