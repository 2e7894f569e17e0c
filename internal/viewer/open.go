package viewer

import (
	"errors"
	"os/exec"
	"runtime"
	"strings"
)

// OpenPath launches the desktop's default handler for path.
func OpenPath(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("empty path")
	}
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", path).Start()
	case "windows":
		return exec.Command("cmd", "/c", "start", "", path).Start()
	default:
		return exec.Command("xdg-open", path).Start()
	}
}
