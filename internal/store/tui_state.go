package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

const tuiStateFileName = "tui_state.json"

// TUIState restores the terminal UI's last screen on relaunch.
// Callers should tolerate missing or invalid data.
type TUIState struct {
	Version int `json:"version"`

	// Search is the library filter term in effect when the TUI quit.
	Search string `json:"search,omitempty"`
	// Highlighted is the document the list cursor was on.
	Highlighted string `json:"highlighted,omitempty"`
}

func tuiStatePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, tuiStateFileName), nil
}

func LoadTUIState() (*TUIState, error) {
	path, err := tuiStatePath()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &TUIState{Version: 1}, nil
		}
		return nil, err
	}
	var st TUIState
	if err := json.Unmarshal(b, &st); err != nil {
		// Corrupt state reads as missing.
		return &TUIState{Version: 1}, nil
	}
	if st.Version == 0 {
		st.Version = 1
	}
	return &st, nil
}

func SaveTUIState(st *TUIState) error {
	if st == nil {
		return nil
	}
	path, err := tuiStatePath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	if st.Version == 0 {
		st.Version = 1
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(dir, ".tui_state-*.json", path, append(b, '\n'), 0o600)
}
