package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// GlobalConfig holds user preferences persisted in ~/.shelf/config.json.
// Environment variables override every field (see internal/config).
type GlobalConfig struct {
	// Server is the library server base address (scheme + host), e.g. "http://localhost".
	Server string `json:"server,omitempty"`
	// Port is the library server port.
	Port string `json:"port,omitempty"`

	// Credentials selects where the session cookie is kept between runs ("file", "sqlite", "memory").
	Credentials string `json:"credentials,omitempty"`

	// DocumentAuth selects whether document downloads carry the session cookie ("cookie", "none").
	DocumentAuth string `json:"documentAuth,omitempty"`

	// Concurrency caps in-flight thumbnail requests.
	Concurrency int `json:"concurrency,omitempty"`

	// TUI holds optional preferences for the interactive TUI.
	TUI *TUIConfig `json:"tui,omitempty"`
}

type TUIConfig struct {
	// Glyphs selects the glyph set ("unicode", "ascii").
	Glyphs string `json:"glyphs,omitempty"`
}

func ConfigDir() (string, error) {
	// Test/advanced override (keeps unit tests from touching ~/.shelf).
	if v := strings.TrimSpace(os.Getenv("SHELF_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".shelf"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

func LoadConfig() (*GlobalConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &GlobalConfig{}, nil
		}
		return nil, err
	}
	var cfg GlobalConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func SaveConfig(cfg *GlobalConfig) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	// Unique temp name + rename so a TUI and a CLI writing at once never interleave.
	return atomicWriteFile(dir, "config.json.*.tmp", path, b, 0o600)
}
