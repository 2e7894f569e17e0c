package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"shelf-cli/internal/store"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SHELF_SERVER_IP", "VITE_FLASK_SERVER_IP", "SHELF_PORT", "VITE_FLASK_PORT",
		"SHELF_CONCURRENCY", "SHELF_TIMEOUT_SECONDS", "SHELF_CREDENTIALS",
		"SHELF_DOCUMENT_AUTH", "SHELF_LOG_LEVEL", "SHELF_LOG_FILE", "SHELF_GLYPHS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load(nil)
	base, err := cfg.BaseURL()
	if err != nil {
		t.Fatalf("BaseURL: %v", err)
	}
	if base != "http://localhost:5000" {
		t.Fatalf("expected default base url, got %q", base)
	}
	if cfg.Concurrency != DefaultConcurrency || cfg.Timeout != DefaultTimeout {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Credentials != CredentialsFile || cfg.DocumentAuth != DocumentAuthCookie {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	file := &store.GlobalConfig{Server: "http://file.local", Port: "7000", Concurrency: 2, Credentials: "sqlite"}

	cfg := Load(file)
	if base, _ := cfg.BaseURL(); base != "http://file.local:7000" {
		t.Fatalf("expected file values, got %q", base)
	}
	if cfg.Concurrency != 2 || cfg.Credentials != CredentialsSQLite {
		t.Fatalf("expected file values, got %+v", cfg)
	}

	t.Setenv("SHELF_SERVER_IP", "https://env.local")
	t.Setenv("SHELF_PORT", "9443")
	t.Setenv("SHELF_CONCURRENCY", "8")
	t.Setenv("SHELF_TIMEOUT_SECONDS", "3")
	cfg = Load(file)
	if base, _ := cfg.BaseURL(); base != "https://env.local:9443" {
		t.Fatalf("expected env values, got %q", base)
	}
	if cfg.Concurrency != 8 || cfg.Timeout != 3*time.Second {
		t.Fatalf("expected env values, got %+v", cfg)
	}
}

func TestLoad_ViteFallbackNames(t *testing.T) {
	clearEnv(t)
	t.Setenv("VITE_FLASK_SERVER_IP", "http://10.0.0.5")
	t.Setenv("VITE_FLASK_PORT", "5050")

	base, err := Load(nil).BaseURL()
	if err != nil {
		t.Fatalf("BaseURL: %v", err)
	}
	if base != "http://10.0.0.5:5050" {
		t.Fatalf("expected vite fallback, got %q", base)
	}
}

func TestLoad_BadIntFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHELF_CONCURRENCY", "many")
	if got := Load(nil).Concurrency; got != DefaultConcurrency {
		t.Fatalf("expected fallback concurrency, got %d", got)
	}
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		server, port, want string
		wantErr            bool
	}{
		{server: "http://localhost", port: "5000", want: "http://localhost:5000"},
		{server: "localhost", port: "5000", want: "http://localhost:5000"},
		{server: "http://localhost/", port: "", want: "http://localhost"},
		{server: "http://localhost:8080", port: "5000", want: "http://localhost:8080"},
		{server: "http://example.com/library/", port: "80", want: "http://example.com:80/library"},
		{server: "", port: "5000", wantErr: true},
		{server: "http://localhost", port: "five", wantErr: true},
	}
	for _, tt := range tests {
		got, err := Config{Server: tt.server, Port: tt.port}.BaseURL()
		if tt.wantErr {
			if err == nil {
				t.Fatalf("BaseURL(%q,%q): expected error, got %q", tt.server, tt.port, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("BaseURL(%q,%q): %v", tt.server, tt.port, err)
		}
		if got != tt.want {
			t.Fatalf("BaseURL(%q,%q) = %q, want %q", tt.server, tt.port, got, tt.want)
		}
	}
}

func TestValidate_RejectsUnknownModes(t *testing.T) {
	clearEnv(t)
	cfg := Load(nil)
	cfg.Credentials = "keychain"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid credential store error")
	}
	cfg = Load(nil)
	cfg.DocumentAuth = "bearer"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid document auth error")
	}
	cfg = Load(nil)
	cfg.Concurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected concurrency error")
	}
}

func TestLoadDotEnv_DoesNotOverrideSetVars(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("SHELF_PORT=6001\nSHELF_GLYPHS=ascii\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SHELF_PORT", "6002")
	// t.Setenv("", ...) leaves SHELF_GLYPHS set-but-empty; unset so godotenv fills it.
	os.Unsetenv("SHELF_GLYPHS")

	LoadDotEnv(path, filepath.Join(dir, "missing.env"))
	cfg := Load(nil)
	if cfg.Port != "6002" {
		t.Fatalf("expected existing env to win, got %q", cfg.Port)
	}
	if cfg.Glyphs != "ascii" {
		t.Fatalf("expected .env value, got %q", cfg.Glyphs)
	}
}
