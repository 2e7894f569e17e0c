package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"shelf-cli/internal/store"

	"github.com/joho/godotenv"
)

const (
	DefaultServer      = "http://localhost"
	DefaultPort        = "5000"
	DefaultConcurrency = 4
	DefaultTimeout     = 15 * time.Second
)

// Credential store kinds.
const (
	CredentialsFile   = "file"
	CredentialsSQLite = "sqlite"
	CredentialsMemory = "memory"
)

// Document auth modes: whether document downloads carry the session cookie.
const (
	DocumentAuthCookie = "cookie"
	DocumentAuthNone   = "none"
)

type Config struct {
	Server       string
	Port         string
	Concurrency  int
	Timeout      time.Duration
	Credentials  string
	DocumentAuth string
	LogLevel     string
	LogFile      string
	Glyphs       string
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are ignored; already-set variables win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}

// Load resolves the effective configuration: defaults, then the persisted
// global config (may be nil), then the environment.
func Load(file *store.GlobalConfig) Config {
	cfg := Config{
		Server:       DefaultServer,
		Port:         DefaultPort,
		Concurrency:  DefaultConcurrency,
		Timeout:      DefaultTimeout,
		Credentials:  CredentialsFile,
		DocumentAuth: DocumentAuthCookie,
		LogLevel:     "info",
		Glyphs:       "unicode",
	}
	if file != nil {
		if v := strings.TrimSpace(file.Server); v != "" {
			cfg.Server = v
		}
		if v := strings.TrimSpace(file.Port); v != "" {
			cfg.Port = v
		}
		if v := strings.TrimSpace(file.Credentials); v != "" {
			cfg.Credentials = v
		}
		if v := strings.TrimSpace(file.DocumentAuth); v != "" {
			cfg.DocumentAuth = v
		}
		if file.Concurrency > 0 {
			cfg.Concurrency = file.Concurrency
		}
		if file.TUI != nil && strings.TrimSpace(file.TUI.Glyphs) != "" {
			cfg.Glyphs = strings.TrimSpace(file.TUI.Glyphs)
		}
	}

	// The VITE_FLASK_* names are what existing library server deployments put in .env.
	cfg.Server = getenv(cfg.Server, "SHELF_SERVER_IP", "VITE_FLASK_SERVER_IP")
	cfg.Port = getenv(cfg.Port, "SHELF_PORT", "VITE_FLASK_PORT")
	cfg.Concurrency = getenvInt(cfg.Concurrency, "SHELF_CONCURRENCY")
	cfg.Timeout = time.Duration(getenvInt(int(cfg.Timeout/time.Second), "SHELF_TIMEOUT_SECONDS")) * time.Second
	cfg.Credentials = strings.ToLower(getenv(cfg.Credentials, "SHELF_CREDENTIALS"))
	cfg.DocumentAuth = strings.ToLower(getenv(cfg.DocumentAuth, "SHELF_DOCUMENT_AUTH"))
	cfg.LogLevel = strings.ToLower(getenv(cfg.LogLevel, "SHELF_LOG_LEVEL"))
	cfg.LogFile = getenv(cfg.LogFile, "SHELF_LOG_FILE")
	cfg.Glyphs = strings.ToLower(getenv(cfg.Glyphs, "SHELF_GLYPHS"))
	return cfg
}

// Validate rejects values the rest of the program cannot act on.
func (c Config) Validate() error {
	if _, err := c.BaseURL(); err != nil {
		return err
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be >= 1 (got %d)", c.Concurrency)
	}
	if c.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	switch c.Credentials {
	case CredentialsFile, CredentialsSQLite, CredentialsMemory:
	default:
		return fmt.Errorf("config: invalid credential store %q (expected file|sqlite|memory)", c.Credentials)
	}
	switch c.DocumentAuth {
	case DocumentAuthCookie, DocumentAuthNone:
	default:
		return fmt.Errorf("config: invalid document auth %q (expected cookie|none)", c.DocumentAuth)
	}
	return nil
}

// BaseURL joins Server and Port into the library server's base URL.
// A Server without a scheme is treated as http.
func (c Config) BaseURL() (string, error) {
	server := strings.TrimRight(strings.TrimSpace(c.Server), "/")
	if server == "" {
		return "", errors.New("config: server is empty")
	}
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("config: invalid server %q: %w", c.Server, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("config: invalid server %q: missing host", c.Server)
	}
	port := strings.TrimSpace(c.Port)
	if port != "" && u.Port() == "" {
		if _, err := strconv.Atoi(port); err != nil {
			return "", fmt.Errorf("config: invalid port %q", c.Port)
		}
		u.Host = u.Host + ":" + port
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String(), nil
}

func getenv(fallback string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return fallback
}

func getenvInt(fallback int, keys ...string) int {
	v := getenv("", keys...)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
