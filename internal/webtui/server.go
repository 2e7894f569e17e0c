// Package webtui serves the terminal UI in a browser: each WebSocket gets its
// own PTY running `shelf`, rendered by xterm.js.
package webtui

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"shelf-cli/internal/logging"
)

//go:embed templates/*.html static/*.css static/*.js
var assetsFS embed.FS

const xtermVersion = "5.3.0"

type ServerConfig struct {
	Addr string
	// Args are passed to the child `shelf` (e.g. --server).
	Args []string
	// Env is appended to the child's environment (e.g. SHELF_CREDENTIALS).
	Env []string
	// Command builds the child process for one session. Nil runs this
	// executable with Args.
	Command func() (*exec.Cmd, error)
	Logger  *slog.Logger
}

type Server struct {
	cfg  ServerConfig
	log  *slog.Logger
	tmpl *template.Template
}

func NewServer(cfg ServerConfig) (*Server, error) {
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	if cfg.Addr == "" {
		return nil, errors.New("webtui: missing addr")
	}
	tmpl, err := template.ParseFS(assetsFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, log: logging.OrDiscard(cfg.Logger), tmpl: tmpl}, nil
}

func (s *Server) Addr() string { return s.cfg.Addr }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/terminal", http.StatusFound)
	})
	mux.HandleFunc("GET /terminal", s.handleTerminal)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /static/app.css", s.handleStatic("static/app.css", "text/css; charset=utf-8"))
	mux.HandleFunc("GET /static/app.js", s.handleStatic("static/app.js", "text/javascript; charset=utf-8"))

	return mux
}

func (s *Server) handleStatic(path, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := assetsFS.ReadFile(path)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(b)
	}
}

type terminalVM struct {
	XtermVersion string
}

func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "terminal.html", terminalVM{XtermVersion: xtermVersion}); err != nil {
		s.log.Error("render terminal page", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) command() (*exec.Cmd, error) {
	if s.cfg.Command != nil {
		return s.cfg.Command()
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	// No subcommand => interactive TUI.
	return exec.Command(exe, s.cfg.Args...), nil
}
