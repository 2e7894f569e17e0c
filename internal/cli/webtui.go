package cli

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"shelf-cli/internal/config"
	"shelf-cli/internal/logging"
	"shelf-cli/internal/webtui"

	"github.com/spf13/cobra"
)

type webTUIStarted struct {
	Addr      string `json:"addr"`
	URL       string `json:"url"`
	StartedAt string `json:"startedAt"`
}

func newWebTUICmd(a *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "webtui",
		Short: "Run the terminal UI in your browser (PTY + WebSocket)",
		Long: strings.TrimSpace(`
Run the terminal UI over the web via a server-side PTY and a browser terminal emulator.

Notes:
- No authentication of its own; bind it to localhost.
- Each browser tab starts its own shelf TUI process.
`),
		Example: strings.TrimSpace(`
shelf webtui --addr 127.0.0.1:7071
shelf --server http://10.0.0.5 webtui
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(addr) == "" {
				return writeErr(cmd, errors.New("webtui: missing --addr"))
			}
			cfg, err := loadConfig(a)
			if err != nil {
				return writeErr(cmd, err)
			}
			log, closeLog, err := logging.New(cfg.LogLevel, cfg.LogFile, cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer func() { _ = closeLog() }()

			srv, err := webtui.NewServer(webtui.ServerConfig{
				Addr:   addr,
				Args:   childArgs(a),
				Env:    childEnv(cfg),
				Logger: log.With("component", "webtui"),
			})
			if err != nil {
				return writeErr(cmd, err)
			}

			ln, err := net.Listen("tcp", srv.Addr())
			if err != nil {
				return writeErr(cmd, err)
			}
			actualAddr := ln.Addr().String()
			url := "http://" + actualAddr + "/"

			_ = writeData(cmd, a, webTUIStarted{
				Addr:      actualAddr,
				URL:       url,
				StartedAt: time.Now().UTC().Format(time.RFC3339Nano),
			}, "open "+url)

			fmt.Fprintf(cmd.ErrOrStderr(), "shelf webtui running at %s\n", url)
			return serveUntilSignal(cmd.Context(), ln, srv.Handler())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7071", "Bind address (host:port or :port)")
	return cmd
}

// childArgs forwards the server selection to the TUI processes.
func childArgs(a *App) []string {
	var args []string
	if v := strings.TrimSpace(a.Server); v != "" {
		args = append(args, "--server", v)
	}
	if v := strings.TrimSpace(a.Port); v != "" {
		args = append(args, "--port", v)
	}
	return args
}

// childEnv hands the TUI processes the settings this process resolved, so a
// .env or config file read here applies to every tab.
func childEnv(cfg config.Config) []string {
	env := []string{
		"SHELF_CONCURRENCY=" + strconv.Itoa(cfg.Concurrency),
		"SHELF_TIMEOUT_SECONDS=" + strconv.Itoa(int(cfg.Timeout/time.Second)),
		"SHELF_CREDENTIALS=" + cfg.Credentials,
		"SHELF_DOCUMENT_AUTH=" + cfg.DocumentAuth,
		"SHELF_GLYPHS=" + cfg.Glyphs,
		"SHELF_LOG_LEVEL=" + cfg.LogLevel,
	}
	if cfg.LogFile != "" {
		env = append(env, "SHELF_LOG_FILE="+cfg.LogFile)
	}
	return env
}
