package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"shelf-cli/internal/app"
	"shelf-cli/internal/viewer"
	"shelf-cli/internal/web"

	"github.com/spf13/cobra"
)

type webStarted struct {
	Addr      string `json:"addr"`
	URL       string `json:"url"`
	Server    string `json:"server"`
	SignedIn  bool   `json:"signedIn"`
	Opened    bool   `json:"opened"`
	OpenError string `json:"openError,omitempty"`
	StartedAt string `json:"startedAt"`
}

func newWebCmd(a *App) *cobra.Command {
	var addr string
	var open bool

	cmd := &cobra.Command{
		Use:   "web",
		Short: "Serve the library in your browser",
		Long: strings.TrimSpace(`
Serve the library UI from a local HTTP server.

The page shows the sign-in form until a session exists, then the thumbnail
grid with live search. Documents open full screen and are streamed through
the local server.

The UI is single-user: it shares the session of this machine's shelf config.
`),
		Example: strings.TrimSpace(`
# Serve on localhost and open a browser tab
shelf web --open

# Pick the bind address
shelf web --addr 127.0.0.1:8080
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			listenAddr := strings.TrimSpace(addr)
			if listenAddr == "" {
				return writeErr(cmd, errors.New("web: missing --addr"))
			}

			hub := web.NewHub()
			flash := &web.Flash{}
			c, done, err := openController(cmd, a, cmd.ErrOrStderr(), app.Options{
				Notifier:        flash,
				AutoLoad:        true,
				OnLibraryChange: hub.Broadcast,
			})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()

			srv, err := web.NewServer(web.ServerConfig{
				Addr:       listenAddr,
				Controller: c,
				Hub:        hub,
				Flash:      flash,
				Logger:     c.Log.With("component", "web"),
			})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer srv.Close()

			ln, err := net.Listen("tcp", srv.Addr())
			if err != nil {
				return writeErr(cmd, err)
			}

			actualAddr := ln.Addr().String()
			url := "http://" + actualAddr + "/"

			started := webStarted{
				Addr:      actualAddr,
				URL:       url,
				Server:    c.Client.BaseURL(),
				SignedIn:  c.Session.Authenticated(),
				StartedAt: time.Now().UTC().Format(time.RFC3339Nano),
			}
			if open {
				if err := viewer.OpenPath(url); err != nil {
					started.OpenError = err.Error()
				} else {
					started.Opened = true
				}
			}
			var hints []string
			if !started.Opened {
				hints = append(hints, "open "+url)
			}
			_ = writeData(cmd, a, started, hints...)

			fmt.Fprintf(cmd.ErrOrStderr(), "shelf web running at %s (library %s)\n", url, started.Server)
			if started.OpenError != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Failed to open browser: %s\n", started.OpenError)
			}

			return serveUntilSignal(cmd.Context(), ln, srv.Handler())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7070", "Bind address (host:port or :port)")
	cmd.Flags().BoolVar(&open, "open", false, "Open the UI in your default browser")
	return cmd
}

// serveUntilSignal serves on ln until ctx ends or the process is interrupted,
// then shuts down so deferred cleanup runs.
func serveUntilSignal(ctx context.Context, ln net.Listener, h http.Handler) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hs := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		// Open event streams end with ctx instead of holding Shutdown open.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- hs.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	}
}
