package webtui

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin:     sameOrigin,
}

// sameOrigin lets in clients without an Origin header and browsers on this host.
func sameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// terminal is one browser tab bridged to its own shelf process.
type terminal struct {
	log  *slog.Logger
	conn *websocket.Conn
	cmd  *exec.Cmd
	ptmx *os.File
	once sync.Once
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	t, err := s.startTerminal(conn)
	if err != nil {
		s.log.Error("start terminal session", "err", err)
		closeWith(conn, websocket.CloseInternalServerErr, "could not start shelf")
		_ = conn.Close()
		return
	}
	t.log.Info("terminal session started", "remote", r.RemoteAddr)
	reason := t.run(r.Context())
	t.log.Info("terminal session ended", "reason", reason)
}

func (s *Server) startTerminal(conn *websocket.Conn) (*terminal, error) {
	cmd, err := s.command()
	if err != nil {
		return nil, err
	}
	env := cmd.Env
	if env == nil {
		env = os.Environ()
	}
	env = append(env, "TERM=xterm-256color", "COLORTERM=truecolor")
	cmd.Env = append(env, s.cfg.Env...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: 120, Rows: 40})
	if err != nil {
		return nil, err
	}
	return &terminal{
		log:  s.log.With("pid", cmd.Process.Pid),
		conn: conn,
		cmd:  cmd,
		ptmx: ptmx,
	}, nil
}

// run bridges the PTY and the socket until either side ends or ctx is done,
// then stops the child. It returns why the session ended.
func (t *terminal) run(ctx context.Context) string {
	ended := make(chan string, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := io.Copy(frameWriter{t.conn}, t.ptmx)
		t.log.Debug("terminal output closed", "err", err)
		ended <- "shelf exited"
	}()
	go func() {
		defer wg.Done()
		err := t.readInput()
		t.log.Debug("terminal input closed", "err", err)
		ended <- "browser disconnected"
	}()

	var reason string
	select {
	case <-ctx.Done():
		reason = "server shutting down"
	case reason = <-ended:
	}
	closeWith(t.conn, websocket.CloseNormalClosure, reason)
	t.stop()
	wg.Wait()
	return reason
}

// readInput writes keystrokes into the PTY and applies resize requests.
func (t *terminal) readInput() error {
	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			return err
		}
		if len(data) == 0 {
			continue
		}
		if mt == websocket.TextMessage {
			if size, ok := parseResize(data); ok {
				if err := pty.Setsize(t.ptmx, size); err != nil {
					t.log.Debug("resize terminal", "err", err)
				}
				continue
			}
		}
		if _, err := t.ptmx.Write(data); err != nil {
			return err
		}
	}
}

// stop kills the child and closes both ends; the pumps return once it has run.
func (t *terminal) stop() {
	t.once.Do(func() {
		_ = t.cmd.Process.Kill()
		_ = t.ptmx.Close()
		_ = t.conn.Close()
		_, _ = t.cmd.Process.Wait()
	})
}

// parseResize recognises {"type":"resize","cols":N,"rows":N}; any other text
// is keyboard input.
func parseResize(data []byte) (*pty.Winsize, bool) {
	if data[0] != '{' {
		return nil, false
	}
	var m struct {
		Type string `json:"type"`
		Cols uint16 `json:"cols"`
		Rows uint16 `json:"rows"`
	}
	if err := json.Unmarshal(data, &m); err != nil || m.Type != "resize" || m.Cols == 0 || m.Rows == 0 {
		return nil, false
	}
	return &pty.Winsize{Cols: m.Cols, Rows: m.Rows}, true
}

// frameWriter sends every write as one binary frame.
type frameWriter struct{ conn *websocket.Conn }

func (f frameWriter) Write(b []byte) (int, error) {
	_ = f.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := f.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
