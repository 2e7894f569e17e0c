package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"shelf-cli/internal/app"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type statusData struct {
	Authenticated bool   `json:"authenticated"`
	Server        string `json:"server"`
	Credentials   string `json:"credentials"`
	Username      string `json:"username,omitempty"`
}

func (s statusData) Text() string {
	if s.Authenticated {
		return fmt.Sprintf("signed in to %s (credentials: %s)", s.Server, s.Credentials)
	}
	return fmt.Sprintf("signed out of %s", s.Server)
}

func newLoginCmd(a *App) *cobra.Command {
	var username string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session cookie for later runs",
		Example: strings.TrimSpace(`
# Prompt for the password
shelf login --username admin

# Scripts
printf '%s\n' "$PASS" | shelf login --username admin --password-stdin
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			username = strings.TrimSpace(username)
			if username == "" {
				username = strings.TrimSpace(os.Getenv("SHELF_USERNAME"))
			}
			if username == "" {
				return writeErr(cmd, errors.New("login: missing --username"))
			}
			password, err := readPassword(cmd, passwordStdin)
			if err != nil {
				return writeErr(cmd, err)
			}

			c, done, err := openController(cmd, a, cmd.ErrOrStderr(), app.Options{})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()

			if !c.Session.Login(cmd.Context(), username, password) {
				return writeErr(cmd, errors.New("login failed"))
			}
			return writeData(cmd, a, statusData{
				Authenticated: true,
				Server:        c.Client.BaseURL(),
				Credentials:   c.Config.Credentials,
				Username:      username,
			})
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Account name (or SHELF_USERNAME)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from the first line of stdin")
	return cmd
}

func readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("login: read password: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return "", errors.New("login: empty password on stdin")
		}
		return line, nil
	}
	if v := os.Getenv("SHELF_PASSWORD"); v != "" {
		return v, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("login: no terminal for the password prompt; use --password-stdin")
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("login: read password: %w", err)
	}
	return string(b), nil
}

func newLogoutCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored cookie",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := openController(cmd, a, cmd.ErrOrStderr(), app.Options{})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()

			c.Session.Logout(cmd.Context())
			return writeData(cmd, a, statusData{
				Authenticated: false,
				Server:        c.Client.BaseURL(),
				Credentials:   c.Config.Credentials,
			})
		},
	}
}

func newStatusCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := openController(cmd, a, cmd.ErrOrStderr(), app.Options{})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()

			st := statusData{
				Authenticated: c.Session.Authenticated(),
				Server:        c.Client.BaseURL(),
				Credentials:   c.Config.Credentials,
			}
			var hints []string
			if !st.Authenticated {
				hints = append(hints, "shelf login --username <name>")
			}
			return writeData(cmd, a, st, hints...)
		},
	}
}
