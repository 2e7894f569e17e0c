package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"shelf-cli/internal/app"
	"shelf-cli/internal/config"
	"shelf-cli/internal/format"
	"shelf-cli/internal/logging"
	"shelf-cli/internal/store"

	"github.com/spf13/cobra"
)

type App struct {
	Server     string
	Port       string
	PrettyJSON bool
	Format     string

	// launch overrides the OS viewer launcher (tests).
	launch func(path string) error
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{})
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "shelf",
		Short:        "Browse a remote document library (TUI, web UI, scriptable CLI)",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive TUI
  shelf

  # Sign in once; the session cookie is kept for later runs
  shelf login --username admin

  # Scriptable commands
  shelf library list --search report

  # Direct document open (shortcut for: shelf library open <name>.pdf)
  shelf report.pdf
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if cmd.HasSubCommands() && len(args) == 0 {
				return runTUI(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&app.Server, "server", "", "Library server address (overrides SHELF_SERVER_IP)")
	cmd.PersistentFlags().StringVar(&app.Port, "port", "", "Library server port (overrides SHELF_PORT)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("SHELF_FORMAT", "json"), "Output format (json|text)")

	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newStatusCmd(app))
	cmd.AddCommand(newLibraryCmd(app))
	cmd.AddCommand(newWebCmd(app))
	cmd.AddCommand(newWebTUICmd(app))
	cmd.AddCommand(newGuideCmd(app))

	return cmd
}

// loadConfig resolves .env, ~/.shelf/config.json, the environment and flags.
func loadConfig(app *App) (config.Config, error) {
	config.LoadDotEnv()
	file, err := store.LoadConfig()
	if err != nil {
		return config.Config{}, err
	}
	cfg := config.Load(file)
	if v := strings.TrimSpace(app.Server); v != "" {
		cfg.Server = v
	}
	if v := strings.TrimSpace(app.Port); v != "" {
		cfg.Port = v
	}
	return cfg, cfg.Validate()
}

// openController builds a controller logging to logOut (or SHELF_LOG_FILE).
// The returned close func also releases the log file.
func openController(cmd *cobra.Command, a *App, logOut io.Writer, opts app.Options) (*app.Controller, func(), error) {
	cfg, err := loadConfig(a)
	if err != nil {
		return nil, nil, err
	}
	log, closeLog, err := logging.New(cfg.LogLevel, cfg.LogFile, logOut)
	if err != nil {
		return nil, nil, err
	}
	opts.Config = cfg
	opts.Logger = log
	if opts.Launch == nil {
		opts.Launch = a.launch
	}
	if opts.Notifier == nil {
		opts.Notifier = stderrNotifier{w: cmd.ErrOrStderr()}
	}
	c, err := app.New(opts)
	if err != nil {
		_ = closeLog()
		return nil, nil, err
	}
	c.Start(cmd.Context())
	return c, func() {
		_ = c.Close()
		_ = closeLog()
	}, nil
}

type stderrNotifier struct{ w io.Writer }

func (n stderrNotifier) Notify(msg string) { fmt.Fprintln(n.w, msg) }

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// envelope is the JSON shape of every command's output.
type envelope struct {
	Data  any      `json:"data"`
	Hints []string `json:"_hints,omitempty"`
}

func (e envelope) Text() string {
	var b strings.Builder
	_ = format.WriteText(&b, e.Data)
	for _, h := range e.Hints {
		b.WriteString("hint: " + h + "\n")
	}
	return b.String()
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeData(cmd *cobra.Command, app *App, data any, hints ...string) error {
	return writeOut(cmd, app, envelope{Data: data, Hints: hints})
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
