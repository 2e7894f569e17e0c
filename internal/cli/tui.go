package cli

import (
	"io"

	"shelf-cli/internal/app"
	"shelf-cli/internal/tui"

	"github.com/spf13/cobra"
)

// runTUI owns the terminal, so logs go to SHELF_LOG_FILE or nowhere.
func runTUI(cmd *cobra.Command, a *App) error {
	notices := tui.NewNotices()
	c, done, err := openController(cmd, a, io.Discard, app.Options{Notifier: notices})
	if err != nil {
		return writeErr(cmd, err)
	}
	defer done()

	return tui.Run(c, notices, tui.Options{Glyphs: c.Config.Glyphs})
}
