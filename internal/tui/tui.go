// Package tui is the interactive terminal front end: a sign-in form, the
// searchable document list and a document panel.
package tui

import (
	"shelf-cli/internal/app"
	"shelf-cli/internal/store"

	tea "github.com/charmbracelet/bubbletea"
)

type Options struct {
	// Glyphs selects "unicode" or "ascii" list glyphs.
	Glyphs string
}

// Run blocks until the user quits. notices must be the Notifier the
// controller's session gate was built with.
func Run(c *app.Controller, notices *Notices, opts Options) error {
	applyColorProfilePreference()
	applyThemePreference()
	applyGlyphPreference(opts.Glyphs)

	m := newAppModel(c, notices)
	if st, err := store.LoadTUIState(); err != nil {
		c.Log.Warn("load tui state", "err", err)
	} else {
		m.restore(st)
	}

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if fm, ok := final.(appModel); ok {
		if serr := store.SaveTUIState(fm.state()); serr != nil {
			c.Log.Warn("save tui state", "err", serr)
		}
	}
	return err
}
