package tui

import (
	"shelf-cli/internal/app"

	tea "github.com/charmbracelet/bubbletea"
)

func loginCmd(c *app.Controller, notices *Notices, username, password string) tea.Cmd {
	return func() tea.Msg {
		ok := c.Session.Login(c.Context(), username, password)
		return loginDoneMsg{ok: ok, notices: notices.Drain()}
	}
}

func logoutCmd(c *app.Controller) tea.Cmd {
	return func() tea.Msg {
		c.Session.Logout(c.Context())
		return logoutDoneMsg{}
	}
}

// loadListCmd starts a load sequence. The list is shown before any thumbnail
// is requested; listLoadedMsg chains loadThumbnailsCmd.
func loadListCmd(c *app.Controller) tea.Cmd {
	return func() tea.Msg {
		return listLoadedMsg{names: c.Library.LoadDocumentList(c.Context())}
	}
}

func loadThumbnailsCmd(c *app.Controller, names []string) tea.Cmd {
	return func() tea.Msg {
		c.Library.LoadThumbnails(c.Context(), names)
		return thumbnailsLoadedMsg{}
	}
}

func openCmd(c *app.Controller, name string) tea.Cmd {
	return func() tea.Msg {
		path, err := c.Viewer.Open(c.Context(), name)
		return openDoneMsg{name: name, path: path, err: err}
	}
}

func infoCmd(c *app.Controller, name string) tea.Cmd {
	return func() tea.Msg {
		info, err := c.Viewer.Info(c.Context(), name)
		return infoDoneMsg{name: name, info: info, err: err}
	}
}
