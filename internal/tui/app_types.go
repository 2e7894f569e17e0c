package tui

import "shelf-cli/internal/model"

type view int

const (
	viewLogin view = iota
	viewLibrary
	viewDocument
	viewHelp
)

type loginDoneMsg struct {
	ok      bool
	notices []string
}

type listLoadedMsg struct {
	names []string
}

type thumbnailsLoadedMsg struct{}

type logoutDoneMsg struct{}

type openDoneMsg struct {
	name string
	path string
	err  error
}

type infoDoneMsg struct {
	name string
	info model.DocumentInfo
	err  error
}
