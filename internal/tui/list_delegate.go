package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
)

type thumbState int

const (
	thumbPending thumbState = iota
	thumbReady
	thumbMissing
)

type docItem struct {
	name  string
	thumb thumbState
	// detail is the preview summary, e.g. "image/jpeg 12 KB".
	detail string
}

func (d docItem) FilterValue() string { return d.name }
func (d docItem) Title() string       { return d.name }

func (d docItem) Description() string {
	switch d.thumb {
	case thumbReady:
		return d.detail
	case thumbMissing:
		return "no preview"
	default:
		return "Loading..."
	}
}

func (d docItem) glyph() string {
	switch d.thumb {
	case thumbReady:
		return glyphPreview()
	case thumbMissing:
		return glyphPlaceholder()
	default:
		return glyphPending()
	}
}

type docDelegate struct {
	normal   lipgloss.Style
	selected lipgloss.Style
	muted    lipgloss.Style
}

func newDocDelegate() docDelegate {
	return docDelegate{
		normal: lipgloss.NewStyle(),
		selected: lipgloss.NewStyle().
			Foreground(colorSelectedFg).
			Background(colorSelectedBg).
			Bold(true),
		muted: styleMuted(),
	}
}

func (d docDelegate) Height() int  { return 1 }
func (d docDelegate) Spacing() int { return 0 }
func (d docDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

func (d docDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	contentW := m.Width()
	if contentW < 4 {
		return
	}
	it, ok := item.(docItem)
	if !ok {
		fmt.Fprint(w, fitWidth(fmt.Sprint(item), contentW))
		return
	}

	cursor := " "
	style := d.normal
	if index == m.Index() {
		cursor = glyphCursor()
		style = d.selected
	}
	left := cursor + " " + it.glyph() + " " + it.name
	right := it.Description()

	// Right column only when it fits next to the name.
	gap := contentW - xansi.StringWidth(left) - xansi.StringWidth(right)
	if gap >= 2 {
		fmt.Fprint(w, style.Render(left+strings.Repeat(" ", gap))+d.muted.Render(right))
		return
	}
	fmt.Fprint(w, style.Render(fitWidth(left, contentW)))
}

// fitWidth pads or cuts s to exactly width terminal cells.
func fitWidth(s string, width int) string {
	sw := xansi.StringWidth(s)
	switch {
	case sw < width:
		return s + strings.Repeat(" ", width-sw)
	case sw > width:
		return xansi.Cut(s, 0, width)
	}
	return s
}
