package tui

import (
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
)

var (
	mdRendererMu sync.Mutex
	// Keyed by style and wrap width. WithAutoStyle can block on terminal
	// queries, so renderers use a fixed style.
	mdRenderers = map[string]*glamour.TermRenderer{}
)

// RenderMarkdown renders md for a terminal of the given width. On any renderer
// error the source is returned unchanged.
func RenderMarkdown(md string, width int) string {
	md = strings.TrimSpace(md)
	if md == "" {
		return ""
	}
	if width < 10 {
		width = 10
	}

	style := markdownStyle()
	key := style + ":" + strconv.Itoa(width)

	mdRendererMu.Lock()
	r := mdRenderers[key]
	mdRendererMu.Unlock()

	if r == nil {
		cfg := markdownStyleConfig(style)
		zero := uint(0)
		cfg.Document.Margin = &zero
		rr, err := glamour.NewTermRenderer(
			glamour.WithStyles(cfg),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return md
		}
		mdRendererMu.Lock()
		if existing := mdRenderers[key]; existing != nil {
			r = existing
		} else {
			mdRenderers[key] = rr
			r = rr
		}
		mdRendererMu.Unlock()
	}

	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

func markdownStyle() string {
	if v := themeOverride(); v != "" {
		return v
	}
	if dark, ok := colorFGBGDark(); ok {
		if dark {
			return "dark"
		}
		return "light"
	}
	if lipgloss.HasDarkBackground() {
		return "dark"
	}
	return "light"
}

func markdownStyleConfig(style string) ansi.StyleConfig {
	var cfg ansi.StyleConfig
	if style == "light" {
		cfg = styles.LightStyleConfig
	} else {
		cfg = styles.DarkStyleConfig
	}
	// Headings follow body text; links use the accent.
	heading := mdColor(colorSurfaceFg, style)
	cfg.H1.Color = heading
	cfg.H2.Color = heading
	cfg.H3.Color = heading
	link := mdColor(colorAccent, style)
	cfg.Link.Color = link
	cfg.LinkText.Color = link
	return cfg
}

func mdColor(c lipgloss.TerminalColor, style string) *string {
	var s string
	switch v := c.(type) {
	case lipgloss.AdaptiveColor:
		if style == "light" {
			s = v.Light
		} else {
			s = v.Dark
		}
	case lipgloss.Color:
		s = string(v)
	default:
		return nil
	}
	return &s
}
