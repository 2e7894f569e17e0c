package tui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func ac(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

func faintIfDark(st lipgloss.Style) lipgloss.Style {
	if lipgloss.HasDarkBackground() {
		return st.Faint(true)
	}
	return st
}

var (
	colorMuted      lipgloss.TerminalColor = ac("240", "243")
	colorSurfaceFg  lipgloss.TerminalColor = ac("235", "252")
	colorSelectedBg lipgloss.TerminalColor = ac("#e9e9e9", "#262626")
	colorSelectedFg lipgloss.TerminalColor = ac("235", "255")
	colorAccent     lipgloss.TerminalColor = ac("27", "62")
	colorError      lipgloss.TerminalColor = ac("160", "203")
	colorInputBg    lipgloss.TerminalColor = ac("254", "234")
)

func styleMuted() lipgloss.Style {
	return faintIfDark(lipgloss.NewStyle().Foreground(colorMuted))
}

func styleTitle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(colorSurfaceFg)
}

func styleAccent() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
}

func styleError() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(colorError).Bold(true)
}

func styleNotice() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorError).
		Padding(0, 2)
}

func stylePanel() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorMuted).
		Padding(0, 1)
}

// applyColorProfilePreference picks the Lip Gloss color profile. Only NO_COLOR
// disables colour; termenv's guess is upgraded when TERM/COLORTERM say more.
func applyColorProfilePreference() {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	profile := termenv.ColorProfile()
	term := strings.ToLower(os.Getenv("TERM"))
	colorterm := strings.ToLower(os.Getenv("COLORTERM"))
	switch {
	case strings.Contains(colorterm, "truecolor") || strings.Contains(colorterm, "24bit"):
		if profile != termenv.Ascii {
			profile = termenv.TrueColor
		}
	case strings.Contains(term, "256color"):
		if profile == termenv.Ascii || profile == termenv.ANSI {
			profile = termenv.ANSI256
		}
	}
	lipgloss.SetColorProfile(profile)
}

// applyThemePreference overrides background detection:
// SHELF_TUI_THEME=light|dark first, then the COLORFGBG "fg;bg" convention.
func applyThemePreference() {
	switch themeOverride() {
	case "light":
		lipgloss.SetHasDarkBackground(false)
		return
	case "dark":
		lipgloss.SetHasDarkBackground(true)
		return
	}
	if dark, ok := colorFGBGDark(); ok {
		lipgloss.SetHasDarkBackground(dark)
	}
}

func themeOverride() string {
	switch v := strings.ToLower(strings.TrimSpace(os.Getenv("SHELF_TUI_THEME"))); v {
	case "light", "dark":
		return v
	}
	return ""
}

func colorFGBGDark() (dark bool, ok bool) {
	v := strings.TrimSpace(os.Getenv("COLORFGBG"))
	if v == "" {
		return false, false
	}
	parts := strings.Split(v, ";")
	bg, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1]))
	if err != nil {
		return false, false
	}
	// xterm palette: 0-6 dark, 7-15 light.
	return bg < 7, true
}

func styleInput() lipgloss.Style {
	return lipgloss.NewStyle().Background(colorInputBg)
}
