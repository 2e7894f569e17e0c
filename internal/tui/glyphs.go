package tui

import (
	"strings"
	"sync"
)

// Glyph sets for list affordances. ASCII helps on fonts that lack the box glyphs.

type glyphSet int

const (
	glyphSetUnicode glyphSet = iota
	glyphSetASCII
)

var (
	glyphsMu      sync.RWMutex
	currentGlyphs = glyphSetUnicode
)

func applyGlyphPreference(v string) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "unicode", "utf8":
		setGlyphs(glyphSetUnicode)
	case "ascii":
		setGlyphs(glyphSetASCII)
	}
}

func setGlyphs(gs glyphSet) {
	glyphsMu.Lock()
	currentGlyphs = gs
	glyphsMu.Unlock()
}

func glyphs() glyphSet {
	glyphsMu.RLock()
	defer glyphsMu.RUnlock()
	return currentGlyphs
}

// glyphPreview marks a document whose thumbnail loaded.
func glyphPreview() string {
	if glyphs() == glyphSetASCII {
		return "[#]"
	}
	return "▣"
}

// glyphPlaceholder marks a document without a thumbnail.
func glyphPlaceholder() string {
	if glyphs() == glyphSetASCII {
		return "[ ]"
	}
	return "□"
}

// glyphPending marks a document whose thumbnail is still loading.
func glyphPending() string {
	if glyphs() == glyphSetASCII {
		return "..."
	}
	return "…"
}

func glyphCursor() string {
	if glyphs() == glyphSetASCII {
		return ">"
	}
	return "›"
}
