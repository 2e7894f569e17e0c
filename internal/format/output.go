package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Texter is implemented by values with a plain-text rendering.
type Texter interface {
	Text() string
}

// Write writes output in the requested format.
//
// Supported formats:
// - json (default)
// - text
func Write(w io.Writer, v any, format string, pretty bool) error {
	switch format {
	case "", "json":
		return WriteJSON(w, v, pretty)
	case "text":
		return WriteText(w, v)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// WriteJSON writes strict JSON output for CLI commands.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(b))
	return err
}

// WriteText writes a human-oriented rendering. Values without one fall back to
// indented JSON.
func WriteText(w io.Writer, v any) error {
	switch t := v.(type) {
	case Texter:
		s := t.Text()
		if s != "" && !strings.HasSuffix(s, "\n") {
			s += "\n"
		}
		_, err := io.WriteString(w, s)
		return err
	case []string:
		for _, line := range t {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		return nil
	case string:
		_, err := fmt.Fprintln(w, t)
		return err
	default:
		return WriteJSON(w, v, true)
	}
}
