package web

import (
	"bytes"
	"html/template"
	"net/url"
	"strings"

	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

// guideMarkdown never passes raw HTML through (goldmark's default).
var guideMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM, emoji.Emoji),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// renderedGuide is one embedded guide ready for guide.html.
type renderedGuide struct {
	Title string
	Body  template.HTML
}

// renderGuide converts a guide for the browser. The first level-1 heading
// becomes the title and links to sibling guides ("keys.md") point at
// /guide/{topic}.
func renderGuide(md string) (renderedGuide, error) {
	src := []byte(strings.TrimSpace(md))
	doc := guideMarkdown.Parser().Parse(text.NewReader(src))

	var g renderedGuide
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Heading:
			if g.Title == "" && n.Level == 1 {
				g.Title = headingText(n, src)
			}
		case *ast.Link:
			if topic, ok := guideTopicLink(string(n.Destination)); ok {
				n.Destination = []byte("/guide/" + url.PathEscape(topic))
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return renderedGuide{}, err
	}

	var b bytes.Buffer
	if err := guideMarkdown.Renderer().Render(&b, src, doc); err != nil {
		return renderedGuide{}, err
	}
	g.Body = template.HTML(b.String())
	return g, nil
}

// guideTopicLink reports whether dest is a relative link to another guide.
func guideTopicLink(dest string) (string, bool) {
	if strings.Contains(dest, ":") || strings.Contains(dest, "/") {
		return "", false
	}
	topic, ok := strings.CutSuffix(dest, ".md")
	if !ok || topic == "" {
		return "", false
	}
	return topic, true
}

func headingText(h *ast.Heading, src []byte) string {
	var b strings.Builder
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
		case *ast.CodeSpan:
			for cc := t.FirstChild(); cc != nil; cc = cc.NextSibling() {
				if tt, ok := cc.(*ast.Text); ok {
					b.Write(tt.Segment.Value(src))
				}
			}
		}
	}
	return strings.TrimSpace(b.String())
}
