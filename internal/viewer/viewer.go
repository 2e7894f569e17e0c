// Package viewer opens a single document from the library: its direct URL, a
// streamed download, the OS default viewer, and basic document facts.
package viewer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"shelf-cli/internal/backend"
	"shelf-cli/internal/logging"
	"shelf-cli/internal/model"

	"github.com/ledongthuc/pdf"
)

// maxInfoBytes bounds how much of a document Info buffers to count pages.
const maxInfoBytes = 256 << 20

// Source serves document bytes and their direct URLs.
type Source interface {
	DocumentURL(name string) string
	FetchDocument(ctx context.Context, name string) (*backend.Document, error)
}

// Selection is the library's open-document slot.
type Selection interface {
	Select(name string) bool
	Clear()
	Selected() (string, bool)
}

type Options struct {
	// Launch hands a local file to the desktop. Defaults to OpenPath.
	Launch func(path string) error
	// TempDir receives downloads for Open. Defaults to os.TempDir()/shelf.
	TempDir string
	Logger  *slog.Logger
}

type Viewer struct {
	src     Source
	sel     Selection
	launch  func(string) error
	tempDir string
	log     *slog.Logger
}

func New(src Source, sel Selection, opts Options) *Viewer {
	v := &Viewer{
		src:     src,
		sel:     sel,
		launch:  opts.Launch,
		tempDir: opts.TempDir,
		log:     logging.OrDiscard(opts.Logger),
	}
	if v.launch == nil {
		v.launch = OpenPath
	}
	if v.tempDir == "" {
		v.tempDir = filepath.Join(os.TempDir(), "shelf")
	}
	return v
}

// URL is the direct resource URL the browser embeds.
func (v *Viewer) URL(name string) string { return v.src.DocumentURL(name) }

// Fetch streams the document. Callers close the body.
func (v *Viewer) Fetch(ctx context.Context, name string) (*backend.Document, error) {
	return v.src.FetchDocument(ctx, name)
}

// Show selects name for display. It reports false for names not in the list.
func (v *Viewer) Show(name string) bool {
	if !v.sel.Select(name) {
		v.log.Debug("select unknown document", "doc", name)
		return false
	}
	return true
}

// Close dismisses the viewer.
func (v *Viewer) Close() { v.sel.Clear() }

// Current is the document on display, if any.
func (v *Viewer) Current() (string, bool) { return v.sel.Selected() }

// Download writes the document into dir and returns the file path.
func (v *Viewer) Download(ctx context.Context, name, dir string) (string, error) {
	doc, err := v.Fetch(ctx, name)
	if err != nil {
		return "", err
	}
	defer doc.Body.Close()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	base := safeFileName(name)
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, doc.Body); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("download %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, base)
	if err := os.Rename(tmpName, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// Open downloads the document and hands it to the OS default viewer.
func (v *Viewer) Open(ctx context.Context, name string) (string, error) {
	path, err := v.Download(ctx, name, v.tempDir)
	if err != nil {
		return "", err
	}
	if err := v.launch(path); err != nil {
		return path, fmt.Errorf("open %s: %w", path, err)
	}
	v.log.Info("opened document", "doc", name, "path", path)
	return path, nil
}

// Info fetches the document and reports its size and, for PDFs, the page count.
// A document that does not parse reports zero pages.
func (v *Viewer) Info(ctx context.Context, name string) (model.DocumentInfo, error) {
	doc, err := v.Fetch(ctx, name)
	if err != nil {
		return model.DocumentInfo{}, err
	}
	defer doc.Body.Close()

	data, err := io.ReadAll(io.LimitReader(doc.Body, maxInfoBytes+1))
	if err != nil {
		return model.DocumentInfo{}, fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) > maxInfoBytes {
		return model.DocumentInfo{}, fmt.Errorf("%s: larger than %d bytes", name, maxInfoBytes)
	}
	info := model.DocumentInfo{
		Name:        name,
		URL:         v.URL(name),
		ContentType: doc.ContentType,
		Size:        int64(len(data)),
	}
	pages, err := countPages(data)
	if err != nil {
		v.log.Debug("count pages", "doc", name, "err", err)
	}
	info.Pages = pages
	return info, nil
}

func countPages(data []byte) (n int, err error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return 0, errors.New("not a pdf")
	}
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("parse pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return r.NumPage(), nil
}

func safeFileName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == ".." || base == "" {
		return "document.pdf"
	}
	return base
}
