package viewer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shelf-cli/internal/backend"
	"shelf-cli/internal/backend/backendtest"
	"shelf-cli/internal/model"
)

type fakeSelection struct {
	docs     []string
	selected string
}

func (f *fakeSelection) Select(name string) bool {
	for _, d := range f.docs {
		if d == name {
			f.selected = name
			return true
		}
	}
	return false
}

func (f *fakeSelection) Clear() { f.selected = "" }

func (f *fakeSelection) Selected() (string, bool) { return f.selected, f.selected != "" }

func newViewer(t *testing.T, srv *backendtest.Server, docAuth bool, launch func(string) error) *Viewer {
	t.Helper()
	c, err := backend.New(backend.Options{BaseURL: srv.URL, Timeout: 5 * time.Second, DocumentAuth: docAuth})
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}
	c.SetSessionCookie(model.Credential{Name: model.SessionCookieName, Value: backendtest.DefaultToken})
	sel := &fakeSelection{docs: []string{"a.pdf", "Report.pdf", "b.pdf"}}
	return New(c, sel, Options{Launch: launch, TempDir: t.TempDir()})
}

func TestURL_EscapesName(t *testing.T) {
	srv := backendtest.New(t)
	v := newViewer(t, srv, true, nil)
	got := v.URL("my report.pdf")
	want := srv.URL + "/api/pdfs/my%20report.pdf"
	if got != want {
		t.Fatalf("URL = %q, want %q", got, want)
	}
}

func TestShowAndClose(t *testing.T) {
	srv := backendtest.New(t)
	v := newViewer(t, srv, true, nil)
	if v.Show("missing.pdf") {
		t.Fatalf("Show accepted an unlisted name")
	}
	v.Close()
	if _, ok := v.Current(); ok {
		t.Fatalf("unexpected current document")
	}
	if !v.Show("a.pdf") {
		t.Fatalf("Show(a.pdf) refused")
	}
	if name, ok := v.Current(); !ok || name != "a.pdf" {
		t.Fatalf("Current = %q %v", name, ok)
	}
	v.Close()
	if _, ok := v.Current(); ok {
		t.Fatalf("Close left a document open")
	}
}

func TestFetch_DocumentAuthModes(t *testing.T) {
	srv := backendtest.New(t)

	v := newViewer(t, srv, false, nil)
	if _, err := v.Fetch(context.Background(), "a.pdf"); backend.StatusCode(err) != 401 {
		t.Fatalf("fetch without cookie: err = %v, want 401", err)
	}

	v = newViewer(t, srv, true, nil)
	doc, err := v.Fetch(context.Background(), "a.pdf")
	if err != nil {
		t.Fatalf("fetch with cookie: %v", err)
	}
	defer doc.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(doc.Body)
	if !bytes.Equal(buf.Bytes(), backendtest.MinimalPDF(2)) {
		t.Fatalf("document bytes differ")
	}
	if doc.ContentType != "application/pdf" {
		t.Fatalf("content type = %q", doc.ContentType)
	}
}

func TestOpen_DownloadsAndLaunches(t *testing.T) {
	srv := backendtest.New(t)
	var launched string
	v := newViewer(t, srv, true, func(p string) error {
		launched = p
		return nil
	})

	path, err := v.Open(context.Background(), "Report.pdf")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if launched != path || filepath.Base(path) != "Report.pdf" {
		t.Fatalf("launched %q, returned %q", launched, path)
	}
	b, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(b, backendtest.MinimalPDF(5)) {
		t.Fatalf("downloaded file mismatch: %v", err)
	}
}

func TestOpen_NotFound(t *testing.T) {
	srv := backendtest.New(t)
	called := false
	v := newViewer(t, srv, true, func(string) error { called = true; return nil })
	if _, err := v.Open(context.Background(), "nope.pdf"); backend.StatusCode(err) != 404 {
		t.Fatalf("err = %v, want 404", err)
	}
	if called {
		t.Fatalf("launcher called for a missing document")
	}
}

func TestInfo_PageCount(t *testing.T) {
	srv := backendtest.New(t)
	v := newViewer(t, srv, true, nil)

	info, err := v.Info(context.Background(), "Report.pdf")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Pages != 5 {
		t.Fatalf("pages = %d, want 5", info.Pages)
	}
	if info.Size != int64(len(backendtest.MinimalPDF(5))) || !strings.HasSuffix(info.URL, "/api/pdfs/Report.pdf") {
		t.Fatalf("info = %+v", info)
	}
}

func TestInfo_NonPDFHasNoPages(t *testing.T) {
	srv := backendtest.New(t)
	srv.Lock()
	srv.Documents["a.pdf"] = []byte("plain text")
	srv.Unlock()
	v := newViewer(t, srv, true, nil)

	info, err := v.Info(context.Background(), "a.pdf")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Pages != 0 || info.Size != 10 {
		t.Fatalf("info = %+v", info)
	}
}

func TestSafeFileName(t *testing.T) {
	cases := map[string]string{
		"a.pdf":         "a.pdf",
		"../../etc.pdf": "etc.pdf",
		`dir\evil.pdf`:  "evil.pdf",
		"..":            "document.pdf",
		"":              "document.pdf",
	}
	for in, want := range cases {
		if got := safeFileName(in); got != want {
			t.Fatalf("safeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}
