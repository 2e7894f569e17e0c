package library

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"shelf-cli/internal/backend"
	"shelf-cli/internal/backend/backendtest"
	"shelf-cli/internal/blob"
	"shelf-cli/internal/model"
)

func newClient(t *testing.T, srv *backendtest.Server, authed bool) *backend.Client {
	t.Helper()
	c, err := backend.New(backend.Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}
	if authed {
		c.SetSessionCookie(model.Credential{Name: model.SessionCookieName, Value: backendtest.DefaultToken})
	}
	return c
}

func TestLoad_MissingThumbnailLeavesPlaceholder(t *testing.T) {
	srv := backendtest.New(t)
	reg := blob.NewRegistry()
	lib := New(newClient(t, srv, true), Options{Concurrency: 4, Blobs: reg})

	lib.Load(context.Background())

	if got, want := lib.Documents(), []string{"a.pdf", "Report.pdf", "b.pdf"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("documents = %v, want %v", got, want)
	}
	if lib.State() != StateThumbnails {
		t.Fatalf("state = %v, want thumbnails", lib.State())
	}
	for _, name := range []string{"a.pdf", "Report.pdf"} {
		h, ok := lib.Thumbnail(name)
		if !ok || !h.Valid() {
			t.Fatalf("expected thumbnail for %s, got %+v ok=%v", name, h, ok)
		}
		data, ct, ok := reg.Open(h.ID)
		if !ok || len(data) == 0 {
			t.Fatalf("handle %s not backed by registry", h.ID)
		}
		if ct != "image/jpeg" {
			t.Fatalf("content type = %q, want image/jpeg", ct)
		}
	}
	if _, ok := lib.Thumbnail("b.pdf"); ok {
		t.Fatalf("b.pdf should have no thumbnail")
	}
	if reg.Len() != 2 {
		t.Fatalf("registry len = %d, want 2", reg.Len())
	}
	if srv.Calls("GET /api/pdfs") != 1 || srv.Calls("GET /api/pdfs/thumbnails") != 3 {
		t.Fatalf("calls: list=%d thumbs=%d", srv.Calls("GET /api/pdfs"), srv.Calls("GET /api/pdfs/thumbnails"))
	}
}

func TestLoadThumbnails_AllFailuresKeepList(t *testing.T) {
	srv := backendtest.New(t)
	// No session cookie: every thumbnail request is rejected.
	lib := New(newClient(t, srv, false), Options{Concurrency: 2})

	done := make(chan struct{})
	go func() {
		lib.Load(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Load did not terminate")
	}

	if len(lib.Documents()) != 3 {
		t.Fatalf("documents = %v, want 3 entries", lib.Documents())
	}
	if n := len(lib.Thumbnails()); n != 0 {
		t.Fatalf("thumbnails = %d, want 0", n)
	}
	if lib.State() != StateThumbnails {
		t.Fatalf("state = %v, want thumbnails", lib.State())
	}
}

func TestLoadDocumentList_FailureLeavesEmpty(t *testing.T) {
	srv := backendtest.New(t)
	srv.Lock()
	srv.ListStatus = 500
	srv.Unlock()
	lib := New(newClient(t, srv, true), Options{})

	lib.Load(context.Background())

	if len(lib.Documents()) != 0 {
		t.Fatalf("documents = %v, want empty", lib.Documents())
	}
	if lib.State() != StateEmpty {
		t.Fatalf("state = %v, want empty", lib.State())
	}
	var se *backend.StatusError
	if !errors.As(lib.LastError(), &se) || se.Code != 500 {
		t.Fatalf("LastError = %v, want status 500", lib.LastError())
	}
	if srv.Calls("GET /api/pdfs/thumbnails") != 0 {
		t.Fatalf("thumbnails fetched after failed list")
	}
}

func TestLoad_EmptyListCompletes(t *testing.T) {
	srv := backendtest.New(t)
	srv.Lock()
	srv.Docs = nil
	srv.Unlock()
	lib := New(newClient(t, srv, true), Options{})

	lib.Load(context.Background())

	if len(lib.Documents()) != 0 {
		t.Fatalf("documents = %v, want empty", lib.Documents())
	}
	if lib.State() != StateThumbnails {
		t.Fatalf("state = %v, want thumbnails", lib.State())
	}
	if lib.LastError() != nil {
		t.Fatalf("LastError = %v", lib.LastError())
	}
	if srv.Calls("GET /api/pdfs/thumbnails") != 0 {
		t.Fatalf("thumbnail requests for an empty list")
	}
}

func TestLoadThumbnails_RespectsConcurrency(t *testing.T) {
	for _, limit := range []int{1, 3} {
		t.Run(fmt.Sprint(limit), func(t *testing.T) {
			srv := backendtest.New(t)
			srv.Lock()
			srv.Docs = nil
			for i := 0; i < 8; i++ {
				name := fmt.Sprintf("doc-%d.pdf", i)
				srv.Docs = append(srv.Docs, name)
				srv.Thumbs[name] = backendtest.PNG(10, 10)
			}
			srv.ThumbDelay = 20 * time.Millisecond
			srv.Unlock()

			lib := New(newClient(t, srv, true), Options{Concurrency: limit})
			lib.Load(context.Background())

			if got := srv.MaxInFlightThumbnails(); got < 1 || got > limit {
				t.Fatalf("max in flight = %d, want 1..%d", got, limit)
			}
			if n := len(lib.Thumbnails()); n != 8 {
				t.Fatalf("thumbnails = %d, want 8", n)
			}
		})
	}
}

func TestRefresh_ReleasesPreviousHandles(t *testing.T) {
	srv := backendtest.New(t)
	reg := blob.NewRegistry()
	lib := New(newClient(t, srv, true), Options{Blobs: reg})
	lib.Load(context.Background())
	old := lib.Thumbnails()
	if len(old) != 2 {
		t.Fatalf("thumbnails = %d, want 2", len(old))
	}

	lib.Refresh(context.Background())

	for name, h := range old {
		if _, _, ok := reg.Open(h.ID); ok {
			t.Fatalf("handle for %s still live after refresh", name)
		}
	}
	if reg.Len() != 2 {
		t.Fatalf("registry len = %d, want 2", reg.Len())
	}
	if srv.Calls("GET /api/pdfs") != 2 {
		t.Fatalf("list calls = %d, want 2", srv.Calls("GET /api/pdfs"))
	}
}

func TestClose_ReleasesEverything(t *testing.T) {
	srv := backendtest.New(t)
	reg := blob.NewRegistry()
	lib := New(newClient(t, srv, true), Options{Blobs: reg})
	lib.Load(context.Background())
	lib.Select("a.pdf")

	lib.Close()

	if reg.Len() != 0 || len(lib.Documents()) != 0 || lib.State() != StateEmpty {
		t.Fatalf("after close: blobs=%d docs=%v state=%v", reg.Len(), lib.Documents(), lib.State())
	}
	if _, ok := lib.Selected(); ok {
		t.Fatalf("selection survived close")
	}
}

// gatedSource holds every thumbnail until release is closed, ignoring cancellation.
type gatedSource struct {
	names   []string
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (g *gatedSource) ListDocuments(context.Context) ([]string, error) { return g.names, nil }

func (g *gatedSource) Thumbnail(_ context.Context, name string) (backend.Payload, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return backend.Payload{Data: []byte("not an image " + name), ContentType: "image/png"}, nil
}

func TestLoadThumbnails_StaleSequenceDiscarded(t *testing.T) {
	src := &gatedSource{names: []string{"a.pdf", "b.pdf"}, release: make(chan struct{}), started: make(chan struct{})}
	reg := blob.NewRegistry()
	lib := New(src, Options{Concurrency: 2, Blobs: reg})

	names := lib.LoadDocumentList(context.Background())
	result := make(chan map[string]blob.Handle, 1)
	go func() { result <- lib.LoadThumbnails(context.Background(), names) }()
	<-src.started

	lib.Close()
	close(src.release)

	got := <-result
	if len(got) != 0 {
		t.Fatalf("stale sequence committed %d thumbnails", len(got))
	}
	if reg.Len() != 0 {
		t.Fatalf("stale handles not revoked: %d live", reg.Len())
	}
	if len(lib.Thumbnails()) != 0 {
		t.Fatalf("library holds thumbnails after close")
	}
}

func TestLoadThumbnails_UndecodablePayloadKept(t *testing.T) {
	src := &gatedSource{names: []string{"a.pdf"}, release: make(chan struct{}), started: make(chan struct{})}
	close(src.release)
	lib := New(src, Options{})

	lib.Load(context.Background())

	h, ok := lib.Thumbnail("a.pdf")
	if !ok {
		t.Fatalf("expected a thumbnail entry")
	}
	data, ct, _ := lib.Blobs().Open(h.ID)
	if string(data) != "not an image a.pdf" || ct != "image/png" {
		t.Fatalf("payload changed: %q %q", data, ct)
	}
}

func TestSelection(t *testing.T) {
	srv := backendtest.New(t)
	var changes atomic.Int32
	lib := New(newClient(t, srv, true), Options{OnChange: func() { changes.Add(1) }})
	lib.Load(context.Background())

	if lib.Select("missing.pdf") {
		t.Fatalf("Select accepted an unlisted name")
	}
	if _, ok := lib.Selected(); ok {
		t.Fatalf("unexpected selection")
	}

	before := changes.Load()
	lib.Clear()
	if changes.Load() != before {
		t.Fatalf("Clear with no selection reported a change")
	}

	if !lib.Select("Report.pdf") {
		t.Fatalf("Select(Report.pdf) refused")
	}
	if name, ok := lib.Selected(); !ok || name != "Report.pdf" {
		t.Fatalf("Selected = %q %v", name, ok)
	}

	// The document disappears on the server; the selection reads as closed.
	srv.Lock()
	srv.Docs = []string{"a.pdf"}
	srv.Unlock()
	lib.Refresh(context.Background())
	if _, ok := lib.Selected(); ok {
		t.Fatalf("orphaned selection still open")
	}
	if s := lib.Snapshot(); s.Selected != "" {
		t.Fatalf("snapshot selected = %q", s.Selected)
	}
}

func TestLibraryFilter(t *testing.T) {
	srv := backendtest.New(t)
	lib := New(newClient(t, srv, true), Options{})
	lib.LoadDocumentList(context.Background())

	if got := lib.Filter("report"); !reflect.DeepEqual(got, []string{"Report.pdf"}) {
		t.Fatalf("Filter = %v", got)
	}
	if len(lib.Documents()) != 3 {
		t.Fatalf("filter mutated the list")
	}
}
