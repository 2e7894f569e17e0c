package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"shelf-cli/internal/backend/backendtest"
	"shelf-cli/internal/model"
)

func newTestClient(t *testing.T, srv *backendtest.Server, docAuth bool) *Client {
	t.Helper()
	c, err := New(Options{BaseURL: srv.URL, Timeout: 5 * time.Second, DocumentAuth: docAuth})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "   ", "localhost:5000", "/relative"} {
		if _, err := New(Options{BaseURL: raw}); err == nil {
			t.Fatalf("New(%q): expected error", raw)
		}
	}
}

func TestLogin_Success_CapturesCookie(t *testing.T) {
	srv := backendtest.New(t)
	c := newTestClient(t, srv, true)

	cred, err := c.Login(context.Background(), "admin", "admin")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if cred.Name != model.SessionCookieName || cred.Value != backendtest.DefaultToken {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if cred.Expires.IsZero() || time.Until(cred.Expires) < 50*time.Minute {
		t.Fatalf("expected ~1h expiry from Max-Age, got %v", cred.Expires)
	}
	if got, ok := c.SessionCookie(); !ok || got.Value != backendtest.DefaultToken {
		t.Fatalf("expected cookie in jar, got %+v ok=%v", got, ok)
	}
}

func TestLogin_Rejected_IsUnauthorizedStatus(t *testing.T) {
	srv := backendtest.New(t)
	c := newTestClient(t, srv, true)

	_, err := c.Login(context.Background(), "admin", "wrong")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if !IsStatus(err) {
		t.Fatalf("expected status error, got %T", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
	if _, ok := c.SessionCookie(); ok {
		t.Fatalf("no cookie should be set after a rejected login")
	}
}

func TestLogin_TransportError_IsNotStatus(t *testing.T) {
	srv := backendtest.New(t)
	url := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: url, Timeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Login(context.Background(), "admin", "admin")
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if IsStatus(err) || errors.Is(err, ErrUnauthorized) {
		t.Fatalf("transport error misclassified: %v", err)
	}
}

func TestListDocuments_PreservesOrder(t *testing.T) {
	srv := backendtest.New(t)
	c := newTestClient(t, srv, true)

	got, err := c.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	want := []string{"a.pdf", "Report.pdf", "b.pdf"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("ListDocuments = %v, want %v", got, want)
	}
}

func TestListDocuments_ServerError(t *testing.T) {
	srv := backendtest.New(t)
	srv.Lock()
	srv.ListStatus = http.StatusInternalServerError
	srv.Unlock()
	c := newTestClient(t, srv, true)

	if _, err := c.ListDocuments(context.Background()); err == nil || !IsStatus(err) {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestThumbnail_RequiresSession(t *testing.T) {
	srv := backendtest.New(t)
	c := newTestClient(t, srv, true)
	ctx := context.Background()

	if _, err := c.Thumbnail(ctx, "a.pdf"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized before login, got %v", err)
	}

	c.SetSessionCookie(model.Credential{Name: model.SessionCookieName, Value: backendtest.DefaultToken})
	p, err := c.Thumbnail(ctx, "a.pdf")
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if p.ContentType != "image/png" || len(p.Data) == 0 {
		t.Fatalf("unexpected payload: ct=%q len=%d", p.ContentType, len(p.Data))
	}

	if _, err := c.Thumbnail(ctx, "b.pdf"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for b.pdf, got %v", err)
	}
}

func TestClearSessionCookie(t *testing.T) {
	srv := backendtest.New(t)
	c := newTestClient(t, srv, true)
	c.SetSessionCookie(model.Credential{Name: model.SessionCookieName, Value: "x"})
	if _, ok := c.SessionCookie(); !ok {
		t.Fatalf("expected cookie after SetSessionCookie")
	}
	c.ClearSessionCookie()
	if _, ok := c.SessionCookie(); ok {
		t.Fatalf("expected no cookie after ClearSessionCookie")
	}
	// Blank credentials are ignored.
	c.SetSessionCookie(model.Credential{})
	if _, ok := c.SessionCookie(); ok {
		t.Fatalf("blank credential should not install a cookie")
	}
}

func TestDocumentURL_EscapesName(t *testing.T) {
	c, err := New(Options{BaseURL: "http://localhost:5000/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, want := c.DocumentURL("a.pdf"), "http://localhost:5000/api/pdfs/a.pdf"; got != want {
		t.Fatalf("DocumentURL = %q, want %q", got, want)
	}
	if got, want := c.DocumentURL("My Report #2.pdf"), "http://localhost:5000/api/pdfs/My%20Report%20%232.pdf"; got != want {
		t.Fatalf("DocumentURL = %q, want %q", got, want)
	}
}

func TestFetchDocument_DocumentAuthModes(t *testing.T) {
	srv := backendtest.New(t)
	ctx := context.Background()
	cred := model.Credential{Name: model.SessionCookieName, Value: backendtest.DefaultToken}

	withCookie := newTestClient(t, srv, true)
	withCookie.SetSessionCookie(cred)
	doc, err := withCookie.FetchDocument(ctx, "a.pdf")
	if err != nil {
		t.Fatalf("FetchDocument (cookie): %v", err)
	}
	b, _ := io.ReadAll(doc.Body)
	_ = doc.Body.Close()
	if !strings.HasPrefix(string(b), "%PDF-") || doc.Size != int64(len(b)) {
		t.Fatalf("unexpected document: size=%d len=%d", doc.Size, len(b))
	}

	anon := newTestClient(t, srv, false)
	anon.SetSessionCookie(cred)
	if _, err := anon.FetchDocument(ctx, "a.pdf"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized without cookie, got %v", err)
	}

	srv.Lock()
	srv.PublicDocuments = true
	srv.Unlock()
	doc, err = anon.FetchDocument(ctx, "a.pdf")
	if err != nil {
		t.Fatalf("FetchDocument (public): %v", err)
	}
	_ = doc.Body.Close()
}

func TestLogout_BrokenConnection(t *testing.T) {
	srv := backendtest.New(t)
	srv.Lock()
	srv.LogoutBroken = true
	srv.Unlock()
	c := newTestClient(t, srv, true)
	if err := c.Logout(context.Background()); err == nil {
		t.Fatalf("expected transport error from broken logout")
	}
}
