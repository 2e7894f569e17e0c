package app

import (
	"context"
	"testing"
	"time"

	"shelf-cli/internal/backend/backendtest"
	"shelf-cli/internal/config"
	"shelf-cli/internal/model"
	"shelf-cli/internal/session"
)

func testConfig(srv *backendtest.Server) config.Config {
	return config.Config{
		Server:       srv.URL,
		Concurrency:  2,
		Timeout:      5 * time.Second,
		Credentials:  config.CredentialsMemory,
		DocumentAuth: config.DocumentAuthCookie,
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(Options{Config: config.Config{Server: "http://x", Concurrency: 0, Timeout: time.Second, Credentials: "memory", DocumentAuth: "cookie"}})
	if err == nil {
		t.Fatalf("expected error for concurrency 0")
	}
}

func TestLogin_AutoLoadsLibrary(t *testing.T) {
	srv := backendtest.New(t)
	c, err := New(Options{Config: testConfig(srv), AutoLoad: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if c.Start(context.Background()) {
		t.Fatalf("fresh memory store should start unauthenticated")
	}
	if !c.Session.Login(context.Background(), backendtest.DefaultUsername, backendtest.DefaultPassword) {
		t.Fatalf("login failed")
	}
	c.Wait()

	if srv.Calls("GET /api/pdfs") != 1 {
		t.Fatalf("list calls = %d, want 1", srv.Calls("GET /api/pdfs"))
	}
	if got := len(c.Library.Thumbnails()); got != 2 {
		t.Fatalf("thumbnails = %d, want 2", got)
	}
}

func TestLogout_TearsDownLibrary(t *testing.T) {
	srv := backendtest.New(t)
	creds := &session.MemoryStore{}
	_ = creds.Set(context.Background(), model.Credential{Name: model.SessionCookieName, Value: backendtest.DefaultToken})
	c, err := New(Options{Config: testConfig(srv), Credentials: creds})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if !c.Start(context.Background()) {
		t.Fatalf("stored credential should authenticate")
	}
	c.Library.Load(context.Background())
	c.Viewer.Show("a.pdf")
	if c.Blobs.Len() != 2 {
		t.Fatalf("blobs = %d, want 2", c.Blobs.Len())
	}

	c.Session.Logout(context.Background())

	if c.Blobs.Len() != 0 || len(c.Library.Documents()) != 0 {
		t.Fatalf("library not torn down: blobs=%d docs=%v", c.Blobs.Len(), c.Library.Documents())
	}
	if _, ok := c.Viewer.Current(); ok {
		t.Fatalf("viewer still open after logout")
	}
	if _, ok, _ := creds.Get(context.Background()); ok {
		t.Fatalf("credential kept after logout")
	}
}

func TestOpenCredentialStore(t *testing.T) {
	t.Setenv("SHELF_CONFIG_DIR", t.TempDir())
	for _, kind := range []string{config.CredentialsMemory, config.CredentialsFile, config.CredentialsSQLite} {
		s, closeFn, err := OpenCredentialStore(context.Background(), kind)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if err := s.Set(context.Background(), model.Credential{Name: model.SessionCookieName, Value: "v"}); err != nil {
			t.Fatalf("%s: set: %v", kind, err)
		}
		if got, ok, err := s.Get(context.Background()); err != nil || !ok || got.Value != "v" {
			t.Fatalf("%s: get = %+v %v %v", kind, got, ok, err)
		}
		if closeFn != nil {
			_ = closeFn()
		}
	}
	if _, _, err := OpenCredentialStore(context.Background(), "bogus"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestClose_Idempotent(t *testing.T) {
	srv := backendtest.New(t)
	c, err := New(Options{Config: testConfig(srv)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
