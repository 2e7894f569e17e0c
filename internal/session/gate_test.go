package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"shelf-cli/internal/backend"
	"shelf-cli/internal/backend/backendtest"
	"shelf-cli/internal/model"
)

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Notify(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func newGate(t *testing.T, srv *backendtest.Server, store CredentialStore) (*Gate, *backend.Client, *recorder) {
	t.Helper()
	c, err := backend.New(backend.Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}
	rec := &recorder{}
	return New(c, store, Options{Notifier: rec}), c, rec
}

func TestInitialize_NoCredential(t *testing.T) {
	srv := backendtest.New(t)
	g, _, _ := newGate(t, srv, &MemoryStore{})
	if g.Initialize(context.Background()) || g.Authenticated() {
		t.Fatalf("expected unauthenticated")
	}
	if srv.Calls("POST /login") != 0 || srv.Calls("GET /api/pdfs") != 0 {
		t.Fatalf("Initialize made requests")
	}
}

func TestInitialize_StoredCredentialInstalledInJar(t *testing.T) {
	srv := backendtest.New(t)
	store := &MemoryStore{}
	_ = store.Set(context.Background(), model.Credential{Name: model.SessionCookieName, Value: backendtest.DefaultToken})
	g, c, _ := newGate(t, srv, store)

	if !g.Initialize(context.Background()) {
		t.Fatalf("expected authenticated from stored credential")
	}
	if _, err := c.Thumbnail(context.Background(), "a.pdf"); err != nil {
		t.Fatalf("thumbnail with restored cookie: %v", err)
	}
}

func TestInitialize_ExpiredCredential(t *testing.T) {
	srv := backendtest.New(t)
	store := &MemoryStore{}
	_ = store.Set(context.Background(), model.Credential{Name: model.SessionCookieName, Value: "x", Expires: time.Now().Add(-time.Hour)})
	g, _, _ := newGate(t, srv, store)
	if g.Initialize(context.Background()) {
		t.Fatalf("expired credential should not authenticate")
	}
}

func TestLogin_Rejected(t *testing.T) {
	srv := backendtest.New(t)
	store := &MemoryStore{}
	g, _, rec := newGate(t, srv, store)

	if g.Login(context.Background(), "admin", "wrong") {
		t.Fatalf("Login returned true for bad password")
	}
	if g.Authenticated() {
		t.Fatalf("authenticated after rejection")
	}
	if got := rec.all(); len(got) != 1 || got[0] != NoticeInvalidCredentials {
		t.Fatalf("notices = %v", got)
	}
	if _, ok, _ := store.Get(context.Background()); ok {
		t.Fatalf("credential stored after rejection")
	}
}

func TestLogin_Unreachable(t *testing.T) {
	srv := backendtest.New(t)
	g, _, rec := newGate(t, srv, &MemoryStore{})
	srv.Close()

	if g.Login(context.Background(), "admin", "admin") {
		t.Fatalf("Login succeeded against a closed server")
	}
	if got := rec.all(); len(got) != 1 || got[0] != NoticeUnreachable {
		t.Fatalf("notices = %v", got)
	}
}

func TestLogin_SuccessStoresCookie(t *testing.T) {
	srv := backendtest.New(t)
	store := &MemoryStore{}
	g, _, rec := newGate(t, srv, store)

	var seen []bool
	g.Subscribe(func(v bool) { seen = append(seen, v) })

	if !g.Login(context.Background(), backendtest.DefaultUsername, backendtest.DefaultPassword) {
		t.Fatalf("Login failed")
	}
	if !g.Authenticated() {
		t.Fatalf("not authenticated")
	}
	cred, ok, _ := store.Get(context.Background())
	if !ok || cred.Value != backendtest.DefaultToken || cred.Expires.IsZero() {
		t.Fatalf("stored credential = %+v ok=%v", cred, ok)
	}
	if len(rec.all()) != 0 {
		t.Fatalf("unexpected notices: %v", rec.all())
	}
	if len(seen) != 1 || !seen[0] {
		t.Fatalf("subscriber saw %v", seen)
	}
}

func TestLogout_ClearsEvenWhenServerFails(t *testing.T) {
	srv := backendtest.New(t)
	store := &MemoryStore{}
	g, c, _ := newGate(t, srv, store)
	if !g.Login(context.Background(), backendtest.DefaultUsername, backendtest.DefaultPassword) {
		t.Fatalf("Login failed")
	}
	srv.Lock()
	srv.LogoutBroken = true
	srv.Unlock()

	g.Logout(context.Background())

	if g.Authenticated() {
		t.Fatalf("still authenticated after logout")
	}
	if _, ok, _ := store.Get(context.Background()); ok {
		t.Fatalf("credential kept after logout")
	}
	if _, ok := c.SessionCookie(); ok {
		t.Fatalf("jar still holds the session cookie")
	}
	if srv.Calls("POST /logout") != 1 {
		t.Fatalf("logout calls = %d", srv.Calls("POST /logout"))
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	srv := backendtest.New(t)
	g, _, _ := newGate(t, srv, &MemoryStore{})
	calls := 0
	stop := g.Subscribe(func(bool) { calls++ })
	stop()
	g.Login(context.Background(), backendtest.DefaultUsername, backendtest.DefaultPassword)
	if calls != 0 {
		t.Fatalf("unsubscribed observer called %d times", calls)
	}
}

func TestLogin_RejectedAfterSuccessDropsSession(t *testing.T) {
	srv := backendtest.New(t)
	store := &MemoryStore{}
	g, c, rec := newGate(t, srv, store)
	ctx := context.Background()

	if !g.Login(ctx, backendtest.DefaultUsername, backendtest.DefaultPassword) {
		t.Fatalf("Login failed")
	}
	if g.Login(ctx, backendtest.DefaultUsername, "wrong") {
		t.Fatalf("Login returned true for bad password")
	}
	if g.Authenticated() {
		t.Fatalf("authenticated after rejected login")
	}
	if got := rec.all(); len(got) != 1 || got[0] != NoticeInvalidCredentials {
		t.Fatalf("notices = %v", got)
	}
	if _, ok, _ := store.Get(ctx); ok {
		t.Fatalf("stored credential kept after rejected login")
	}
	if _, ok := c.SessionCookie(); ok {
		t.Fatalf("jar still holds the session cookie")
	}

	// A fresh gate over the same store must agree.
	g2, _, _ := newGate(t, srv, store)
	if g2.Initialize(ctx) {
		t.Fatalf("next start restored a session after rejected login")
	}
}
