// Package session owns the authenticated flag and the stored session credential.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"shelf-cli/internal/backend"
	"shelf-cli/internal/logging"
	"shelf-cli/internal/model"
)

// Notices shown to the user by Login.
const (
	NoticeInvalidCredentials = "Invalid credentials"
	NoticeUnreachable        = "Could not reach the library server"
)

// Backend is the part of the library server the gate talks to.
type Backend interface {
	Login(ctx context.Context, username, password string) (model.Credential, error)
	Logout(ctx context.Context) error
	SetSessionCookie(cred model.Credential)
	ClearSessionCookie()
}

// CredentialStore persists the session credential between runs.
type CredentialStore interface {
	Get(ctx context.Context) (model.Credential, bool, error)
	Set(ctx context.Context, c model.Credential) error
	Clear(ctx context.Context) error
}

// Notifier shows a blocking notice to the user.
type Notifier interface {
	Notify(msg string)
}

type NotifierFunc func(msg string)

func (f NotifierFunc) Notify(msg string) { f(msg) }

type Options struct {
	Notifier Notifier
	Logger   *slog.Logger
	// Now is the clock used for credential expiry (tests).
	Now func() time.Time
}

type Gate struct {
	backend Backend
	store   CredentialStore
	notify  Notifier
	log     *slog.Logger
	now     func() time.Time

	mu            sync.Mutex
	authenticated bool
	subs          map[int]func(bool)
	nextSub       int
}

func New(b Backend, store CredentialStore, opts Options) *Gate {
	g := &Gate{
		backend: b,
		store:   store,
		notify:  opts.Notifier,
		log:     logging.OrDiscard(opts.Logger),
		now:     opts.Now,
		subs:    map[int]func(bool){},
	}
	if g.notify == nil {
		g.notify = NotifierFunc(func(string) {})
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Initialize derives the flag from the stored credential. It makes no request.
func (g *Gate) Initialize(ctx context.Context) bool {
	cred, ok, err := g.store.Get(ctx)
	if err != nil {
		g.log.Warn("read stored credential", "err", err)
		ok = false
	}
	authed := ok && cred.Present(g.now())
	if authed {
		g.backend.SetSessionCookie(cred)
	}
	g.set(authed)
	return authed
}

// Login submits the credentials. On rejection or transport failure the user
// is notified and any previous session is dropped.
func (g *Gate) Login(ctx context.Context, username, password string) bool {
	cred, err := g.backend.Login(ctx, username, password)
	if err != nil {
		var se *backend.StatusError
		if errors.As(err, &se) {
			g.log.Info("login rejected", "status", se.Code)
			g.notify.Notify(NoticeInvalidCredentials)
		} else {
			g.log.Error("login request failed", "err", err)
			g.notify.Notify(NoticeUnreachable)
		}
		g.drop(ctx)
		return false
	}
	if cred.Value != "" {
		if err := g.store.Set(ctx, cred); err != nil {
			g.log.Warn("persist credential", "err", err)
		}
	} else {
		g.log.Warn("login succeeded without a session cookie")
	}
	g.log.Info("logged in", "user", username)
	g.set(true)
	return true
}

// Logout tells the server best-effort, then always drops the local session.
func (g *Gate) Logout(ctx context.Context) {
	if err := g.backend.Logout(ctx); err != nil {
		g.log.Warn("logout request failed", "err", err)
	}
	g.drop(ctx)
	g.log.Info("logged out")
}

// drop forgets the local session: stored credential, jar cookie and flag.
func (g *Gate) drop(ctx context.Context) {
	if err := g.store.Clear(ctx); err != nil {
		g.log.Warn("clear stored credential", "err", err)
	}
	g.backend.ClearSessionCookie()
	g.set(false)
}

func (g *Gate) Authenticated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authenticated
}

// Subscribe registers fn for every change of the flag. The returned func unsubscribes.
func (g *Gate) Subscribe(fn func(authenticated bool)) func() {
	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		delete(g.subs, id)
		g.mu.Unlock()
	}
}

func (g *Gate) set(v bool) {
	g.mu.Lock()
	changed := g.authenticated != v
	g.authenticated = v
	var fns []func(bool)
	if changed {
		for _, fn := range g.subs {
			fns = append(fns, fn)
		}
	}
	g.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}
