// Package app wires the session gate, the library and the viewer around one
// backend client. Every front end (web, TUI, CLI) owns exactly one Controller.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"shelf-cli/internal/backend"
	"shelf-cli/internal/blob"
	"shelf-cli/internal/config"
	"shelf-cli/internal/library"
	"shelf-cli/internal/logging"
	"shelf-cli/internal/session"
	"shelf-cli/internal/store"
	"shelf-cli/internal/viewer"
)

type Options struct {
	Config   config.Config
	Logger   *slog.Logger
	Notifier session.Notifier

	// Credentials overrides the store selected by Config.Credentials.
	Credentials session.CredentialStore
	// Launch overrides the OS viewer launcher.
	Launch func(path string) error
	// Transport overrides the HTTP transport.
	Transport http.RoundTripper

	// AutoLoad loads the library in the background whenever the session
	// becomes authenticated.
	AutoLoad bool
	// OnLibraryChange is forwarded to library.Options.OnChange.
	OnLibraryChange func()
}

type Controller struct {
	Config  config.Config
	Log     *slog.Logger
	Client  *backend.Client
	Session *session.Gate
	Library *library.Library
	Viewer  *viewer.Viewer
	Blobs   *blob.Registry

	autoLoad bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	unsub    func()
	closers  []func() error
	once     sync.Once
}

func New(opts Options) (*Controller, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := cfg.BaseURL()
	if err != nil {
		return nil, err
	}
	log := logging.OrDiscard(opts.Logger)

	client, err := backend.New(backend.Options{
		BaseURL:      base,
		Timeout:      cfg.Timeout,
		DocumentAuth: cfg.DocumentAuth == config.DocumentAuthCookie,
		Transport:    opts.Transport,
		Logger:       log.With("component", "backend"),
	})
	if err != nil {
		return nil, err
	}

	c := &Controller{
		Config:   cfg,
		Log:      log,
		Client:   client,
		Blobs:    blob.NewRegistry(),
		autoLoad: opts.AutoLoad,
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	creds := opts.Credentials
	if creds == nil {
		var closeFn func() error
		creds, closeFn, err = OpenCredentialStore(c.ctx, cfg.Credentials)
		if err != nil {
			c.cancel()
			return nil, err
		}
		if closeFn != nil {
			c.closers = append(c.closers, closeFn)
		}
	}

	c.Session = session.New(client, creds, session.Options{
		Notifier: opts.Notifier,
		Logger:   log.With("component", "session"),
	})
	c.Library = library.New(client, library.Options{
		Concurrency: cfg.Concurrency,
		Blobs:       c.Blobs,
		Logger:      log.With("component", "library"),
		OnChange:    opts.OnLibraryChange,
	})
	c.Viewer = viewer.New(client, c.Library, viewer.Options{
		Launch: opts.Launch,
		Logger: log.With("component", "viewer"),
	})
	c.unsub = c.Session.Subscribe(c.onSession)
	return c, nil
}

// OpenCredentialStore builds the store for kind. The close func may be nil.
func OpenCredentialStore(ctx context.Context, kind string) (session.CredentialStore, func() error, error) {
	switch kind {
	case config.CredentialsMemory:
		return &session.MemoryStore{}, nil, nil
	case config.CredentialsSQLite:
		s, err := store.OpenSQLiteCredentials(ctx, "")
		if err != nil {
			return nil, nil, fmt.Errorf("open credential database: %w", err)
		}
		return s, s.Close, nil
	case config.CredentialsFile, "":
		s, err := store.NewFileCredentials()
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown credential store %q", kind)
	}
}

// Start restores the session from the credential store.
func (c *Controller) Start(ctx context.Context) bool {
	authed := c.Session.Initialize(ctx)
	c.Log.Debug("session restored", "authenticated", authed)
	return authed
}

func (c *Controller) onSession(authenticated bool) {
	if !authenticated {
		c.Viewer.Close()
		c.Library.Close()
		return
	}
	if !c.autoLoad || c.ctx.Err() != nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Library.Load(c.ctx)
	}()
}

// Refresh reloads the library in the background (AutoLoad) or inline.
func (c *Controller) Refresh(ctx context.Context) {
	if !c.Session.Authenticated() {
		return
	}
	if !c.autoLoad {
		c.Library.Refresh(ctx)
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Library.Refresh(c.ctx)
	}()
}

// Wait blocks until background loads have finished.
func (c *Controller) Wait() { c.wg.Wait() }

// Context is cancelled when the controller closes.
func (c *Controller) Context() context.Context { return c.ctx }

// Close cancels background work and releases every held resource.
func (c *Controller) Close() error {
	var errs []error
	c.once.Do(func() {
		c.cancel()
		c.wg.Wait()
		if c.unsub != nil {
			c.unsub()
		}
		c.Library.Close()
		c.Blobs.RevokeAll()
		for _, fn := range c.closers {
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
