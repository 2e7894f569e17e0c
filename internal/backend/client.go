package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"shelf-cli/internal/logging"
	"shelf-cli/internal/model"
)

// maxThumbnailBytes bounds a single thumbnail payload.
const maxThumbnailBytes = 16 << 20

type Options struct {
	BaseURL string
	Timeout time.Duration

	// DocumentAuth attaches the session cookie to document downloads.
	// Listing and thumbnails always carry it.
	DocumentAuth bool

	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Client talks to the library server. Credentials travel as the auth_token cookie.
type Client struct {
	base    *url.URL
	jar     http.CookieJar
	authed  *http.Client
	anon    *http.Client
	docAuth bool
	log     *slog.Logger

	mu sync.Mutex
}

// Payload is a binary response body held in memory.
type Payload struct {
	Data        []byte
	ContentType string
}

// Document is a streamed document body. Callers must close Body.
type Document struct {
	Body        io.ReadCloser
	ContentType string
	// Size is -1 when the server did not send Content-Length.
	Size int64
}

func New(opts Options) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("backend: base url is empty")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend: base url %q needs scheme and host", raw)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	tr := opts.Transport
	if tr == nil {
		tr = http.DefaultTransport
	}
	return &Client{
		base:    base,
		jar:     jar,
		authed:  &http.Client{Jar: jar, Timeout: timeout, Transport: tr},
		anon:    &http.Client{Timeout: timeout, Transport: tr},
		docAuth: opts.DocumentAuth,
		log:     logging.OrDiscard(opts.Logger),
	}, nil
}

// BaseURL returns the server base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) endpoint(segments ...string) string {
	u := *c.base
	p := strings.TrimRight(u.Path, "/")
	raw := p
	for _, s := range segments {
		p += "/" + s
		raw += "/" + url.PathEscape(s)
	}
	u.Path = p
	u.RawPath = raw
	return u.String()
}

// Login posts the credentials as JSON. On 2xx it returns the session cookie the
// server set (zero Credential if it set none).
func (c *Client) Login(ctx context.Context, username, password string) (model.Credential, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return model.Credential{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("login"), bytes.NewReader(body))
	if err != nil {
		return model.Credential{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(c.authed, req)
	if err != nil {
		return model.Credential{}, fmt.Errorf("login: %w", err)
	}
	defer drain(resp.Body)
	if !ok(resp.StatusCode) {
		return model.Credential{}, &StatusError{Op: "login", Code: resp.StatusCode}
	}

	for _, ck := range resp.Cookies() {
		if ck.Name != model.SessionCookieName {
			continue
		}
		cred := model.Credential{Name: ck.Name, Value: ck.Value}
		switch {
		case ck.MaxAge > 0:
			cred.Expires = time.Now().Add(time.Duration(ck.MaxAge) * time.Second).UTC()
		case !ck.Expires.IsZero():
			cred.Expires = ck.Expires.UTC()
		}
		return cred, nil
	}
	return model.Credential{}, nil
}

// Logout asks the server to end the session. The response status is not inspected.
func (c *Client) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("logout"), nil)
	if err != nil {
		return err
	}
	resp, err := c.do(c.authed, req)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	drain(resp.Body)
	return nil
}

// ListDocuments returns document names in server order.
func (c *Client) ListDocuments(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("api", "pdfs"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.do(c.authed, req)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer drain(resp.Body)
	if !ok(resp.StatusCode) {
		return nil, &StatusError{Op: "list documents", Code: resp.StatusCode}
	}
	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		return nil, fmt.Errorf("list documents: decode: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Thumbnail fetches the preview image for name.
func (c *Client) Thumbnail(ctx context.Context, name string) (Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("api", "pdfs", "thumbnails", name), nil)
	if err != nil {
		return Payload{}, err
	}
	resp, err := c.do(c.authed, req)
	if err != nil {
		return Payload{}, fmt.Errorf("thumbnail %s: %w", name, err)
	}
	defer drain(resp.Body)
	if !ok(resp.StatusCode) {
		return Payload{}, &StatusError{Op: "thumbnail " + name, Code: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxThumbnailBytes+1))
	if err != nil {
		return Payload{}, fmt.Errorf("thumbnail %s: read: %w", name, err)
	}
	if len(data) > maxThumbnailBytes {
		return Payload{}, fmt.Errorf("thumbnail %s: payload exceeds %d bytes", name, maxThumbnailBytes)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return Payload{Data: data, ContentType: ct}, nil
}

// DocumentURL is the direct URL of the document bytes.
func (c *Client) DocumentURL(name string) string {
	return c.endpoint("api", "pdfs", name)
}

// FetchDocument streams the document bytes. Whether the session cookie is
// attached follows Options.DocumentAuth.
func (c *Client) FetchDocument(ctx context.Context, name string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DocumentURL(name), nil)
	if err != nil {
		return nil, err
	}
	hc := c.anon
	if c.docAuth {
		hc = c.authed
	}
	resp, err := c.do(hc, req)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", name, err)
	}
	if !ok(resp.StatusCode) {
		drain(resp.Body)
		return nil, &StatusError{Op: "document " + name, Code: resp.StatusCode}
	}
	return &Document{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

// SetSessionCookie installs a stored credential so subsequent requests carry it.
func (c *Client) SetSessionCookie(cred model.Credential) {
	if strings.TrimSpace(cred.Value) == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ck := &http.Cookie{Name: model.SessionCookieName, Value: cred.Value, Path: "/"}
	if !cred.Expires.IsZero() {
		ck.Expires = cred.Expires
	}
	c.jar.SetCookies(c.base, []*http.Cookie{ck})
}

// ClearSessionCookie drops the session cookie from the jar.
func (c *Client) ClearSessionCookie() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jar.SetCookies(c.base, []*http.Cookie{{Name: model.SessionCookieName, Value: "", Path: "/", MaxAge: -1}})
}

// SessionCookie reports the session cookie currently held in the jar.
func (c *Client) SessionCookie() (model.Credential, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name == model.SessionCookieName && ck.Value != "" {
			return model.Credential{Name: ck.Name, Value: ck.Value}, true
		}
	}
	return model.Credential{}, false
}

func ok(code int) bool { return code >= 200 && code < 300 }

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

func (c *Client) do(hc *http.Client, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.log.Debug("backend request failed", "method", req.Method, "path", req.URL.Path, "err", err)
		return nil, err
	}
	c.log.Debug("backend request", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode, "took", time.Since(start))
	return resp, nil
}
