// Package web serves the browser front end: a login form, the thumbnail grid
// with live search, and a full-screen document viewer.
package web

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"shelf-cli/internal/app"
	"shelf-cli/internal/backend"
	"shelf-cli/internal/config"
	"shelf-cli/internal/docs"
	"shelf-cli/internal/library"
	"shelf-cli/internal/logging"

	"github.com/starfederation/datastar-go/datastar"
)

//go:embed templates/*.html static/*.css
var assetsFS embed.FS

const datastarScriptURL = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.6/bundles/datastar.js"

const gridSelector = "#grid"

type ServerConfig struct {
	Addr       string
	Controller *app.Controller

	// Hub should be the one whose Broadcast the controller calls on library
	// changes. Nil creates a hub that only sees session changes.
	Hub *Hub
	// Flash should be the controller's session notifier.
	Flash  *Flash
	Logger *slog.Logger
}

type Server struct {
	cfg   ServerConfig
	c     *app.Controller
	hub   *Hub
	flash *Flash
	log   *slog.Logger
	tmpl  *template.Template
	unsub func()

	mu     sync.RWMutex
	search string
}

type baseVM struct {
	Title    string
	Server   string
	Datastar string
	Notices  []string
}

func (s *Server) baseVM(title string) baseVM {
	return baseVM{
		Title:    title,
		Server:   s.c.Client.BaseURL(),
		Datastar: datastarScriptURL,
	}
}

func NewServer(cfg ServerConfig) (*Server, error) {
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	if cfg.Addr == "" {
		return nil, errors.New("web: addr is empty")
	}
	if cfg.Controller == nil {
		return nil, errors.New("web: controller is nil")
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub()
	}
	if cfg.Flash == nil {
		cfg.Flash = &Flash{}
	}

	tmpl, err := template.New("base").Funcs(template.FuncMap{
		"viewURL":  viewURL,
		"thumbURL": thumbURL,
	}).ParseFS(assetsFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:   cfg,
		c:     cfg.Controller,
		hub:   cfg.Hub,
		flash: cfg.Flash,
		log:   logging.OrDiscard(cfg.Logger),
		tmpl:  tmpl,
	}
	s.unsub = s.c.Session.Subscribe(func(bool) { s.hub.Broadcast() })
	return s, nil
}

func (s *Server) Addr() string { return s.cfg.Addr }

// Close detaches the server from the controller's session.
func (s *Server) Close() {
	if s.unsub != nil {
		s.unsub()
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /static/app.css", s.handleAppCSS)
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("POST /login", s.sameOrigin(s.handleLoginPost))
	mux.HandleFunc("POST /logout", s.sameOrigin(s.handleLogoutPost))
	mux.HandleFunc("GET /library/grid", s.sameOrigin(s.handleGrid))
	mux.HandleFunc("GET /library/events", s.handleLibraryEvents)
	mux.HandleFunc("POST /library/refresh", s.sameOrigin(s.handleRefresh))
	mux.HandleFunc("GET /thumbs/{id}", s.handleThumb)
	mux.HandleFunc("GET /view/{name}", s.handleView)
	mux.HandleFunc("POST /view/close", s.sameOrigin(s.handleViewClose))
	mux.HandleFunc("GET /docs/{name}", s.handleDocument)
	mux.HandleFunc("GET /guide", s.handleGuide)
	mux.HandleFunc("GET /guide/{topic}", s.handleGuide)
	return mux
}

// sameOrigin refuses requests that change state when another site sent them.
func (s *Server) sameOrigin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !isSameOrigin(r) {
			s.log.Warn("cross-origin request rejected", "method", r.Method, "path", r.URL.Path, "origin", r.Header.Get("Origin"))
			http.Error(w, "cross-origin request rejected", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// isSameOrigin accepts requests without browser origin headers (curl, tests).
func isSameOrigin(r *http.Request) bool {
	switch r.Header.Get("Sec-Fetch-Site") {
	case "", "same-origin", "none":
	default:
		return false
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func viewURL(name string) string { return "/view/" + url.PathEscape(name) }

func thumbURL(id string) string { return "/thumbs/" + url.PathEscape(id) }

func (s *Server) handleAppCSS(w http.ResponseWriter, r *http.Request) {
	b, err := assetsFS.ReadFile("static/app.css")
	if err != nil || len(b) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) renderTemplate(name string, data any) (string, error) {
	var b strings.Builder
	if err := s.tmpl.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (s *Server) writeHTMLTemplate(w http.ResponseWriter, status int, name string, data any) {
	html, err := s.renderTemplate(name, data)
	if err != nil {
		s.log.Error("render template", "template", name, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, html)
}

func (s *Server) currentSearch() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search
}

func (s *Server) setSearch(term string) {
	s.mu.Lock()
	s.search = term
	s.mu.Unlock()
}

type loginVM struct {
	baseVM
	Username string
}

func (s *Server) writeLogin(w http.ResponseWriter, status int, username string) {
	vm := loginVM{baseVM: s.baseVM("Sign in"), Username: username}
	vm.Notices = s.flash.drain()
	s.writeHTMLTemplate(w, status, "login.html", vm)
}

type cardVM struct {
	Name     string
	ThumbID  string
	Pending  bool
	Selected bool
}

type gridVM struct {
	Search      string
	Total       int
	Shown       int
	LoadingList bool
	Error       string
	Cards       []cardVM
}

func (s *Server) gridVM() gridVM {
	snap := s.c.Library.Snapshot()
	search := s.currentSearch()
	names := library.Filter(snap.Documents, search)

	vm := gridVM{
		Search:      search,
		Total:       len(snap.Documents),
		Shown:       len(names),
		LoadingList: snap.State == library.StateEmpty && snap.Err == nil,
		Cards:       make([]cardVM, 0, len(names)),
	}
	if snap.Err != nil && len(snap.Documents) == 0 {
		vm.Error = "Could not load the library"
	}
	for _, name := range names {
		card := cardVM{Name: name, Selected: name == snap.Selected}
		if h, ok := snap.Thumbnails[name]; ok {
			card.ThumbID = h.ID
		} else if snap.State != library.StateThumbnails {
			card.Pending = true
		}
		vm.Cards = append(vm.Cards, card)
	}
	return vm
}

func (s *Server) renderGrid() (string, error) {
	return s.renderTemplate("grid", s.gridVM())
}

type libraryVM struct {
	baseVM
	Grid gridVM
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if !s.c.Session.Authenticated() {
		s.writeLogin(w, http.StatusOK, "")
		return
	}
	if r.URL.Query().Has("search") {
		s.setSearch(r.URL.Query().Get("search"))
	}
	vm := libraryVM{baseVM: s.baseVM("Library"), Grid: s.gridVM()}
	vm.Notices = s.flash.drain()
	s.writeHTMLTemplate(w, http.StatusOK, "library.html", vm)
}

func (s *Server) handleLoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.Form.Get("username"))
	password := r.Form.Get("password")
	if username == "" || password == "" {
		s.flash.Notify("Enter a username and a password")
		s.writeLogin(w, http.StatusBadRequest, username)
		return
	}
	if !s.c.Session.Login(r.Context(), username, password) {
		s.writeLogin(w, http.StatusUnauthorized, username)
		return
	}
	s.setSearch("")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogoutPost(w http.ResponseWriter, r *http.Request) {
	s.c.Session.Logout(r.Context())
	s.setSearch("")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.c.Session.Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.c.Refresh(r.Context())
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type gridSignals struct {
	Search string `json:"search"`
}

// handleGrid re-renders the grid for the search term carried by the
// request's signals (or ?search= for plain links).
func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	var signals gridSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	search := signals.Search
	if search == "" {
		search = r.URL.Query().Get("search")
	}
	sse := datastar.NewSSE(w, r)
	if !s.c.Session.Authenticated() {
		_ = sse.ExecuteScript(`window.location.assign("/")`)
		return
	}
	s.setSearch(search)
	html, err := s.renderGrid()
	if err != nil {
		_ = sse.ExecuteScript(fmt.Sprintf(`console.error(%q)`, err.Error()))
		return
	}
	_ = sse.PatchElements(html, datastar.WithSelector(gridSelector), datastar.WithMode(datastar.ElementPatchModeOuter))
}

// handleLibraryEvents keeps the grid live while thumbnails arrive and sends the
// page back to the login form when the session ends elsewhere.
func (s *Server) handleLibraryEvents(w http.ResponseWriter, r *http.Request) {
	s.serveDatastarElementsStream(w, r, gridSelector, datastar.ElementPatchModeOuter, s.renderGrid)
}

func (s *Server) serveDatastarElementsStream(w http.ResponseWriter, r *http.Request, selector string, mode datastar.ElementPatchMode, render func() (string, error)) {
	sse := datastar.NewSSE(w, r)

	ch, cancel := s.hub.subscribe()
	defer cancel()

	keepAlive := time.NewTicker(25 * time.Second)
	defer keepAlive.Stop()

	patch := func() bool {
		if !s.c.Session.Authenticated() {
			_ = sse.ExecuteScript(`window.location.assign("/")`)
			return false
		}
		html, err := render()
		if err != nil {
			_ = sse.ExecuteScript(fmt.Sprintf(`console.error(%q)`, err.Error()))
			return true
		}
		if strings.TrimSpace(html) == "" {
			return true
		}
		_ = sse.PatchElements(html, datastar.WithSelector(selector), datastar.WithMode(mode))
		return true
	}

	// Thumbnails may have landed between the page render and this stream.
	if !patch() {
		return
	}
	for {
		select {
		case <-sse.Context().Done():
			return
		case <-keepAlive.C:
			_ = sse.PatchSignals([]byte(`{}`))
		case <-ch:
			if !patch() {
				return
			}
		}
	}
}

func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	data, ct, ok := s.c.Blobs.Open(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(data)
}

type viewerVM struct {
	baseVM
	Name string
	Src  string
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if !s.c.Session.Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	name := r.PathValue("name")
	if !s.c.Viewer.Show(name) {
		http.Error(w, "not in the library: "+name, http.StatusNotFound)
		return
	}
	s.hub.Broadcast()

	src := "/docs/" + url.PathEscape(name)
	if s.c.Config.DocumentAuth == config.DocumentAuthNone {
		src = s.c.Viewer.URL(name)
	}
	s.writeHTMLTemplate(w, http.StatusOK, "viewer.html", viewerVM{baseVM: s.baseVM(name), Name: name, Src: src})
}

func (s *Server) handleViewClose(w http.ResponseWriter, r *http.Request) {
	s.c.Viewer.Close()
	s.hub.Broadcast()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleDocument proxies the document bytes so the browser never needs the
// library server's session cookie.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if !s.c.Session.Authenticated() {
		http.Error(w, "not signed in", http.StatusUnauthorized)
		return
	}
	name := r.PathValue("name")
	doc, err := s.c.Viewer.Fetch(r.Context(), name)
	if err != nil {
		s.log.Warn("document fetch failed", "name", name, "err", err)
		switch {
		case errors.Is(err, backend.ErrNotFound):
			http.NotFound(w, r)
		case errors.Is(err, backend.ErrUnauthorized):
			http.Error(w, "session rejected by the library server", http.StatusUnauthorized)
		default:
			http.Error(w, "library server unavailable", http.StatusBadGateway)
		}
		return
	}
	defer doc.Body.Close()

	ct := doc.ContentType
	if ct == "" {
		ct = "application/pdf"
	}
	w.Header().Set("Content-Type", ct)
	if doc.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	if _, err := io.Copy(w, doc.Body); err != nil {
		s.log.Debug("document copy interrupted", "name", name, "err", err)
	}
}

type guideVM struct {
	baseVM
	Topics []string
	Topic  string
	Body   template.HTML
}

func (s *Server) handleGuide(w http.ResponseWriter, r *http.Request) {
	topics := docs.Topics()
	topic := r.PathValue("topic")
	if topic == "" {
		topic = "getting-started"
	}
	md, ok := docs.Get(topic)
	if !ok {
		http.NotFound(w, r)
		return
	}
	page, err := renderGuide(md)
	if err != nil {
		s.log.Error("render guide", "topic", topic, "err", err)
		http.Error(w, "could not render guide", http.StatusInternalServerError)
		return
	}
	title := page.Title
	if title == "" {
		title = "Guide"
	}
	s.writeHTMLTemplate(w, http.StatusOK, "guide.html", guideVM{
		baseVM: s.baseVM(title),
		Topics: topics,
		Topic:  strings.ToLower(strings.TrimSpace(topic)),
		Body:   page.Body,
	})
}
