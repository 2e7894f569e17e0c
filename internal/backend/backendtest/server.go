// Package backendtest runs an in-process library server for tests.
package backendtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"shelf-cli/internal/model"
)

const (
	DefaultUsername = "admin"
	DefaultPassword = "admin"
	DefaultToken    = "token-123"
)

// Server mimics the library server's routes and cookie auth.
// Mutate fields under Lock/Unlock once the server is serving.
type Server struct {
	*httptest.Server

	sync.Mutex
	Username string
	Password string
	Token    string

	Docs      []string
	Thumbs    map[string][]byte
	Documents map[string][]byte

	// ListStatus, when non-zero, is returned by GET /api/pdfs instead of the list.
	ListStatus int
	// LogoutBroken makes POST /logout drop the connection.
	LogoutBroken bool
	// PublicDocuments serves document bytes without a session cookie.
	PublicDocuments bool
	// ThumbDelay is slept before each thumbnail response.
	ThumbDelay time.Duration

	calls       map[string]int
	inFlight    int
	maxInFlight int
	cookiesSeen map[string]bool
}

// New starts a server with three documents; "b.pdf" has no thumbnail.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		Username:    DefaultUsername,
		Password:    DefaultPassword,
		Token:       DefaultToken,
		Docs:        []string{"a.pdf", "Report.pdf", "b.pdf"},
		Thumbs:      map[string][]byte{"a.pdf": PNG(40, 60), "Report.pdf": PNG(40, 60)},
		Documents:   map[string][]byte{"a.pdf": MinimalPDF(2), "Report.pdf": MinimalPDF(5), "b.pdf": MinimalPDF(1)},
		calls:       map[string]int{},
		cookiesSeen: map[string]bool{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /api/pdfs", s.handleList)
	mux.HandleFunc("GET /api/pdfs/thumbnails/{name}", s.handleThumbnail)
	mux.HandleFunc("GET /api/pdfs/{name}", s.handleDocument)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Calls returns how many requests hit the route key (e.g. "GET /api/pdfs").
func (s *Server) Calls(key string) int {
	s.Lock()
	defer s.Unlock()
	return s.calls[key]
}

// MaxInFlightThumbnails is the peak number of concurrent thumbnail requests.
func (s *Server) MaxInFlightThumbnails() int {
	s.Lock()
	defer s.Unlock()
	return s.maxInFlight
}

// SawCookie reports whether any request to the route key carried the session cookie.
func (s *Server) SawCookie(key string) bool {
	s.Lock()
	defer s.Unlock()
	return s.cookiesSeen[key]
}

func (s *Server) record(r *http.Request, key string) bool {
	s.Lock()
	defer s.Unlock()
	s.calls[key]++
	ck, err := r.Cookie(model.SessionCookieName)
	authed := err == nil && ck.Value == s.Token
	if authed {
		s.cookiesSeen[key] = true
	}
	return authed
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.record(r, "POST /login")
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}
	s.Lock()
	okCreds := req.Username == s.Username && req.Password == s.Password
	token := s.Token
	s.Unlock()
	if !okCreds {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: model.SessionCookieName, Value: token, Path: "/", MaxAge: 3600, HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Login successful", "token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.record(r, "POST /logout")
	s.Lock()
	broken := s.LogoutBroken
	s.Unlock()
	if broken {
		hj, ok := w.(http.Hijacker)
		if ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
				return
			}
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: model.SessionCookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.record(r, "GET /api/pdfs")
	s.Lock()
	status := s.ListStatus
	docs := append([]string(nil), s.Docs...)
	s.Unlock()
	if status != 0 {
		writeJSON(w, status, map[string]string{"error": "list failed"})
		return
	}
	if docs == nil {
		docs = []string{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	authed := s.record(r, "GET /api/pdfs/thumbnails")
	if !authed {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized, please log in"})
		return
	}

	s.Lock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	delay := s.ThumbDelay
	data, ok := s.Thumbs[r.PathValue("name")]
	s.Unlock()
	defer func() {
		s.Lock()
		s.inFlight--
		s.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "PDF not found"})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	authed := s.record(r, "GET /api/pdfs/{name}")
	s.Lock()
	public := s.PublicDocuments
	data, ok := s.Documents[r.PathValue("name")]
	s.Unlock()
	if !authed && !public {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized, please log in"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "PDF not found"})
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// PNG encodes a solid w×h image.
func PNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// MinimalPDF builds a structurally valid PDF with the given number of blank pages.
func MinimalPDF(pages int) []byte {
	if pages < 1 {
		pages = 1
	}
	var objs []string
	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+i)
	}
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}
