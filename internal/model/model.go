package model

import (
	"strings"
	"time"
)

// SessionCookieName is the cookie the library server sets on a successful login.
const SessionCookieName = "auth_token"

// Credential is a session cookie captured from the library server.
type Credential struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Expires time.Time `json:"expires,omitempty"`
}

// Present reports whether the credential carries a usable token at now.
// A zero Expires means the server did not bound the cookie's lifetime.
func (c Credential) Present(now time.Time) bool {
	if strings.TrimSpace(c.Value) == "" {
		return false
	}
	if !c.Expires.IsZero() && !now.Before(c.Expires) {
		return false
	}
	return true
}

// DocumentInfo describes a fetched document.
type DocumentInfo struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
	Pages       int    `json:"pages,omitempty"`
}
