package session

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
)

const CookieName = "pb_auth"

type CookieOptions struct {
	Name   string
	Path   string
	Secure bool
}

type cookiePayload struct {
	Token string            `json:"token"`
	Model *domain.Principal `json:"model"`
}

// LoadFromCookie restores the store from a raw Cookie request header. A
// missing or malformed cookie clears the store.
func (a *AuthStore) LoadFromCookie(header, name string) {
	if name == "" {
		name = CookieName
	}
	req := http.Request{Header: http.Header{"Cookie": {header}}}
	for _, c := range req.Cookies() {
		if c.Name != name {
			continue
		}
		raw, err := url.PathUnescape(c.Value)
		if err != nil {
			break
		}
		var payload cookiePayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			break
		}
		a.Save(payload.Token, payload.Model)
		return
	}
	a.Clear()
}

// ExportCookie serializes the store into an httpOnly, SameSite=Lax cookie.
// It expires with the token; an empty store exports an already expired
// cookie so the browser drops it.
func (a *AuthStore) ExportCookie(opts CookieOptions) *http.Cookie {
	name := opts.Name
	if name == "" {
		name = CookieName
	}
	path := opts.Path
	if path == "" {
		path = "/"
	}

	a.mu.RLock()
	payload := cookiePayload{Token: a.token, Model: clonePrincipal(a.model)}
	a.mu.RUnlock()

	raw, _ := json.Marshal(payload)
	c := &http.Cookie{
		Name:     name,
		Value:    url.PathEscape(string(raw)),
		Path:     path,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if exp, ok := tokenExpiry(payload.Token); ok && payload.Token != "" {
		c.Expires = exp.UTC()
	} else {
		c.Expires = time.Unix(0, 0).UTC()
		c.MaxAge = -1
	}
	return c
}
