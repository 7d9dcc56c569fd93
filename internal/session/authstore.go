// Package session keeps the per-request authentication state: the token and
// principal pair, the reactive user value that views read, and the cookie
// that carries both between requests.
package session

import (
	"sync"
	"time"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// ChangeFunc is called after every Save or Clear with the new state.
type ChangeFunc func(token string, model *domain.Principal)

// AuthStore holds one token and the principal it was issued for.
type AuthStore struct {
	mu        sync.RWMutex
	token     string
	model     *domain.Principal
	listeners map[int]ChangeFunc
	nextID    int
	now       func() time.Time
}

func NewAuthStore() *AuthStore {
	return &AuthStore{listeners: make(map[int]ChangeFunc), now: time.Now}
}

func (a *AuthStore) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func (a *AuthStore) Model() *domain.Principal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return clonePrincipal(a.model)
}

// IsValid reports whether a token is present and not expired. The token is
// decoded without verifying its signature; the backend verifies it on
// refresh.
func (a *AuthStore) IsValid() bool {
	a.mu.RLock()
	token := a.token
	a.mu.RUnlock()
	return token != "" && !tokenExpired(token, a.now())
}

func (a *AuthStore) Save(token string, model *domain.Principal) {
	a.mu.Lock()
	a.token = token
	a.model = clonePrincipal(model)
	a.mu.Unlock()
	a.notify()
}

func (a *AuthStore) Clear() {
	a.mu.Lock()
	a.token = ""
	a.model = nil
	a.mu.Unlock()
	a.notify()
}

// OnChange registers fn and returns a function that removes it.
func (a *AuthStore) OnChange(fn ChangeFunc) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
	}
}

func (a *AuthStore) notify() {
	a.mu.RLock()
	token, model := a.token, clonePrincipal(a.model)
	fns := make([]ChangeFunc, 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.RUnlock()
	for _, fn := range fns {
		fn(token, model)
	}
}

// tokenExpired follows the backend SDK: a token without claims is expired,
// a token without exp never expires.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil || len(claims) == 0 {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return true
	}
	if exp == nil {
		return false
	}
	return !exp.After(now)
}

func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func clonePrincipal(p *domain.Principal) *domain.Principal {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
