package session

import (
	"context"
	"log/slog"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
	"github.com/Heshamoov/aid-app-admin-production/internal/metrics"
)

// AuthClient talks to the users auth endpoints of the record backend.
type AuthClient interface {
	AuthWithPassword(ctx context.Context, identity, password string) (string, *domain.Principal, error)
	AuthRefresh(ctx context.Context, token string) (string, *domain.Principal, error)
}

type LoginResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Session binds an AuthClient to one AuthStore and one Store. It is built per
// request and never shared between requests.
type Session struct {
	client AuthClient
	auth   *AuthStore
	store  *Store
	logger *slog.Logger
}

func New(client AuthClient, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		client: client,
		auth:   NewAuthStore(),
		store:  NewStore(State{}),
		logger: logger,
	}
	s.auth.OnChange(func(_ string, model *domain.Principal) {
		s.store.Set(State{User: model})
	})
	return s
}

func (s *Session) Auth() *AuthStore { return s.auth }

func (s *Session) Store() *Store { return s.store }

func (s *Session) User() *domain.Principal { return s.store.Value().User }

// Authenticated is the guard predicate: a valid token and a model.
func (s *Session) Authenticated() bool {
	return s.auth.IsValid() && s.auth.Model() != nil
}

// Login authenticates with a password. Failures come back in the result,
// never as an error.
func (s *Session) Login(ctx context.Context, identity, secret string) LoginResult {
	token, model, err := s.client.AuthWithPassword(ctx, identity, secret)
	if err != nil {
		s.logger.Info("login failed", "identity", identity, "error", err)
		return LoginResult{Success: false, Error: err.Error()}
	}
	s.auth.Save(token, model)
	return LoginResult{Success: true}
}

// Logout clears local state only; the backend is not called.
func (s *Session) Logout() {
	s.auth.Clear()
}

// Refresh exchanges the current token for a fresh one. Any failure clears
// the session.
func (s *Session) Refresh(ctx context.Context) error {
	token, model, err := s.client.AuthRefresh(ctx, s.auth.Token())
	if err != nil {
		metrics.AuthRefreshFailuresTotal.Inc()
		s.logger.Debug("auth refresh failed", "error", err)
		s.auth.Clear()
		return err
	}
	s.auth.Save(token, model)
	return nil
}

// Restore loads the cookie header and refreshes a valid token, clearing the
// session when the refresh fails.
func (s *Session) Restore(ctx context.Context, cookieHeader string) {
	s.auth.LoadFromCookie(cookieHeader, CookieName)
	if !s.auth.IsValid() {
		if s.auth.Token() != "" || s.auth.Model() != nil {
			s.auth.Clear()
		}
		return
	}
	_ = s.Refresh(ctx)
}

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the request's session, or nil outside the hook.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}
