package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
	"github.com/Heshamoov/aid-app-admin-production/internal/metrics"
)

// AuthBackend is a users auth endpoint that lives outside this process.
type AuthBackend interface {
	AuthWithPassword(ctx context.Context, identity, password string) (string, *domain.Principal, error)
	AuthRefresh(ctx context.Context, token string) (string, *domain.Principal, error)
}

// RemoteAuth delegates credentials and tokens to a remote backend. Every
// principal it hands out has a local shadow user with the same id, so user
// relations such as recorded_by resolve against the local users table.
type RemoteAuth struct {
	backend AuthBackend
	service *LedgerService
}

func NewRemoteAuth(backend AuthBackend, service *LedgerService) *RemoteAuth {
	return &RemoteAuth{backend: backend, service: service}
}

func (a *RemoteAuth) AuthWithPassword(ctx context.Context, identity, password string) (string, *domain.Principal, error) {
	token, p, err := a.backend.AuthWithPassword(ctx, identity, password)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()
		return "", nil, err
	}
	if err := a.service.ShadowUser(ctx, p); err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()
		return "", nil, err
	}
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	a.service.WriteAudit(ctx, p.ID, "auth.login", "user", p.ID, "remote login")
	return token, p, nil
}

func (a *RemoteAuth) AuthRefresh(ctx context.Context, token string) (string, *domain.Principal, error) {
	fresh, p, err := a.backend.AuthRefresh(ctx, token)
	if err != nil {
		return "", nil, err
	}
	if err := a.service.ShadowUser(ctx, p); err != nil {
		return "", nil, err
	}
	return fresh, p, nil
}

// Authenticate asks the backend to vouch for a bearer token. The refreshed
// token is dropped; the caller keeps using its own.
func (a *RemoteAuth) Authenticate(ctx context.Context, token string) (*domain.Principal, error) {
	_, p, err := a.AuthRefresh(ctx, token)
	return p, err
}

// ShadowUser makes sure a user row with p's id exists. Shadow users carry no
// password hash, so they can never sign in locally.
func (s *LedgerService) ShadowUser(ctx context.Context, p *domain.Principal) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: backend returned no user id", domain.ErrUnauthorized)
	}
	_, err := s.repo.GetUserByID(ctx, p.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if _, err := s.repo.CreateUser(ctx, domain.User{ID: p.ID, Email: p.Email, Name: p.Name, Role: p.Role}); err != nil {
		return fmt.Errorf("shadow user %s: %w", p.Email, err)
	}
	s.logger.Info("shadow user created", "id", p.ID, "email", p.Email)
	s.WriteAudit(ctx, p.ID, "user.shadow", "user", p.ID, "role="+p.Role)
	return nil
}
