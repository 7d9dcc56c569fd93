package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
	"github.com/Heshamoov/aid-app-admin-production/internal/metrics"
	"golang.org/x/crypto/bcrypt"
)

// AuthWithPassword checks the credentials and issues a fresh auth token.
func (s *LedgerService) AuthWithPassword(ctx context.Context, identity, password string) (string, *domain.Principal, error) {
	u, err := s.authenticateEmailPassword(ctx, identity, password)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()
		return "", nil, err
	}
	token, err := s.tokens.Issue(u)
	if err != nil {
		return "", nil, err
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.WriteAudit(ctx, u.ID, "auth.login", "user", u.ID, "password login")
	return token, domain.PrincipalFromUser(u), nil
}

// AuthRefresh exchanges a valid token for a new one with the current user
// model. Tokens of deleted users are rejected.
func (s *LedgerService) AuthRefresh(ctx context.Context, token string) (string, *domain.Principal, error) {
	u, err := s.userForToken(ctx, token)
	if err != nil {
		return "", nil, err
	}
	fresh, err := s.tokens.Issue(u)
	if err != nil {
		return "", nil, err
	}
	return fresh, domain.PrincipalFromUser(u), nil
}

// Authenticate resolves a bearer token to its principal without issuing a
// new token.
func (s *LedgerService) Authenticate(ctx context.Context, token string) (*domain.Principal, error) {
	u, err := s.userForToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return domain.PrincipalFromUser(u), nil
}

func (s *LedgerService) userForToken(ctx context.Context, token string) (domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return domain.User{}, domain.ErrUnauthorized
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return domain.User{}, err
	}
	u, err := s.repo.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, fmt.Errorf("%w: user no longer exists", domain.ErrUnauthorized)
		}
		return domain.User{}, err
	}
	return u, nil
}

func (s *LedgerService) authenticateEmailPassword(ctx context.Context, email, password string) (domain.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	u, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return u, nil
}
