package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type LedgerService struct {
	repo   domain.LedgerRepository
	schema domain.SchemaStore
	tokens *TokenIssuer
	logger *slog.Logger
}

func NewLedgerService(repo domain.LedgerRepository, schema domain.SchemaStore, tokens *TokenIssuer, logger *slog.Logger) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{repo: repo, schema: schema, tokens: tokens, logger: logger}
}

func (s *LedgerService) BootstrapAdmin(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return errors.New("bootstrap admin email and password are required")
	}

	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	u, err := s.createUser(ctx, email, password, "Administrator", domain.RoleAdmin)
	if err != nil {
		return err
	}
	s.logger.Info("bootstrap admin created", "email", u.Email)
	s.WriteAudit(ctx, u.ID, "auth.bootstrap_admin", "user", u.ID, "initial admin created")
	return nil
}

func (s *LedgerService) CreateUser(ctx context.Context, actor *domain.Principal, email, password, name, role string) (domain.User, error) {
	if !s.Can(actor, PermUsersManage) {
		return domain.User{}, domain.ErrForbidden
	}
	u, err := s.createUser(ctx, email, password, name, role)
	if err != nil {
		return domain.User{}, err
	}
	s.WriteAudit(ctx, actor.ID, "user.create", "user", u.ID, "role="+u.Role)
	return u, nil
}

func (s *LedgerService) ListUsers(ctx context.Context, actor *domain.Principal, query string, limit int) ([]domain.User, error) {
	if !s.Can(actor, PermUsersManage) {
		return nil, domain.ErrForbidden
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}
	return s.repo.ListUsers(ctx, query, limit)
}

func (s *LedgerService) ListAuditLogs(ctx context.Context, actor *domain.Principal, limit int) ([]domain.AuditLog, error) {
	if !s.Can(actor, PermAuditRead) {
		return nil, domain.ErrForbidden
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *LedgerService) ListCollections(ctx context.Context, actor *domain.Principal) ([]domain.Collection, error) {
	if actor == nil {
		return nil, domain.ErrUnauthorized
	}
	return s.schema.ListCollections(ctx)
}

func (s *LedgerService) WriteAudit(ctx context.Context, actorUserID, action, targetType, targetID, metadata string) {
	err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorUserID: actorUserID,
		Action:      action,
		TargetType:  targetType,
		TargetID:    targetID,
		Metadata:    metadata,
	})
	if err != nil {
		s.logger.Warn("audit write failed", "action", action, "error", err)
	}
}

func (s *LedgerService) createUser(ctx context.Context, email, password, name, role string) (domain.User, error) {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return domain.User{}, fmt.Errorf("email and password are required: %w", domain.ErrValidation)
	}
	role = defaultString(strings.ToLower(strings.TrimSpace(role)), domain.RoleVolunteer)
	if !ValidRole(role) {
		return domain.User{}, fmt.Errorf("unknown role %q: %w", role, domain.ErrValidation)
	}
	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, fmt.Errorf("user %s: %w", email, domain.ErrConflict)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	return s.repo.CreateUser(ctx, domain.User{
		ID:           newRecordID(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         strings.TrimSpace(name),
		Role:         role,
		PasswordHash: hash,
	})
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// newRecordID returns a 15 character [a-z0-9] id.
func newRecordID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:domain.RecordIDLength]
}

func defaultString(input, fallback string) string {
	if strings.TrimSpace(input) == "" {
		return fallback
	}
	return input
}

func now() time.Time {
	return time.Now().UTC()
}
