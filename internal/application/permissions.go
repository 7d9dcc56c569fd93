package application

import "github.com/Heshamoov/aid-app-admin-production/internal/domain"

const (
	PermAll            = "*"
	PermRecordsRead    = "records.read"
	PermRecordsReadOwn = "records.read_own"
	PermRecordsCreate  = "records.create"
	PermRecordsUpdate  = "records.update"
	PermRecordsDelete  = "records.delete"
	PermRecordsReview  = "records.review"
	PermUsersManage    = "users.manage"
	PermAuditRead      = "audit.read"
	PermMigrationsRead = "migrations.read"
)

var rolePermissions = map[string]map[string]struct{}{
	domain.RoleAdmin: {
		PermAll: {},
	},
	domain.RoleMonitor: {
		PermRecordsRead:    {},
		PermRecordsReview:  {},
		PermAuditRead:      {},
		PermMigrationsRead: {},
	},
	domain.RoleVolunteer: {
		PermRecordsCreate:  {},
		PermRecordsReadOwn: {},
	},
}

func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// Can reports whether the principal's role grants permission. A nil
// principal has no permissions.
func (s *LedgerService) Can(p *domain.Principal, permission string) bool {
	return Can(p, permission)
}

func Can(p *domain.Principal, permission string) bool {
	if p == nil {
		return false
	}
	perms, ok := rolePermissions[p.Role]
	if !ok {
		return false
	}
	if _, ok := perms[PermAll]; ok {
		return true
	}
	_, ok = perms[permission]
	return ok
}

// LandingPath is where a principal is sent after login or a role mismatch.
func LandingPath(p *domain.Principal) string {
	if p == nil {
		return "/login"
	}
	switch p.Role {
	case domain.RoleAdmin, domain.RoleMonitor:
		return "/dashboard"
	case domain.RoleVolunteer:
		return "/volunteer"
	default:
		return "/login"
	}
}
