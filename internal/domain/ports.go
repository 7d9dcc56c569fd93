package domain

import "context"

type LedgerRepository interface {
	CreateUser(ctx context.Context, value User) (User, error)
	CountUsers(ctx context.Context) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context, query string, limit int) ([]User, error)

	CreateRecord(ctx context.Context, value Record) (Record, error)
	GetRecord(ctx context.Context, collectionID, id string) (Record, error)
	UpdateRecord(ctx context.Context, value Record) (Record, error)
	DeleteRecord(ctx context.Context, collectionID, id string) error
	ListRecords(ctx context.Context, query RecordQuery) ([]Record, error)
	CountRecords(ctx context.Context, query RecordQuery) (int64, error)

	CreateAuditLog(ctx context.Context, value AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]AuditLog, error)
}

// SchemaStore persists collections and the names of applied migration steps.
type SchemaStore interface {
	ListCollections(ctx context.Context) ([]Collection, error)
	FindCollection(ctx context.Context, nameOrID string) (Collection, error)
	SaveCollection(ctx context.Context, value Collection) error
	DeleteCollection(ctx context.Context, id string) error
	AppliedMigrations(ctx context.Context) ([]AppliedMigration, error)
	MarkApplied(ctx context.Context, file string) error
	UnmarkApplied(ctx context.Context, file string) error
	// WithinTx runs fn against a store bound to one transaction.
	WithinTx(ctx context.Context, fn func(SchemaStore) error) error
}
