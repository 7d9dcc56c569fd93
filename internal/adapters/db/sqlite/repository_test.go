package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
	"github.com/Heshamoov/aid-app-admin-production/internal/migrations"
)

func openTestDB(t *testing.T) (*LedgerRepository, *SchemaStore) {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "aidledger_test.db")

	db, err := OpenAndMigrate(ctx, dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewLedgerRepository(db), NewSchemaStore(db)
}

func TestRunnerPersistsSequenceAndRevertsIt(t *testing.T) {
	ctx := context.Background()
	_, store := openTestDB(t)

	steps, err := migrations.Sequence()
	if err != nil {
		t.Fatalf("load sequence: %v", err)
	}
	runner := migrations.NewRunner(store, steps, nil)

	applied, err := runner.Up(ctx)
	if err != nil {
		t.Fatalf("up: %v", err)
	}
	if len(applied) != len(steps) {
		t.Fatalf("expected %d applied steps, got %d", len(steps), len(applied))
	}

	want, err := migrations.Replay(steps)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	got, err := migrations.LoadSchema(ctx, store)
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	if !want.Equal(got) {
		t.Fatalf("stored schema differs from replay:\nwant %s\ngot  %s", want.Canonical(), got.Canonical())
	}

	donations, err := store.FindCollection(ctx, domain.DonationsCollection)
	if err != nil {
		t.Fatalf("find donations: %v", err)
	}
	if donations.ID != "pbc_1907087801" {
		t.Fatalf("expected renamed collection id, got %s", donations.ID)
	}
	if donations.ViewRule == nil || *donations.ViewRule != "" {
		t.Fatalf("expected public view rule, got %v", donations.ViewRule)
	}
	if donations.CreateRule == nil || *donations.CreateRule != `@request.auth.role = "admin"` {
		t.Fatalf("unexpected create rule %v", donations.CreateRule)
	}

	if _, err := runner.Down(ctx, len(steps)); err != nil {
		t.Fatalf("down: %v", err)
	}
	cols, err := store.ListCollections(ctx)
	if err != nil {
		t.Fatalf("list collections: %v", err)
	}
	if len(cols) != 0 {
		t.Fatalf("expected empty schema after full rollback, got %d collections", len(cols))
	}
	marked, err := store.AppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("applied migrations: %v", err)
	}
	if len(marked) != 0 {
		t.Fatalf("expected no applied migrations, got %v", marked)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	_, store := openTestDB(t)

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx domain.SchemaStore) error {
		if err := tx.SaveCollection(ctx, domain.Collection{ID: "pbc_1", Name: "things"}); err != nil {
			return err
		}
		if err := tx.MarkApplied(ctx, "1_created_things"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := store.FindCollection(ctx, "things"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected collection to be rolled back, got %v", err)
	}
	marked, _ := store.AppliedMigrations(ctx)
	if len(marked) != 0 {
		t.Fatalf("expected applied mark to be rolled back, got %v", marked)
	}
}

func TestFieldRenameRewritesRecordData(t *testing.T) {
	ctx := context.Background()
	repo, store := openTestDB(t)

	collection := domain.Collection{
		ID:   "pbc_1907087801",
		Name: "donations",
		Fields: []domain.Field{
			{ID: "text1", Name: "donor_name", Type: domain.FieldText},
			{ID: "relation1542800728", Name: "field", Type: domain.FieldRelation, CollectionID: domain.UsersCollectionID},
			{ID: "text2", Name: "notes", Type: domain.FieldText},
		},
	}
	if err := store.SaveCollection(ctx, collection); err != nil {
		t.Fatalf("save collection: %v", err)
	}
	if _, err := repo.CreateRecord(ctx, domain.Record{
		ID:           "abcdefghijklmno",
		CollectionID: collection.ID,
		Data:         map[string]any{"donor_name": "Red Crescent", "field": "u1", "notes": "first"},
	}); err != nil {
		t.Fatalf("create record: %v", err)
	}

	collection.Fields = []domain.Field{
		{ID: "text1", Name: "donor_name", Type: domain.FieldText},
		{ID: "relation1542800728", Name: "recorded_by", Type: domain.FieldRelation, CollectionID: domain.UsersCollectionID},
	}
	if err := store.SaveCollection(ctx, collection); err != nil {
		t.Fatalf("update collection: %v", err)
	}

	rec, err := repo.GetRecord(ctx, collection.ID, "abcdefghijklmno")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.String("recorded_by") != "u1" {
		t.Fatalf("expected recorded_by to carry the old value, got %v", rec.Data)
	}
	if _, ok := rec.Data["field"]; ok {
		t.Fatalf("old key should be gone: %v", rec.Data)
	}
	if _, ok := rec.Data["notes"]; ok {
		t.Fatalf("removed field should be dropped: %v", rec.Data)
	}
}

func TestListRecordsFiltersByField(t *testing.T) {
	ctx := context.Background()
	repo, _ := openTestDB(t)

	for i, owner := range []string{"u1", "u2", "u1"} {
		_, err := repo.CreateRecord(ctx, domain.Record{
			ID:           "record00000000" + string(rune('a'+i)),
			CollectionID: "pbc_1691921218",
			Data:         map[string]any{"recorded_by": owner, "amount": 10 + i},
		})
		if err != nil {
			t.Fatalf("create record %d: %v", i, err)
		}
	}

	mine, err := repo.ListRecords(ctx, domain.RecordQuery{
		CollectionID: "pbc_1691921218",
		FieldEquals:  map[string]string{"recorded_by": "u1"},
	})
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 records for u1, got %d", len(mine))
	}
	for _, rec := range mine {
		if rec.String("recorded_by") != "u1" {
			t.Fatalf("unexpected owner in %v", rec.Data)
		}
	}

	count, err := repo.CountRecords(ctx, domain.RecordQuery{CollectionID: "pbc_1691921218"})
	if err != nil {
		t.Fatalf("count records: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 records, got %d", count)
	}
	count, err = repo.CountRecords(ctx, domain.RecordQuery{
		CollectionID: "pbc_1691921218",
		FieldEquals:  map[string]string{"recorded_by": "u2"},
	})
	if err != nil {
		t.Fatalf("count own records: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record for u2, got %d", count)
	}

	if err := repo.DeleteRecord(ctx, "pbc_1691921218", "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUsersAndAudit(t *testing.T) {
	ctx := context.Background()
	repo, _ := openTestDB(t)

	created, err := repo.CreateUser(ctx, domain.User{ID: "u0000000000001", Email: " Admin@Example.org ", Role: domain.RoleAdmin, PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.Email != "admin@example.org" {
		t.Fatalf("expected normalized email, got %q", created.Email)
	}

	byEmail, err := repo.GetUserByEmail(ctx, "ADMIN@example.org")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if byEmail.ID != created.ID || byEmail.Role != domain.RoleAdmin {
		t.Fatalf("unexpected user %+v", byEmail)
	}
	if _, err := repo.GetUserByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := repo.CreateAuditLog(ctx, domain.AuditLog{ActorUserID: created.ID, Action: "auth.login", TargetType: "user", TargetID: created.ID}); err != nil {
		t.Fatalf("audit: %v", err)
	}
	logs, err := repo.ListAuditLogs(ctx, 10)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "auth.login" {
		t.Fatalf("unexpected audit logs %+v", logs)
	}
}
