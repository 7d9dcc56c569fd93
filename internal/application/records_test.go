package application

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
)

func validExpense() map[string]any {
	return map[string]any{
		"category":    "Food",
		"amount":      120.5,
		"currency":    "USD",
		"description": "Rice and lentils",
	}
}

func TestVolunteerExpenseIsPending(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, _, volunteer := seedUsers(t, svc)

	data := validExpense()
	data["status"] = domain.StatusApproved
	data["bogus"] = "dropped"

	rec, err := svc.CreateRecord(ctx, volunteer, domain.ExpensesCollection, data)
	require.NoError(t, err)
	assert.Len(t, rec.ID, domain.RecordIDLength)
	assert.Equal(t, domain.ExpensesCollection, rec.Collection)
	assert.Equal(t, domain.StatusPending, rec.String("status"))
	assert.NotContains(t, rec.Data, "bogus")
}

func TestCreateRecordValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	admin, _, _ := seedUsers(t, svc)

	bad := validExpense()
	bad["category"] = "Weapons"
	_, err := svc.CreateRecord(ctx, admin, domain.ExpensesCollection, bad)
	require.ErrorIs(t, err, domain.ErrValidation)

	missing := validExpense()
	delete(missing, "amount")
	_, err = svc.CreateRecord(ctx, admin, domain.ExpensesCollection, missing)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "amount")

	textAmount := validExpense()
	textAmount["amount"] = "75.25"
	rec, err := svc.CreateRecord(ctx, admin, domain.ExpensesCollection, textAmount)
	require.NoError(t, err)
	assert.Equal(t, 75.25, rec.Data["amount"])

	for _, amount := range []any{"NaN", "Inf", "-inf", math.Inf(1), math.NaN()} {
		nonFinite := validExpense()
		nonFinite["amount"] = amount
		_, err = svc.CreateRecord(ctx, admin, domain.ExpensesCollection, nonFinite)
		require.ErrorIs(t, err, domain.ErrValidation, "amount %v", amount)
		assert.Contains(t, err.Error(), "amount: expected a finite number")
	}

	_, err = svc.CreateRecord(ctx, admin, domain.UsersCollectionName, map[string]any{"email": "x@y.z"})
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.CreateRecord(ctx, admin, "grants", validExpense())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDonationFieldsAreLiteral(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, _, volunteer := seedUsers(t, svc)

	rec, err := svc.CreateRecord(ctx, volunteer, domain.DonationsCollection, map[string]any{
		"donor_name":     "Local mosque",
		"amount":         500,
		"currency":       "SYP",
		"porpose":        "winter kits",
		"payment_method": "Cash",
		"recorded_by":    "someone-else",
	})
	require.NoError(t, err)
	assert.Equal(t, "winter kits", rec.String("porpose"))
	assert.Equal(t, volunteer.ID, rec.String("recorded_by"))

	_, err = svc.CreateRecord(ctx, volunteer, domain.DonationsCollection, map[string]any{
		"donor_name":     "Bank donor",
		"amount":         10,
		"payment_method": "Bank Transfer",
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.CreateRecord(ctx, volunteer, domain.DonationsCollection, map[string]any{
		"donor_name": "Anonymous",
		"amount":     10,
		"purpose":    "typo fixed",
	})
	require.NoError(t, err, "unknown keys are dropped, not rejected")
}

func TestReadOwnRecords(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	admin, monitor, volunteer := seedUsers(t, svc)

	donation := map[string]any{"donor_name": "A", "amount": 1}
	mine, err := svc.CreateRecord(ctx, volunteer, domain.DonationsCollection, donation)
	require.NoError(t, err)
	theirs, err := svc.CreateRecord(ctx, admin, domain.DonationsCollection, donation)
	require.NoError(t, err)

	visible, err := svc.ListRecords(ctx, volunteer, domain.DonationsCollection, 0)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, mine.ID, visible[0].ID)

	_, err = svc.GetRecord(ctx, volunteer, domain.DonationsCollection, theirs.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	all, err := svc.ListRecords(ctx, monitor, domain.DonationsCollection, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.UpdateRecord(ctx, volunteer, domain.DonationsCollection, mine.ID, map[string]any{"notes": "x"})
	require.ErrorIs(t, err, domain.ErrForbidden)
	require.ErrorIs(t, svc.DeleteRecord(ctx, monitor, domain.DonationsCollection, mine.ID), domain.ErrForbidden)

	updated, err := svc.UpdateRecord(ctx, admin, domain.DonationsCollection, mine.ID, map[string]any{"notes": "checked"})
	require.NoError(t, err)
	assert.Equal(t, "checked", updated.String("notes"))
	assert.Equal(t, volunteer.ID, updated.String("recorded_by"))

	require.NoError(t, svc.DeleteRecord(ctx, admin, domain.DonationsCollection, theirs.ID))
	_, err = svc.GetRecord(ctx, admin, domain.DonationsCollection, theirs.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, monitor, volunteer := seedUsers(t, svc)

	expense, err := svc.CreateRecord(ctx, volunteer, domain.ExpensesCollection, validExpense())
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, volunteer, domain.ExpensesCollection, expense.ID, domain.StatusApproved)
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.SetStatus(ctx, monitor, domain.ExpensesCollection, expense.ID, "Maybe")
	require.ErrorIs(t, err, domain.ErrValidation)

	approved, err := svc.SetStatus(ctx, monitor, domain.ExpensesCollection, expense.ID, domain.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approved.String("status"))

	donation, err := svc.CreateRecord(ctx, volunteer, domain.DonationsCollection, map[string]any{"donor_name": "B", "amount": 3})
	require.NoError(t, err)
	reviewed, err := svc.SetStatus(ctx, monitor, domain.DonationsCollection, donation.ID, domain.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, monitor.ID, reviewed.String("approved_by"))

	rejected, err := svc.SetStatus(ctx, monitor, domain.DonationsCollection, donation.ID, domain.StatusRejected)
	require.NoError(t, err)
	assert.NotContains(t, rejected.Data, "approved_by")
}

func TestSummaryCountsBaseCollections(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	admin, _, volunteer := seedUsers(t, svc)

	_, err := svc.CreateRecord(ctx, admin, domain.ExpensesCollection, validExpense())
	require.NoError(t, err)
	donation := map[string]any{"donor_name": "A", "amount": 5}
	_, err = svc.CreateRecord(ctx, admin, domain.DonationsCollection, donation)
	require.NoError(t, err)
	_, err = svc.CreateRecord(ctx, volunteer, domain.DonationsCollection, donation)
	require.NoError(t, err)

	summary, err := svc.Summary(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{domain.ExpensesCollection: 1, domain.DonationsCollection: 2}, summary)

	own, err := svc.Summary(ctx, volunteer)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{domain.ExpensesCollection: 1, domain.DonationsCollection: 1}, own,
		"donations track a recorder, expenses do not")

	_, err = svc.Summary(ctx, &domain.Principal{ID: "x", Role: "guest"})
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func relationCollection(id, name, target string, required, cascade bool) domain.Collection {
	return domain.Collection{
		ID:   id,
		Name: name,
		Type: domain.CollectionTypeBase,
		Fields: []domain.Field{
			{ID: "text3208210256", Name: "id", Type: domain.FieldText, System: true, PrimaryKey: true},
			{ID: "relation" + id, Name: "donation", Type: domain.FieldRelation, CollectionID: target, Required: required, CascadeDelete: cascade, MaxSelect: 1},
			{ID: "text" + id, Name: "label", Type: domain.FieldText},
		},
	}
}

func TestDeleteRecordFollowsRelations(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	admin, _, _ := seedUsers(t, svc)

	donations, err := svc.schema.FindCollection(ctx, domain.DonationsCollection)
	require.NoError(t, err)
	require.NoError(t, svc.schema.SaveCollection(ctx, relationCollection("pbc_allocations", "allocations", donations.ID, true, true)))
	require.NoError(t, svc.schema.SaveCollection(ctx, relationCollection("pbc_followups", "followups", donations.ID, false, false)))

	donation, err := svc.CreateRecord(ctx, admin, domain.DonationsCollection, map[string]any{"donor_name": "Amal", "amount": 100})
	require.NoError(t, err)
	allocation, err := svc.CreateRecord(ctx, admin, "allocations", map[string]any{"donation": donation.ID, "label": "blankets"})
	require.NoError(t, err)
	followup, err := svc.CreateRecord(ctx, admin, "followups", map[string]any{"donation": donation.ID, "label": "call back"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRecord(ctx, admin, domain.DonationsCollection, donation.ID))

	_, err = svc.GetRecord(ctx, admin, "allocations", allocation.ID)
	require.ErrorIs(t, err, domain.ErrNotFound, "cascading relations delete the referencing record")

	kept, err := svc.GetRecord(ctx, admin, "followups", followup.ID)
	require.NoError(t, err)
	assert.NotContains(t, kept.Data, "donation", "optional relations are cleared")
	assert.Equal(t, "call back", kept.String("label"))

	require.ErrorIs(t, svc.DeleteRecord(ctx, admin, domain.DonationsCollection, donation.ID), domain.ErrNotFound)
}

func TestDeleteRecordBlockedByRequiredReference(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	admin, _, _ := seedUsers(t, svc)

	donations, err := svc.schema.FindCollection(ctx, domain.DonationsCollection)
	require.NoError(t, err)
	require.NoError(t, svc.schema.SaveCollection(ctx, relationCollection("pbc_receipts", "receipts", donations.ID, true, false)))

	donation, err := svc.CreateRecord(ctx, admin, domain.DonationsCollection, map[string]any{"donor_name": "Amal", "amount": 100})
	require.NoError(t, err)
	_, err = svc.CreateRecord(ctx, admin, "receipts", map[string]any{"donation": donation.ID})
	require.NoError(t, err)

	err = svc.DeleteRecord(ctx, admin, domain.DonationsCollection, donation.ID)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "receipts.donation")

	_, err = svc.GetRecord(ctx, admin, domain.DonationsCollection, donation.ID)
	require.NoError(t, err)
}
