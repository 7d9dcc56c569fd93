package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
)

func loadSequence(t *testing.T) []Step {
	t.Helper()
	steps, err := Sequence()
	require.NoError(t, err)
	require.NotEmpty(t, steps)
	return steps
}

const recreatedDonationsStep = "1760272535_deleted_donations"

func TestSequenceCheckReportsRecreatedSnapshot(t *testing.T) {
	steps := loadSequence(t)

	final, err := Check(steps)
	require.ErrorIs(t, err, ErrNotInverse)
	assert.NotErrorIs(t, err, ErrNotEmptied, "full rollback still ends empty")
	assert.NotErrorIs(t, err, ErrStepFailure)
	assert.Equal(t, 1, strings.Count(err.Error(), ErrNotInverse.Error()), "only one step is not inverted")
	assert.Contains(t, err.Error(), recreatedDonationsStep)
	assert.Contains(t, err.Error(), `pbc_2848092154 viewRule: got "", want "@request.auth.role = \"\""`)

	require.NotNil(t, final)
	assert.Equal(t, 3, final.Len())
}

func TestSequenceFinalSchema(t *testing.T) {
	final, err := Replay(loadSequence(t))
	require.NoError(t, err)

	expenses, ok := final.Lookup(domain.ExpensesCollection)
	require.True(t, ok)
	assert.Equal(t, "pbc_1691921218", expenses.ID)
	assert.Equal(t, []string{"id", "category", "amount", "currency", "description", "status"}, fieldNames(expenses))

	donations, ok := final.Lookup(domain.DonationsCollection)
	require.True(t, ok)
	assert.Equal(t, "pbc_1907087801", donations.ID, "the renamed collection survives, not the deleted one")
	assert.Equal(t, []string{
		"id", "donor_name", "amount", "currency", "donor_organization", "porpose",
		"receipt_number", "donor_contact", "notes", "payment_method", "recorded_by", "approved_by",
	}, fieldNames(donations))

	currency, _ := donations.FieldByName("currency")
	assert.Equal(t, []string{"USD", "EUR", "AED", "SAR", "SYP"}, currency.Values)
	method, _ := donations.FieldByName("payment_method")
	assert.Equal(t, []string{"Cash"}, method.Values)
	recordedBy, _ := donations.FieldByName("recorded_by")
	assert.Equal(t, "relation1542800728", recordedBy.ID)
	assert.Equal(t, domain.UsersCollectionID, recordedBy.CollectionID)

	_, ok = final.Lookup("pbc_2848092154")
	assert.False(t, ok)
}

func TestDeletedCollectionSnapshotDiffersOnlyInViewRule(t *testing.T) {
	steps := loadSequence(t)

	state := NewSchema()
	for _, step := range steps {
		if step.Name == recreatedDonationsStep {
			prior, ok := state.Lookup("pbc_2848092154")
			require.True(t, ok)
			require.Len(t, step.Down, 1)
			create, ok := step.Down[0].(CreateCollection)
			require.True(t, ok)

			require.NotNil(t, prior.ViewRule)
			require.NotNil(t, create.Snapshot.ViewRule)
			assert.Equal(t, `@request.auth.role = ""`, *prior.ViewRule)
			assert.Equal(t, "", *create.Snapshot.ViewRule)

			patched := create.Snapshot
			patched.ViewRule = strPtr(*prior.ViewRule)
			assert.Equal(t, string(NewSchema(prior).Canonical()), string(NewSchema(patched).Canonical()))
			return
		}
		require.NoError(t, ApplyOps(state, step.Up))
	}
	t.Fatalf("delete step not found in sequence")
}

func TestAuthoredDownMatchesDerivedInverse(t *testing.T) {
	var mismatched []string
	state := NewSchema()
	for _, step := range loadSequence(t) {
		derived, err := InvertAll(step.Up, state)
		require.NoError(t, err, step.Name)

		viaAuthored := state.Clone()
		require.NoError(t, ApplyOps(viaAuthored, step.Up))
		viaDerived := viaAuthored.Clone()
		require.NoError(t, ApplyOps(viaAuthored, step.Down))
		require.NoError(t, ApplyOps(viaDerived, derived))
		assert.True(t, viaDerived.Equal(state), step.Name)
		if !viaAuthored.Equal(viaDerived) {
			mismatched = append(mismatched, step.Name)
		}

		require.NoError(t, ApplyOps(state, step.Up))
	}
	assert.Equal(t, []string{recreatedDonationsStep}, mismatched)
}

func TestCheckDetectsBrokenDown(t *testing.T) {
	steps := []Step{
		{
			Name: "1_created_things",
			Up:   []Op{CreateCollection{Snapshot: baseCollection()}},
			Down: []Op{DeleteCollection{Collection: "pbc_1"}},
		},
		{
			Name: "2_updated_things",
			Up:   []Op{SetRule{Collection: "pbc_1", Rule: RuleView, Expr: strPtr("")}},
			Down: []Op{SetRule{Collection: "pbc_1", Rule: RuleView, Expr: strPtr(`@request.auth.role = "monitor"`)}},
		},
	}

	_, err := Check(steps)
	require.ErrorIs(t, err, ErrNotInverse)
	assert.NotErrorIs(t, err, ErrNotEmptied)
	assert.Contains(t, err.Error(), "2_updated_things")
	assert.Contains(t, err.Error(), `pbc_1 viewRule: got "@request.auth.role = \"monitor\""`)
}

func TestCheckDetectsLeftovers(t *testing.T) {
	steps := []Step{
		{
			Name: "1_created_things",
			Up:   []Op{CreateCollection{Snapshot: baseCollection()}},
		},
	}

	final, err := Check(steps)
	require.ErrorIs(t, err, ErrNotInverse)
	require.ErrorIs(t, err, ErrNotEmptied)
	assert.Contains(t, err.Error(), "pbc_1 left")
	assert.Equal(t, 1, final.Len())
}

func TestCheckStopsWhenDownCannotApply(t *testing.T) {
	steps := []Step{
		{
			Name: "1_created_things",
			Up:   []Op{CreateCollection{Snapshot: baseCollection()}},
			Down: []Op{RemoveField{Collection: "pbc_1", FieldID: "missing"}},
		},
	}

	final, err := Check(steps)
	require.ErrorIs(t, err, ErrStepFailure)
	assert.Nil(t, final)
}

func TestReplaceStepsKeepAuthoredPosition(t *testing.T) {
	want := map[string]struct {
		at    int
		field string
	}{
		"1760273912_updated_donations": {10, "relation1542800728"},
		"1760361512_updated_donations": {3, "select1767278655"},
	}

	state := NewSchema()
	for _, step := range loadSequence(t) {
		require.NoError(t, ApplyOps(state, step.Up))
		w, ok := want[step.Name]
		if !ok {
			continue
		}
		delete(want, step.Name)
		for _, ops := range [][]Op{step.Up, step.Down} {
			require.Len(t, ops, 1)
			add, ok := ops[0].(AddField)
			require.True(t, ok, "%s uses add_field", step.Name)
			assert.Equal(t, w.at, add.At)
			assert.Equal(t, w.field, add.Field.ID)
		}
		donations, ok := state.Lookup("pbc_1907087801")
		require.True(t, ok)
		assert.Equal(t, w.at, donations.FieldIndex(w.field), step.Name)
	}
	assert.Empty(t, want)
}
