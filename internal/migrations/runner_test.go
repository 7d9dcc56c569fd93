package migrations

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heshamoov/aid-app-admin-production/internal/adapters/db/memory"
	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
)

// failingStore rejects saves of one collection id, including inside
// transactions.
type failingStore struct {
	domain.SchemaStore
	failOn string
}

func (f failingStore) SaveCollection(ctx context.Context, c domain.Collection) error {
	if c.ID == f.failOn {
		return errors.New("disk full")
	}
	return f.SchemaStore.SaveCollection(ctx, c)
}

func (f failingStore) WithinTx(ctx context.Context, fn func(domain.SchemaStore) error) error {
	return f.SchemaStore.WithinTx(ctx, func(tx domain.SchemaStore) error {
		return fn(failingStore{SchemaStore: tx, failOn: f.failOn})
	})
}

func TestRunnerUpAppliesSequence(t *testing.T) {
	ctx := context.Background()
	steps := loadSequence(t)
	store := memory.NewSchemaStore()
	runner := NewRunner(store, steps, nil)

	applied, err := runner.Up(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, len(steps))

	want, err := Replay(steps)
	require.NoError(t, err)
	got, err := LoadSchema(ctx, store)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	again, err := runner.Up(ctx)
	require.NoError(t, err)
	assert.Empty(t, again, "second run has nothing pending")

	status, err := runner.Status(ctx)
	require.NoError(t, err)
	for _, st := range status {
		assert.True(t, st.Applied, st.Name)
		assert.NotNil(t, st.At, st.Name)
	}
}

func TestRunnerDownAllEmptiesStore(t *testing.T) {
	ctx := context.Background()
	steps := loadSequence(t)
	store := memory.NewSchemaStore()
	runner := NewRunner(store, steps, nil)

	_, err := runner.Up(ctx)
	require.NoError(t, err)

	reverted, err := runner.Down(ctx, len(steps))
	require.NoError(t, err)
	require.Len(t, reverted, len(steps))
	assert.Equal(t, steps[len(steps)-1].Name, reverted[0])

	cols, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, cols)
	applied, err := store.AppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestRunnerDownOneRevertsNewest(t *testing.T) {
	ctx := context.Background()
	steps := loadSequence(t)
	store := memory.NewSchemaStore()
	runner := NewRunner(store, steps, nil)

	_, err := runner.Up(ctx)
	require.NoError(t, err)

	reverted, err := runner.Down(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"1760361512_updated_donations"}, reverted)

	pending, err := runner.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "1760361512_updated_donations", pending[0].Name)

	want, err := Replay(steps[:len(steps)-1])
	require.NoError(t, err)
	got, err := LoadSchema(ctx, store)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestRunnerUpStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	steps := loadSequence(t)
	base := memory.NewSchemaStore()
	runner := NewRunner(failingStore{SchemaStore: base, failOn: "pbc_1691921218"}, steps, nil)

	applied, err := runner.Up(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1760200100_created_expenses")
	assert.Equal(t, []string{"1760200000_created_users"}, applied)

	marked, err := base.AppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, marked, 1)
	assert.Equal(t, "1760200000_created_users", marked[0].File)

	cols, err := base.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, domain.UsersCollectionID, cols[0].ID)
}

func TestRunnerDownRejectsUnknownApplied(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSchemaStore()
	require.NoError(t, store.MarkApplied(ctx, "1700000000_created_ghosts"))

	_, err := NewRunner(store, loadSequence(t), nil).Down(ctx, 1)
	require.ErrorIs(t, err, ErrUnknownApplied)
}
