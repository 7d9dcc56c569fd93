package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
)

func strPtr(s string) *string { return &s }

func textField(id, name string) domain.Field {
	zero := 0.0
	return domain.Field{ID: id, Name: name, Type: domain.FieldText, Min: &zero, Max: &zero}
}

func baseCollection() domain.Collection {
	return domain.Collection{
		ID:   "pbc_1",
		Name: "things",
		Type: domain.CollectionTypeBase,
		Fields: []domain.Field{
			{ID: "text3208210256", Name: "id", Type: domain.FieldText, System: true, PrimaryKey: true},
			textField("text1", "alpha"),
			textField("text2", "beta"),
		},
		Rules: domain.Rules{ListRule: strPtr(""), ViewRule: strPtr(`@request.auth.role = "admin"`)},
	}
}

func fieldNames(c domain.Collection) []string {
	names := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		names = append(names, f.Name)
	}
	return names
}

func TestAddFieldInsertsAtPosition(t *testing.T) {
	s := NewSchema(baseCollection())

	require.NoError(t, AddField{Collection: "pbc_1", At: 1, Field: textField("text3", "gamma")}.Apply(s))

	c, ok := s.Lookup("things")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "gamma", "alpha", "beta"}, fieldNames(c))
}

func TestAddFieldClampsPosition(t *testing.T) {
	s := NewSchema(baseCollection())

	require.NoError(t, AddField{Collection: "pbc_1", At: 99, Field: textField("text3", "gamma")}.Apply(s))

	c, _ := s.Lookup("pbc_1")
	assert.Equal(t, []string{"id", "alpha", "beta", "gamma"}, fieldNames(c))
}

func TestAddFieldReplacesSameID(t *testing.T) {
	s := NewSchema(baseCollection())

	renamed := textField("text1", "alpha_renamed")
	require.NoError(t, AddField{Collection: "pbc_1", At: 1, Field: renamed}.Apply(s))

	c, _ := s.Lookup("pbc_1")
	assert.Equal(t, []string{"id", "alpha_renamed", "beta"}, fieldNames(c))
	assert.Equal(t, "text1", c.Fields[1].ID)
}

func TestAddFieldRejectsDuplicateName(t *testing.T) {
	s := NewSchema(baseCollection())
	before := s.Canonical()

	err := AddField{Collection: "pbc_1", At: 1, Field: textField("text9", "beta")}.Apply(s)

	require.ErrorIs(t, err, ErrDuplicateField)
	assert.Equal(t, before, s.Canonical(), "failed op must not change state")
}

func TestAddThenRemoveIsByteIdentical(t *testing.T) {
	s := NewSchema(baseCollection())
	before := s.Canonical()

	require.NoError(t, AddField{Collection: "pbc_1", At: 2, Field: textField("text3", "gamma")}.Apply(s))
	require.NoError(t, RemoveField{Collection: "pbc_1", FieldID: "text3"}.Apply(s))

	assert.Equal(t, string(before), string(s.Canonical()))
}

func TestRemoveFieldUnknownID(t *testing.T) {
	s := NewSchema(baseCollection())

	err := RemoveField{Collection: "pbc_1", FieldID: "nope"}.Apply(s)

	require.ErrorIs(t, err, ErrFieldNotFound)
}

func TestUpdateFieldKeepsPosition(t *testing.T) {
	s := NewSchema(baseCollection())

	f := textField("text1", "alpha")
	f.Required = true
	require.NoError(t, UpdateField{Collection: "pbc_1", Field: f}.Apply(s))

	c, _ := s.Lookup("pbc_1")
	assert.Equal(t, []string{"id", "alpha", "beta"}, fieldNames(c))
	assert.True(t, c.Fields[1].Required)
}

func TestRenameCollectionConflicts(t *testing.T) {
	other := baseCollection()
	other.ID = "pbc_2"
	other.Name = "others"
	s := NewSchema(baseCollection(), other)

	err := RenameCollection{Collection: "pbc_2", Name: "things"}.Apply(s)
	require.ErrorIs(t, err, ErrCollectionExists)

	require.NoError(t, RenameCollection{Collection: "pbc_2", Name: "renamed"}.Apply(s))
	c, ok := s.Lookup("renamed")
	require.True(t, ok)
	assert.Equal(t, "pbc_2", c.ID)
}

func TestSetRuleDistinguishesNullFromPublic(t *testing.T) {
	s := NewSchema(baseCollection())

	require.NoError(t, SetRule{Collection: "pbc_1", Rule: RuleView, Expr: strPtr("")}.Apply(s))
	require.NoError(t, SetRule{Collection: "pbc_1", Rule: RuleList, Expr: nil}.Apply(s))

	c, _ := s.Lookup("pbc_1")
	require.NotNil(t, c.ViewRule)
	assert.Equal(t, "", *c.ViewRule)
	assert.Nil(t, c.ListRule)

	err := SetRule{Collection: "pbc_1", Rule: "archive"}.Apply(s)
	require.ErrorIs(t, err, ErrUnknownRule)
}

func TestDeleteAndCreateCollection(t *testing.T) {
	s := NewSchema(baseCollection())
	snapshot, _ := s.Lookup("pbc_1")

	require.NoError(t, DeleteCollection{Collection: "things"}.Apply(s))
	assert.Equal(t, 0, s.Len())
	require.ErrorIs(t, DeleteCollection{Collection: "things"}.Apply(s), ErrCollectionNotFound)

	require.NoError(t, CreateCollection{Snapshot: snapshot}.Apply(s))
	require.ErrorIs(t, CreateCollection{Snapshot: snapshot}.Apply(s), ErrCollectionExists)
}

func TestInvertAllRestoresState(t *testing.T) {
	before := NewSchema(baseCollection())
	ops := []Op{
		AddField{Collection: "pbc_1", At: 1, Field: textField("text3", "gamma")},
		AddField{Collection: "pbc_1", At: 3, Field: textField("text1", "alpha_moved")},
		RemoveField{Collection: "pbc_1", FieldID: "text2"},
		SetRule{Collection: "pbc_1", Rule: RuleView, Expr: strPtr("")},
		RenameCollection{Collection: "pbc_1", Name: "renamed"},
	}

	inverse, err := InvertAll(ops, before)
	require.NoError(t, err)

	state := before.Clone()
	require.NoError(t, ApplyOps(state, ops))
	assert.False(t, state.Equal(before))
	require.NoError(t, ApplyOps(state, inverse))
	assert.True(t, state.Equal(before))
}

func TestInvertDeleteIsFullSnapshot(t *testing.T) {
	before := NewSchema(baseCollection())

	inv, err := Invert(DeleteCollection{Collection: "pbc_1"}, before)
	require.NoError(t, err)

	create, ok := inv.(CreateCollection)
	require.True(t, ok)
	want, _ := before.Lookup("pbc_1")
	assert.Equal(t, want, create.Snapshot)
}

func TestDecodeEncodeOp(t *testing.T) {
	raw := []byte(`{"op":"set_rule","collection":"pbc_1","rule":"view","expr":null}`)

	op, err := DecodeOp(raw)
	require.NoError(t, err)
	assert.Equal(t, SetRule{Collection: "pbc_1", Rule: RuleView}, op)

	out, err := EncodeOp(op)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(out))

	_, err = DecodeOp([]byte(`{"op":"drop_everything"}`))
	require.ErrorIs(t, err, ErrUnknownOp)
}
