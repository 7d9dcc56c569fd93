package migrations

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStepName(t *testing.T) {
	ts, verb, collection, err := ParseStepName("1760272535_deleted_donations")
	require.NoError(t, err)
	assert.Equal(t, int64(1760272535), ts)
	assert.Equal(t, "deleted", verb)
	assert.Equal(t, "donations", collection)

	for _, bad := range []string{"", "deleted_donations", "1760272535_Deleted_donations", "1760272535_updated", "abc_updated_x"} {
		_, _, _, err := ParseStepName(bad)
		assert.ErrorIs(t, err, ErrInvalidStepName, bad)
	}
}

func TestNewStepName(t *testing.T) {
	name, err := NewStepName(time.Unix(1760361512, 0), "updated", "donations")
	require.NoError(t, err)
	assert.Equal(t, "1760361512_updated_donations", name)

	_, err = NewStepName(time.Unix(1, 0), "up_dated", "donations")
	require.ErrorIs(t, err, ErrInvalidStepName)
	_, err = NewStepName(time.Unix(1, 0), "updated", "Donations")
	require.ErrorIs(t, err, ErrInvalidStepName)
}

func TestLoadStepsOrdersByTimestamp(t *testing.T) {
	fsys := fstest.MapFS{
		"m/20_updated_b.json": {Data: []byte(`{"up":[],"down":[]}`)},
		"m/3_created_a.json":  {Data: []byte(`{"up":[],"down":[]}`)},
		"m/README.md":         {Data: []byte("ignored")},
	}

	steps, err := LoadSteps(fsys, "m")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "3_created_a", steps[0].Name)
	assert.Equal(t, "20_updated_b", steps[1].Name)
}

func TestLoadStepsRejectsDuplicateTimestamp(t *testing.T) {
	fsys := fstest.MapFS{
		"m/5_created_a.json": {Data: []byte(`{"up":[],"down":[]}`)},
		"m/5_created_b.json": {Data: []byte(`{"up":[],"down":[]}`)},
	}

	_, err := LoadSteps(fsys, "m")
	require.ErrorIs(t, err, ErrDuplicateStep)
}

func TestLoadStepsRejectsUnknownOp(t *testing.T) {
	fsys := fstest.MapFS{
		"m/5_created_a.json": {Data: []byte(`{"up":[{"op":"truncate"}],"down":[]}`)},
	}

	_, err := LoadSteps(fsys, "m")
	require.ErrorIs(t, err, ErrUnknownOp)
}

func TestEncodeStepParsesBack(t *testing.T) {
	step := Step{
		Name: "1760207474_updated_donations",
		Up:   []Op{SetRule{Collection: "pbc_2848092154", Rule: RuleView, Expr: strPtr(`@request.auth.role = ""`)}},
		Down: []Op{SetRule{Collection: "pbc_2848092154", Rule: RuleView, Expr: strPtr(`@request.auth.role = "admin"`)}},
	}

	data, err := EncodeStep(step)
	require.NoError(t, err)

	parsed, err := ParseStep(step.Name, data)
	require.NoError(t, err)
	assert.Equal(t, step.Up, parsed.Up)
	assert.Equal(t, step.Down, parsed.Down)
	assert.Equal(t, "updated", parsed.Verb)
}
