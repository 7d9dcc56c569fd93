package migrations

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotInverse  = errors.New("down does not restore the state before up")
	ErrNotEmptied  = errors.New("replaying every down step did not return to an empty schema")
	ErrStepFailure = errors.New("migration step failed")
)

// CheckStep applies step.Up to before, then step.Down to the result. It
// returns the state after Up so callers can chain steps, and wraps
// ErrNotInverse when the restored state differs from before. The state is
// returned on ErrNotInverse too; it is nil only when an op fails to apply.
func CheckStep(step Step, before *Schema) (*Schema, error) {
	after := before.Clone()
	if err := ApplyOps(after, step.Up); err != nil {
		return nil, fmt.Errorf("%w: %s up: %w", ErrStepFailure, step.Name, err)
	}
	restored := after.Clone()
	if err := ApplyOps(restored, step.Down); err != nil {
		return nil, fmt.Errorf("%w: %s down: %w", ErrStepFailure, step.Name, err)
	}
	if !restored.Equal(before) {
		return after, fmt.Errorf("%w: %s (collections %s): %s", ErrNotInverse, step.Name,
			strings.Join(differingIDs(restored, before), ", "), strings.Join(describeDiff(restored, before), "; "))
	}
	return after, nil
}

// Check verifies the whole sequence in two passes. The first checks every
// step's down list against the state before its up list and collects every
// mismatch. The second replays all down lists in reverse from the head
// state and requires an empty schema. Check returns the head schema unless
// an op fails to apply, and joins every finding into the error.
func Check(steps []Step) (*Schema, error) {
	var errs []error
	state := NewSchema()
	for _, step := range steps {
		next, err := CheckStep(step, state)
		if next == nil {
			return nil, err
		}
		if err != nil {
			errs = append(errs, err)
		}
		state = next
	}
	final := state.Clone()

	for i := len(steps) - 1; i >= 0; i-- {
		if err := ApplyOps(state, steps[i].Down); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s down during full rollback: %w", ErrStepFailure, steps[i].Name, err))
			return final, errors.Join(errs...)
		}
	}
	if state.Len() != 0 {
		errs = append(errs, fmt.Errorf("%w: %s left", ErrNotEmptied, strings.Join(differingIDs(state, NewSchema()), ", ")))
	}
	return final, errors.Join(errs...)
}

// Replay applies every up step from an empty schema.
func Replay(steps []Step) (*Schema, error) {
	state := NewSchema()
	for _, step := range steps {
		if err := ApplyOps(state, step.Up); err != nil {
			return nil, fmt.Errorf("%w: %s up: %w", ErrStepFailure, step.Name, err)
		}
	}
	return state, nil
}
