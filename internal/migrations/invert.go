package migrations

import (
	"fmt"
	"slices"
)

// Invert derives the operation that undoes op when op is applied to before.
func Invert(op Op, before *Schema) (Op, error) {
	if c, ok := op.(CreateCollection); ok {
		return DeleteCollection{Collection: c.Snapshot.ID}, nil
	}

	c, err := lookup(before, op.Target())
	if err != nil {
		return nil, err
	}

	switch o := op.(type) {
	case AddField:
		if idx := c.FieldIndex(o.Field.ID); idx >= 0 {
			return AddField{Collection: c.ID, At: idx, Field: cloneField(c.Fields[idx])}, nil
		}
		return RemoveField{Collection: c.ID, FieldID: o.Field.ID}, nil
	case RemoveField:
		idx := c.FieldIndex(o.FieldID)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s in %s", ErrFieldNotFound, o.FieldID, c.Name)
		}
		return AddField{Collection: c.ID, At: idx, Field: cloneField(c.Fields[idx])}, nil
	case UpdateField:
		idx := c.FieldIndex(o.Field.ID)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s in %s", ErrFieldNotFound, o.Field.ID, c.Name)
		}
		return UpdateField{Collection: c.ID, Field: cloneField(c.Fields[idx])}, nil
	case RenameCollection:
		return RenameCollection{Collection: c.ID, Name: c.Name}, nil
	case SetRule:
		slot, err := ruleSlot(&c.Rules, o.Rule)
		if err != nil {
			return nil, err
		}
		return SetRule{Collection: c.ID, Rule: o.Rule, Expr: cloneString(*slot)}, nil
	case DeleteCollection:
		return CreateCollection{Snapshot: c}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOp, op.Kind())
}

// InvertAll derives the inverse of a whole op list: each op is inverted
// against the state it runs on and the inverses are returned in reverse.
func InvertAll(ops []Op, before *Schema) ([]Op, error) {
	work := before.Clone()
	inverse := make([]Op, 0, len(ops))
	for i, op := range ops {
		inv, err := Invert(op, work)
		if err != nil {
			return nil, fmt.Errorf("op %d (%s %s): %w", i, op.Kind(), op.Target(), err)
		}
		if err := op.Apply(work); err != nil {
			return nil, fmt.Errorf("op %d (%s %s): %w", i, op.Kind(), op.Target(), err)
		}
		inverse = append(inverse, inv)
	}
	slices.Reverse(inverse)
	return inverse, nil
}
