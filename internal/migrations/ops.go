package migrations

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
)

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrCollectionExists   = errors.New("collection already exists")
	ErrFieldNotFound      = errors.New("field not found")
	ErrDuplicateField     = errors.New("duplicate field name")
	ErrUnknownOp          = errors.New("unknown operation")
	ErrUnknownRule        = errors.New("unknown rule kind")
)

const (
	KindAddField         = "add_field"
	KindRemoveField      = "remove_field"
	KindUpdateField      = "update_field"
	KindRenameCollection = "rename_collection"
	KindSetRule          = "set_rule"
	KindDeleteCollection = "delete_collection"
	KindCreateCollection = "create_collection"
)

// Op is one schema transformation. Apply mutates s or returns an error and
// leaves s untouched.
type Op interface {
	Kind() string
	Target() string
	Apply(s *Schema) error
}

type AddField struct {
	Collection string       `json:"collection"`
	At         int          `json:"at"`
	Field      domain.Field `json:"field"`
}

type RemoveField struct {
	Collection string `json:"collection"`
	FieldID    string `json:"id"`
}

type UpdateField struct {
	Collection string       `json:"collection"`
	Field      domain.Field `json:"field"`
}

type RenameCollection struct {
	Collection string `json:"collection"`
	Name       string `json:"name"`
}

type RuleKind string

const (
	RuleList   RuleKind = "list"
	RuleView   RuleKind = "view"
	RuleCreate RuleKind = "create"
	RuleUpdate RuleKind = "update"
	RuleDelete RuleKind = "delete"
)

type SetRule struct {
	Collection string   `json:"collection"`
	Rule       RuleKind `json:"rule"`
	Expr       *string  `json:"expr"`
}

type DeleteCollection struct {
	Collection string `json:"collection"`
}

// CreateCollection creates a collection from a full snapshot. It is also the
// inverse of DeleteCollection.
type CreateCollection struct {
	Snapshot domain.Collection `json:"snapshot"`
}

func (AddField) Kind() string         { return KindAddField }
func (RemoveField) Kind() string      { return KindRemoveField }
func (UpdateField) Kind() string      { return KindUpdateField }
func (RenameCollection) Kind() string { return KindRenameCollection }
func (SetRule) Kind() string          { return KindSetRule }
func (DeleteCollection) Kind() string { return KindDeleteCollection }
func (CreateCollection) Kind() string { return KindCreateCollection }

func (o AddField) Target() string         { return o.Collection }
func (o RemoveField) Target() string      { return o.Collection }
func (o UpdateField) Target() string      { return o.Collection }
func (o RenameCollection) Target() string { return o.Collection }
func (o SetRule) Target() string          { return o.Collection }
func (o DeleteCollection) Target() string { return o.Collection }
func (o CreateCollection) Target() string { return o.Snapshot.ID }

// Apply inserts the field at position At. A field with the same id is
// replaced and moved, so the same op doubles as an in-place update.
func (o AddField) Apply(s *Schema) error {
	c, err := lookup(s, o.Collection)
	if err != nil {
		return err
	}
	fields := make([]domain.Field, 0, len(c.Fields)+1)
	for _, f := range c.Fields {
		if f.ID != o.Field.ID {
			fields = append(fields, f)
		}
	}
	at := o.At
	if at < 0 {
		at = 0
	}
	if at > len(fields) {
		at = len(fields)
	}
	fields = append(fields, domain.Field{})
	copy(fields[at+1:], fields[at:])
	fields[at] = cloneField(o.Field)
	if err := checkFieldNames(fields); err != nil {
		return err
	}
	c.Fields = fields
	s.Put(c)
	return nil
}

func (o RemoveField) Apply(s *Schema) error {
	c, err := lookup(s, o.Collection)
	if err != nil {
		return err
	}
	idx := c.FieldIndex(o.FieldID)
	if idx < 0 {
		return fmt.Errorf("%w: %s in %s", ErrFieldNotFound, o.FieldID, c.Name)
	}
	c.Fields = append(c.Fields[:idx], c.Fields[idx+1:]...)
	s.Put(c)
	return nil
}

func (o UpdateField) Apply(s *Schema) error {
	c, err := lookup(s, o.Collection)
	if err != nil {
		return err
	}
	idx := c.FieldIndex(o.Field.ID)
	if idx < 0 {
		return fmt.Errorf("%w: %s in %s", ErrFieldNotFound, o.Field.ID, c.Name)
	}
	c.Fields[idx] = cloneField(o.Field)
	if err := checkFieldNames(c.Fields); err != nil {
		return err
	}
	s.Put(c)
	return nil
}

func (o RenameCollection) Apply(s *Schema) error {
	c, err := lookup(s, o.Collection)
	if err != nil {
		return err
	}
	if other, ok := s.Lookup(o.Name); ok && other.ID != c.ID {
		return fmt.Errorf("%w: %s", ErrCollectionExists, o.Name)
	}
	c.Name = o.Name
	s.Put(c)
	return nil
}

func (o SetRule) Apply(s *Schema) error {
	c, err := lookup(s, o.Collection)
	if err != nil {
		return err
	}
	slot, err := ruleSlot(&c.Rules, o.Rule)
	if err != nil {
		return err
	}
	*slot = cloneString(o.Expr)
	s.Put(c)
	return nil
}

func (o DeleteCollection) Apply(s *Schema) error {
	c, err := lookup(s, o.Collection)
	if err != nil {
		return err
	}
	s.Remove(c.ID)
	return nil
}

func (o CreateCollection) Apply(s *Schema) error {
	if o.Snapshot.ID == "" || o.Snapshot.Name == "" {
		return errors.New("collection snapshot requires id and name")
	}
	if _, ok := s.Lookup(o.Snapshot.ID); ok {
		return fmt.Errorf("%w: %s", ErrCollectionExists, o.Snapshot.ID)
	}
	if _, ok := s.Lookup(o.Snapshot.Name); ok {
		return fmt.Errorf("%w: %s", ErrCollectionExists, o.Snapshot.Name)
	}
	if err := checkFieldNames(o.Snapshot.Fields); err != nil {
		return err
	}
	s.Put(o.Snapshot)
	return nil
}

// ApplyOps applies ops in order and stops at the first failure.
func ApplyOps(s *Schema, ops []Op) error {
	for i, op := range ops {
		if err := op.Apply(s); err != nil {
			return fmt.Errorf("op %d (%s %s): %w", i, op.Kind(), op.Target(), err)
		}
	}
	return nil
}

func lookup(s *Schema, nameOrID string) (domain.Collection, error) {
	c, ok := s.Lookup(nameOrID)
	if !ok {
		return domain.Collection{}, fmt.Errorf("%w: %s", ErrCollectionNotFound, nameOrID)
	}
	return c, nil
}

func ruleSlot(r *domain.Rules, kind RuleKind) (**string, error) {
	switch kind {
	case RuleList:
		return &r.ListRule, nil
	case RuleView:
		return &r.ViewRule, nil
	case RuleCreate:
		return &r.CreateRule, nil
	case RuleUpdate:
		return &r.UpdateRule, nil
	case RuleDelete:
		return &r.DeleteRule, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRule, kind)
}

func checkFieldNames(fields []domain.Field) error {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateField, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// DecodeOp reads one tagged operation.
func DecodeOp(data []byte) (Op, error) {
	var head struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	var op Op
	var err error
	switch head.Op {
	case KindAddField:
		var v AddField
		err = json.Unmarshal(data, &v)
		op = v
	case KindRemoveField:
		var v RemoveField
		err = json.Unmarshal(data, &v)
		op = v
	case KindUpdateField:
		var v UpdateField
		err = json.Unmarshal(data, &v)
		op = v
	case KindRenameCollection:
		var v RenameCollection
		err = json.Unmarshal(data, &v)
		op = v
	case KindSetRule:
		var v SetRule
		err = json.Unmarshal(data, &v)
		op = v
	case KindDeleteCollection:
		var v DeleteCollection
		err = json.Unmarshal(data, &v)
		op = v
	case KindCreateCollection:
		var v CreateCollection
		err = json.Unmarshal(data, &v)
		op = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, head.Op)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Op, err)
	}
	return op, nil
}

// EncodeOp writes op with its "op" tag.
func EncodeOp(op Op) (json.RawMessage, error) {
	body, err := json.Marshal(op)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(op.Kind())
	fields["op"] = tag
	return json.Marshal(fields)
}
