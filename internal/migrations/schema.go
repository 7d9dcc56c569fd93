package migrations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
)

// Schema is the interpreted state a migration step runs against: every
// collection keyed by its stable id.
type Schema struct {
	collections map[string]domain.Collection
}

func NewSchema(collections ...domain.Collection) *Schema {
	s := &Schema{collections: make(map[string]domain.Collection, len(collections))}
	for _, c := range collections {
		s.Put(c)
	}
	return s
}

func (s *Schema) Len() int {
	return len(s.collections)
}

// Lookup resolves a collection by id first and by name second.
func (s *Schema) Lookup(nameOrID string) (domain.Collection, bool) {
	if c, ok := s.collections[nameOrID]; ok {
		return cloneCollection(c), true
	}
	for _, c := range s.collections {
		if c.Name == nameOrID {
			return cloneCollection(c), true
		}
	}
	return domain.Collection{}, false
}

func (s *Schema) Put(c domain.Collection) {
	s.collections[c.ID] = normalize(cloneCollection(c))
}

func (s *Schema) Remove(id string) {
	delete(s.collections, id)
}

func (s *Schema) Collections() []domain.Collection {
	ids := make([]string, 0, len(s.collections))
	for id := range s.collections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]domain.Collection, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneCollection(s.collections[id]))
	}
	return out
}

func (s *Schema) Clone() *Schema {
	return NewSchema(s.Collections()...)
}

// Canonical encodes the schema deterministically; two schemas are the same
// state exactly when their canonical bytes are equal.
func (s *Schema) Canonical() []byte {
	b, err := json.Marshal(s.Collections())
	if err != nil {
		// domain.Collection holds only strings, numbers, bools and slices.
		panic(err)
	}
	return b
}

func (s *Schema) Equal(other *Schema) bool {
	return bytes.Equal(s.Canonical(), other.Canonical())
}

// Diff reports the collections that differ between two states: the ones to
// save (new or changed) and the ids to delete.
func Diff(before, after *Schema) (changed []domain.Collection, deleted []string) {
	for _, c := range before.Collections() {
		if _, ok := after.collections[c.ID]; !ok {
			deleted = append(deleted, c.ID)
		}
	}
	for _, c := range after.Collections() {
		prev, ok := before.collections[c.ID]
		if ok && bytes.Equal(encodeCollection(prev), encodeCollection(c)) {
			continue
		}
		changed = append(changed, c)
	}
	return changed, deleted
}

func differingIDs(a, b *Schema) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for id, ca := range a.collections {
		cb, ok := b.collections[id]
		if !ok || !bytes.Equal(encodeCollection(ca), encodeCollection(cb)) {
			add(id)
		}
	}
	for id := range b.collections {
		if _, ok := a.collections[id]; !ok {
			add(id)
		}
	}
	sort.Strings(out)
	return out
}

// describeDiff lists what differs between got and want, one entry per
// collection attribute, rule or field.
func describeDiff(got, want *Schema) []string {
	var out []string
	for _, id := range differingIDs(got, want) {
		g, inGot := got.collections[id]
		w, inWant := want.collections[id]
		switch {
		case !inWant:
			out = append(out, id+" unexpected")
			continue
		case !inGot:
			out = append(out, id+" missing")
			continue
		}
		before := len(out)
		if g.Name != w.Name {
			out = append(out, fmt.Sprintf("%s name: got %q, want %q", id, g.Name, w.Name))
		}
		rules := []struct {
			name      string
			got, want *string
		}{
			{"listRule", g.ListRule, w.ListRule},
			{"viewRule", g.ViewRule, w.ViewRule},
			{"createRule", g.CreateRule, w.CreateRule},
			{"updateRule", g.UpdateRule, w.UpdateRule},
			{"deleteRule", g.DeleteRule, w.DeleteRule},
		}
		for _, r := range rules {
			if formatRule(r.got) != formatRule(r.want) {
				out = append(out, fmt.Sprintf("%s %s: got %s, want %s", id, r.name, formatRule(r.got), formatRule(r.want)))
			}
		}
		for i := 0; i < len(g.Fields) || i < len(w.Fields); i++ {
			switch {
			case i >= len(w.Fields):
				out = append(out, fmt.Sprintf("%s field %d: unexpected %s", id, i, g.Fields[i].ID))
			case i >= len(g.Fields):
				out = append(out, fmt.Sprintf("%s field %d: missing %s", id, i, w.Fields[i].ID))
			case !bytes.Equal(encodeField(g.Fields[i]), encodeField(w.Fields[i])):
				out = append(out, fmt.Sprintf("%s field %d: got %s, want %s", id, i, encodeField(g.Fields[i]), encodeField(w.Fields[i])))
			}
		}
		if len(out) == before {
			out = append(out, id+" metadata differs")
		}
	}
	return out
}

func formatRule(v *string) string {
	if v == nil {
		return "null"
	}
	return strconv.Quote(*v)
}

func encodeField(f domain.Field) []byte {
	b, _ := json.Marshal(f)
	return b
}

func encodeCollection(c domain.Collection) []byte {
	b, _ := json.Marshal(c)
	return b
}

func normalize(c domain.Collection) domain.Collection {
	if c.Fields == nil {
		c.Fields = []domain.Field{}
	}
	if c.Indexes == nil {
		c.Indexes = []string{}
	}
	if c.Type == "" {
		c.Type = domain.CollectionTypeBase
	}
	return c
}

func cloneCollection(c domain.Collection) domain.Collection {
	out := c
	out.Rules = domain.Rules{
		ListRule:   cloneString(c.ListRule),
		ViewRule:   cloneString(c.ViewRule),
		CreateRule: cloneString(c.CreateRule),
		UpdateRule: cloneString(c.UpdateRule),
		DeleteRule: cloneString(c.DeleteRule),
	}
	if c.Indexes != nil {
		out.Indexes = append([]string{}, c.Indexes...)
	}
	if c.Fields != nil {
		out.Fields = make([]domain.Field, len(c.Fields))
		for i, f := range c.Fields {
			out.Fields[i] = cloneField(f)
		}
	}
	return out
}

func cloneField(f domain.Field) domain.Field {
	out := f
	out.Min = cloneFloat(f.Min)
	out.Max = cloneFloat(f.Max)
	if f.Values != nil {
		out.Values = append([]string{}, f.Values...)
	}
	return out
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}
