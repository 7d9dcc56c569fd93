package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
)

// SchemaStore is an in-memory domain.SchemaStore. It backs dry runs of the
// migration sequence and tests. WithinTx works on a copy that replaces the
// live state only when fn succeeds.
type SchemaStore struct {
	mu    sync.RWMutex
	state *schemaState
}

type schemaState struct {
	collections map[string]domain.Collection
	applied     map[string]time.Time
}

func NewSchemaStore() *SchemaStore {
	return &SchemaStore{state: newSchemaState()}
}

func newSchemaState() *schemaState {
	return &schemaState{
		collections: make(map[string]domain.Collection),
		applied:     make(map[string]time.Time),
	}
}

func (s *SchemaStore) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.list()
}

func (s *SchemaStore) FindCollection(ctx context.Context, nameOrID string) (domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.find(nameOrID)
}

func (s *SchemaStore) SaveCollection(ctx context.Context, value domain.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.save(value)
}

func (s *SchemaStore) DeleteCollection(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.delete(id)
}

func (s *SchemaStore) AppliedMigrations(ctx context.Context) ([]domain.AppliedMigration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.appliedList(), nil
}

func (s *SchemaStore) MarkApplied(ctx context.Context, file string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.applied[file] = time.Now().UTC()
	return nil
}

func (s *SchemaStore) UnmarkApplied(ctx context.Context, file string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.applied, file)
	return nil
}

func (s *SchemaStore) WithinTx(ctx context.Context, fn func(domain.SchemaStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work, err := s.state.copy()
	if err != nil {
		return err
	}
	if err := fn(&txStore{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// txStore is the view handed to WithinTx callbacks; the parent lock is held.
type txStore struct {
	state *schemaState
}

func (t *txStore) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	return t.state.list()
}

func (t *txStore) FindCollection(ctx context.Context, nameOrID string) (domain.Collection, error) {
	return t.state.find(nameOrID)
}

func (t *txStore) SaveCollection(ctx context.Context, value domain.Collection) error {
	return t.state.save(value)
}

func (t *txStore) DeleteCollection(ctx context.Context, id string) error {
	return t.state.delete(id)
}

func (t *txStore) AppliedMigrations(ctx context.Context) ([]domain.AppliedMigration, error) {
	return t.state.appliedList(), nil
}

func (t *txStore) MarkApplied(ctx context.Context, file string) error {
	t.state.applied[file] = time.Now().UTC()
	return nil
}

func (t *txStore) UnmarkApplied(ctx context.Context, file string) error {
	delete(t.state.applied, file)
	return nil
}

func (t *txStore) WithinTx(ctx context.Context, fn func(domain.SchemaStore) error) error {
	return fn(t)
}

func (st *schemaState) list() ([]domain.Collection, error) {
	ids := make([]string, 0, len(st.collections))
	for id := range st.collections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]domain.Collection, 0, len(ids))
	for _, id := range ids {
		c, err := cloneCollection(st.collections[id])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (st *schemaState) find(nameOrID string) (domain.Collection, error) {
	if c, ok := st.collections[nameOrID]; ok {
		return cloneCollection(c)
	}
	for _, c := range st.collections {
		if c.Name == nameOrID {
			return cloneCollection(c)
		}
	}
	return domain.Collection{}, fmt.Errorf("collection %s: %w", nameOrID, domain.ErrNotFound)
}

func (st *schemaState) save(value domain.Collection) error {
	for id, c := range st.collections {
		if id != value.ID && c.Name == value.Name {
			return fmt.Errorf("collection name %s: %w", value.Name, domain.ErrConflict)
		}
	}
	c, err := cloneCollection(value)
	if err != nil {
		return err
	}
	st.collections[value.ID] = c
	return nil
}

func (st *schemaState) delete(id string) error {
	if _, ok := st.collections[id]; !ok {
		return fmt.Errorf("collection %s: %w", id, domain.ErrNotFound)
	}
	delete(st.collections, id)
	return nil
}

func (st *schemaState) appliedList() []domain.AppliedMigration {
	out := make([]domain.AppliedMigration, 0, len(st.applied))
	for file, at := range st.applied {
		out = append(out, domain.AppliedMigration{File: file, Applied: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out
}

func (st *schemaState) copy() (*schemaState, error) {
	out := newSchemaState()
	for id, c := range st.collections {
		cc, err := cloneCollection(c)
		if err != nil {
			return nil, err
		}
		out.collections[id] = cc
	}
	for file, at := range st.applied {
		out.applied[file] = at
	}
	return out, nil
}

func cloneCollection(c domain.Collection) (domain.Collection, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return domain.Collection{}, err
	}
	var out domain.Collection
	if err := json.Unmarshal(b, &out); err != nil {
		return domain.Collection{}, err
	}
	return out, nil
}
