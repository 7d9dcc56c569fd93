package session

import (
	"sync"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
)

// State is the value views render from.
type State struct {
	User *domain.Principal `json:"user"`
}

// Store is a small observable value. Subscribers get the current value on
// subscribe and every value set afterwards.
type Store struct {
	mu     sync.RWMutex
	value  State
	subs   map[int]func(State)
	nextID int
}

func NewStore(initial State) *Store {
	return &Store{value: initial, subs: make(map[int]func(State))}
}

func (s *Store) Value() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{User: clonePrincipal(s.value.User)}
}

func (s *Store) Set(v State) {
	s.mu.Lock()
	s.value = State{User: clonePrincipal(v.User)}
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(s.Value())
	}
}

func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	fn(s.Value())
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
