package importer

import (
	"sort"
	"sync"
)

// Store - sesje w pamięci procesu, kluczem jest ID sesji
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (st *Store) Put(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete usuwa sesję; zapis w toku blokuje usunięcie.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if s.State() == StateWriting {
		return &TransitionError{From: StateWriting, To: StateIdle}
	}
	delete(st.sessions, id)
	return nil
}

// List - widoki sesji od najnowszej
func (st *Store) List() []View {
	st.mu.RLock()
	out := make([]View, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s.Snapshot())
	}
	st.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
