// Package ledgertest provides an in-memory ledger.Store for tests,
// with injectable write conflicts to exercise the optimistic retry
// driver without a real store.
package ledgertest

import (
	"context"
	"sync"

	"helios/ledger"
)

// Store keeps float and integer keys in maps. ConflictNext makes the
// next n commits on a watched key fail as if a concurrent writer had
// touched it, forcing the driver through its retry path.
type Store struct {
	mu        sync.Mutex
	floats    map[string]float64
	ints      map[string]int64
	conflicts map[string]int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		floats:    make(map[string]float64),
		ints:      make(map[string]int64),
		conflicts: make(map[string]int),
	}
}

// SetFloat seeds a balance key.
func (s *Store) SetFloat(key string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.floats[key] = v
}

// SetInt seeds a position key.
func (s *Store) SetInt(key string, v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ints[key] = v
}

// FloatVal reads a balance key directly.
func (s *Store) FloatVal(key string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.floats[key]
}

// IntVal reads a position key directly.
func (s *Store) IntVal(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ints[key]
}

// ConflictNext forces the next n commits watching key to conflict.
func (s *Store) ConflictNext(key string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts[key] = n
}

// Exists implements ledger.Store.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.floats[key]; ok {
		return true, nil
	}
	_, ok := s.ints[key]
	return ok, nil
}

// Apply implements ledger.Store.
func (s *Store) Apply(_ context.Context, changes ...ledger.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commit(changes)
	return nil
}

// Update implements ledger.Store: read, attempt, commit, retrying on
// injected conflicts up to ledger.MaxAttempts.
func (s *Store) Update(ctx context.Context, key string, attempt ledger.AttemptFunc) error {
	for i := 0; i < ledger.MaxAttempts; i++ {
		changes, err := attempt(ctx, reader{s})
		if err != nil {
			return err
		}
		s.mu.Lock()
		if s.conflicts[key] > 0 {
			s.conflicts[key]--
			s.mu.Unlock()
			continue
		}
		s.commit(changes)
		s.mu.Unlock()
		return nil
	}
	return ledger.ErrContention
}

// commit applies changes; callers hold the lock.
func (s *Store) commit(changes []ledger.Change) {
	for _, ch := range changes {
		if ch.IsFloat {
			s.floats[ch.Key] += ch.ByFloat
		} else {
			s.ints[ch.Key] += ch.ByInt
		}
	}
}

type reader struct{ s *Store }

func (r reader) Float(_ context.Context, key string) (float64, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.floats[key]
	return v, ok, nil
}

func (r reader) Int(_ context.Context, key string) (int64, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.ints[key]
	return v, ok, nil
}
