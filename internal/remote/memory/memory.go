// Package memory is an in-process remote store used by tests and by
// local-only deployments that still want the full sync path exercised.
package memory

import (
	"context"
	"sort"
	"sync"

	"splitledger/internal/remote"
)

type Store struct {
	mu      sync.Mutex
	nextRev int64
	records map[string]remote.Record // keyed kind/id
}

var _ remote.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{records: make(map[string]remote.Record)}
}

func key(kind remote.Kind, id string) string {
	return string(kind) + "/" + id
}

func (s *Store) Setup(ctx context.Context) error {
	return nil
}

func (s *Store) Pull(ctx context.Context, cursor int64) ([]remote.Record, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []remote.Record
	next := cursor
	for _, r := range s.records {
		if r.Rev > cursor {
			out = append(out, r.Clone())
			if r.Rev > next {
				next = r.Rev
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rev < out[j].Rev })
	return out, next, nil
}

func (s *Store) Push(ctx context.Context, records []remote.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		s.nextRev++
		stored := r.Clone()
		stored.Rev = s.nextRev
		s.records[key(r.Kind, r.ID)] = stored
	}
	return nil
}

// Seed inserts records as if another device had pushed them. Test helper.
func (s *Store) Seed(records ...remote.Record) {
	_ = s.Push(context.Background(), records)
}

// Get returns the stored record for inspection in tests.
func (s *Store) Get(kind remote.Kind, id string) (remote.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key(kind, id)]
	if !ok {
		return remote.Record{}, false
	}
	return r.Clone(), true
}
