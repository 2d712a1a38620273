package complexity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore implements Store in process memory. It is used for local runs
// (STORE_BACKEND=memory) and tests.
type MemStore struct {
	mu        sync.RWMutex
	bySubject map[string][]*Record
	byID      map[string]*Record
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		bySubject: make(map[string][]*Record),
		byID:      make(map[string]*Record),
	}
}

func (s *MemStore) Insert(ctx context.Context, r Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	rec := r
	s.bySubject[r.SubjectID] = append(s.bySubject[r.SubjectID], &rec)
	s.byID[r.ID] = &rec
	return rec, nil
}

func (s *MemStore) Deactivate(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Active = false
	return *rec, nil
}

func (s *MemStore) Latest(ctx context.Context, subjectIDs []string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(subjectIDs))
	out := make([]Record, 0, len(subjectIDs))
	for _, id := range subjectIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		var best *Record
		for _, r := range s.bySubject[id] {
			if best == nil || newer(*r, *best) {
				best = r
			}
		}
		if best != nil {
			out = append(out, *best)
		}
	}
	return out, nil
}

func (s *MemStore) History(ctx context.Context, subjectID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := s.copyOf(subjectID)
	SortNewestFirst(out)
	return out, nil
}

func (s *MemStore) Range(ctx context.Context, subjectID string, from, to *time.Time) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all := s.copyOf(subjectID)
	out := all[:0]
	for _, r := range all {
		if from != nil && to != nil && (r.CreatedAt.Before(*from) || !r.CreatedAt.Before(*to)) {
			continue
		}
		out = append(out, r)
	}
	SortOldestFirst(out)
	return out, nil
}

func (s *MemStore) copyOf(subjectID string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.bySubject[subjectID]
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, *r)
	}
	return out
}

// Ping implements the readiness probe; memory is always reachable.
func (s *MemStore) Ping(ctx context.Context) error { return ctx.Err() }
