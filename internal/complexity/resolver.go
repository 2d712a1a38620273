package complexity

import (
	"context"
	"fmt"
)

// DefaultBatchSize caps the number of subject ids sent to the store in one
// grouped query.
const DefaultBatchSize = 5000

// Resolver derives current state from a HistoryStore.
//
// A subject's current record is the one with the greatest CreatedAt over all
// of its history. It only counts as the subject's level while Active; an
// inactive maximum means the level is unknown even though history exists.
type Resolver struct {
	store     HistoryStore
	batchSize int
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithBatchSize overrides DefaultBatchSize. Non-positive values are ignored.
func WithBatchSize(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// NewResolver wires a resolver to its store.
func NewResolver(store HistoryStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CurrentFor returns the subject's current record or ErrNotFound.
func (r *Resolver) CurrentFor(ctx context.Context, subjectID string) (Record, error) {
	if subjectID == "" {
		return Record{}, ErrNotFound
	}
	rows, err := r.store.Latest(ctx, []string{subjectID})
	if err != nil {
		return Record{}, fmt.Errorf("complexity: latest for %s: %w", subjectID, err)
	}
	rec, ok := reduceLatest(rows)[subjectID]
	if !ok || !rec.Active {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// CurrentForMany resolves many subjects with one grouped store query per
// batch. Subjects without a current level are omitted. Duplicate and empty
// ids are tolerated.
func (r *Resolver) CurrentForMany(ctx context.Context, subjectIDs []string) (map[string]Record, error) {
	ids := uniqueIDs(subjectIDs)
	out := make(map[string]Record, len(ids))
	for start := 0; start < len(ids); start += r.batchSize {
		end := min(start+r.batchSize, len(ids))
		rows, err := r.store.Latest(ctx, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("complexity: latest for %d subjects: %w", end-start, err)
		}
		for id, rec := range reduceLatest(rows) {
			if rec.Active {
				out[id] = rec
			}
		}
	}
	return out, nil
}

// HistoryFor returns every record for the subject, newest first. An unknown
// subject yields an empty slice and no error.
func (r *Resolver) HistoryFor(ctx context.Context, subjectID string) ([]Record, error) {
	if subjectID == "" {
		return []Record{}, nil
	}
	rows, err := r.store.History(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("complexity: history for %s: %w", subjectID, err)
	}
	if rows == nil {
		rows = []Record{}
	}
	SortNewestFirst(rows)
	return rows, nil
}

// reduceLatest keeps the newest row per subject. Stores already return one
// row each; this guards the rule against stores that do not.
func reduceLatest(rows []Record) map[string]Record {
	out := make(map[string]Record, len(rows))
	for _, rec := range rows {
		if cur, ok := out[rec.SubjectID]; ok && !newer(rec, cur) {
			continue
		}
		out[rec.SubjectID] = rec
	}
	return out
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
