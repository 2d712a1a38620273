package complexity

import (
	"context"
	"time"
)

// HistoryStore is the read side of assessment storage.
type HistoryStore interface {
	// Latest returns, for each requested subject that has any history, the
	// record with the greatest CreatedAt (ties: greatest id) regardless of
	// Active. Subjects without records are absent. Order is unspecified.
	Latest(ctx context.Context, subjectIDs []string) ([]Record, error)
	// History returns every record for the subject, newest first.
	History(ctx context.Context, subjectID string) ([]Record, error)
	// Range returns the subject's records oldest first. When from and to are
	// both set, only records created on or after from and before to are kept.
	Range(ctx context.Context, subjectID string, from, to *time.Time) ([]Record, error)
}

// WriteStore persists new records and the single active→inactive transition.
type WriteStore interface {
	// Insert stores r, assigning its ID, and returns the stored record.
	Insert(ctx context.Context, r Record) (Record, error)
	// Deactivate clears Active on the record with the given id. Deactivating
	// an inactive record returns it unchanged. Unknown ids yield ErrNotFound.
	Deactivate(ctx context.Context, id string) (Record, error)
}

// Store combines both sides.
type Store interface {
	HistoryStore
	WriteStore
}
