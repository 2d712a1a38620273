package complexity

import (
	"context"
	"fmt"
	"time"
)

// DateLayout is the accepted format for export date bounds.
const DateLayout = "2006-01-02"

// Exporter serves subject access requests: full history, oldest first,
// active and inactive alike.
type Exporter struct {
	store HistoryStore
}

// NewExporter wires an exporter to its store.
func NewExporter(store HistoryStore) *Exporter {
	return &Exporter{store: store}
}

// Export returns the subject's records, filtered to the inclusive day range
// [fromDate, toDate] when both are supplied. A single bound is ignored even
// when it does not parse. Malformed or inverted pairs yield ErrInvalidRange.
// No matching records is an empty slice, not an error; HasRecords tells an
// unknown subject apart from a range that excludes everything.
func (e *Exporter) Export(ctx context.Context, subjectID, fromDate, toDate string) ([]Record, error) {
	from, to, err := ParseDateRange(fromDate, toDate)
	if err != nil {
		return nil, err
	}
	rows, err := e.store.Range(ctx, subjectID, from, to)
	if err != nil {
		return nil, fmt.Errorf("complexity: export %s: %w", subjectID, err)
	}
	if rows == nil {
		rows = []Record{}
	}
	SortOldestFirst(rows)
	return rows, nil
}

// HasRecords reports whether the subject has any history at all.
func (e *Exporter) HasRecords(ctx context.Context, subjectID string) (bool, error) {
	latest, err := e.store.Latest(ctx, []string{subjectID})
	if err != nil {
		return false, fmt.Errorf("complexity: lookup %s: %w", subjectID, err)
	}
	return len(latest) > 0, nil
}

// ParseDateRange converts YYYY-MM-DD bounds into a half-open UTC interval
// [from, to+1 day). Both results are nil unless both bounds are non-empty.
func ParseDateRange(fromDate, toDate string) (*time.Time, *time.Time, error) {
	if fromDate == "" || toDate == "" {
		return nil, nil, nil
	}
	from, err := time.ParseInLocation(DateLayout, fromDate, time.UTC)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: fromDate %q", ErrInvalidRange, fromDate)
	}
	to, err := time.ParseInLocation(DateLayout, toDate, time.UTC)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: toDate %q", ErrInvalidRange, toDate)
	}
	if from.After(to) {
		return nil, nil, fmt.Errorf("%w: fromDate %s is after toDate %s", ErrInvalidRange, fromDate, toDate)
	}
	end := to.AddDate(0, 0, 1)
	return &from, &end, nil
}
