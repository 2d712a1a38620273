package complexity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2021, 3, 2, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *MemStore, subject string, at time.Time, level Level, active bool) Record {
	t.Helper()
	rec, err := s.Insert(context.Background(), Record{
		SubjectID:    subject,
		Level:        level,
		SourceSystem: "test-client",
		CreatedAt:    at,
		Active:       active,
	})
	require.NoError(t, err)
	return rec
}

// countingStore records how HistoryStore is called.
type countingStore struct {
	HistoryStore

	mu          sync.Mutex
	latestCalls [][]string
}

func (c *countingStore) Latest(ctx context.Context, ids []string) ([]Record, error) {
	c.mu.Lock()
	c.latestCalls = append(c.latestCalls, append([]string(nil), ids...))
	c.mu.Unlock()
	return c.HistoryStore.Latest(ctx, ids)
}

// stubStore returns canned rows.
type stubStore struct {
	latest  []Record
	history []Record
	rng     []Record
	err     error

	gotFrom, gotTo *time.Time
}

func (s *stubStore) Latest(context.Context, []string) ([]Record, error) { return s.latest, s.err }
func (s *stubStore) History(context.Context, string) ([]Record, error) { return s.history, s.err }
func (s *stubStore) Range(_ context.Context, _ string, from, to *time.Time) ([]Record, error) {
	s.gotFrom, s.gotTo = from, to
	return s.rng, s.err
}
