package pg

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complexityofneed.org/internal/complexity"
)

var (
	ts      = time.Date(2021, 3, 2, 10, 15, 30, 123456000, time.UTC)
	rowCols = []string{"id", "offender_no", "level", "source_system", "source_user", "notes", "created_at", "active"}
)

const selectCols = "SELECT id::text, offender_no, level, source_system, source_user, notes, created_at, active FROM complexities"

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestLatestSingleGroupedQuery(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT DISTINCT ON (offender_no) id::text, offender_no, level, source_system, source_user, notes, created_at, active "+
			"FROM complexities WHERE offender_no IN ($1,$2,$3) ORDER BY offender_no, created_at DESC, id DESC")).
		WithArgs("A1", "B2", "C3").
		WillReturnRows(sqlmock.NewRows(rowCols).
			AddRow("6b1c4a52-0000-0000-0000-000000000001", "A1", "high", "manage-pom-cases", "USER_1", nil, ts, true).
			AddRow("6b1c4a52-0000-0000-0000-000000000002", "B2", "low", "manage-pom-cases", nil, "a note", ts, false))

	got, err := s.Latest(context.Background(), []string{"A1", "B2", "C3"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, complexity.Record{
		ID:           "6b1c4a52-0000-0000-0000-000000000001",
		SubjectID:    "A1",
		Level:        complexity.High,
		SourceSystem: "manage-pom-cases",
		SourceUser:   "USER_1",
		CreatedAt:    ts,
		Active:       true,
	}, got[0])
	assert.Equal(t, "a note", got[1].Notes)
	assert.False(t, got[1].Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestEmptySkipsQuery(t *testing.T) {
	s, mock := newMockStore(t)
	got, err := s.Latest(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryNewestFirst(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectCols+" WHERE offender_no = $1 ORDER BY created_at DESC, id DESC")).
		WithArgs("A1").
		WillReturnRows(sqlmock.NewRows(rowCols).
			AddRow("2", "A1", "low", "c", nil, nil, ts.Add(time.Hour), false).
			AddRow("1", "A1", "high", "c", nil, nil, ts, nil))

	got, err := s.History(context.Background(), "A1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)
	// NULL active predates the flag and counts as active.
	assert.True(t, got[1].Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRangeWithBounds(t *testing.T) {
	s, mock := newMockStore(t)
	from := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2021, 3, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(selectCols+" WHERE offender_no = $1 AND created_at >= $2 AND created_at < $3 ORDER BY created_at ASC, id ASC")).
		WithArgs("A1", from, to).
		WillReturnRows(sqlmock.NewRows(rowCols))

	got, err := s.Range(context.Background(), "A1", &from, &to)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRangeWithoutBounds(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectCols+" WHERE offender_no = $1 ORDER BY created_at ASC, id ASC")).
		WithArgs("A1").
		WillReturnRows(sqlmock.NewRows(rowCols).AddRow("1", "A1", "medium", "c", nil, nil, ts, true))

	got, err := s.Range(context.Background(), "A1", nil, nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertReturnsID(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		"INSERT INTO complexities (offender_no,level,source_system,source_user,notes,active,created_at,updated_at) "+
			"VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id::text")).
		WithArgs("A1", "medium", "manage-pom-cases", nil, "notes", true, ts, ts).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("6b1c4a52-0000-0000-0000-000000000009"))

	rec, err := s.Insert(context.Background(), complexity.Record{
		SubjectID:    "A1",
		Level:        complexity.Medium,
		SourceSystem: "manage-pom-cases",
		Notes:        "notes",
		CreatedAt:    ts,
		Active:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, "6b1c4a52-0000-0000-0000-000000000009", rec.ID)
	assert.Equal(t, "A1", rec.SubjectID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivate(t *testing.T) {
	s, mock := newMockStore(t)
	now := ts.Add(time.Hour)
	s.now = func() time.Time { return now }
	id := "6b1c4a52-3f1e-4d0a-9a61-2a5f0c6a1001"

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE complexities SET active = $1, updated_at = $2 WHERE id = $3 RETURNING id::text, offender_no")).
		WithArgs(false, now, id).
		WillReturnRows(sqlmock.NewRows(rowCols).AddRow(id, "A1", "low", "c", nil, nil, ts, false))

	rec, err := s.Deactivate(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, rec.Active)
	assert.Equal(t, ts, rec.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	id := "6b1c4a52-3f1e-4d0a-9a61-2a5f0c6a1001"
	mock.ExpectQuery("UPDATE complexities").WillReturnError(sql.ErrNoRows)

	_, err := s.Deactivate(context.Background(), id)
	assert.ErrorIs(t, err, complexity.ErrNotFound)

	_, err = s.Deactivate(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, complexity.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryErrorPropagates(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT").WillReturnError(sql.ErrConnDone)
	_, err := s.History(context.Background(), "A1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()
	require.NoError(t, New(db).Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
