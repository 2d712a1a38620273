package migrate

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complexityofneed.org/migrations"
)

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func expectEnsure(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("create table if not exists schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("create table if not exists schema_seeds")).WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	src := fstest.MapFS{
		"0002_second.up.sql":   {Data: []byte("create table b(id int);")},
		"0001_first.up.sql":    {Data: []byte("create table a(id int); insert into a values (1);")},
		"0001_first.down.sql":  {Data: []byte("drop table a;")},
		"0002_second.down.sql": {Data: []byte("drop table b;")},
	}

	expectEnsure(mock)
	mock.ExpectQuery(regexp.QuoteMeta("select name from schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_first.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("create table b(id int)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("insert into schema_migrations(name, applied_at)")).
		WithArgs("0002_second.up.sql", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	m := NewManager(db, src, nil, WithClock(func() time.Time { return fixedNow }))
	applied, err := m.Up(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_second.up.sql"}, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpRollsBackFailedFile(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	src := fstest.MapFS{"0001_first.up.sql": {Data: []byte("create table a(id int); bogus;")}}
	boom := errors.New("syntax error")

	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("create table a(id int)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("bogus").WillReturnError(boom)
	mock.ExpectRollback()

	_, err = NewManager(db, src, nil).Up(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "0001_first.up.sql")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownRollsBackLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	src := fstest.MapFS{
		"0001_first.up.sql":   {Data: []byte("create table a(id int);")},
		"0001_first.down.sql": {Data: []byte("drop table a;")},
	}

	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_first.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("drop table a")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("delete from schema_migrations where name = $1")).
		WithArgs("0001_first.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))

	name, err := NewManager(db, src, nil).Down(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0001_first.up.sql", name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownNothingApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))

	_, err = NewManager(db, fstest.MapFS{}, nil).Down(context.Background())
	assert.ErrorIs(t, err, ErrNothingApplied)
}

func TestDownMissingFile(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0009_gone.up.sql"))

	_, err = NewManager(db, fstest.MapFS{}, nil).Down(context.Background())
	assert.ErrorContains(t, err, "missing down migration for 0009_gone.up.sql")
}

func TestSeedSkipsApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	seeds := fstest.MapFS{
		"0001_a.sql": {Data: []byte("insert into t values ('a;b');")},
		"0002_b.sql": {Data: []byte("insert into t values ('c');")},
	}
	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_seeds").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0002_b.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("insert into t values ('a;b')")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("insert into schema_seeds(name, applied_at)")).
		WithArgs("0001_a.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	applied, err := NewManager(db, nil, seeds).Seed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a.sql"}, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "select 1; select 2;", []string{"select 1", "select 2"}},
		{"quoted semicolon", "insert into t values ('a;b'); select 1", []string{"insert into t values ('a;b')", "select 1"}},
		{"comments", "-- heading; ignored\nselect 1; -- trailing\n", []string{"select 1"}},
		{"dashes in string", "select '--x';", []string{"select '--x'"}},
		{"blank", " ;\n; ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitStatements(tt.in))
		})
	}
}

func TestEmbeddedMigrationsPair(t *testing.T) {
	ups, err := collectSQL(migrations.SQL(), upSuffix)
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	for _, up := range ups {
		downs, err := collectSQL(migrations.SQL(), downSuffix)
		require.NoError(t, err)
		want := up.Base[:len(up.Base)-len(upSuffix)] + downSuffix
		found := false
		for _, d := range downs {
			found = found || d.Base == want
		}
		assert.True(t, found, "no down migration for %s", up.Base)
	}

	seeds, err := collectSQL(migrations.Seeds(), ".sql")
	require.NoError(t, err)
	assert.NotEmpty(t, seeds)
}
