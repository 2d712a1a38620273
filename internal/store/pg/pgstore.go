// Package pg is the PostgreSQL implementation of complexity.Store.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"complexityofneed.org/internal/complexity"
	"complexityofneed.org/internal/config"
)

const table = "complexities"

var columns = []string{
	"id::text",
	"offender_no",
	"level",
	"source_system",
	"source_user",
	"notes",
	"created_at",
	"active",
}

type Store struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

var _ complexity.Store = (*Store)(nil)

// Open connects with the pgx driver and applies pool settings.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return New(db), nil
}

// New wraps an existing pool.
func New(db *sql.DB) *Store {
	return &Store{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now: time.Now,
	}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping implements the readiness probe.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Latest resolves the newest row per subject in one grouped query.
func (s *Store) Latest(ctx context.Context, subjectIDs []string) ([]complexity.Record, error) {
	if len(subjectIDs) == 0 {
		return nil, nil
	}
	q := s.sb.Select(columns...).
		Options("DISTINCT ON (offender_no)").
		From(table).
		Where(sq.Eq{"offender_no": subjectIDs}).
		OrderBy("offender_no", "created_at DESC", "id DESC")
	return s.list(ctx, q)
}

func (s *Store) History(ctx context.Context, subjectID string) ([]complexity.Record, error) {
	q := s.sb.Select(columns...).
		From(table).
		Where(sq.Eq{"offender_no": subjectID}).
		OrderBy("created_at DESC", "id DESC")
	return s.list(ctx, q)
}

func (s *Store) Range(ctx context.Context, subjectID string, from, to *time.Time) ([]complexity.Record, error) {
	q := s.sb.Select(columns...).
		From(table).
		Where(sq.Eq{"offender_no": subjectID})
	if from != nil && to != nil {
		q = q.Where(sq.GtOrEq{"created_at": *from}).Where(sq.Lt{"created_at": *to})
	}
	return s.list(ctx, q.OrderBy("created_at ASC", "id ASC"))
}

func (s *Store) Insert(ctx context.Context, r complexity.Record) (complexity.Record, error) {
	q := s.sb.Insert(table).
		Columns("offender_no", "level", "source_system", "source_user", "notes", "active", "created_at", "updated_at").
		Values(r.SubjectID, string(r.Level), r.SourceSystem, nullString(r.SourceUser), nullString(r.Notes), r.Active, r.CreatedAt, r.CreatedAt).
		Suffix("RETURNING id::text")
	query, args, err := q.ToSql()
	if err != nil {
		return complexity.Record{}, err
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&r.ID); err != nil {
		return complexity.Record{}, fmt.Errorf("insert complexity: %w", err)
	}
	return r, nil
}

// Deactivate clears active. Repeating it on an inactive row is harmless.
func (s *Store) Deactivate(ctx context.Context, id string) (complexity.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return complexity.Record{}, complexity.ErrNotFound
	}
	q := s.sb.Update(table).
		Set("active", false).
		Set("updated_at", s.now().UTC()).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(columns, ", "))
	query, args, err := q.ToSql()
	if err != nil {
		return complexity.Record{}, err
	}
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return complexity.Record{}, complexity.ErrNotFound
	}
	if err != nil {
		return complexity.Record{}, fmt.Errorf("deactivate complexity %s: %w", id, err)
	}
	return rec, nil
}

func (s *Store) list(ctx context.Context, q sq.SelectBuilder) ([]complexity.Record, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []complexity.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (complexity.Record, error) {
	var (
		rec        complexity.Record
		level      string
		sourceUser sql.NullString
		notes      sql.NullString
		active     sql.NullBool
	)
	if err := row.Scan(&rec.ID, &rec.SubjectID, &level, &rec.SourceSystem, &sourceUser, &notes, &rec.CreatedAt, &active); err != nil {
		return complexity.Record{}, err
	}
	rec.Level = complexity.Level(level)
	rec.SourceUser = sourceUser.String
	rec.Notes = notes.String
	// Rows written before the active flag existed default to active.
	rec.Active = !active.Valid || active.Bool
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
