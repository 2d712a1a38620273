package complexity

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Notifier is told about every persisted change. Implementations must not
// block; delivery failures never fail the write.
type Notifier interface {
	LevelChanged(ctx context.Context, r Record)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, r Record)

func (f NotifierFunc) LevelChanged(ctx context.Context, r Record) { f(ctx, r) }

type nopNotifier struct{}

func (nopNotifier) LevelChanged(context.Context, Record) {}

// CreateInput is the caller-supplied part of a new assessment.
type CreateInput struct {
	SubjectID  string
	Level      string
	SourceUser string
	Notes      string
}

// Service performs writes: recording new levels and clearing the current one.
type Service struct {
	store    Store
	resolver *Resolver
	notifier Notifier
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithNotifier sets the change notifier.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithServiceClock overrides time.Now.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService builds a Service over store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		resolver: NewResolver(store),
		notifier: nopNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and appends a new active record for the subject.
// sourceSystem identifies the calling client and is never taken from input.
func (s *Service) Create(ctx context.Context, in CreateInput, sourceSystem string) (Record, error) {
	verr := &ValidationError{}
	if strings.TrimSpace(in.SubjectID) == "" {
		verr.add("offenderNo", "can't be blank")
	}
	if !Level(in.Level).Valid() {
		verr.add("level", "Must be low, medium or high")
	}
	if strings.TrimSpace(sourceSystem) == "" {
		verr.add("sourceSystem", "can't be blank")
	}
	if !verr.empty() {
		return Record{}, verr
	}

	rec, err := s.store.Insert(ctx, Record{
		SubjectID:    in.SubjectID,
		Level:        Level(in.Level),
		SourceSystem: sourceSystem,
		SourceUser:   in.SourceUser,
		Notes:        in.Notes,
		// Postgres keeps microseconds.
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
		Active:    true,
	})
	if err != nil {
		return Record{}, fmt.Errorf("complexity: insert for %s: %w", in.SubjectID, err)
	}
	s.notifier.LevelChanged(ctx, rec)
	return rec, nil
}

// Inactivate clears the subject's current level by deactivating its current
// record. ErrNotFound when the subject has no current level.
func (s *Service) Inactivate(ctx context.Context, subjectID string) (Record, error) {
	cur, err := s.resolver.CurrentFor(ctx, subjectID)
	if err != nil {
		return Record{}, err
	}
	rec, err := s.store.Deactivate(ctx, cur.ID)
	if err != nil {
		return Record{}, fmt.Errorf("complexity: deactivate %s: %w", cur.ID, err)
	}
	s.notifier.LevelChanged(ctx, rec)
	return rec, nil
}
