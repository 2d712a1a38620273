// Package complexity holds the complexity-of-need assessment model and the
// rules that derive a subject's current level from its append-only history.
package complexity

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Level is the assessed complexity of need.
type Level string

const (
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
)

// Levels lists every accepted level in ascending order.
var Levels = []Level{Low, Medium, High}

// Valid reports whether l is one of Levels. Matching is exact.
func (l Level) Valid() bool {
	switch l {
	case Low, Medium, High:
		return true
	}
	return false
}

// Record is one assessment in a subject's history. Only Active changes after
// creation, and only from true to false.
type Record struct {
	ID           string
	SubjectID    string
	Level        Level
	SourceSystem string
	SourceUser   string
	Notes        string
	CreatedAt    time.Time
	Active       bool
}

// newer reports whether a sorts after b in history order: later CreatedAt
// first, ties broken by the larger id.
func newer(a, b Record) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// SortNewestFirst orders records by descending CreatedAt, then descending id.
func SortNewestFirst(rs []Record) {
	sort.SliceStable(rs, func(i, j int) bool { return newer(rs[i], rs[j]) })
}

// SortOldestFirst orders records by ascending CreatedAt, then ascending id.
func SortOldestFirst(rs []Record) {
	sort.SliceStable(rs, func(i, j int) bool { return newer(rs[j], rs[i]) })
}

var (
	// ErrNotFound means the subject has no current level.
	ErrNotFound = errors.New("complexity: not found")
	// ErrInvalidRange means an export date bound was malformed or inverted.
	ErrInvalidRange = errors.New("complexity: invalid date range")
)

// ValidationError collects per-field messages for a rejected write.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], ", ")))
	}
	return "complexity: validation failed: " + strings.Join(parts, "; ")
}
