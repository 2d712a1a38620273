// Package audit writes structured audit entries for writes and subject
// access exports.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"complexityofneed.org/internal/auth"
)

// Audited events.
const (
	EventComplexityCreated     = "complexity.created"
	EventComplexityInactivated = "complexity.inactivated"
	EventSubjectAccessExported = "subject_access.exported"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Logger emits one structured line per audited event.
type Logger struct {
	log *slog.Logger
	now func() time.Time
}

// New returns a Logger writing through l.
func New(l *slog.Logger) *Logger {
	return &Logger{log: l, now: time.Now}
}

// LogEvent writes an audit entry enriched with request and caller context.
func (a *Logger) LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("audit: event name is required")
	}
	attrs := []any{
		slog.String("type", "audit"),
		slog.String("event", event),
		slog.String("ts", a.now().UTC().Format(time.RFC3339Nano)),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if tok, ok := auth.TokenFromContext(ctx); ok {
		attrs = append(attrs, slog.String("client_id", tok.ClientID))
		if tok.UserName != "" {
			attrs = append(attrs, slog.String("user_name", tok.UserName))
		}
	}
	group := make([]any, 0, len(fields))
	for k, v := range fields {
		group = append(group, slog.Any(k, v))
	}
	attrs = append(attrs, slog.Group("fields", group...))

	a.log.InfoContext(ctx, "audit", attrs...)
	return nil
}
