// Package events announces complexity level changes to downstream consumers.
package events

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"complexityofneed.org/internal/complexity"
)

const (
	// EventType is the eventType message attribute of every change.
	EventType = "complexity-of-need.level.changed"
	// Version is the message schema version.
	Version = 1
)

// Event is one level change.
type Event struct {
	SubjectID  string
	Level      complexity.Level
	Active     bool
	OccurredAt time.Time
	DetailURL  string
}

// FromRecord builds the event announcing r. baseURL is the service's public
// root, used to point consumers at the current level.
func FromRecord(r complexity.Record, baseURL string) Event {
	return Event{
		SubjectID:  r.SubjectID,
		Level:      r.Level,
		Active:     r.Active,
		OccurredAt: r.CreatedAt,
		DetailURL:  DetailURL(baseURL, r.SubjectID),
	}
}

// DetailURL locates the current level of subjectID.
func DetailURL(baseURL, subjectID string) string {
	return strings.TrimRight(baseURL, "/") + "/v1/complexity-of-need/offender-no/" + url.PathEscape(subjectID)
}

type message struct {
	OffenderNo string `json:"offenderNo"`
	Level      string `json:"level"`
	Active     bool   `json:"active"`
}

// Message renders the message body.
func (e Event) Message() (string, error) {
	b, err := json.Marshal(message{OffenderNo: e.SubjectID, Level: string(e.Level), Active: e.Active})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
