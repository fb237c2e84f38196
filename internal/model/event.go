package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// EventType is the kind of document stored in the event index.
type EventType string

const (
	// Change is the change document itself, not an action on it.
	Change               EventType = "Change"
	ChangeCreatedEvent   EventType = "ChangeCreatedEvent"
	ChangeReviewedEvent  EventType = "ChangeReviewedEvent"
	ChangeCommentedEvent EventType = "ChangeCommentedEvent"
	ChangeAbandonedEvent EventType = "ChangeAbandonedEvent"
	ChangeMergedEvent    EventType = "ChangeMergedEvent"
)

// Terminal states of a Change document.
const (
	ChangeStateMerged    = "MERGED"
	ChangeStateAbandoned = "ABANDONED"
)

// ActionEventTypes lists every event type that records an action on a change.
var ActionEventTypes = []EventType{
	ChangeCreatedEvent,
	ChangeReviewedEvent,
	ChangeCommentedEvent,
	ChangeAbandonedEvent,
	ChangeMergedEvent,
}

// IsValid reports whether t is a known document type.
func (t EventType) IsValid() bool {
	if t == Change {
		return true
	}
	for _, known := range ActionEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Document field names shared by every store backend.
const (
	FieldType                        = "type"
	FieldRepositoryFullname          = "repository_fullname"
	FieldRepositoryFullnameAndNumber = "repository_fullname_and_number"
	FieldAuthor                      = "author"
	FieldOnAuthor                    = "on_author"
	FieldCreatedAt                   = "created_at"
	FieldOnCreatedAt                 = "on_created_at"
	FieldApproval                    = "approval"
	FieldState                       = "state"
	FieldDuration                    = "duration"
)

// Event is an immutable fact about a change, or the change document itself
// when Type is Change.
type Event struct {
	Type                        EventType `json:"type"`
	RepositoryFullname          string    `json:"repository_fullname"`
	RepositoryFullnameAndNumber string    `json:"repository_fullname_and_number"`
	Author                      string    `json:"author"`
	OnAuthor                    string    `json:"on_author,omitempty"`
	CreatedAt                   time.Time `json:"created_at"`
	OnCreatedAt                 time.Time `json:"on_created_at"`
	Approval                    string    `json:"approval,omitempty"`
	State                       string    `json:"state,omitempty"`
	// Duration is the number of seconds between creation and merge of a
	// Change document.
	Duration int64 `json:"duration,omitempty"`
}

// StringField returns the value of a keyword field by its document name.
func (e Event) StringField(field string) (string, bool) {
	switch field {
	case FieldType:
		return string(e.Type), true
	case FieldRepositoryFullname:
		return e.RepositoryFullname, true
	case FieldRepositoryFullnameAndNumber:
		return e.RepositoryFullnameAndNumber, true
	case FieldAuthor:
		return e.Author, true
	case FieldOnAuthor:
		return e.OnAuthor, true
	case FieldApproval:
		return e.Approval, true
	case FieldState:
		return e.State, true
	default:
		return "", false
	}
}

// NumericField returns the value of a numeric or date field. Dates are
// returned as epoch milliseconds.
func (e Event) NumericField(field string) (int64, bool) {
	switch field {
	case FieldCreatedAt:
		return e.CreatedAt.UnixMilli(), true
	case FieldOnCreatedAt:
		return e.OnCreatedAt.UnixMilli(), true
	case FieldDuration:
		return e.Duration, true
	default:
		return 0, false
	}
}

// Layouts accepted for date fields besides epoch milliseconds, matching the
// index template formats.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// UnmarshalJSON decodes an event document. Dates may be RFC3339 strings,
// zone-less ISO dates (UTC) or epoch milliseconds.
func (e *Event) UnmarshalJSON(data []byte) error {
	type alias Event
	aux := struct {
		*alias
		CreatedAt   json.RawMessage `json:"created_at"`
		OnCreatedAt json.RawMessage `json:"on_created_at"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if e.CreatedAt, err = parseDate(aux.CreatedAt); err != nil {
		return fmt.Errorf("created_at: %w", err)
	}
	if e.OnCreatedAt, err = parseDate(aux.OnCreatedAt); err != nil {
		return fmt.Errorf("on_created_at: %w", err)
	}
	return nil
}

func parseDate(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	var value string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &value); err != nil {
			return time.Time{}, err
		}
	} else {
		value = string(raw)
	}

	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date %q", value)
}
