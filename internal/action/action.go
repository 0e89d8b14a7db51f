package action

import (
	"strings"
	"time"
)

// Type selects which executor handles an item.
//
// The set is closed: adding a variant means adding an executor and a
// registry entry, so keep this list in sync with executor.NewRegistry.
type Type string

const (
	TypeReminder Type = "reminder"
	TypeEmail    Type = "email"
	TypeCalendar Type = "calendar"
	TypePriority Type = "priority"
)

func (t Type) Valid() bool {
	switch t {
	case TypeReminder, TypeEmail, TypeCalendar, TypePriority:
		return true
	}
	return false
}

// Status is the execution state-machine field.
//
// pending is the only state the engine will execute from; in_progress is
// transient and must never survive an execution attempt.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends an execution attempt.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Priority is informational; it does not change scheduling order.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Metadata keys used by the typed executors.
const (
	MetaEmailTo              = "emailTo"
	MetaEmailSubject         = "emailSubject"
	MetaEmailBody            = "emailBody"
	MetaCalendarEventDetails = "calendarEventDetails"
	MetaReminderTime         = "reminderTime"
	MetaReminderMessage      = "reminderMessage"
	MetaExecutionResult      = "executionResult"
)

// Item is the schedulable unit of work.
//
// id and type are immutable after creation. executedAt/completedAt are set
// only by a successful execution; failureReason only by a failed one, and at
// most one of {completedAt, failureReason} may ever be set.
type Item struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Type        Type           `json:"type"`
	Status      Status         `json:"status"`
	Priority    Priority       `json:"priority"`
	DueDate     time.Time      `json:"dueDate"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	ExecutedAt    *time.Time `json:"executedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`
}

// Clone returns a deep-enough copy: the metadata map is copied one level so
// callers can mutate the clone without aliasing the stored item.
func (it Item) Clone() Item {
	cp := it
	if it.Metadata != nil {
		cp.Metadata = make(map[string]any, len(it.Metadata))
		for k, v := range it.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// MetaString reads a string metadata field; missing or non-string is "".
func (it Item) MetaString(key string) string {
	v, _ := it.Metadata[key].(string)
	return v
}

// MetaStrings reads a list metadata field. JSON decoding yields []any, so
// both []string and []any-of-string are accepted.
func (it Item) MetaStrings(key string) []string {
	switch v := it.Metadata[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// MetaTime reads a timestamp metadata field stored either as time.Time or as
// an RFC 3339 string (the wire form).
func (it Item) MetaTime(key string) (time.Time, bool) {
	switch v := it.Metadata[key].(type) {
	case time.Time:
		return v, true
	case string:
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Validate checks structural and per-type requirements.
// It returns a list of human-readable problems; empty means valid.
func (it Item) Validate() []string {
	var errs []string

	if strings.TrimSpace(it.Title) == "" {
		errs = append(errs, "title is required")
	}
	if !it.Type.Valid() {
		errs = append(errs, "invalid action type: "+string(it.Type))
	}
	if !it.Status.Valid() {
		errs = append(errs, "invalid status: "+string(it.Status))
	}
	if !it.Priority.Valid() {
		errs = append(errs, "invalid priority: "+string(it.Priority))
	}
	if it.DueDate.IsZero() {
		errs = append(errs, "due date is required")
	}

	switch it.Type {
	case TypeEmail:
		if len(it.MetaStrings(MetaEmailTo)) == 0 {
			errs = append(errs, "email recipients are required")
		}
		if strings.TrimSpace(it.MetaString(MetaEmailSubject)) == "" {
			errs = append(errs, "email subject is required")
		}
	case TypeCalendar:
		if _, ok := it.Metadata[MetaCalendarEventDetails]; !ok {
			errs = append(errs, "calendar event details are required")
		}
	}

	return errs
}

// CheckInvariants verifies the completed/failed bookkeeping agreement.
// It is used by store drivers and tests, not by request validation.
func (it Item) CheckInvariants() []string {
	var errs []string
	if it.CompletedAt != nil && it.FailureReason != "" {
		errs = append(errs, "item is marked both completed and failed")
	}
	if it.Status == StatusCompleted && it.CompletedAt == nil {
		errs = append(errs, "status=completed without completedAt")
	}
	if it.Status == StatusFailed && it.FailureReason == "" {
		errs = append(errs, "status=failed without failureReason")
	}
	return errs
}
