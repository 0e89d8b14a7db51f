package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"actionflow/internal/action"
	"actionflow/pkg/logx"
)

var (
	// ErrNotFound is returned for lookups of unknown item ids.
	ErrNotFound = errors.New("action item not found")

	// ErrConflict is returned by UpdateStatusIf when the stored status does
	// not match the expected one. The current item is returned alongside it.
	ErrConflict = errors.New("status precondition failed")
)

// Filter narrows List results. Zero-valued fields match everything.
type Filter struct {
	Status   action.Status
	Type     action.Type
	Priority action.Priority
}

func (f Filter) matches(it action.Item) bool {
	if f.Status != "" && it.Status != f.Status {
		return false
	}
	if f.Type != "" && it.Type != f.Type {
		return false
	}
	if f.Priority != "" && it.Priority != f.Priority {
		return false
	}
	return true
}

// Update is a partial write. Nil fields are left unchanged.
// Every applied update refreshes UpdatedAt.
type Update struct {
	Title       *string
	Description *string
	Priority    *action.Priority
	DueDate     *time.Time
	Status      *action.Status
	Metadata    map[string]any

	ExecutedAt    *time.Time
	CompletedAt   *time.Time
	FailureReason *string
}

func (u Update) apply(it *action.Item, now time.Time) {
	if u.Title != nil {
		it.Title = *u.Title
	}
	if u.Description != nil {
		it.Description = *u.Description
	}
	if u.Priority != nil {
		it.Priority = *u.Priority
	}
	if u.DueDate != nil {
		it.DueDate = *u.DueDate
	}
	if u.Status != nil {
		it.Status = *u.Status
	}
	if u.Metadata != nil {
		it.Metadata = u.Metadata
	}
	if u.ExecutedAt != nil {
		it.ExecutedAt = u.ExecutedAt
	}
	if u.CompletedAt != nil {
		it.CompletedAt = u.CompletedAt
	}
	if u.FailureReason != nil {
		it.FailureReason = *u.FailureReason
	}
	it.UpdatedAt = now
}

// Stats summarizes the current item population.
type Stats struct {
	Total      int                     `json:"total"`
	ByStatus   map[action.Status]int   `json:"byStatus"`
	ByType     map[action.Type]int     `json:"byType"`
	ByPriority map[action.Priority]int `json:"byPriority"`
}

// AuditEntry records an execution outcome for the persistent audit trail.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At     time.Time
	Event  string
	ItemID string
	Title  string
	Type   string
	OK     bool
	Error  string
	TookMS int64
}

// Store is the record store contract the engine and scheduler depend on.
//
// List and DueSoon return items sorted by dueDate ascending. UpdateStatusIf
// is the atomic compare-and-set that serializes per-item state transitions.
type Store interface {
	Find(ctx context.Context, id string) (action.Item, error)
	List(ctx context.Context, f Filter) ([]action.Item, error)
	Create(ctx context.Context, it action.Item) error
	Update(ctx context.Context, id string, u Update) (action.Item, error)
	UpdateStatusIf(ctx context.Context, id string, from, to action.Status) (action.Item, error)
	Delete(ctx context.Context, id string) (bool, error)

	// DueSoon returns pending items with dueDate <= now+lookahead, oldest
	// first. Overdue items are always included; lookahead 0 therefore means
	// "already due".
	DueSoon(ctx context.Context, lookahead time.Duration) ([]action.Item, error)

	Stats(ctx context.Context) (Stats, error)

	AppendAudit(ctx context.Context, e AuditEntry) error

	Close() error
}

// Config configures the record store.
//
// Driver values:
//   - "" or "memory": in-process map store
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory", "mem":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown store driver: " + cfg.Driver)
	}
}
