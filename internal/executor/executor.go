package executor

import (
	"context"
	"fmt"

	"actionflow/internal/action"
)

// Outcome is the result of one executor invocation.
//
// Success=false is a normal negative outcome (recorded, not raised); an
// error returned from Execute is a fault and propagates to the caller.
type Outcome struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func Success(data map[string]any) Outcome {
	return Outcome{Success: true, Data: data}
}

func Failure(format string, args ...any) Outcome {
	return Outcome{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Executor performs an action item's type-specific side effect.
// Implementations must be safe to invoke concurrently for distinct items.
type Executor interface {
	Execute(ctx context.Context, it action.Item) (Outcome, error)
}

// UnsupportedTypeError marks a registry miss. It is a configuration error,
// not a runtime outcome: the engine aborts before any state transition.
type UnsupportedTypeError struct {
	Type action.Type
}

func (e *UnsupportedTypeError) Error() string {
	return "unsupported action type: " + string(e.Type)
}

// Registry maps the closed action type set to executor capabilities.
type Registry struct {
	byType map[action.Type]Executor
}

// NewRegistry builds the static dispatch table. Passing nil for a slot
// leaves that type unregistered (lookups fail with UnsupportedTypeError),
// which is only useful in tests.
func NewRegistry(email, calendar, reminder, priority Executor) *Registry {
	m := make(map[action.Type]Executor, 4)
	if email != nil {
		m[action.TypeEmail] = email
	}
	if calendar != nil {
		m[action.TypeCalendar] = calendar
	}
	if reminder != nil {
		m[action.TypeReminder] = reminder
	}
	if priority != nil {
		m[action.TypePriority] = priority
	}
	return &Registry{byType: m}
}

func (r *Registry) Lookup(t action.Type) (Executor, error) {
	ex, ok := r.byType[t]
	if !ok {
		return nil, &UnsupportedTypeError{Type: t}
	}
	return ex, nil
}
