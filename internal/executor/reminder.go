package executor

import (
	"context"

	"actionflow/internal/action"
)

// ReminderTrigger is the scheduler's manual-trigger path. Firing through it
// keeps reminder execution identical whether it comes from the engine or
// from the reminders API.
type ReminderTrigger interface {
	TriggerManually(ctx context.Context, id string) (Outcome, error)
}

// Reminder executes a reminder item by firing it immediately, regardless of
// due time. De-duplication does not apply on this path: it is an explicit
// override.
type Reminder struct {
	trigger ReminderTrigger
}

func NewReminder(trigger ReminderTrigger) *Reminder {
	return &Reminder{trigger: trigger}
}

func (r *Reminder) Execute(ctx context.Context, it action.Item) (Outcome, error) {
	return r.trigger.TriggerManually(ctx, it.ID)
}
