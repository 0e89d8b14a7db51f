package engine

import (
	"actionflow/internal/action"
)

// InvalidStateError rejects execution of a non-pending item. It is the
// engine's concurrency guard surfacing: a second caller racing the same id
// sees the in_progress (or terminal) status here.
type InvalidStateError struct {
	ID     string
	Status action.Status
}

func (e *InvalidStateError) Error() string {
	return "cannot execute action with status: " + string(e.Status)
}
