package executor

import (
	"context"

	"actionflow/internal/action"
)

// Priority performs no side effect. It exists so priority-type items flow
// through the same state machine as every other type.
type Priority struct{}

func NewPriority() *Priority { return &Priority{} }

func (p *Priority) Execute(ctx context.Context, it action.Item) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	return Success(map[string]any{
		"message":       "priority task marked as ready for execution",
		"priorityLevel": string(it.Priority),
	}), nil
}
