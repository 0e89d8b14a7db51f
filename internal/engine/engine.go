package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"actionflow/internal/action"
	"actionflow/internal/eventbus"
	"actionflow/internal/executor"
	"actionflow/internal/store"
)

// Config controls the execution engine.
type Config struct {
	// ExecutorTimeout bounds a single executor invocation; 0 disables it.
	ExecutorTimeout time.Duration
	HistorySize     int
}

// Engine drives action items through the execution state machine:
// pending -> in_progress -> completed|failed. The pending->in_progress
// transition is an atomic conditional update in the store, so at most one
// caller gets past the state check for a given item.
type Engine struct {
	cfg  Config
	st   store.Store
	reg  *executor.Registry
	log  *slog.Logger
	bus  eventbus.Bus
	hist *History
}

func New(cfg Config, st store.Store, reg *executor.Registry, log *slog.Logger, bus eventbus.Bus) *Engine {
	return &Engine{
		cfg:  cfg,
		st:   st,
		reg:  reg,
		log:  log,
		bus:  bus,
		hist: NewHistory(cfg.HistorySize),
	}
}

// History exposes the bounded execution log for the API layer.
func (e *Engine) History() *History { return e.hist }

// Result pairs an item snapshot with its execution outcome.
type Result struct {
	Item   action.Item      `json:"item"`
	Result executor.Outcome `json:"result"`
}

// ExecuteAction runs one item through the state machine.
//
// NotFound, InvalidState, and UnsupportedType abort before any store
// mutation and produce no history entry. Every other path persists a
// terminal status and appends exactly one history entry. An executor fault
// (returned error, as opposed to a failure outcome) is recorded and then
// propagated to the caller.
func (e *Engine) ExecuteAction(ctx context.Context, id string) (executor.Outcome, error) {
	it, err := e.st.Find(ctx, id)
	if err != nil {
		return executor.Outcome{}, err
	}
	if it.Status != action.StatusPending {
		return executor.Outcome{}, &InvalidStateError{ID: id, Status: it.Status}
	}

	ex, err := e.reg.Lookup(it.Type)
	if err != nil {
		return executor.Outcome{}, err
	}

	// Claim the item. A concurrent caller that lost the race observes the
	// in_progress status and is rejected above or right here.
	it, err = e.st.UpdateStatusIf(ctx, id, action.StatusPending, action.StatusInProgress)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return executor.Outcome{}, &InvalidStateError{ID: id, Status: it.Status}
		}
		return executor.Outcome{}, err
	}

	start := time.Now()
	outcome, execErr := e.invoke(ctx, ex, it)
	took := time.Since(start)

	// Timeouts are execution failures, not faults: the item must never be
	// left in_progress, and a hung downstream is an outcome, not a bug in
	// the caller.
	if execErr != nil && errors.Is(execErr, context.DeadlineExceeded) {
		outcome = executor.Failure("timeout: %v", execErr)
		execErr = nil
	}

	if execErr != nil {
		e.recordFailure(ctx, it, execErr.Error(), took)
		return executor.Outcome{}, execErr
	}

	if outcome.Success {
		e.recordSuccess(ctx, it, outcome, took)
	} else {
		e.recordFailure(ctx, it, outcome.Error, took)
	}
	return outcome, nil
}

// ExecuteAllDue runs every already-due pending item, sequentially, oldest
// due date first. A per-item failure or fault never aborts the batch; it is
// folded into that item's result entry.
func (e *Engine) ExecuteAllDue(ctx context.Context) ([]Result, error) {
	due, err := e.st.DueSoon(ctx, 0)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(due))
	for _, it := range due {
		outcome, err := e.ExecuteAction(ctx, it.ID)
		if err != nil {
			outcome = executor.Outcome{Success: false, Error: err.Error()}
		}
		results = append(results, Result{Item: it, Result: outcome})
	}
	return results, nil
}

func (e *Engine) invoke(ctx context.Context, ex executor.Executor, it action.Item) (executor.Outcome, error) {
	if e.cfg.ExecutorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ExecutorTimeout)
		defer cancel()
	}
	return ex.Execute(ctx, it)
}

func (e *Engine) recordSuccess(ctx context.Context, it action.Item, outcome executor.Outcome, took time.Duration) {
	now := time.Now()

	meta := it.Clone().Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	meta[action.MetaExecutionResult] = outcome

	status := action.StatusCompleted
	if _, err := e.st.Update(ctx, it.ID, store.Update{
		Status:      &status,
		ExecutedAt:  &now,
		CompletedAt: &now,
		Metadata:    meta,
	}); err != nil {
		e.log.Error("persisting completed status failed", slog.String("item_id", it.ID), slog.Any("err", err))
	}

	e.hist.Append(Entry{
		Timestamp: now,
		ItemID:    it.ID,
		Title:     it.Title,
		Type:      it.Type,
		Success:   true,
		Result:    outcome,
	})
	e.publish(eventbus.TypeActionExecuted, it, true, "", took)

	e.log.Info("action executed",
		slog.String("item_id", it.ID),
		slog.String("type", string(it.Type)),
		slog.Duration("took", took))
}

func (e *Engine) recordFailure(ctx context.Context, it action.Item, reason string, took time.Duration) {
	status := action.StatusFailed
	if _, err := e.st.Update(ctx, it.ID, store.Update{
		Status:        &status,
		FailureReason: &reason,
	}); err != nil {
		e.log.Error("persisting failed status failed", slog.String("item_id", it.ID), slog.Any("err", err))
	}

	e.hist.Append(Entry{
		Timestamp: time.Now(),
		ItemID:    it.ID,
		Title:     it.Title,
		Type:      it.Type,
		Success:   false,
		Result:    executor.Outcome{Success: false, Error: reason},
	})
	e.publish(eventbus.TypeActionFailed, it, false, reason, took)

	e.log.Warn("action failed",
		slog.String("item_id", it.ID),
		slog.String("type", string(it.Type)),
		slog.String("reason", reason),
		slog.Duration("took", took))
}

func (e *Engine) publish(typ string, it action.Item, ok bool, errMsg string, took time.Duration) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{
		Type: typ,
		Data: eventbus.ActionEvent{
			ItemID:   it.ID,
			Title:    it.Title,
			Type:     string(it.Type),
			Success:  ok,
			Error:    errMsg,
			Duration: took,
		},
	})
}
