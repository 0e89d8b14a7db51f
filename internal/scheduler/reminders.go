package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"actionflow/internal/action"
	"actionflow/internal/eventbus"
	"actionflow/internal/executor"
	"actionflow/internal/notify"
	"actionflow/internal/store"
)

const triggerHistoryCap = 300

// TriggerRecord remembers one fired reminder.
type TriggerRecord struct {
	TriggeredAt time.Time   `json:"triggeredAt"`
	Item        action.Item `json:"item"`
}

// reminderState is the per-process de-duplication guard plus a bounded
// history of fired reminders.
//
// The triggered set protects against re-firing a reminder on a subsequent
// tick before its status write has taken effect. Entries are evicted once
// the backing item is no longer pending (an external status reset makes the
// item eligible again, which is intended: resets permit re-execution).
type reminderState struct {
	mu        sync.Mutex
	triggered map[string]TriggerRecord
	history   []TriggerRecord
}

func (r *reminderState) member(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.triggered[id]
	return ok
}

func (r *reminderState) record(rec TriggerRecord) {
	r.mu.Lock()
	r.triggered[rec.Item.ID] = rec
	r.history = append(r.history, rec)
	if len(r.history) > triggerHistoryCap {
		r.history = r.history[len(r.history)-triggerHistoryCap:]
	}
	r.mu.Unlock()
}

func (r *reminderState) evict(keep func(id string) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id := range r.triggered {
		if !keep(id) {
			delete(r.triggered, id)
			n++
		}
	}
	return n
}

// checkDueReminders is one scan pass: fire every pending reminder whose
// reminder time has passed and that has not been fired already, then drop
// stale entries from the triggered set.
func (s *Service) checkDueReminders(ctx context.Context, lookahead time.Duration) {
	items, err := s.st.DueSoon(ctx, lookahead)
	if err != nil {
		s.log.Error("due-soon scan failed", slog.Any("err", err))
		return
	}

	now := time.Now()
	for _, it := range items {
		if it.Type != action.TypeReminder || it.Status != action.StatusPending {
			continue
		}
		rt, ok := it.MetaTime(action.MetaReminderTime)
		if !ok {
			// No explicit reminder time: fall back to the due date so a
			// misconfigured item doesn't sit pending forever.
			rt = it.DueDate
		}
		if rt.After(now) {
			continue
		}
		if s.reminders.member(it.ID) {
			continue
		}
		if _, err := s.trigger(ctx, it); err != nil {
			s.log.Error("reminder trigger failed", slog.String("item_id", it.ID), slog.Any("err", err))
		}
	}

	s.evictStale(ctx)
}

// evictStale drops triggered-set entries whose backing item is gone or no
// longer pending-eligible, bounding the set's growth to the pending
// population.
func (s *Service) evictStale(ctx context.Context) {
	evicted := s.reminders.evict(func(id string) bool {
		it, err := s.st.Find(ctx, id)
		if err != nil {
			return false
		}
		return it.Status == action.StatusPending || it.Status == action.StatusInProgress
	})
	if evicted > 0 {
		s.log.Debug("evicted triggered reminders", slog.Int("count", evicted))
	}
}

// TriggerManually fires a reminder immediately, regardless of due time and
// of the de-duplication guard. It is the explicit override path used by the
// reminders API and by the reminder executor.
func (s *Service) TriggerManually(ctx context.Context, id string) (executor.Outcome, error) {
	it, err := s.st.Find(ctx, id)
	if err != nil {
		return executor.Outcome{}, err
	}
	if it.Type != action.TypeReminder {
		return executor.Outcome{}, fmt.Errorf("action item %s is not a reminder", id)
	}
	return s.trigger(ctx, it)
}

// trigger marks the item completed, records the firing, and emits the
// notification payload. A store failure flips the item to failed instead;
// the reminder is then not recorded as triggered.
func (s *Service) trigger(ctx context.Context, it action.Item) (executor.Outcome, error) {
	now := time.Now()

	status := action.StatusCompleted
	updated, err := s.st.Update(ctx, it.ID, store.Update{
		Status:      &status,
		ExecutedAt:  &now,
		CompletedAt: &now,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return executor.Outcome{}, err
		}
		reason := err.Error()
		failed := action.StatusFailed
		_, _ = s.st.Update(ctx, it.ID, store.Update{Status: &failed, FailureReason: &reason})
		return executor.Failure("trigger failed: %v", err), nil
	}

	s.reminders.record(TriggerRecord{TriggeredAt: now, Item: updated})

	body := updated.MetaString(action.MetaReminderMessage)
	if body == "" {
		body = updated.Description
	}
	n := notify.Notification{
		Title:     updated.Title,
		Body:      body,
		Priority:  updated.Priority,
		Timestamp: now,
	}
	s.notif.Notify(ctx, n)

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeReminderTriggered,
			Time: now,
			Data: eventbus.ActionEvent{
				ItemID:  updated.ID,
				Title:   updated.Title,
				Type:    string(updated.Type),
				Success: true,
			},
		})
	}

	s.log.Info("reminder triggered",
		slog.String("item_id", updated.ID),
		slog.String("title", updated.Title),
		slog.String("priority", string(updated.Priority)))

	return executor.Success(map[string]any{
		"notification": n,
	}), nil
}

// Triggered reports whether id is currently held by the de-duplication guard.
func (s *Service) Triggered(id string) bool {
	return s.reminders.member(id)
}

// History returns fired reminders, newest first.
func (s *Service) History() []TriggerRecord {
	s.reminders.mu.Lock()
	out := make([]TriggerRecord, len(s.reminders.history))
	copy(out, s.reminders.history)
	s.reminders.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	return out
}
