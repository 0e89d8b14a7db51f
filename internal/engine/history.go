package engine

import (
	"sync"
	"time"

	"actionflow/internal/action"
	"actionflow/internal/executor"
)

const (
	defaultHistoryCap  = 100
	defaultRecentLimit = 50
)

// Entry is an immutable record of one execution attempt. It snapshots the
// item's identity at execution time, so later edits to the item do not
// rewrite history.
type Entry struct {
	Timestamp time.Time        `json:"timestamp"`
	ItemID    string           `json:"actionId"`
	Title     string           `json:"title"`
	Type      action.Type      `json:"type"`
	Success   bool             `json:"success"`
	Result    executor.Outcome `json:"result"`
}

// History is the bounded, append-only execution log. Once the cap is
// exceeded the oldest entry is evicted.
type History struct {
	mu      sync.Mutex
	cap     int
	entries []Entry
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = defaultHistoryCap
	}
	return &History{cap: capacity}
}

func (h *History) Append(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	h.mu.Lock()
	h.entries = append(h.entries, e)
	if len(h.entries) > h.cap {
		h.entries = h.entries[len(h.entries)-h.cap:]
	}
	h.mu.Unlock()
}

// Recent returns up to limit entries, newest first. limit <= 0 means the
// default of 50; limit is clamped to the current size.
func (h *History) Recent(limit int) []Entry {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit > len(h.entries) {
		limit = len(h.entries)
	}
	out := make([]Entry, limit)
	for i := 0; i < limit; i++ {
		out[i] = h.entries[len(h.entries)-1-i]
	}
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
