package engine

import (
	"strconv"
	"testing"
)

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(0)

	for i := 0; i < defaultHistoryCap+1; i++ {
		h.Append(Entry{ItemID: strconv.Itoa(i)})
	}

	if h.Len() != defaultHistoryCap {
		t.Fatalf("len = %d, want %d", h.Len(), defaultHistoryCap)
	}

	// Entry 0 was evicted; the newest is the last appended.
	entries := h.Recent(defaultHistoryCap)
	if entries[0].ItemID != strconv.Itoa(defaultHistoryCap) {
		t.Fatalf("newest = %s", entries[0].ItemID)
	}
	if oldest := entries[len(entries)-1].ItemID; oldest != "1" {
		t.Fatalf("oldest = %s, entry 0 should be gone", oldest)
	}
}

func TestHistoryRecentDefaultsAndClamps(t *testing.T) {
	h := NewHistory(200)
	for i := 0; i < 80; i++ {
		h.Append(Entry{ItemID: strconv.Itoa(i)})
	}

	// limit <= 0 means the default of 50.
	got := h.Recent(0)
	if len(got) != defaultRecentLimit {
		t.Fatalf("default limit: got %d", len(got))
	}
	if got[0].ItemID != "79" {
		t.Fatalf("newest first, got %s", got[0].ItemID)
	}

	// limit above size is clamped.
	if got := h.Recent(500); len(got) != 80 {
		t.Fatalf("clamped: got %d", len(got))
	}

	if got := h.Recent(3); len(got) != 3 || got[2].ItemID != "77" {
		t.Fatalf("limit 3: got %+v", got)
	}
}

func TestHistoryStampsTimestamp(t *testing.T) {
	h := NewHistory(10)
	h.Append(Entry{ItemID: "a"})
	if h.Recent(1)[0].Timestamp.IsZero() {
		t.Fatal("append must stamp a zero timestamp")
	}
}
