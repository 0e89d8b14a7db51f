package action

import (
	"testing"
	"time"
)

func validItem(typ Type) Item {
	it := Item{
		ID:       "it-1",
		Title:    "test item",
		Type:     typ,
		Status:   StatusPending,
		Priority: PriorityMedium,
		DueDate:  time.Now().Add(time.Hour),
	}
	switch typ {
	case TypeEmail:
		it.Metadata = map[string]any{
			MetaEmailTo:      []any{"a@example.com"},
			MetaEmailSubject: "hello",
		}
	case TypeCalendar:
		it.Metadata = map[string]any{
			MetaCalendarEventDetails: map[string]any{
				"startTime": time.Now().Add(time.Hour).Format(time.RFC3339),
				"duration":  float64(30),
			},
		}
	}
	return it
}

func TestValidateOK(t *testing.T) {
	for _, typ := range []Type{TypeReminder, TypeEmail, TypeCalendar, TypePriority} {
		if errs := validItem(typ).Validate(); len(errs) != 0 {
			t.Fatalf("type %s: unexpected validation errors: %v", typ, errs)
		}
	}
}

func TestValidateStructural(t *testing.T) {
	it := validItem(TypeReminder)
	it.Title = "  "
	it.DueDate = time.Time{}
	it.Priority = "extreme"
	it.Type = "sms"

	errs := it.Validate()
	if len(errs) != 4 {
		t.Fatalf("want 4 errors, got %d: %v", len(errs), errs)
	}
}

func TestValidateEmailRequirements(t *testing.T) {
	it := validItem(TypeEmail)
	it.Metadata = map[string]any{MetaEmailSubject: "   "}

	errs := it.Validate()
	if len(errs) != 2 {
		t.Fatalf("want missing recipients + blank subject, got %v", errs)
	}
}

func TestValidateCalendarRequirements(t *testing.T) {
	it := validItem(TypeCalendar)
	it.Metadata = nil
	if errs := it.Validate(); len(errs) != 1 {
		t.Fatalf("want missing event details, got %v", errs)
	}
}

func TestCheckInvariants(t *testing.T) {
	now := time.Now()

	it := validItem(TypeReminder)
	it.Status = StatusCompleted
	if errs := it.CheckInvariants(); len(errs) != 1 {
		t.Fatalf("completed without completedAt should fail, got %v", errs)
	}

	it.CompletedAt = &now
	if errs := it.CheckInvariants(); len(errs) != 0 {
		t.Fatalf("unexpected invariant errors: %v", errs)
	}

	it.FailureReason = "boom"
	if errs := it.CheckInvariants(); len(errs) != 1 {
		t.Fatalf("completed+failed should be rejected, got %v", errs)
	}

	it = validItem(TypeReminder)
	it.Status = StatusFailed
	if errs := it.CheckInvariants(); len(errs) != 1 {
		t.Fatalf("failed without reason should be rejected, got %v", errs)
	}
}

func TestMetaTime(t *testing.T) {
	want := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	it := Item{Metadata: map[string]any{MetaReminderTime: want.Format(time.RFC3339)}}
	got, ok := it.MetaTime(MetaReminderTime)
	if !ok || !got.Equal(want) {
		t.Fatalf("string form: got %v ok=%v", got, ok)
	}

	it.Metadata[MetaReminderTime] = want
	got, ok = it.MetaTime(MetaReminderTime)
	if !ok || !got.Equal(want) {
		t.Fatalf("time form: got %v ok=%v", got, ok)
	}

	it.Metadata[MetaReminderTime] = "not-a-time"
	if _, ok = it.MetaTime(MetaReminderTime); ok {
		t.Fatal("garbage should not parse")
	}
}

func TestMetaStrings(t *testing.T) {
	it := Item{Metadata: map[string]any{MetaEmailTo: []any{"a@x", 7, "b@x"}}}
	got := it.MetaStrings(MetaEmailTo)
	if len(got) != 2 || got[0] != "a@x" || got[1] != "b@x" {
		t.Fatalf("got %v", got)
	}
}

func TestCloneDoesNotAliasMetadata(t *testing.T) {
	it := validItem(TypeEmail)
	cp := it.Clone()
	cp.Metadata[MetaEmailSubject] = "changed"
	if it.MetaString(MetaEmailSubject) != "hello" {
		t.Fatal("clone aliases the original metadata map")
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusInProgress.Terminal() {
		t.Fatal("pending/in_progress must not be terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Fatal("completed/failed must be terminal")
	}
}
