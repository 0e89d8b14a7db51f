package executor

import (
	"context"
	"io"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"actionflow/internal/action"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(NewEmail(discard()), nil, nil, NewPriority())

	if _, err := reg.Lookup(action.TypeEmail); err != nil {
		t.Fatalf("email lookup: %v", err)
	}

	_, err := reg.Lookup(action.TypeCalendar)
	var unsupported *UnsupportedTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("want UnsupportedTypeError, got %v", err)
	}
	if unsupported.Type != action.TypeCalendar {
		t.Fatalf("error carries %q", unsupported.Type)
	}
}

func TestEmailMissingMetadata(t *testing.T) {
	ex := NewEmail(discard())

	out, err := ex.Execute(context.Background(), action.Item{ID: "e1", Type: action.TypeEmail})
	if err != nil {
		t.Fatalf("missing recipients must be a failure outcome, not a fault: %v", err)
	}
	if out.Success || !strings.Contains(out.Error, "recipients") {
		t.Fatalf("outcome = %+v", out)
	}

	out, _ = ex.Execute(context.Background(), action.Item{
		ID:       "e2",
		Type:     action.TypeEmail,
		Metadata: map[string]any{action.MetaEmailTo: []any{"a@x"}, action.MetaEmailSubject: "   "},
	})
	if out.Success || !strings.Contains(out.Error, "subject") {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestEmailSuccess(t *testing.T) {
	ex := NewEmail(discard())
	out, err := ex.Execute(context.Background(), action.Item{
		ID:   "e3",
		Type: action.TypeEmail,
		Metadata: map[string]any{
			action.MetaEmailTo:      []any{"a@x", "b@x"},
			action.MetaEmailSubject: "hi",
		},
	})
	if err != nil || !out.Success {
		t.Fatalf("err=%v outcome=%+v", err, out)
	}
	if msgID, _ := out.Data["messageId"].(string); !strings.HasPrefix(msgID, "msg-") {
		t.Fatalf("messageId = %v", out.Data["messageId"])
	}
	if got := out.Data["recipients"].([]string); len(got) != 2 {
		t.Fatalf("recipients = %v", got)
	}
}

func TestEmailCancelledContext(t *testing.T) {
	ex := NewEmail(discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ex.Execute(ctx, action.Item{
		ID:       "e4",
		Type:     action.TypeEmail,
		Metadata: map[string]any{action.MetaEmailTo: []any{"a@x"}, action.MetaEmailSubject: "hi"},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled fault, got %v", err)
	}
}

func TestCalendarMissingDetails(t *testing.T) {
	ex := NewCalendar(discard(), NewEventBook())

	out, err := ex.Execute(context.Background(), action.Item{ID: "c1", Type: action.TypeCalendar})
	if err != nil || out.Success {
		t.Fatalf("err=%v outcome=%+v", err, out)
	}
}

func TestCalendarBadStartAndDuration(t *testing.T) {
	ex := NewCalendar(discard(), NewEventBook())

	out, _ := ex.Execute(context.Background(), action.Item{
		ID:   "c2",
		Type: action.TypeCalendar,
		Metadata: map[string]any{action.MetaCalendarEventDetails: map[string]any{
			"startTime": "yesterday-ish",
			"duration":  float64(30),
		}},
	})
	if out.Success || !strings.Contains(out.Error, "start time") {
		t.Fatalf("outcome = %+v", out)
	}

	out, _ = ex.Execute(context.Background(), action.Item{
		ID:   "c3",
		Type: action.TypeCalendar,
		Metadata: map[string]any{action.MetaCalendarEventDetails: map[string]any{
			"startTime": time.Now().Format(time.RFC3339),
			"duration":  float64(-5),
		}},
	})
	if out.Success || !strings.Contains(out.Error, "duration") {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestCalendarBooksEvent(t *testing.T) {
	book := NewEventBook()
	ex := NewCalendar(discard(), book)
	start := time.Now().Add(time.Hour).Truncate(time.Second)

	out, err := ex.Execute(context.Background(), action.Item{
		ID:    "c4",
		Title: "standup",
		Type:  action.TypeCalendar,
		Metadata: map[string]any{action.MetaCalendarEventDetails: map[string]any{
			"startTime": start.Format(time.RFC3339),
			"duration":  float64(45),
			"location":  "room 2",
			"attendees": []any{"a@x", "b@x"},
		}},
	})
	if err != nil || !out.Success {
		t.Fatalf("err=%v outcome=%+v", err, out)
	}

	evID := out.Data["eventId"].(string)
	ev, found := book.Get(evID)
	if !found {
		t.Fatalf("event %s not booked", evID)
	}
	if ev.Status != EventConfirmed || ev.Location != "room 2" || len(ev.Attendees) != 2 {
		t.Fatalf("event = %+v", ev)
	}
	if want := start.Add(45 * time.Minute); !ev.End.Equal(want) {
		t.Fatalf("end = %v, want %v", ev.End, want)
	}

	ical := ev.ICalendar()
	for _, token := range []string{"BEGIN:VCALENDAR", "SUMMARY:standup", "LOCATION:room 2", "STATUS:CONFIRMED"} {
		if !strings.Contains(ical, token) {
			t.Fatalf("icalendar missing %q:\n%s", token, ical)
		}
	}
}

func TestEventBookCancel(t *testing.T) {
	book := NewEventBook()
	ex := NewCalendar(discard(), book)

	out, _ := ex.Execute(context.Background(), action.Item{
		ID:   "c5",
		Type: action.TypeCalendar,
		Metadata: map[string]any{action.MetaCalendarEventDetails: map[string]any{
			"startTime": time.Now().Format(time.RFC3339),
			"duration":  "30m",
		}},
	})
	evID := out.Data["eventId"].(string)

	ev, found := book.Cancel(evID)
	if !found || ev.Status != EventCancelled || ev.CancelledAt == nil {
		t.Fatalf("cancel: found=%v ev=%+v", found, ev)
	}

	if _, found := book.Cancel("missing"); found {
		t.Fatal("cancelling an unknown event must report false")
	}
}

func TestEventBookUpdate(t *testing.T) {
	book := NewEventBook()
	ex := NewCalendar(discard(), book)
	start := time.Now().Add(time.Hour).Truncate(time.Second)

	out, _ := ex.Execute(context.Background(), action.Item{
		ID:    "c6",
		Title: "review",
		Type:  action.TypeCalendar,
		Metadata: map[string]any{action.MetaCalendarEventDetails: map[string]any{
			"startTime": start.Format(time.RFC3339),
			"duration":  float64(30),
		}},
	})
	evID := out.Data["eventId"].(string)

	title := "review (moved)"
	newStart := start.Add(2 * time.Hour)
	ev, found := book.Update(evID, EventUpdate{Title: &title, Start: &newStart})
	if !found {
		t.Fatal("update must find the event")
	}
	if ev.Title != title || !ev.Start.Equal(newStart) {
		t.Fatalf("event = %+v", ev)
	}
	// Rescheduling keeps the duration and moves the end.
	if want := newStart.Add(30 * time.Minute); !ev.End.Equal(want) {
		t.Fatalf("end = %v, want %v", ev.End, want)
	}

	book.Cancel(evID)
	if _, found := book.Update(evID, EventUpdate{Title: &title}); found {
		t.Fatal("cancelled events must not be editable")
	}
}

func TestPriorityAlwaysSucceeds(t *testing.T) {
	ex := NewPriority()
	out, err := ex.Execute(context.Background(), action.Item{ID: "p1", Priority: action.PriorityUrgent})
	if err != nil || !out.Success {
		t.Fatalf("err=%v outcome=%+v", err, out)
	}
	if out.Data["priorityLevel"] != "urgent" {
		t.Fatalf("data = %v", out.Data)
	}
}

type stubTrigger struct {
	gotID string
}

func (s *stubTrigger) TriggerManually(ctx context.Context, id string) (Outcome, error) {
	s.gotID = id
	return Success(map[string]any{"fired": true}), nil
}

func TestReminderDelegatesToTrigger(t *testing.T) {
	stub := &stubTrigger{}
	ex := NewReminder(stub)

	out, err := ex.Execute(context.Background(), action.Item{ID: "r1", Type: action.TypeReminder})
	if err != nil || !out.Success {
		t.Fatalf("err=%v outcome=%+v", err, out)
	}
	if stub.gotID != "r1" {
		t.Fatalf("trigger got id %q", stub.gotID)
	}
}
