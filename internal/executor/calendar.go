package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"actionflow/internal/action"
)

// Event is a booked calendar entry.
type Event struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Start       time.Time     `json:"startTime"`
	End         time.Time     `json:"endTime"`
	Duration    time.Duration `json:"-"`
	Location    string        `json:"location,omitempty"`
	Attendees   []string      `json:"attendees,omitempty"`
	Organizer   string        `json:"organizer"`
	Status      string        `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	CancelledAt *time.Time    `json:"cancelledAt,omitempty"`
}

const (
	EventConfirmed = "confirmed"
	EventCancelled = "cancelled"
)

// EventBook is the in-memory calendar registry. A real integration would
// talk to a calendar backend; the book keeps the same surface (create, get,
// list, update, cancel, iCalendar export) so the API layer is backend-agnostic.
type EventBook struct {
	mu     sync.RWMutex
	events map[string]Event
}

func NewEventBook() *EventBook {
	return &EventBook{events: map[string]Event{}}
}

func (b *EventBook) add(ev Event) {
	b.mu.Lock()
	b.events[ev.ID] = ev
	b.mu.Unlock()
}

func (b *EventBook) Get(id string) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ev, ok := b.events[id]
	return ev, ok
}

func (b *EventBook) List() []Event {
	b.mu.RLock()
	out := make([]Event, 0, len(b.events))
	for _, ev := range b.events {
		out = append(out, ev)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// EventUpdate is a partial event edit. Nil fields are left unchanged.
type EventUpdate struct {
	Title       *string
	Description *string
	Location    *string
	Start       *time.Time
	Duration    *time.Duration
	Attendees   []string
}

// Update applies a partial edit. Rescheduling (start or duration) recomputes
// the end time. Cancelled events cannot be edited.
func (b *EventBook) Update(id string, u EventUpdate) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev, ok := b.events[id]
	if !ok || ev.Status == EventCancelled {
		return Event{}, false
	}
	if u.Title != nil {
		ev.Title = *u.Title
	}
	if u.Description != nil {
		ev.Description = *u.Description
	}
	if u.Location != nil {
		ev.Location = *u.Location
	}
	if u.Start != nil {
		ev.Start = *u.Start
	}
	if u.Duration != nil {
		ev.Duration = *u.Duration
	}
	if u.Attendees != nil {
		ev.Attendees = u.Attendees
	}
	ev.End = ev.Start.Add(ev.Duration)
	b.events[id] = ev
	return ev, true
}

func (b *EventBook) Cancel(id string) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev, ok := b.events[id]
	if !ok {
		return Event{}, false
	}
	now := time.Now()
	ev.Status = EventCancelled
	ev.CancelledAt = &now
	b.events[id] = ev
	return ev, true
}

// ICalendar renders a minimal single-event VCALENDAR document.
func (ev Event) ICalendar() string {
	var sb strings.Builder
	icalTime := func(t time.Time) string { return t.UTC().Format("20060102T150405Z") }
	sb.WriteString("BEGIN:VCALENDAR\r\n")
	sb.WriteString("VERSION:2.0\r\n")
	sb.WriteString("PRODID:-//actionflow//calendar//EN\r\n")
	sb.WriteString("BEGIN:VEVENT\r\n")
	sb.WriteString("UID:" + ev.ID + "\r\n")
	sb.WriteString("DTSTAMP:" + icalTime(time.Now()) + "\r\n")
	sb.WriteString("DTSTART:" + icalTime(ev.Start) + "\r\n")
	sb.WriteString("DTEND:" + icalTime(ev.End) + "\r\n")
	sb.WriteString("SUMMARY:" + ev.Title + "\r\n")
	if ev.Description != "" {
		sb.WriteString("DESCRIPTION:" + ev.Description + "\r\n")
	}
	if ev.Location != "" {
		sb.WriteString("LOCATION:" + ev.Location + "\r\n")
	}
	sb.WriteString("ORGANIZER:" + ev.Organizer + "\r\n")
	sb.WriteString("STATUS:" + strings.ToUpper(ev.Status) + "\r\n")
	sb.WriteString("END:VEVENT\r\n")
	sb.WriteString("END:VCALENDAR\r\n")
	return sb.String()
}

// Calendar books events from calendarEventDetails metadata.
type Calendar struct {
	log  *slog.Logger
	book *EventBook
}

func NewCalendar(log *slog.Logger, book *EventBook) *Calendar {
	return &Calendar{log: log, book: book}
}

func (c *Calendar) Execute(ctx context.Context, it action.Item) (Outcome, error) {
	details, ok := it.Metadata[action.MetaCalendarEventDetails].(map[string]any)
	if !ok || len(details) == 0 {
		return Failure("calendar event details are missing"), nil
	}

	start, err := parseEventStart(details["startTime"])
	if err != nil {
		return Failure("invalid event start time: %v", err), nil
	}
	dur, err := parseEventDuration(details["duration"])
	if err != nil {
		return Failure("invalid event duration: %v", err), nil
	}

	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	desc, _ := details["description"].(string)
	if desc == "" {
		desc = it.Description
	}
	location, _ := details["location"].(string)

	ev := Event{
		ID:          "cal-" + uuid.NewString(),
		Title:       it.Title,
		Description: desc,
		Start:       start,
		End:         start.Add(dur),
		Duration:    dur,
		Location:    location,
		Attendees:   anyStrings(details["attendees"]),
		Organizer:   "system@actionflow.local",
		Status:      EventConfirmed,
		CreatedAt:   time.Now(),
	}
	c.book.add(ev)

	c.log.Info("calendar event created",
		slog.String("item_id", it.ID),
		slog.String("event_id", ev.ID),
		slog.Time("start", ev.Start),
		slog.Duration("duration", dur),
		slog.Int("attendees", len(ev.Attendees)))

	return Success(map[string]any{
		"eventId":      ev.ID,
		"startTime":    ev.Start.Format(time.RFC3339),
		"endTime":      ev.End.Format(time.RFC3339),
		"calendarLink": fmt.Sprintf("https://calendar.actionflow.local/events/%s", ev.ID),
	}), nil
}

func parseEventStart(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		t, err := time.Parse(time.RFC3339, x)
		if err != nil {
			return time.Time{}, err
		}
		return t, nil
	case nil:
		return time.Time{}, fmt.Errorf("start time is required")
	default:
		return time.Time{}, fmt.Errorf("unexpected start time type %T", v)
	}
}

// parseEventDuration accepts minutes as a JSON number or a Go duration string.
func parseEventDuration(v any) (time.Duration, error) {
	switch x := v.(type) {
	case float64:
		if x <= 0 {
			return 0, fmt.Errorf("duration must be positive")
		}
		return time.Duration(x * float64(time.Minute)), nil
	case int:
		if x <= 0 {
			return 0, fmt.Errorf("duration must be positive")
		}
		return time.Duration(x) * time.Minute, nil
	case string:
		d, err := time.ParseDuration(x)
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("invalid duration %q", x)
		}
		return d, nil
	case nil:
		return 0, fmt.Errorf("duration is required")
	default:
		return 0, fmt.Errorf("unexpected duration type %T", v)
	}
}

func anyStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
