package api

import (
	"bytes"
	"context"
	"io"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"actionflow/internal/action"
	"actionflow/internal/engine"
	"actionflow/internal/eventbus"
	"actionflow/internal/executor"
	"actionflow/internal/notify"
	"actionflow/internal/scheduler"
	"actionflow/internal/store"
)

type testEnv struct {
	srv *Server
	st  *store.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemory()
	bus := eventbus.New()
	notif := notify.New(notify.Config{}, log)
	sched := scheduler.New(scheduler.Config{Enabled: false}, st, notif, log, bus)
	book := executor.NewEventBook()
	reg := executor.NewRegistry(
		executor.NewEmail(log),
		executor.NewCalendar(log, book),
		executor.NewReminder(sched),
		executor.NewPriority(),
	)
	eng := engine.New(engine.Config{}, st, reg, log, bus)
	return &testEnv{srv: New(":0", log, st, eng, sched, book), st: st}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", decode(t, w)["status"])
}

func TestCreateAndGetItem(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/action-items", map[string]any{
		"title":   "ship release notes",
		"type":    "email",
		"dueDate": time.Now().Add(time.Hour).Format(time.RFC3339),
		"metadata": map[string]any{
			"emailTo":      []string{"team@example.com"},
			"emailSubject": "release notes",
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	body := decode(t, w)
	require.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	id := data["id"].(string)
	require.NotEmpty(t, id)
	require.Equal(t, "pending", data["status"])
	require.Equal(t, "medium", data["priority"], "priority defaults to medium")

	w = env.do(t, http.MethodGet, "/api/action-items/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/action-items/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/action-items", map[string]any{
		"type": "email",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	require.Equal(t, false, body["success"])
	require.NotEmpty(t, body["details"])
}

func TestUpdateItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.st.Create(ctx, action.Item{
		ID: "u1", Title: "old", Type: action.TypePriority,
		Status: action.StatusPending, Priority: action.PriorityLow,
		DueDate: time.Now().Add(time.Hour),
	}))

	w := env.do(t, http.MethodPut, "/api/action-items/u1", map[string]any{
		"title":    "new title",
		"priority": "urgent",
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	require.Equal(t, "new title", data["title"])
	require.Equal(t, "urgent", data["priority"])

	// Type changes are rejected.
	w = env.do(t, http.MethodPut, "/api/action-items/u1", map[string]any{"type": "email"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/action-items/u1", map[string]any{"priority": "mega"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteItem(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.st.Create(context.Background(), action.Item{
		ID: "d1", Title: "x", Type: action.TypePriority,
		Status: action.StatusPending, Priority: action.PriorityLow,
		DueDate: time.Now(),
	}))

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/action-items/d1", nil).Code)
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/action-items/d1", nil).Code)
}

func TestExecuteItem(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.st.Create(context.Background(), action.Item{
		ID: "x1", Title: "escalate", Type: action.TypePriority,
		Status: action.StatusPending, Priority: action.PriorityHigh,
		DueDate: time.Now(),
	}))

	w := env.do(t, http.MethodPost, "/api/action-items/x1/execute", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, true, body["success"])
	result := body["result"].(map[string]any)
	require.Equal(t, true, result["success"])
	data := body["data"].(map[string]any)
	require.Equal(t, "completed", data["status"])

	// Executing a completed item is a state conflict.
	w = env.do(t, http.MethodPost, "/api/action-items/x1/execute", nil)
	require.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/action-items/missing/execute", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestExecuteDueAndHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, env.st.Create(ctx, action.Item{
			ID: id, Title: id, Type: action.TypePriority,
			Status: action.StatusPending, Priority: action.PriorityLow,
			DueDate: time.Now().Add(-time.Minute),
		}))
	}

	w := env.do(t, http.MethodPost, "/api/actions/execute-due", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 2, decode(t, w)["count"])

	w = env.do(t, http.MethodGet, "/api/actions/execution-history?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, decode(t, w)["count"])

	w = env.do(t, http.MethodGet, "/api/actions/execution-history?limit=bogus", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsAndDueSoon(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.st.Create(ctx, action.Item{
		ID: "s1", Title: "x", Type: action.TypeReminder,
		Status: action.StatusPending, Priority: action.PriorityLow,
		DueDate: time.Now().Add(30 * time.Minute),
	}))

	w := env.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	require.EqualValues(t, 1, data["total"])

	w = env.do(t, http.MethodGet, "/api/action-items/due/soon?hours=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, decode(t, w)["count"])

	w = env.do(t, http.MethodGet, "/api/action-items/due/soon?hours=-1", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReminderEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.st.Create(ctx, action.Item{
		ID: "r1", Title: "call back", Type: action.TypeReminder,
		Status: action.StatusPending, Priority: action.PriorityMedium,
		DueDate: time.Now().Add(time.Hour),
	}))

	w := env.do(t, http.MethodPost, "/api/reminders/r1/trigger", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, decode(t, w)["success"])

	w = env.do(t, http.MethodGet, "/api/reminders/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, decode(t, w)["count"])

	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/reminders/none/trigger", nil).Code)

	require.NoError(t, env.st.Create(ctx, action.Item{
		ID: "e1", Title: "x", Type: action.TypeEmail,
		Status: action.StatusPending, Priority: action.PriorityLow,
		DueDate: time.Now(),
	}))
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/reminders/e1/trigger", nil).Code)
}

func TestCalendarEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.st.Create(ctx, action.Item{
		ID: "c1", Title: "planning", Type: action.TypeCalendar,
		Status: action.StatusPending, Priority: action.PriorityMedium,
		DueDate: time.Now().Add(time.Hour),
		Metadata: map[string]any{
			action.MetaCalendarEventDetails: map[string]any{
				"startTime": time.Now().Add(2 * time.Hour).Format(time.RFC3339),
				"duration":  float64(60),
			},
		},
	}))

	w := env.do(t, http.MethodPost, "/api/action-items/c1/execute", nil)
	require.Equal(t, http.StatusOK, w.Code)
	result := decode(t, w)["result"].(map[string]any)
	evID := result["data"].(map[string]any)["eventId"].(string)

	w = env.do(t, http.MethodGet, "/api/calendar/events", nil)
	require.EqualValues(t, 1, decode(t, w)["count"])

	w = env.do(t, http.MethodGet, "/api/calendar/events/"+evID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/calendar/events/"+evID+"?format=ics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "BEGIN:VCALENDAR")

	w = env.do(t, http.MethodPut, "/api/calendar/events/"+evID, map[string]any{
		"location":        "room 5",
		"durationMinutes": 90,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "room 5", decode(t, w)["data"].(map[string]any)["location"])

	w = env.do(t, http.MethodPut, "/api/calendar/events/"+evID, map[string]any{"durationMinutes": -5})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/calendar/events/"+evID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "cancelled", decode(t, w)["data"].(map[string]any)["status"])

	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/calendar/events/none", nil).Code)
}

func TestBulkEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/action-items/bulk", map[string]any{
		"items": []map[string]any{
			{"title": "one", "type": "priority", "dueDate": time.Now().Add(time.Hour).Format(time.RFC3339)},
			{"title": "two", "type": "priority", "dueDate": time.Now().Add(2 * time.Hour).Format(time.RFC3339)},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	require.EqualValues(t, 2, body["count"])

	var ids []string
	for _, raw := range body["data"].([]any) {
		ids = append(ids, raw.(map[string]any)["id"].(string))
	}

	// A single invalid entry rejects the whole batch.
	w = env.do(t, http.MethodPost, "/api/action-items/bulk", map[string]any{
		"items": []map[string]any{{"title": "broken", "type": "sms"}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, "/api/action-items/bulk", map[string]any{
		"ids": append(ids, "missing"),
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 2, decode(t, w)["count"])
}

func TestListFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.st.Create(ctx, action.Item{
		ID: "f1", Title: "a", Type: action.TypeEmail,
		Status: action.StatusPending, Priority: action.PriorityHigh,
		DueDate: time.Now(),
		Metadata: map[string]any{
			action.MetaEmailTo:      []any{"a@x"},
			action.MetaEmailSubject: "s",
		},
	}))
	require.NoError(t, env.st.Create(ctx, action.Item{
		ID: "f2", Title: "b", Type: action.TypeReminder,
		Status: action.StatusPending, Priority: action.PriorityLow,
		DueDate: time.Now(),
	}))

	w := env.do(t, http.MethodGet, "/api/action-items?type=email", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, decode(t, w)["count"])

	w = env.do(t, http.MethodGet, "/api/action-items", nil)
	require.EqualValues(t, 2, decode(t, w)["count"])
}
