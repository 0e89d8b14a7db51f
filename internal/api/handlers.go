package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"actionflow/internal/action"
	"actionflow/internal/engine"
	"actionflow/internal/executor"
	"actionflow/internal/store"
)

// All responses share the {success, ...} envelope. Data-returning handlers
// add "data" (and "count" for lists); execution handlers add "result".

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func okList(c *gin.Context, data any, count int) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data, "count": count})
}

func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"success": false, "error": msg})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// itemRequest is the create/update payload. Pointer fields distinguish
// "omitted" from zero on update.
type itemRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Type        action.Type     `json:"type"`
	Priority    action.Priority `json:"priority"`
	Status      action.Status   `json:"status"`
	DueDate     *time.Time      `json:"dueDate"`
	Metadata    map[string]any  `json:"metadata"`
}

func (r itemRequest) newItem(now time.Time) action.Item {
	it := action.Item{
		ID:        uuid.NewString(),
		Type:      r.Type,
		Status:    action.StatusPending,
		Priority:  r.Priority,
		Metadata:  r.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if r.Title != nil {
		it.Title = *r.Title
	}
	if r.Description != nil {
		it.Description = *r.Description
	}
	if r.DueDate != nil {
		it.DueDate = *r.DueDate
	}
	if it.Priority == "" {
		it.Priority = action.PriorityMedium
	}
	return it
}

func (s *Server) listItems(c *gin.Context) {
	f := store.Filter{
		Status:   action.Status(c.Query("status")),
		Type:     action.Type(c.Query("type")),
		Priority: action.Priority(c.Query("priority")),
	}
	items, err := s.st.List(c.Request.Context(), f)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	okList(c, items, len(items))
}

func (s *Server) getItem(c *gin.Context) {
	it, err := s.st.Find(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, it)
}

func (s *Server) createItem(c *gin.Context) {
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	it := req.newItem(time.Now())
	if errs := it.Validate(); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "validation failed", "details": errs})
		return
	}

	if err := s.st.Create(c.Request.Context(), it); err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": it})
}

func (s *Server) updateItem(c *gin.Context) {
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Type != "" {
		fail(c, http.StatusBadRequest, "type is immutable")
		return
	}

	u := store.Update{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Metadata:    req.Metadata,
	}
	if req.Priority != "" {
		if !req.Priority.Valid() {
			fail(c, http.StatusBadRequest, "invalid priority: "+string(req.Priority))
			return
		}
		u.Priority = &req.Priority
	}
	if req.Status != "" {
		if !req.Status.Valid() {
			fail(c, http.StatusBadRequest, "invalid status: "+string(req.Status))
			return
		}
		u.Status = &req.Status
	}

	it, err := s.st.Update(c.Request.Context(), c.Param("id"), u)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, it)
}

func (s *Server) deleteItem(c *gin.Context) {
	deleted, err := s.st.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		fail(c, http.StatusNotFound, store.ErrNotFound.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) executeItem(c *gin.Context) {
	id := c.Param("id")
	outcome, err := s.eng.ExecuteAction(c.Request.Context(), id)
	if err != nil {
		var invalid *engine.InvalidStateError
		var unsupported *executor.UnsupportedTypeError
		switch {
		case errors.Is(err, store.ErrNotFound):
			fail(c, http.StatusNotFound, err.Error())
		case errors.As(err, &invalid):
			fail(c, http.StatusConflict, err.Error())
		case errors.As(err, &unsupported):
			fail(c, http.StatusBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	it, ferr := s.st.Find(c.Request.Context(), id)
	resp := gin.H{"success": true, "result": outcome}
	if ferr == nil {
		resp["data"] = it
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) executeDue(c *gin.Context) {
	results, err := s.eng.ExecuteAllDue(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "results": results, "count": len(results)})
}

func (s *Server) executionHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail(c, http.StatusBadRequest, "invalid limit: "+raw)
			return
		}
		limit = n
	}
	entries := s.eng.History().Recent(limit)
	okList(c, entries, len(entries))
}

func (s *Server) stats(c *gin.Context) {
	st, err := s.st.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, st)
}

func (s *Server) dueSoon(c *gin.Context) {
	hours := 24.0
	if raw := c.Query("hours"); raw != "" {
		h, err := strconv.ParseFloat(raw, 64)
		if err != nil || h < 0 {
			fail(c, http.StatusBadRequest, "invalid hours: "+raw)
			return
		}
		hours = h
	}
	items, err := s.st.DueSoon(c.Request.Context(), time.Duration(hours*float64(time.Hour)))
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	okList(c, items, len(items))
}

func (s *Server) reminderHistory(c *gin.Context) {
	recs := s.sched.History()
	okList(c, recs, len(recs))
}

func (s *Server) triggerReminder(c *gin.Context) {
	outcome, err := s.sched.TriggerManually(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, err.Error())
			return
		}
		if strings.Contains(err.Error(), "not a reminder") {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": outcome})
}

func (s *Server) listEvents(c *gin.Context) {
	events := s.book.List()
	okList(c, events, len(events))
}

func (s *Server) getEvent(c *gin.Context) {
	ev, found := s.book.Get(c.Param("id"))
	if !found {
		fail(c, http.StatusNotFound, "calendar event not found")
		return
	}
	if c.Query("format") == "ics" {
		c.Data(http.StatusOK, "text/calendar", []byte(ev.ICalendar()))
		return
	}
	ok(c, ev)
}

type eventUpdateRequest struct {
	Title           *string    `json:"title"`
	Description     *string    `json:"description"`
	Location        *string    `json:"location"`
	StartTime       *time.Time `json:"startTime"`
	DurationMinutes *float64   `json:"durationMinutes"`
	Attendees       []string   `json:"attendees"`
}

func (s *Server) updateEvent(c *gin.Context) {
	var req eventUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	u := executor.EventUpdate{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Start:       req.StartTime,
		Attendees:   req.Attendees,
	}
	if req.DurationMinutes != nil {
		if *req.DurationMinutes <= 0 {
			fail(c, http.StatusBadRequest, "durationMinutes must be positive")
			return
		}
		d := time.Duration(*req.DurationMinutes * float64(time.Minute))
		u.Duration = &d
	}

	ev, found := s.book.Update(c.Param("id"), u)
	if !found {
		fail(c, http.StatusNotFound, "calendar event not found or cancelled")
		return
	}
	ok(c, ev)
}

func (s *Server) cancelEvent(c *gin.Context) {
	ev, found := s.book.Cancel(c.Param("id"))
	if !found {
		fail(c, http.StatusNotFound, "calendar event not found")
		return
	}
	ok(c, ev)
}

type bulkCreateRequest struct {
	Items []itemRequest `json:"items"`
}

func (s *Server) bulkCreate(c *gin.Context) {
	var req bulkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Items) == 0 {
		fail(c, http.StatusBadRequest, "items must not be empty")
		return
	}

	now := time.Now()
	items := make([]action.Item, 0, len(req.Items))
	for i, r := range req.Items {
		it := r.newItem(now)
		if errs := it.Validate(); len(errs) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "validation failed at index " + strconv.Itoa(i),
				"details": errs,
			})
			return
		}
		items = append(items, it)
	}

	for _, it := range items {
		if err := s.st.Create(c.Request.Context(), it); err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": items, "count": len(items)})
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) bulkDelete(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	deleted := 0
	for _, id := range req.IDs {
		okDel, err := s.st.Delete(c.Request.Context(), id)
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		if okDel {
			deleted++
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": deleted})
}
