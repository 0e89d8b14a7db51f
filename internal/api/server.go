package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"actionflow/internal/engine"
	"actionflow/internal/executor"
	"actionflow/internal/scheduler"
	"actionflow/internal/store"
)

const defaultAddr = ":8080"

// Server is the HTTP front end over the store, engine, scheduler and
// calendar book.
type Server struct {
	log   *slog.Logger
	st    store.Store
	eng   *engine.Engine
	sched *scheduler.Service
	book  *executor.EventBook

	srv *http.Server
}

func New(addr string, log *slog.Logger, st store.Store, eng *engine.Engine, sched *scheduler.Service, book *executor.EventBook) *Server {
	if addr == "" {
		addr = defaultAddr
	}
	s := &Server{
		log:   log,
		st:    st,
		eng:   eng,
		sched: sched,
		book:  book,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(s.requestLog(), gin.Recovery())
	s.routes(r)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) routes(r *gin.Engine) {
	r.GET("/health", s.health)

	api := r.Group("/api")

	api.GET("/action-items", s.listItems)
	api.POST("/action-items", s.createItem)
	api.POST("/action-items/bulk", s.bulkCreate)
	api.DELETE("/action-items/bulk", s.bulkDelete)
	api.GET("/action-items/due/soon", s.dueSoon)
	api.GET("/action-items/:id", s.getItem)
	api.PUT("/action-items/:id", s.updateItem)
	api.DELETE("/action-items/:id", s.deleteItem)
	api.POST("/action-items/:id/execute", s.executeItem)

	api.POST("/actions/execute-due", s.executeDue)
	api.GET("/actions/execution-history", s.executionHistory)

	api.GET("/stats", s.stats)

	api.GET("/reminders/history", s.reminderHistory)
	api.POST("/reminders/:id/trigger", s.triggerReminder)

	api.GET("/calendar/events", s.listEvents)
	api.GET("/calendar/events/:id", s.getEvent)
	api.PUT("/calendar/events/:id", s.updateEvent)
	api.POST("/calendar/events/:id/cancel", s.cancelEvent)
}

// Start begins serving in the background. Listen errors other than a clean
// shutdown are reported through errCh.
func (s *Server) Start(errCh chan<- error) {
	s.log.Info("http server listening", slog.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)))
	}
}
