package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

func Stdout() io.Writer { return os.Stdout }

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the process-wide slog root. Apply() swaps sinks/levels at
// runtime without replacing the *slog.Logger handed out to components.
type Service struct {
	atomicH *AtomicHandler
	logger  *slog.Logger

	mu   sync.Mutex
	file *os.File
}

func New(cfg Config) (*Service, *slog.Logger) {
	ah := NewAtomicHandler(slog.NewTextHandler(Stdout(), &slog.HandlerOptions{Level: slog.LevelInfo}))
	svc := &Service{
		atomicH: ah,
		logger:  slog.New(ah),
	}
	svc.Apply(cfg)
	return svc, svc.logger
}

func (s *Service) Logger() *slog.Logger { return s.logger }

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	level := parseLevel(cfg.Level, slog.LevelInfo)

	var handlers []slog.Handler
	if cfg.Console {
		handlers = append(handlers, slog.NewTextHandler(Stdout(), &slog.HandlerOptions{Level: level}))
	}

	// file handler (close old safely)
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if cfg.File.Enabled && strings.TrimSpace(cfg.File.Path) != "" {
		f, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			s.file = f
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}

	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(Stdout(), &slog.HandlerOptions{Level: level}))
	}
	s.atomicH.Swap(Fanout(handlers...))
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f != nil {
		return f.Close()
	}
	return nil
}

func parseLevel(s string, def slog.Level) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return def
	}
}

// ---- Atomic handler (hot swap without replacing slog.Logger) ----

type AtomicHandler struct {
	mu sync.RWMutex
	h  slog.Handler
}

func NewAtomicHandler(h slog.Handler) *AtomicHandler { return &AtomicHandler{h: h} }

func (a *AtomicHandler) Swap(h slog.Handler) {
	a.mu.Lock()
	a.h = h
	a.mu.Unlock()
}

func (a *AtomicHandler) cur() slog.Handler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.h
}

func (a *AtomicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return a.cur().Enabled(ctx, level)
}
func (a *AtomicHandler) Handle(ctx context.Context, r slog.Record) error { return a.cur().Handle(ctx, r) }
func (a *AtomicHandler) WithAttrs(attrs []slog.Attr) slog.Handler        { return a.cur().WithAttrs(attrs) }
func (a *AtomicHandler) WithGroup(name string) slog.Handler              { return a.cur().WithGroup(name) }

// ---- Fanout ----

type fanout struct{ hs []slog.Handler }

func Fanout(h ...slog.Handler) slog.Handler { return &fanout{hs: h} }

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f.hs {
		_ = h.Handle(ctx, r)
	}
	return nil
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler { return f }
func (f *fanout) WithGroup(name string) slog.Handler       { return f }
