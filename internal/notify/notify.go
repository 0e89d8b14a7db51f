package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"actionflow/internal/action"
)

const defaultHistoryCap = 300

// Notification is the payload handed to the external notification boundary.
type Notification struct {
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Priority  action.Priority `json:"priority"`
	Timestamp time.Time       `json:"timestamp"`
}

// Sink delivers a notification to one channel. Fire-and-forget: errors are
// logged by the service, never surfaced to the triggering code path.
type Sink interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

type Config struct {
	RatePerSec  int
	HistorySize int
}

// Service fans notifications out to the configured sinks, rate limited so a
// misbehaving scheduler cannot flood a downstream channel.
type Service struct {
	log *slog.Logger

	mu      sync.Mutex
	sinks   []Sink
	limiter *rate.Limiter
	histCap int
	history []Notification
	dropped uint64
}

func New(cfg Config, log *slog.Logger) *Service {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	histCap := cfg.HistorySize
	if histCap <= 0 {
		histCap = defaultHistoryCap
	}
	return &Service{
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		histCap: histCap,
	}
}

func (s *Service) AddSink(sink Sink) {
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

func (s *Service) Notify(ctx context.Context, n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	s.mu.Lock()
	lim := s.limiter
	sinks := make([]Sink, len(s.sinks))
	copy(sinks, s.sinks)
	s.mu.Unlock()

	if !lim.Allow() {
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		s.log.Warn("notification dropped (rate limit)", slog.String("title", n.Title))
		return
	}

	for _, sink := range sinks {
		if err := sink.Send(ctx, n); err != nil {
			s.log.Warn("notification send failed",
				slog.String("sink", sink.Name()),
				slog.String("title", n.Title),
				slog.Any("err", err))
		} else {
			s.log.Debug("notification sent",
				slog.String("sink", sink.Name()),
				slog.String("priority", string(n.Priority)))
		}
	}
	s.appendHistory(n)
}

func (s *Service) appendHistory(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, n)
	if len(s.history) > s.histCap {
		s.history = s.history[len(s.history)-s.histCap:]
	}
}

// History returns the retained notifications, newest first.
func (s *Service) History() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.history))
	for i, n := range s.history {
		out[len(s.history)-1-i] = n
	}
	return out
}

// ConsoleSink writes notifications to the structured log. Always available;
// it is the simulated push-notification channel.
type ConsoleSink struct {
	log *slog.Logger
}

func NewConsoleSink(log *slog.Logger) *ConsoleSink { return &ConsoleSink{log: log} }

func (c *ConsoleSink) Name() string { return "console" }

func (c *ConsoleSink) Send(ctx context.Context, n Notification) error {
	c.log.Info("push notification",
		slog.String("title", n.Title),
		slog.String("body", n.Body),
		slog.String("priority", string(n.Priority)),
		slog.Time("at", n.Timestamp))
	return nil
}
