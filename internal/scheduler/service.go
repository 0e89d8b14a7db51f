package scheduler

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"actionflow/internal/eventbus"
	"actionflow/internal/notify"
	"actionflow/internal/store"
)

// Config controls the reminder check loop.
type Config struct {
	Enabled bool

	// Lookahead is the due-soon scan window for reminder candidates.
	Lookahead time.Duration
}

// Notifier is the notification boundary the trigger path emits into.
// Fire-and-forget: there is no acknowledgement contract.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification)
}

// Service runs the minute-cadence reminder check. Ticks never overlap: if a
// previous check is still running, the tick is skipped.
type Service struct {
	mu  sync.Mutex
	cfg Config

	st    store.Store
	notif Notifier
	log   *slog.Logger
	bus   eventbus.Bus

	c         *cron.Cron
	runCtx    context.Context
	runCancel context.CancelFunc
	inTick    atomic.Bool

	// skipped counts ticks dropped by the overlap guard (diagnostics).
	skipped atomic.Uint64

	reminders reminderState
}

func New(cfg Config, st store.Store, notif Notifier, log *slog.Logger, bus eventbus.Bus) *Service {
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 6 * time.Minute
	}
	return &Service{
		cfg:   cfg,
		st:    st,
		notif: notif,
		log:   log,
		bus:   bus,
		reminders: reminderState{
			triggered: map[string]TriggerRecord{},
		},
	}
}

// Apply updates live-tunable settings (lookahead). Enabling or disabling
// the loop requires a restart; the running cron is left alone.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	if cfg.Lookahead > 0 {
		s.cfg.Lookahead = cfg.Lookahead
	}
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled {
		s.log.Info("reminder scheduler disabled")
		return
	}
	if s.c != nil {
		return
	}

	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.c = cron.New()
	// Check for due reminders every minute.
	_, err := s.c.AddFunc("* * * * *", s.tick)
	if err != nil {
		// The expression is a literal; failing here means a programming error.
		s.log.Error("registering reminder check failed", slog.Any("err", err))
		s.c = nil
		s.runCancel()
		return
	}
	s.c.Start()

	// Run one check immediately so restarts don't delay overdue reminders
	// by up to a minute.
	go s.tick()

	s.log.Info("reminder scheduler started", slog.Duration("lookahead", s.cfg.Lookahead))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCancel = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		// stop continues in background
	}
	s.log.Info("reminder scheduler stopped")
}

func (s *Service) tick() {
	if !s.inTick.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.log.Warn("reminder check skipped (previous tick still running)",
			slog.Uint64("skipped_total", s.skipped.Load()))
		return
	}
	defer s.inTick.Store(false)

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in reminder check",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	s.mu.Lock()
	ctx := s.runCtx
	lookahead := s.cfg.Lookahead
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	s.checkDueReminders(ctx, lookahead)
}
