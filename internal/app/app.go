// Package app wires configuration, storage, execution and transport into a
// single runnable unit.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"actionflow/internal/api"
	"actionflow/internal/config"
	"actionflow/internal/engine"
	"actionflow/internal/eventbus"
	"actionflow/internal/executor"
	"actionflow/internal/logging"
	"actionflow/internal/notify"
	"actionflow/internal/scheduler"
	"actionflow/internal/store"
	"actionflow/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logging.Service
	log    *slog.Logger

	bus   eventbus.Bus
	st    store.Store
	book  *executor.EventBook
	notif *notify.Service
	sched *scheduler.Service
	eng   *engine.Engine
	api   *api.Server

	cancel  context.CancelFunc
	errCh   chan error
	reloads chan *config.Config
}

// New loads the configuration and builds the full component graph.
// Nothing is started yet; call Start.
func New(cfgPath string) (*App, error) {
	xlog := logx.NewConsole("info")

	mgr := config.NewManager(cfgPath)
	mgr.SetLogger(xlog.With(logx.String("comp", "config")))
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logging.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})

	bus := eventbus.New()

	busyTimeout, err := config.ParseDurationField("store.busy_timeout", cfg.Store.BusyTimeout)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		BusyTimeout: busyTimeout,
	}, xlog.With(logx.String("comp", "store")))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	notif := notify.New(notify.Config{
		RatePerSec:  cfg.Notify.RatePerSec,
		HistorySize: cfg.Notify.HistorySize,
	}, log.With(slog.String("comp", "notify")))
	notif.AddSink(notify.NewConsoleSink(log.With(slog.String("comp", "notify"))))
	if cfg.Notify.Telegram.Enabled {
		sink, err := notify.NewTelegramSink(notify.TelegramConfig{
			Token:  cfg.Notify.Telegram.Token,
			ChatID: cfg.Notify.Telegram.ChatID,
		})
		if err != nil {
			return nil, fmt.Errorf("telegram sink: %w", err)
		}
		notif.AddSink(sink)
	}

	lookahead, err := config.ParseDurationField("scheduler.lookahead", cfg.Scheduler.Lookahead)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(scheduler.Config{
		Enabled:   cfg.Scheduler.IsEnabled(),
		Lookahead: lookahead,
	}, st, notif, log.With(slog.String("comp", "scheduler")), bus)

	book := executor.NewEventBook()
	reg := executor.NewRegistry(
		executor.NewEmail(log.With(slog.String("comp", "email"))),
		executor.NewCalendar(log.With(slog.String("comp", "calendar")), book),
		executor.NewReminder(sched),
		executor.NewPriority(),
	)

	execTimeout, err := config.ParseDurationOrDefault("engine.executor_timeout", cfg.Engine.ExecutorTimeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	eng := engine.New(engine.Config{
		ExecutorTimeout: execTimeout,
		HistorySize:     cfg.Engine.HistorySize,
	}, st, reg, log.With(slog.String("comp", "engine")), bus)

	srv := api.New(cfg.Server.Addr, log.With(slog.String("comp", "http")), st, eng, sched, book)

	return &App{
		cfgMgr: mgr,
		logSvc: logSvc,
		log:    log.With(slog.String("comp", "app")),
		bus:    bus,
		st:     st,
		book:   book,
		notif:  notif,
		sched:  sched,
		eng:    eng,
		api:    srv,
		errCh:  make(chan error, 1),
	}, nil
}

// Errors reports fatal background failures (currently only the listener).
func (a *App) Errors() <-chan error { return a.errCh }

// Engine is exposed for command-line one-shot invocations.
func (a *App) Engine() *engine.Engine { return a.eng }

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	cfg := a.cfgMgr.Get()
	if cfg.Store.Seed {
		if err := store.Seed(runCtx, a.st, time.Now()); err != nil {
			a.log.Warn("seed failed", slog.Any("err", err))
		}
	}

	go a.auditRecorder(runCtx)

	a.reloads = a.cfgMgr.Subscribe(4)
	go a.reloadLoop(runCtx)
	go func() {
		if err := a.cfgMgr.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Warn("config watcher stopped", slog.Any("err", err))
		}
	}()

	a.sched.Start(runCtx)
	a.api.Start(a.errCh)

	a.log.Info("application started")
	return nil
}

func (a *App) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}

	if err := a.api.Stop(ctx); err != nil {
		a.log.Warn("http shutdown", slog.Any("err", err))
	}
	a.sched.Stop(ctx)

	if a.reloads != nil {
		a.cfgMgr.Unsubscribe(a.reloads)
	}
	if err := a.st.Close(); err != nil {
		a.log.Warn("store close", slog.Any("err", err))
	}
	a.log.Info("application stopped")
	_ = a.logSvc.Close()
}

// reloadLoop applies hot-reloadable settings when the config file changes.
// Store driver and listen address changes require a restart and are ignored.
func (a *App) reloadLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.reloads:
			if !ok {
				return
			}
			a.logSvc.Apply(logging.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File:    logging.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
			})
			lookahead, err := config.ParseDurationField("scheduler.lookahead", cfg.Scheduler.Lookahead)
			if err != nil {
				a.log.Warn("reload: bad scheduler.lookahead", slog.Any("err", err))
				continue
			}
			a.sched.Apply(scheduler.Config{
				Enabled:   cfg.Scheduler.IsEnabled(),
				Lookahead: lookahead,
			})
			a.log.Info("configuration reloaded")
		}
	}
}

// auditRecorder copies execution events from the bus into the persistent
// audit trail.
func (a *App) auditRecorder(ctx context.Context) {
	events, unsubscribe := a.bus.Subscribe(64)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			ae, matched := auditFromEvent(ev)
			if !matched {
				continue
			}
			if err := a.st.AppendAudit(ctx, ae); err != nil && ctx.Err() == nil {
				a.log.Warn("audit append failed", slog.Any("err", err))
			}
		}
	}
}

func auditFromEvent(ev eventbus.Event) (store.AuditEntry, bool) {
	switch ev.Type {
	case eventbus.TypeActionExecuted, eventbus.TypeActionFailed, eventbus.TypeReminderTriggered:
	default:
		return store.AuditEntry{}, false
	}
	data, ok := ev.Data.(eventbus.ActionEvent)
	if !ok {
		return store.AuditEntry{}, false
	}
	return store.AuditEntry{
		At:     ev.Time,
		Event:  ev.Type,
		ItemID: data.ItemID,
		Title:  data.Title,
		Type:   data.Type,
		OK:     data.Success,
		Error:  data.Error,
		TookMS: data.Duration.Milliseconds(),
	}, true
}
