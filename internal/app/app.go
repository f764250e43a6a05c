package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"snoozebot/internal/config"
	"snoozebot/internal/metrics"
	"snoozebot/internal/mute"
	"snoozebot/internal/runtime/supervisor"
	"snoozebot/internal/storage"
	kit "snoozebot/internal/transport"
	telegram "snoozebot/internal/transport/telegram/adapter"
	"snoozebot/internal/transport/telegram/router"
	logx "snoozebot/pkg/logx"
)

const defaultCommandTimeout = 30 * time.Second

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	adapter kit.Adapter

	sched    *mute.Scheduler
	recovery *mute.Recovery
	sweeper  *mute.Sweeper
	metrics  *metrics.Server
	router   *router.Router

	updates chan kit.Update
	stopped atomic.Bool
}

// deps are the pieces NewApp builds from the Telegram token; tests swap them.
type deps struct {
	adapter    kit.Adapter
	membership mute.Membership
	clock      clock.Clock
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole("INFO").With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	return newApp(cfgm, cfg, deps{
		adapter:    ad,
		membership: telegram.NewMembership(ad.Bot(), cfg.Moderation.ChatID),
		clock:      clock.New(),
	})
}

func newApp(cfgm *config.ConfigManager, cfg *config.Config, d deps) (*App, error) {
	// Bootstrap with Telegram logging off, set the target, then apply the
	// final config so Apply() does not warn about a missing target.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, d.adapter)
	setLogTarget(logSvc, cfg)
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	mcfg, err := mapModerationConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sched, err := mute.NewScheduler(mcfg, mute.Deps{
		Store:      store,
		Membership: d.membership,
		Clock:      d.clock,
		Notifier: telegram.NewNotifier(d.adapter,
			kit.ChatTarget{ChatID: cfg.Moderation.ChatID, ThreadID: cfg.Moderation.AnnounceThreadID},
			cfg.Moderation.AnnounceRatePerSec),
		Auditor:  storage.Auditor{Store: store},
		Recorder: metrics.NewCollector(reg),
		Log:      log.With(logx.String("comp", "mute")),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	recovery := mute.NewRecovery(sched)

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		store:    store,
		adapter:  d.adapter,
		sched:    sched,
		recovery: recovery,
		sweeper:  mute.NewSweeper(recovery, log.With(logx.String("comp", "sweep"))),
		metrics:  metrics.NewServer(reg, log.With(logx.String("comp", "metrics"))),
		router:   router.New(log.With(logx.String("comp", "commands")), d.adapter, owners(cfg), defaultCommandTimeout),
		updates:  make(chan kit.Update, 256),
	}, nil
}

func setLogTarget(logs *logx.Service, cfg *config.Config) {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		// allow clearing target via config hot-reload
		logs.SetTelegramTarget(0, 0)
		return
	}
	if chatID, err := strconv.ParseInt(raw, 10, 64); err == nil {
		logs.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) validate(_ context.Context, cfg *config.Config) error {
	errs := []error{config.Validate(cfg)}
	if _, err := mapStorageConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapModerationConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if err := a.sweeper.ValidateSchedule(cfg.Moderation.SweepSchedule); err != nil {
		errs = append(errs, fmt.Errorf("moderation.sweep_schedule: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()
	cfg := a.cfgm.Get()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)
	if err := a.validate(ctx, cfg); err != nil {
		return err
	}

	// Timers first: persisted mutes are re-armed before new commands arrive.
	a.sched.Start(runCtx)
	if _, err := a.recovery.Reconcile(ctx, a.sched.Clock().Now()); err != nil {
		return fmt.Errorf("startup reconcile: %w", err)
	}
	if err := a.sweeper.Apply(runCtx, cfg.Moderation.SweepSchedule); err != nil {
		return err
	}
	if err := a.metrics.Apply(ctx, cfg.Metrics.Enabled, cfg.Metrics.Addr); err != nil {
		// metrics are optional; keep running without them
		a.log.Warn("metrics listener failed", logx.Err(err))
	}

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	mod := &moderation{sched: a.sched, recovery: a.recovery}
	a.router.SetCommands(runCtx, mod.commands())
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := cfg
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.Int64("chat_id", cfg.Moderation.ChatID), logx.Int64("admin_id", cfg.Moderation.AdminUserID))
	return nil
}

// applyConfig pushes a validated config to the live components.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("settings", strings.Join(restart, ",")))
	}

	setLogTarget(a.logs, newCfg)
	a.logs.Apply(mapLogConfig(newCfg))
	a.router.SetOwners(owners(newCfg))

	if mcfg, err := mapModerationConfig(newCfg); err != nil {
		a.log.Warn("invalid moderation config; keeping previous", logx.Err(err))
	} else if err := a.sched.SetConfig(mcfg); err != nil {
		a.log.Warn("moderation config rejected; keeping previous", logx.Err(err))
	}
	if err := a.sweeper.Apply(a.sup.Context(), newCfg.Moderation.SweepSchedule); err != nil {
		a.log.Warn("invalid sweep schedule; keeping previous", logx.Err(err))
	}
	if err := a.metrics.Apply(ctx, newCfg.Metrics.Enabled, newCfg.Metrics.Addr); err != nil {
		a.log.Warn("metrics listener failed", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil || !a.stopped.CompareAndSwap(false, true) {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds one shutdown step so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("sweep", 2*time.Second, func(c context.Context) error { a.sweeper.Stop(c); return nil })
	step("scheduler", 3*time.Second, func(c context.Context) error { return a.sched.Stop(c) })
	step("metrics", time.Second, func(c context.Context) error { a.metrics.Stop(c); return nil })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
