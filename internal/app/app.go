package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"vkwatch/internal/bot"
	"vkwatch/internal/config"
	"vkwatch/internal/export"
	"vkwatch/internal/fanout"
	"vkwatch/internal/fetcher"
	"vkwatch/internal/monitor"
	"vkwatch/internal/runtime/supervisor"
	"vkwatch/internal/scheduler"
	"vkwatch/internal/storage"
	"vkwatch/internal/transport"
	telegram "vkwatch/internal/transport/telegram/adapter"
	"vkwatch/internal/vk"
	logx "vkwatch/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	adapter *telegram.Adapter
	fetch   *fetcher.Fetcher
	fanout  *fanout.Service
	monitor *monitor.Monitor
	sched   *scheduler.Service
	bot     *bot.Bot

	updates chan transport.Update
}

// NewApp loads cfgPath and builds every component. Nothing runs until Start.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dur, err := cfg.ParseDurations()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: dur.PollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// logx.New applies immediately and warns when the Telegram sink has no
	// target yet, so start with it disabled, set the target, then apply.
	logCfg := mapLoggingConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	if id := logTarget(cfg); id != 0 {
		logSvc.SetTelegramTarget(id, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg, dur)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage ready", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	vc, err := vk.New(mapVKConfig(cfg, dur), nil, log.With(logx.String("comp", "vk")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	fetch := fetcher.New(fetcher.VK{Client: vc}, fetcher.Config{Policy: mapRetryPolicy(cfg, dur)}, log)
	fan := fanout.New(mapFanoutConfig(cfg, dur), store, ad, log)
	mon := monitor.New(ctx, mapMonitorConfig(cfg, dur), store, fetch, fan, log)
	sched := scheduler.New(mapSchedulerConfig(cfg, dur), mon, log)

	b := bot.New(mapBotConfig(cfg), bot.Deps{
		Store:    store,
		Resolver: fetch,
		Checker:  sched,
		Stats:    mon,
		Exporter: export.New(store, location(cfg)),
		Sender:   ad,
	}, log)

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		adapter: ad,
		fetch:   fetch,
		fanout:  fan,
		monitor: mon,
		sched:   sched,
		bot:     b,
		updates: make(chan transport.Update, 256),
	}, nil
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

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateReload(cfg)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	mctx, cancel := context.WithTimeout(a.sup.Context(), 10*time.Second)
	if err := a.adapter.UpdateMenuCommands(mctx, a.bot.MenuCommands()); err != nil {
		a.log.Warn("cannot publish command menu", logx.Err(err))
	}
	cancel()

	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.bot.Run(c, a.updates)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		watchdogLoop(c, a.log)
	})

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started", logx.Time("next_check", a.sched.Next()))
	return nil
}

// validateReload rejects configs that would break a running process.
func validateReload(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if raw := strings.TrimSpace(cfg.Monitor.Interval); raw != "" {
		if _, err := scheduler.ParseSpec(raw); err != nil {
			return fmt.Errorf("monitor.interval: %w", err)
		}
	}
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max <= 0 {
				max = time.Millisecond
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

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
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// fn must honor stepCtx; if it doesn't, log when it finally returns.
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				a.log.Info("stop step finished after deadline",
					logx.String("name", name),
					logx.Duration("took", time.Since(start)),
					logx.Bool("error", err != nil),
				)
			}()
		}
	}

	// scheduler first: an in-flight cycle must return before the store closes
	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	// bot workers, config watch/reload and the watchdog
	step("supervisor", 4*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	st := a.monitor.Stats()
	a.log.Info("stopped", logx.Int64("total_matches", st.TotalMatches))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
