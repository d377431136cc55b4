package app

import (
	"context"
	"strings"
	"time"

	"vkwatch/internal/config"
	logx "vkwatch/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	// Track last applied config to generate a safe diff summary.
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			if newCfg == nil {
				continue
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig pushes the live sections of newCfg into running components.
// Anything else is only reported as needing a restart.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	dur, err := newCfg.ParseDurations()
	if err != nil {
		a.log.Warn("invalid durations; keeping previous config", logx.Err(err))
		return
	}

	// update log target first (so Apply() doesn't warn when Telegram logging is enabled)
	a.logs.SetTelegramTarget(logTarget(newCfg), newCfg.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLoggingConfig(newCfg))

	a.bot.SetOwners(newCfg.Telegram.OwnerUserIDs)

	a.fetch.SetPolicy(mapRetryPolicy(newCfg, dur))
	a.monitor.Apply(mapMonitorConfig(newCfg, dur))
	a.fanout.Apply(mapFanoutConfig(newCfg, dur))

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := a.sched.Apply(sctx, mapSchedulerConfig(newCfg, dur)); err != nil {
		a.log.Warn("invalid schedule; keeping previous", logx.Err(err))
	}
	cancel()

	a.log.Info("config reloaded", fields...)
}
