package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"vkwatch/internal/bot"
	"vkwatch/internal/config"
	"vkwatch/internal/fanout"
	"vkwatch/internal/monitor"
	"vkwatch/internal/retry"
	"vkwatch/internal/scheduler"
	"vkwatch/internal/storage"
	"vkwatch/internal/vk"
	logx "vkwatch/pkg/logx"
)

const defaultInterval = "10m"

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// logTarget parses telegram.group_log. An empty or malformed value yields 0.
func logTarget(cfg *config.Config) int64 {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapStorageConfig(cfg *config.Config, d config.Durations) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "sqlite", "sqlite3":
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: d.BusyTimeout}, nil
	case "file":
		if path == "" {
			path = "./data/vkwatch.json"
		}
		return storage.Config{Driver: "file", Path: path}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapVKConfig(cfg *config.Config, d config.Durations) vk.Config {
	return vk.Config{
		Token:      cfg.VK.Token,
		Version:    strings.TrimSpace(cfg.VK.APIVersion),
		BaseURL:    strings.TrimSpace(cfg.VK.BaseURL),
		Timeout:    d.VKTimeout,
		RatePerSec: cfg.VK.RatePerSec,
	}
}

func mapRetryPolicy(cfg *config.Config, d config.Durations) retry.Policy {
	return retry.Policy{
		Attempts:   cfg.Monitor.RetryAttempts,
		Base:       d.RetryBase,
		Multiplier: 2,
	}
}

func mapMonitorConfig(cfg *config.Config, d config.Durations) monitor.Config {
	return monitor.Config{
		PostsLimit:      cfg.Monitor.PostsLimit,
		CommentsLimit:   cfg.Monitor.CommentsLimit,
		PagePause:       d.PagePause,
		PageConcurrency: cfg.Monitor.PageConcurrency,
	}
}

func mapFanoutConfig(cfg *config.Config, d config.Durations) fanout.Config {
	return fanout.Config{
		Attempts:     cfg.Fanout.Attempts,
		RetryDelay:   d.RetryDelay,
		RatePerSec:   cfg.Fanout.RatePerSec,
		PhotoTimeout: d.PhotoTimeout,
	}
}

func mapSchedulerConfig(cfg *config.Config, d config.Durations) scheduler.Config {
	interval := strings.TrimSpace(cfg.Monitor.Interval)
	if interval == "" {
		interval = defaultInterval
	}
	return scheduler.Config{
		Schedule:   interval,
		FirstDelay: d.FirstDelay,
		Timezone:   strings.TrimSpace(cfg.Monitor.Timezone),
	}
}

// location resolves monitor.timezone; Validate has already rejected bad names.
func location(cfg *config.Config) *time.Location {
	tz := strings.TrimSpace(cfg.Monitor.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

func mapBotConfig(cfg *config.Config) bot.Config {
	return bot.Config{
		Owners:     append([]int64(nil), cfg.Telegram.OwnerUserIDs...),
		PostsLimit: cfg.Monitor.PostsLimit,
		Location:   location(cfg),
	}
}
