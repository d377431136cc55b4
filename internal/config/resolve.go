package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Env variable names that override tokens from the file.
const (
	EnvVKToken       = "VK_TOKEN"
	EnvTelegramToken = "TELEGRAM_TOKEN"
)

var (
	ErrNoTelegramToken = errors.New("telegram token is empty (set telegram.token or TELEGRAM_TOKEN)")
	ErrNoVKToken       = errors.New("vk token is empty (set vk.token or VK_TOKEN)")
)

// applyEnv fills tokens from the environment. Non-empty env values win.
func applyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		return
	}
	if v := strings.TrimSpace(getenv(EnvTelegramToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvVKToken)); v != "" {
		cfg.VK.Token = v
	}
}

// Durations is the parsed form of every duration field.
type Durations struct {
	PollTimeout  time.Duration
	VKTimeout    time.Duration
	BusyTimeout  time.Duration
	FirstDelay   time.Duration
	PagePause    time.Duration
	RetryBase    time.Duration
	RetryDelay   time.Duration
	PhotoTimeout time.Duration
}

// ParseDurations validates duration strings and fills defaults.
func (c *Config) ParseDurations() (Durations, error) {
	var d Durations
	var err error
	fields := []struct {
		path string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"telegram.poll_timeout", c.Telegram.PollTimeout, 10 * time.Second, &d.PollTimeout},
		{"vk.timeout", c.VK.Timeout, 30 * time.Second, &d.VKTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout, 5 * time.Second, &d.BusyTimeout},
		{"monitor.first_delay", c.Monitor.FirstDelay, 10 * time.Second, &d.FirstDelay},
		{"monitor.page_pause", c.Monitor.PagePause, 500 * time.Millisecond, &d.PagePause},
		{"monitor.retry_base", c.Monitor.RetryBase, 2 * time.Second, &d.RetryBase},
		{"fanout.retry_delay", c.Fanout.RetryDelay, 2 * time.Second, &d.RetryDelay},
		{"fanout.photo_timeout", c.Fanout.PhotoTimeout, 10 * time.Second, &d.PhotoTimeout},
	}
	for _, f := range fields {
		if *f.dst, err = ParseDurationOrDefault(f.path, f.raw, f.def); err != nil {
			return Durations{}, err
		}
	}
	return d, nil
}

// Validate checks the parts of the config the process cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return ErrNoTelegramToken
	}
	if strings.TrimSpace(c.VK.Token) == "" {
		return ErrNoVKToken
	}
	if _, err := c.ParseDurations(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "file":
	default:
		return fmt.Errorf("storage.driver: unsupported %q (use sqlite or file)", c.Storage.Driver)
	}
	for name, v := range map[string]int{
		"monitor.posts_limit":      c.Monitor.PostsLimit,
		"monitor.comments_limit":   c.Monitor.CommentsLimit,
		"monitor.page_concurrency": c.Monitor.PageConcurrency,
		"monitor.retry_attempts":   c.Monitor.RetryAttempts,
		"fanout.attempts":          c.Fanout.Attempts,
	} {
		if v < 0 {
			return fmt.Errorf("%s: must be >= 0", name)
		}
	}
	if tz := strings.TrimSpace(c.Monitor.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("monitor.timezone: invalid %q: %w", tz, err)
		}
	}
	if c.Monitor.PostsLimit > 100 {
		return fmt.Errorf("monitor.posts_limit: VK returns at most 100 posts per call")
	}
	if c.Monitor.CommentsLimit > 100 {
		return fmt.Errorf("monitor.comments_limit: VK returns at most 100 comments per call")
	}
	return nil
}
