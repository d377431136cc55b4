package config

// Config is the on-disk configuration (config.json or config.yaml).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "10m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	VK       VKConfig       `json:"vk"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Monitor  MonitorConfig  `json:"monitor"`
	Fanout   FanoutConfig   `json:"fanout"`
}

type TelegramConfig struct {
	// Token may be left empty and supplied via TELEGRAM_TOKEN.
	Token string `json:"token"`
	// OwnerUserIDs restricts mutating commands. Empty allows everyone.
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	PollTimeout  string  `json:"poll_timeout"`
}

type VKConfig struct {
	// Token may be left empty and supplied via VK_TOKEN.
	Token      string  `json:"token"`
	APIVersion string  `json:"api_version,omitempty"`
	Timeout    string  `json:"timeout,omitempty"`
	BaseURL    string  `json:"base_url,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/vkwatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// MonitorConfig controls the cycle and its schedule.
//
// Defaults (when fields are omitted/zero):
//   - interval: "10m" (also accepts cron, e.g. "*/10 * * * *")
//   - first_delay: "10s"
//   - posts_limit: 20, comments_limit: 100
//   - page_pause: "500ms", page_concurrency: 1
//   - retry_attempts: 3, retry_base: "2s"
type MonitorConfig struct {
	Interval        string `json:"interval"`
	FirstDelay      string `json:"first_delay"`
	Timezone        string `json:"timezone,omitempty"`
	PostsLimit      int    `json:"posts_limit,omitempty"`
	CommentsLimit   int    `json:"comments_limit,omitempty"`
	PagePause       string `json:"page_pause,omitempty"`
	PageConcurrency int    `json:"page_concurrency,omitempty"`
	RetryAttempts   int    `json:"retry_attempts,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
}

// FanoutConfig controls alert delivery.
//
// Defaults: attempts 3, retry_delay "2s", rate_per_sec 10, photo_timeout "10s".
type FanoutConfig struct {
	Attempts     int     `json:"attempts,omitempty"`
	RetryDelay   string  `json:"retry_delay,omitempty"`
	RatePerSec   float64 `json:"rate_per_sec,omitempty"`
	PhotoTimeout string  `json:"photo_timeout,omitempty"`
}
