package config

// Config is the on-disk (YAML or JSON) configuration. Environment variables
// override file values; see env.go.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Feed     FeedConfig     `json:"feed"`
	Alerts   AlertsConfig   `json:"alerts"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	Status   StatusConfig   `json:"status,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// ChannelID is a numeric chat id ("-100123...") or a public "@username".
	ChannelID string `json:"channel_id"`
	// AdminID is the only user allowed to run privileged commands; it also receives log alerts.
	AdminID int64 `json:"admin_id"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// FeedConfig controls where and how often the calendar is fetched.
//
// Defaults:
//   - url: DefaultFeedURL
//   - timeout: "15s"
//   - poll_interval: "3600s" (snapshot reuse window)
//   - currencies: USD, EUR, CAD
//   - timezone: "Asia/Tashkent"
type FeedConfig struct {
	URL          string   `json:"url,omitempty"`
	Timeout      string   `json:"timeout,omitempty"`
	PollInterval string   `json:"poll_interval,omitempty"`
	Currencies   []string `json:"currencies,omitempty"`
	Timezone     string   `json:"timezone,omitempty"`
	UserAgent    string   `json:"user_agent,omitempty"`
}

// AlertsConfig controls the threshold notifier and the weekly broadcast.
//
// Defaults:
//   - thresholds: [60, 30, 15, 5, 1] (minutes before the event)
//   - check_every: "1m"
//   - horizon: "2h"
//   - weekly_cron: "0 7 * * 1" (evaluated in feed.timezone)
//   - rate_per_sec: 1, retry_max: 3, retry_base: "1s", send_timeout: "10s"
type AlertsConfig struct {
	Thresholds  []int  `json:"thresholds,omitempty"`
	CheckEvery  string `json:"check_every,omitempty"`
	Horizon     string `json:"horizon,omitempty"`
	WeeklyCron  string `json:"weekly_cron,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	RetryBase   string `json:"retry_base,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`

	// WeeklyOnStartup sends the weekly schedule at boot when started within an
	// hour after a weekly_cron activation. Pointer so an explicit false is kept.
	WeeklyOnStartup *bool `json:"weekly_on_startup,omitempty"`

	// RetryMax is the number of resends after a failed delivery. Pointer so
	// an explicit 0 (no retries) is kept.
	RetryMax *int `json:"retry_max,omitempty"`
}

// StorageConfig selects the notification state backend.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./sent_news.json" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // file (default) | sqlite | postgres
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // postgres only (do not log)
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level    string          `json:"level,omitempty"`
	Console  bool            `json:"console"`
	JSON     bool            `json:"json,omitempty"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StatusConfig controls the optional HTTP status server.
//
// Security note: keep it on loopback unless a token is set.
type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`  // default "127.0.0.1:8088"
	Token   string `json:"token,omitempty"` // optional bearer token (do not log)

	// AllowInsecure permits a non-loopback addr without a token.
	AllowInsecure bool `json:"allow_insecure,omitempty"`
	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool `json:"pprof,omitempty"`
}
