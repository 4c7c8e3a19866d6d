package config

import (
	"strings"
	"time"
	// Embedded zone database: containers often ship without /usr/share/zoneinfo.
	_ "time/tzdata"
)

const (
	DefaultFeedURL    = "https://nfs.faireconomy.media/ff_calendar_thisweek.json"
	DefaultTimezone   = "Asia/Tashkent"
	DefaultWeeklyCron = "0 7 * * 1"
	DefaultStatePath  = "./sent_news.json"
	DefaultSQLitePath = "./fxcalbot.db"
	DefaultStatusAddr = "127.0.0.1:8088"
	DefaultUserAgent  = "Mozilla/5.0 (compatible; fxcalbot/1.0)"
	DefaultRetryMax   = 3
)

var (
	DefaultCurrencies = []string{"USD", "EUR", "CAD"}
	DefaultThresholds = []int{60, 30, 15, 5, 1}
)

// ApplyDefaults fills omitted fields in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Feed.URL) == "" {
		c.Feed.URL = DefaultFeedURL
	}
	if strings.TrimSpace(c.Feed.Timezone) == "" {
		c.Feed.Timezone = DefaultTimezone
	}
	if strings.TrimSpace(c.Feed.UserAgent) == "" {
		c.Feed.UserAgent = DefaultUserAgent
	}
	if len(c.Feed.Currencies) == 0 {
		c.Feed.Currencies = append([]string(nil), DefaultCurrencies...)
	}
	for i, cur := range c.Feed.Currencies {
		c.Feed.Currencies[i] = strings.ToUpper(strings.TrimSpace(cur))
	}
	if len(c.Alerts.Thresholds) == 0 {
		c.Alerts.Thresholds = append([]int(nil), DefaultThresholds...)
	}
	if strings.TrimSpace(c.Alerts.WeeklyCron) == "" {
		c.Alerts.WeeklyCron = DefaultWeeklyCron
	}
	if c.Alerts.RatePerSec <= 0 {
		c.Alerts.RatePerSec = 1
	}
	if c.Alerts.RetryMax == nil {
		n := DefaultRetryMax
		c.Alerts.RetryMax = &n
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "file"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		switch c.Storage.Driver {
		case "file":
			c.Storage.Path = DefaultStatePath
		case "sqlite":
			c.Storage.Path = DefaultSQLitePath
		}
	}
	if strings.TrimSpace(c.Status.Addr) == "" {
		c.Status.Addr = DefaultStatusAddr
	}
}

// Retries returns the configured resend count (DefaultRetryMax when unset).
func (a AlertsConfig) Retries() int {
	if a.RetryMax == nil {
		return DefaultRetryMax
	}
	return *a.RetryMax
}

// WeeklyOnStartupEnabled reports whether the boot-time weekly catch-up is enabled (default true).
func (a AlertsConfig) WeeklyOnStartupEnabled() bool {
	return a.WeeklyOnStartup == nil || *a.WeeklyOnStartup
}

// Resolved holds parsed values derived from Config.
type Resolved struct {
	Location     *time.Location
	FeedTimeout  time.Duration
	PollInterval time.Duration
	CheckEvery   time.Duration
	Horizon      time.Duration
	RetryBase    time.Duration
	SendTimeout  time.Duration
	PollTimeout  time.Duration
	BusyTimeout  time.Duration
}

// Resolve parses durations and the timezone. Call after ApplyDefaults.
func (c *Config) Resolve() (Resolved, error) {
	var (
		r   Resolved
		err error
	)
	if r.Location, err = time.LoadLocation(c.Feed.Timezone); err != nil {
		return r, fieldErr("feed.timezone", err)
	}
	durations := []struct {
		path string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"feed.timeout", c.Feed.Timeout, 15 * time.Second, &r.FeedTimeout},
		{"feed.poll_interval", c.Feed.PollInterval, time.Hour, &r.PollInterval},
		{"alerts.check_every", c.Alerts.CheckEvery, time.Minute, &r.CheckEvery},
		{"alerts.horizon", c.Alerts.Horizon, 2 * time.Hour, &r.Horizon},
		{"alerts.retry_base", c.Alerts.RetryBase, time.Second, &r.RetryBase},
		{"alerts.send_timeout", c.Alerts.SendTimeout, 10 * time.Second, &r.SendTimeout},
		{"telegram.poll_timeout", c.Telegram.PollTimeout, 10 * time.Second, &r.PollTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout, 5 * time.Second, &r.BusyTimeout},
	}
	for _, d := range durations {
		v, err := ParseDurationOrDefault(d.path, d.raw, d.def)
		if err != nil {
			return r, err
		}
		*d.dst = v
	}
	return r, nil
}
