package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"fxcalbot/internal/task/scheduler"
	logx "fxcalbot/pkg/logx"
)

// ErrInvalid marks configuration errors. They are the only errors fatal at startup.
var ErrInvalid = errors.New("invalid config")

const (
	maxThreshold = 120
	maxRetries   = 10
)

func fieldErr(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
}

func fieldMsg(path, msg string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalid, path, msg)
}

// Validate checks required fields and value ranges. Call after ApplyDefaults.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, fieldMsg("telegram.token", "required (TELEGRAM_BOT_TOKEN)"))
	}
	if strings.TrimSpace(c.Telegram.ChannelID) == "" {
		errs = append(errs, fieldMsg("telegram.channel_id", "required (CHANNEL_ID)"))
	} else if !validChannelID(c.Telegram.ChannelID) {
		errs = append(errs, fieldMsg("telegram.channel_id", "must be a numeric chat id or @username"))
	}
	if c.Telegram.AdminID == 0 {
		errs = append(errs, fieldMsg("telegram.admin_id", "required (ADMIN_ID)"))
	}

	if u, err := url.Parse(c.Feed.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fieldMsg("feed.url", "must be an absolute http(s) URL"))
	}
	for _, cur := range c.Feed.Currencies {
		if len(cur) != 3 {
			errs = append(errs, fieldMsg("feed.currencies", fmt.Sprintf("%q is not a 3-letter code", cur)))
		}
	}

	seen := map[int]bool{}
	for _, t := range c.Alerts.Thresholds {
		if t < 1 || t > maxThreshold {
			errs = append(errs, fieldMsg("alerts.thresholds", fmt.Sprintf("%d out of range 1..%d", t, maxThreshold)))
		}
		if seen[t] {
			errs = append(errs, fieldMsg("alerts.thresholds", fmt.Sprintf("duplicate %d", t)))
		}
		seen[t] = true
	}
	if n := c.Alerts.Retries(); n < 0 || n > maxRetries {
		errs = append(errs, fieldMsg("alerts.retry_max", fmt.Sprintf("%d out of range 0..%d", n, maxRetries)))
	}
	if err := scheduler.ValidateSchedule("cron:" + c.Alerts.WeeklyCron); err != nil {
		errs = append(errs, fieldErr("alerts.weekly_cron", err))
	}

	switch c.Storage.Driver {
	case "file", "sqlite":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, fieldMsg("storage.path", "required for driver "+c.Storage.Driver))
		}
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, fieldMsg("storage.dsn", "required for driver postgres"))
		}
	default:
		errs = append(errs, fieldMsg("storage.driver", fmt.Sprintf("unknown driver %q", c.Storage.Driver)))
	}

	if !logx.ValidLevel(c.Logging.Level) {
		errs = append(errs, fieldMsg("logging.level", fmt.Sprintf("unknown level %q", c.Logging.Level)))
	}
	if !logx.ValidLevel(c.Logging.Telegram.MinLevel) {
		errs = append(errs, fieldMsg("logging.telegram.min_level", fmt.Sprintf("unknown level %q", c.Logging.Telegram.MinLevel)))
	}

	r, err := c.Resolve()
	if err != nil {
		if !errors.Is(err, ErrInvalid) {
			err = fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		errs = append(errs, err)
	} else if len(c.Alerts.Thresholds) > 0 && r.Horizon.Minutes() < float64(slices.Max(c.Alerts.Thresholds)) {
		errs = append(errs, fieldMsg("alerts.horizon", "must cover the largest threshold"))
	}

	return errors.Join(errs...)
}

func validChannelID(s string) bool {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "@") {
		return len(s) > 1
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}
