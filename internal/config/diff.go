package config

import (
	"reflect"
	"strings"

	logx "fxcalbot/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe log
// fields for them. Secrets (token, dsn, status token) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.String("telegram.channel_id", newCfg.Telegram.ChannelID),
			logx.Int64("telegram.admin_id", newCfg.Telegram.AdminID),
		)
	}
	if !reflect.DeepEqual(oldCfg.Feed, newCfg.Feed) {
		changed = append(changed, "feed")
		attrs = append(attrs,
			logx.String("feed.currencies", strings.Join(newCfg.Feed.Currencies, ",")),
			logx.String("feed.timezone", newCfg.Feed.Timezone),
			logx.String("feed.poll_interval", newCfg.Feed.PollInterval),
		)
	}
	if !reflect.DeepEqual(oldCfg.Alerts, newCfg.Alerts) {
		changed = append(changed, "alerts")
		attrs = append(attrs,
			logx.Any("alerts.thresholds", newCfg.Alerts.Thresholds),
			logx.String("alerts.check_every", newCfg.Alerts.CheckEvery),
			logx.String("alerts.weekly_cron", newCfg.Alerts.WeeklyCron),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Status != newCfg.Status {
		changed = append(changed, "status")
		attrs = append(attrs,
			logx.Bool("status.enabled", newCfg.Status.Enabled),
			logx.String("status.addr", newCfg.Status.Addr),
			logx.Bool("status.token_set", newCfg.Status.Token != ""),
			logx.Bool("status.pprof", newCfg.Status.Pprof),
		)
	}
	return changed, attrs
}
