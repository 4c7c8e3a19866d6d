package app

import (
	"time"

	"fxcalbot/internal/calendar"
	"fxcalbot/internal/config"
	"fxcalbot/internal/notifier"
	"fxcalbot/internal/observability/status"
	"fxcalbot/internal/storage"
	logx "fxcalbot/pkg/logx"
)

// Config → component mappings. Callers pass a validated config and its Resolved values.

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		JSON:    l.JSON,
		File: logx.FileConfig{
			Enabled:    l.File.Enabled,
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
			MaxAgeDays: l.File.MaxAgeDays,
			Compress:   l.File.Compress,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config, r config.Resolved) storage.Config {
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		DSN:         cfg.Storage.DSN,
		BusyTimeout: r.BusyTimeout,
	}
}

func mapSourceOptions(cfg *config.Config, r config.Resolved) calendar.SourceOptions {
	return calendar.SourceOptions{
		Location:     r.Location,
		Currencies:   append([]string(nil), cfg.Feed.Currencies...),
		PollInterval: r.PollInterval,
	}
}

func mapDeliveryConfig(cfg *config.Config, r config.Resolved) notifier.DeliveryConfig {
	return notifier.DeliveryConfig{
		RatePerSec:    cfg.Alerts.RatePerSec,
		RetryMax:      cfg.Alerts.Retries(),
		RetryBase:     r.RetryBase,
		RetryMaxDelay: 30 * time.Second,
		SendTimeout:   r.SendTimeout,
	}
}

func mapNotifierOptions(cfg *config.Config, r config.Resolved) notifier.Options {
	return notifier.Options{
		Thresholds: append([]int(nil), cfg.Alerts.Thresholds...),
		Horizon:    r.Horizon,
	}
}

func mapStatusConfig(cfg *config.Config) status.Config {
	s := cfg.Status
	return status.Config{
		Enabled:       s.Enabled,
		Addr:          s.Addr,
		Token:         s.Token,
		AllowInsecure: s.AllowInsecure,
		Pprof:         s.Pprof,
		ReadTimeout:   10 * time.Second,
		// pprof profile/trace stream for up to 30s by default.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
