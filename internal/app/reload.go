package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"fxcalbot/internal/config"
	kit "fxcalbot/internal/transport"
	logx "fxcalbot/pkg/logx"
)

// startReload fans committed config changes out to the live components.
func (a *App) startReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, last, newCfg)
				last = newCfg
			}
		}
	})
}

func (a *App) applyConfig(ctx context.Context, prev, cfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	res, err := cfg.Resolve()
	if err != nil {
		a.log.Warn("config reload not applied", logx.Err(err))
		return
	}

	for _, note := range restartRequired(prev, cfg) {
		a.log.Warn("config change needs a restart to take effect", logx.String("field", note))
	}

	a.logs.Apply(mapLogConfig(cfg))
	a.adminID.Store(cfg.Telegram.AdminID)
	a.router.SetAdmin(cfg.Telegram.AdminID)

	a.source.Configure(mapSourceOptions(cfg, res))
	a.delivery.Apply(kit.ParseChatTarget(cfg.Telegram.ChannelID), mapDeliveryConfig(cfg, res))
	a.notif.Apply(mapNotifierOptions(cfg, res))

	a.sched.SetLocation(res.Location)
	if slices.Contains(sections, "alerts") {
		if err := a.registerJobs(cfg, res); err != nil {
			a.log.Warn("schedule update failed; keeping previous jobs", logx.Err(err))
		}
	}

	sctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	a.status.Reconfigure(sctx, mapStatusConfig(cfg))
	cancel()

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}

// restartRequired lists changed fields that are only read at startup.
func restartRequired(prev, cfg *config.Config) []string {
	var out []string
	if prev.Telegram.Token != cfg.Telegram.Token {
		out = append(out, "telegram.token")
	}
	if prev.Telegram.PollTimeout != cfg.Telegram.PollTimeout {
		out = append(out, "telegram.poll_timeout")
	}
	if prev.Feed.URL != cfg.Feed.URL {
		out = append(out, "feed.url")
	}
	if prev.Feed.UserAgent != cfg.Feed.UserAgent {
		out = append(out, "feed.user_agent")
	}
	if prev.Feed.Timeout != cfg.Feed.Timeout {
		out = append(out, "feed.timeout")
	}
	if prev.Storage != cfg.Storage {
		out = append(out, "storage")
	}
	return out
}
