// Package app wires configuration, transport, storage and the alert jobs into
// one running bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"fxcalbot/internal/calendar"
	"fxcalbot/internal/config"
	"fxcalbot/internal/notifier"
	"fxcalbot/internal/observability/status"
	"fxcalbot/internal/render"
	rtsup "fxcalbot/internal/runtime/supervisor"
	"fxcalbot/internal/storage"
	"fxcalbot/internal/task/scheduler"
	kit "fxcalbot/internal/transport"
	telegram "fxcalbot/internal/transport/telegram/adapter"
	"fxcalbot/internal/transport/telegram/router"
	logx "fxcalbot/pkg/logx"
	"fxcalbot/pkg/tgui"
)

// Options are the process-level inputs.
type Options struct {
	ConfigPath string
	// EnvFiles are loaded into the environment before the config is read.
	EnvFiles []string
}

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter  *telegram.Adapter
	store    storage.Store
	source   *calendar.Source
	delivery *notifier.Delivery
	notif    *notifier.Notifier
	weekly   *notifier.Weekly
	sched    *scheduler.Service
	router   *router.Router
	status   *status.Service

	adminID   atomic.Int64
	updates   chan kit.Update
	startedAt time.Time
	now       func() time.Time
}

func NewApp(ctx context.Context, opts Options) (*App, error) {
	if err := config.LoadDotEnv(opts.EnvFiles...); err != nil {
		return nil, err
	}
	cfgm := config.NewConfigManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	res, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		updates: make(chan kit.Update, 256),
		now:     time.Now,
	}
	a.adminID.Store(cfg.Telegram.AdminID)

	// The Telegram log sink is wired after the adapter exists.
	logSvc, log := logx.New(mapLogConfig(cfg), nil)
	a.logs = logSvc
	a.log = log.With(logx.String("comp", "app"))
	if cfgm.HasFile() {
		a.log.Info("config loaded", logx.String("path", cfgm.Path()))
	} else {
		a.log.Info("no config file; using environment", logx.String("path", cfgm.Path()))
	}

	a.adapter, err = telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: res.PollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	logSvc.SetSender(func(ctx context.Context, text string) error {
		to := kit.ChatTarget{ChatID: a.adminID.Load()}
		_, err := a.adapter.SendText(ctx, to, text, nil)
		return err
	})

	sc := mapStorageConfig(cfg, res)
	a.store, err = storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	a.log.Info("storage opened", logx.String("driver", sc.Driver), logx.Int("keys", a.store.Len()))

	feed := calendar.NewFeedClient(cfg.Feed.URL, cfg.Feed.UserAgent, res.FeedTimeout)
	a.source = calendar.NewSource(feed, mapSourceOptions(cfg, res), log.With(logx.String("comp", "calendar")))

	a.delivery = notifier.NewDelivery(a.adapter, kit.ParseChatTarget(cfg.Telegram.ChannelID),
		mapDeliveryConfig(cfg, res), log.With(logx.String("comp", "delivery")))
	a.notif = notifier.New(a.source, a.store, a.delivery, mapNotifierOptions(cfg, res),
		log.With(logx.String("comp", "notifier")))
	a.weekly = notifier.NewWeekly(a.source, a.store, a.delivery, log.With(logx.String("comp", "weekly")))

	a.sched = scheduler.New(res.Location, log.With(logx.String("comp", "scheduler")))

	a.router = router.New(log.With(logx.String("comp", "commands")), a.adapter, router.Options{
		AdminID: cfg.Telegram.AdminID,
		Denied:  render.NoPermission,
	})
	h := &handlers{
		source: a.source,
		thresholds: func() []int {
			return a.cfgm.Get().Alerts.Thresholds
		},
		weekly: func() string {
			return scheduler.Describe(a.cfgm.Get().Alerts.WeeklyCron)
		},
		status: func(context.Context) tgui.Message {
			return statusMessage(a.report(), a.source.Location())
		},
		now: a.now,
	}
	a.router.SetCommands(h.commands())

	a.status = status.New(mapStatusConfig(cfg), statusReporter{a}, log.With(logx.String("comp", "status")))
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.startedAt = a.now()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	cfg := a.cfgm.Get()
	res, err := cfg.Resolve()
	if err != nil {
		return err
	}
	if err := a.registerJobs(cfg, res); err != nil {
		return err
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("commands.menu", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 15*time.Second)
		defer cancel()
		if err := a.router.UpdateMenu(mctx); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
	})

	a.sched.Start(a.sup.Context())
	if a.status.Enabled() {
		a.status.Start(a.sup.Context())
	}

	weeklySpec := ""
	if cfg.Alerts.WeeklyOnStartupEnabled() {
		weeklySpec = cfg.Alerts.WeeklyCron
	}
	a.sup.Go0("startup.catchup", func(c context.Context) {
		a.catchUp(c, weeklySpec, res.Location)
	})

	a.startReload()
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go0("systemd.watchdog", func(c context.Context) { sdWatchdog(c, a.log) })

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.String("channel", a.delivery.Target().String()),
		logx.String("tz", res.Location.String()),
		logx.Strs("currencies", cfg.Feed.Currencies),
	)
	return nil
}

// registerJobs (re)registers the scheduled jobs. Registration is an upsert by name.
func (a *App) registerJobs(cfg *config.Config, res config.Resolved) error {
	// A check never outlives its own interval.
	if err := a.sched.AddInterval(jobCheck, res.CheckEvery, res.CheckEvery, a.runCheck); err != nil {
		return err
	}
	return a.sched.AddSchedule(jobWeekly, "cron:"+cfg.Alerts.WeeklyCron, 5*time.Minute, a.runWeekly)
}

func (a *App) runCheck(ctx context.Context) error {
	_, err := a.notif.Check(ctx, a.now())
	var pe *storage.PersistenceError
	if errors.As(err, &pe) {
		a.log.Error("notification state not persisted; cycle aborted", logx.Err(err))
	}
	return err
}

func (a *App) runWeekly(ctx context.Context) error {
	_, err := a.weekly.Post(ctx, a.now())
	return err
}

// catchUp runs the first check immediately and, within an hour after a
// weeklySpec activation, the weekly post. An empty weeklySpec disables the
// weekly part. The slot key keeps a restart inside the hour from reposting.
func (a *App) catchUp(ctx context.Context, weeklySpec string, loc *time.Location) {
	if err := a.sched.RunNow(ctx, jobCheck); err != nil && !errors.Is(err, scheduler.ErrSkipped) {
		a.log.Warn("startup check failed", logx.Err(err))
	}
	if weeklySpec == "" {
		return
	}
	sched, err := scheduler.ParseCron(weeklySpec)
	if err != nil {
		a.log.Warn("weekly catch-up skipped", logx.Err(err))
		return
	}
	if !notifier.InCatchUpWindow(a.now(), loc, sched) {
		return
	}
	a.log.Info("inside weekly slot at startup; posting schedule")
	if err := a.sched.RunNow(ctx, jobWeekly); err != nil && !errors.Is(err, scheduler.ErrSkipped) {
		a.log.Warn("startup weekly post failed", logx.Err(err))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel first so loops start unwinding immediately.
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		// respect the caller's deadline; never extend it
		if dl, ok := ctx.Deadline(); !ok || time.Until(dl) > max {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("status", time.Second, func(c context.Context) error { a.status.Stop(c); return nil })
	step("scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	// Storage closes last: a check finishing during shutdown may still record keys.
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}
