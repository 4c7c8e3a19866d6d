package app

import (
	"context"
	"strconv"
	"time"

	"fxcalbot/internal/calendar"
	"fxcalbot/internal/notifier"
	rtsup "fxcalbot/internal/runtime/supervisor"
	"fxcalbot/internal/task/scheduler"
	"fxcalbot/internal/transport/telegram/router"
	"fxcalbot/pkg/tgui"
)

// Report is the runtime summary behind /status and GET /status.
type Report struct {
	StartedAt   time.Time                 `json:"started_at"`
	Uptime      string                    `json:"uptime"`
	Timezone    string                    `json:"timezone"`
	Channel     string                    `json:"channel"`
	SentKeys    int                       `json:"sent_keys"`
	LastCheck   notifier.CheckResult      `json:"last_check"`
	Weekly      notifier.WeeklyRun        `json:"weekly"`
	NextWeekly  time.Time                 `json:"next_weekly,omitzero"`
	Delivery    notifier.DeliveryStats    `json:"delivery"`
	Feed        calendar.SourceStats      `json:"feed"`
	Scheduler   scheduler.Snapshot        `json:"scheduler"`
	Router      router.Stats              `json:"router"`
	Supervisors map[string]rtsup.Snapshot `json:"supervisors,omitempty"`
	LogDrops    uint64                    `json:"log_drops"`
}

const (
	jobCheck  = "alerts.check"
	jobWeekly = "weekly.post"
)

func (a *App) report() Report {
	now := a.now()
	r := Report{
		StartedAt: a.startedAt,
		Uptime:    now.Sub(a.startedAt).Round(time.Second).String(),
		Timezone:  a.source.Location().String(),
		Channel:   a.delivery.Target().String(),
		SentKeys:  a.store.Len(),
		LastCheck: a.notif.Last(),
		Weekly:    a.weekly.Last(),
		Delivery:  a.delivery.Stats(5),
		Feed:      a.source.Stats(),
		Scheduler: a.sched.Snapshot(),
		Router:    a.router.Stats(),
		LogDrops:  a.logs.Dropped(),
	}
	for _, s := range r.Scheduler.Schedules {
		if s.Name == jobWeekly {
			r.NextWeekly = s.Next
		}
	}
	sups := map[string]*rtsup.Supervisor{
		"app":              a.sup,
		"telegram.adapter": a.adapter.Supervisor(),
		"telegram.router":  a.router.Supervisor(),
		"status":           a.status.Supervisor(),
	}
	for name, s := range sups {
		if s == nil {
			continue
		}
		if r.Supervisors == nil {
			r.Supervisors = map[string]rtsup.Snapshot{}
		}
		r.Supervisors[name] = s.Snapshot()
	}
	return r
}

// statusMessage renders r for the /status command.
func statusMessage(r Report, loc *time.Location) tgui.Message {
	const layout = "Mon Jan 02 15:04"
	when := func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.In(loc).Format(layout)
	}

	b := tgui.New().Title("📊", "Status").Blank().
		KV("Uptime", r.Uptime).
		KV("Timezone", r.Timezone).
		KV("Channel", r.Channel).
		KV("Sent keys", strconv.Itoa(r.SentKeys))

	check := "never"
	if !r.LastCheck.At.IsZero() {
		check = when(r.LastCheck.At) + ", " + strconv.Itoa(r.LastCheck.Events) + " events, " +
			strconv.Itoa(r.LastCheck.Sent) + " sent, " + strconv.Itoa(r.LastCheck.Failed) + " failed"
		if r.LastCheck.Err != "" {
			check += ", error: " + r.LastCheck.Err
		}
	}
	b.KV("Last check", check)
	b.KV("Next weekly", when(r.NextWeekly))
	if r.Weekly.Slot != "" {
		b.KV("Last weekly", r.Weekly.Slot+" posted="+strconv.FormatBool(r.Weekly.Posted))
	}
	b.KV("Feed", when(r.Feed.FetchedAt)+", "+strconv.Itoa(r.Feed.Events)+" events")
	if r.Feed.LastError != "" {
		b.KV("Feed error", r.Feed.LastError)
	}
	b.KV("Deliveries", strconv.FormatUint(r.Delivery.Sent, 10)+" sent, "+strconv.FormatUint(r.Delivery.Failed, 10)+" failed")
	return b.Build()
}

// statusReporter adapts App to the HTTP status server.
type statusReporter struct{ a *App }

func (s statusReporter) Report(context.Context) any { return s.a.report() }

func (s statusReporter) Upcoming(ctx context.Context, hours int) ([]calendar.Event, error) {
	return s.a.source.Upcoming(ctx, s.a.now(), time.Duration(hours)*time.Hour)
}
