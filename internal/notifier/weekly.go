package notifier

import (
	"context"
	"sync"
	"time"

	"fxcalbot/internal/calendar"
	"fxcalbot/internal/render"
	"fxcalbot/internal/storage"
	logx "fxcalbot/pkg/logx"
)

// WeekSource yields every filtered event of the current feed snapshot.
type WeekSource interface {
	Week(ctx context.Context, now time.Time) ([]calendar.Event, error)
	Location() *time.Location
}

// WeeklyRun records the outcome of the last broadcast attempt.
type WeeklyRun struct {
	Slot   string    `json:"slot"`
	At     time.Time `json:"at"`
	Events int       `json:"events"`
	Posted bool      `json:"posted"`
	Err    string    `json:"error,omitempty"`
}

// Weekly posts the week's schedule at most once per ISO week.
type Weekly struct {
	source WeekSource
	store  storage.Store
	out    Deliverer
	log    logx.Logger

	mu   sync.Mutex
	last WeeklyRun
}

func NewWeekly(source WeekSource, store storage.Store, out Deliverer, log logx.Logger) *Weekly {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Weekly{source: source, store: store, out: out, log: log}
}

func (w *Weekly) Last() WeeklyRun {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Post sends the weekly schedule for the slot containing now. It reports false
// when the slot was already posted or there is nothing to post.
func (w *Weekly) Post(ctx context.Context, now time.Time) (posted bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	loc := w.source.Location()
	slot := WeeklySlotKey(now.In(loc))
	run := WeeklyRun{Slot: slot, At: now}
	defer func() {
		run.Posted = posted
		if err != nil {
			run.Err = err.Error()
		}
		w.last = run
	}()

	if w.store.IsSent(slot) {
		w.log.Info("weekly schedule already posted", logx.String("slot", slot))
		return false, nil
	}
	events, err := w.source.Week(ctx, now)
	if err != nil {
		return false, err
	}
	run.Events = len(events)
	if len(events) == 0 {
		w.log.Info("weekly schedule skipped, no events", logx.String("slot", slot))
		return false, nil
	}
	if err := w.out.Deliver(ctx, render.Weekly(events, loc)); err != nil {
		return false, err
	}
	if err := w.store.MarkSent(ctx, slot); err != nil {
		return true, err
	}
	w.log.Info("weekly schedule posted", logx.String("slot", slot), logx.Int("events", len(events)))
	return true, nil
}

// CatchUpWindow is how long after a scheduled weekly run a startup still posts it.
const CatchUpWindow = time.Hour

// Schedule yields the next activation after a given time. cron.Schedule implements it.
type Schedule interface {
	Next(time.Time) time.Time
}

// InCatchUpWindow reports whether sched, evaluated in loc, fired within
// CatchUpWindow before now (inclusive of now).
func InCatchUpWindow(now time.Time, loc *time.Location, sched Schedule) bool {
	if sched == nil {
		return false
	}
	if loc != nil {
		now = now.In(loc)
	}
	fire := sched.Next(now.Add(-CatchUpWindow))
	return !fire.IsZero() && !fire.After(now)
}
