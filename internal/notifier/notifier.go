package notifier

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"fxcalbot/internal/calendar"
	"fxcalbot/internal/render"
	"fxcalbot/internal/storage"
	logx "fxcalbot/pkg/logx"
	"fxcalbot/pkg/tgui"
)

// EventSource yields the filtered events inside a horizon. *calendar.Source implements it.
type EventSource interface {
	Upcoming(ctx context.Context, now time.Time, horizon time.Duration) ([]calendar.Event, error)
	Location() *time.Location
}

type Options struct {
	// Thresholds are minutes before an event, evaluated in order.
	Thresholds []int
	// Horizon bounds the events considered per cycle. It must cover the largest threshold.
	Horizon time.Duration
}

// CheckResult summarizes one cycle.
type CheckResult struct {
	RunID       string    `json:"run_id"`
	At          time.Time `json:"at"`
	Events      int       `json:"events"`
	Sent        int       `json:"sent"`
	AlreadySent int       `json:"already_sent"`
	Failed      int       `json:"failed"`
	Err         string    `json:"error,omitempty"`
}

// Notifier evaluates threshold alerts against the state store.
type Notifier struct {
	source EventSource
	store  storage.Store
	out    Deliverer
	log    logx.Logger

	// run serializes cycles so two checks never race on the same key.
	run sync.Mutex

	mu   sync.Mutex
	opts Options
	last CheckResult
}

func New(source EventSource, store storage.Store, out Deliverer, opts Options, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	n := &Notifier{source: source, store: store, out: out, log: log}
	n.Apply(opts)
	return n
}

// Apply swaps thresholds and horizon at runtime.
func (n *Notifier) Apply(opts Options) {
	opts.Thresholds = slices.Clone(opts.Thresholds)
	if opts.Horizon <= 0 {
		opts.Horizon = 2 * time.Hour
	}
	n.mu.Lock()
	n.opts = opts
	n.mu.Unlock()
}

// Last returns the result of the most recent cycle.
func (n *Notifier) Last() CheckResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}

// Check runs one notification cycle at now.
//
// A fetch failure is returned with an empty result. A delivery failure is
// logged and counted; its key stays pending. A store failure aborts the cycle
// and is returned.
func (n *Notifier) Check(ctx context.Context, now time.Time) (res CheckResult, err error) {
	n.run.Lock()
	defer n.run.Unlock()

	n.mu.Lock()
	opts := n.opts
	n.mu.Unlock()

	res = CheckResult{RunID: uuid.NewString(), At: now}
	log := n.log.With(logx.String("run_id", res.RunID))
	defer func() {
		if err != nil {
			res.Err = err.Error()
		}
		n.mu.Lock()
		n.last = res
		n.mu.Unlock()
	}()

	events, err := n.source.Upcoming(ctx, now, opts.Horizon)
	if err != nil {
		log.Warn("upcoming events unavailable", logx.Err(err))
		return res, err
	}
	res.Events = len(events)
	loc := n.source.Location()

	for _, ev := range events {
		minutes := ev.MinutesUntil(now)
		for _, t := range opts.Thresholds {
			if !inThresholdWindow(minutes, t) {
				continue
			}
			if err := n.fire(ctx, log, ThresholdKey(ev.ID, t), render.Threshold(ev, t, loc), &res); err != nil {
				return res, err
			}
		}
		if inStartedWindow(minutes) {
			if err := n.fire(ctx, log, StartedKey(ev.ID), render.Started(ev, loc), &res); err != nil {
				return res, err
			}
		}
	}

	if res.Sent > 0 || res.Failed > 0 {
		log.Info("notification cycle done",
			logx.Int("events", res.Events),
			logx.Int("sent", res.Sent),
			logx.Int("failed", res.Failed),
		)
	} else {
		log.Debug("notification cycle done", logx.Int("events", res.Events))
	}
	return res, nil
}

// fire delivers one alert unless its key is already recorded, then records it.
func (n *Notifier) fire(ctx context.Context, log logx.Logger, key Key, msg tgui.Message, res *CheckResult) error {
	k := key.String()
	if n.store.IsSent(k) {
		res.AlreadySent++
		return nil
	}
	if err := n.out.Deliver(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res.Failed++
		log.Warn("alert not delivered, will retry next cycle", logx.String("key", k), logx.Err(err))
		return nil
	}
	res.Sent++
	if err := n.store.MarkSent(ctx, k); err != nil {
		log.Error("alert delivered but not recorded", logx.String("key", k), logx.Err(err))
		return err
	}
	log.Debug("alert sent", logx.String("key", k))
	return nil
}
