package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "fxcalbot/pkg/logx"
)

const defaultHistorySize = 50

func New(loc *time.Location, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		log: log,
		loc: loc,
		parser:      cronParser,
		defs:        map[string]*jobDef{},
		slot:        make(chan struct{}, 1),
		historySize: defaultHistorySize,
	}
}

// Location returns the timezone cron specs are evaluated in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// SetLocation switches the evaluation timezone. A running cron is restarted
// with every job re-registered.
func (s *Service) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc.String() == loc.String() {
		return
	}
	s.loc = loc
	if s.c != nil {
		s.restartLocked()
	}
}

// AddSchedule parses schedule and registers it under name, replacing any
// previous job with the same name.
//
// Supported schedule formats:
//   - Cron: "0 7 * * 1", "*/5 * * * *", "@hourly", "@every 1m"
//   - Interval duration: "1m", "2h30m"
//   - Interval HH:MM: "00:05" (5 minutes)
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job Job) error {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	switch ps.Kind {
	case SpecCron:
		return s.AddCron(name, ps.Cron, timeout, job)
	case SpecInterval:
		return s.AddInterval(name, ps.Every, timeout, job)
	default:
		return fmt.Errorf("unsupported schedule kind")
	}
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return s.add(name, spec, sched, timeout, job)
}

func (s *Service) AddInterval(name string, every time.Duration, timeout time.Duration, job Job) error {
	if every <= 0 {
		return fmt.Errorf("schedule %s: interval must be > 0", name)
	}
	return s.add(name, "@every "+every.String(), cron.Every(every), timeout, job)
}

func (s *Service) add(name, spec string, sched cron.Schedule, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	d := &jobDef{name: name, spec: spec, timeout: timeout, run: job, sched: sched}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.defs[name] = d
	if s.c != nil {
		s.registerLocked(d)
	}
	args := []logx.Field{logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", timeout)}
	if next := s.previewNextRunsLocked(sched, 3); next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Debug("schedule registered", args...)
	return nil
}

// Remove unschedules name. It reports whether something was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.removeLocked(strings.TrimSpace(name))
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

func (s *Service) removeLocked(name string) bool {
	d, ok := s.defs[name]
	if !ok {
		return false
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	delete(s.defs, name)
	return true
}

// Start begins triggering. Jobs derive their context from ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx = ctx
	s.c = s.newCronLocked()
	for _, d := range s.defs {
		s.registerLocked(d)
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop halts triggering and waits for in-flight runs or ctx, whichever ends first.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; jobs still running", logx.Err(ctx.Err()))
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

// RunNow executes name synchronously under ctx. It returns ErrSkipped when a
// run of the same job is already in flight.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	d := s.defs[name]
	s.mu.Unlock()
	if d == nil {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, d)
}

func (s *Service) newCronLocked() *cron.Cron {
	cl := cronLogger{log: s.log}
	return cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
}

func (s *Service) registerLocked(d *jobDef) {
	base := s.ctx
	if base == nil {
		base = context.Background()
	}
	d.entryID = s.c.Schedule(d.sched, cron.FuncJob(func() {
		if err := s.execute(base, d); err != nil && !errors.Is(err, ErrSkipped) {
			s.log.Warn("scheduled job failed", logx.String("name", d.name), logx.Err(err))
		}
	}))
}

func (s *Service) restartLocked() {
	<-s.c.Stop().Done()
	s.c = s.newCronLocked()
	for _, d := range s.defs {
		s.registerLocked(d)
	}
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) execute(ctx context.Context, d *jobDef) error {
	if !d.running.CompareAndSwap(false, true) {
		d.skipped.Add(1)
		s.log.Debug("schedule trigger skipped, previous run in flight", logx.String("name", d.name))
		return ErrSkipped
	}
	defer d.running.Store(false)

	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	var err error
	select {
	case s.slot <- struct{}{}:
		err = func() error {
			defer func() { <-s.slot }()
			return d.run(runCtx)
		}()
	case <-runCtx.Done():
		err = fmt.Errorf("waiting for running job: %w", runCtx.Err())
	}
	dur := time.Since(start)

	d.runs.Add(1)
	item := HistoryItem{Name: d.name, Started: start, Duration: dur}
	d.mu.Lock()
	d.lastAt, d.lastDur, d.lastErr = start, dur, ""
	if err != nil {
		d.failures.Add(1)
		d.lastErr = err.Error()
		item.Err = err.Error()
	}
	d.mu.Unlock()
	s.record(item)
	return err
}

func (s *Service) record(it HistoryItem) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, it)
	if over := len(s.history) - s.historySize; over > 0 {
		s.history = s.history[over:]
	}
}

// Snapshot reports registered jobs ordered by name and the most recent runs.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	loc := s.loc
	running := s.c != nil
	defs := make([]*jobDef, 0, len(s.defs))
	for _, d := range s.defs {
		defs = append(defs, d)
	}
	s.mu.Unlock()

	sort.Slice(defs, func(i, j int) bool { return defs[i].name < defs[j].name })
	now := time.Now().In(loc)
	snap := Snapshot{Running: running, Timezone: loc.String(), Schedules: make([]ScheduleInfo, 0, len(defs))}
	for _, d := range defs {
		d.mu.Lock()
		snap.Schedules = append(snap.Schedules, ScheduleInfo{
			Name:     d.name,
			Spec:     d.spec,
			Timeout:  d.timeout,
			Next:     d.sched.Next(now),
			Running:  d.running.Load(),
			Runs:     d.runs.Load(),
			Skipped:  d.skipped.Load(),
			Failures: d.failures.Load(),
			LastAt:   d.lastAt,
			LastDur:  d.lastDur,
			LastErr:  d.lastErr,
		})
		d.mu.Unlock()
	}
	s.hmu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return snap
}

// previewNextRunsLocked lists the next n trigger times for debug logs.
func (s *Service) previewNextRunsLocked(sched cron.Schedule, n int) string {
	if !s.log.Enabled(logx.LevelDebug) {
		return ""
	}
	t := time.Now().In(s.loc)
	parts := make([]string, 0, n)
	for range n {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		parts = append(parts, t.Format("2006-01-02 15:04:05"))
	}
	return strings.Join(parts, ", ")
}

// cronLogger routes robfig/cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
