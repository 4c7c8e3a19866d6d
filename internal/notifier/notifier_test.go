package notifier

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"fxcalbot/internal/calendar"
	"fxcalbot/internal/storage"
	logx "fxcalbot/pkg/logx"
	"fxcalbot/pkg/tgui"
)

var utc5 = time.FixedZone("UZT", 5*3600)

type fakeSource struct {
	events []calendar.Event
	err    error
}

func (f *fakeSource) Upcoming(_ context.Context, now time.Time, horizon time.Duration) ([]calendar.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return calendar.Upcoming(f.events, now, horizon), nil
}

func (f *fakeSource) Week(_ context.Context, _ time.Time) ([]calendar.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := slices.Clone(f.events)
	calendar.SortByTime(out)
	return out, nil
}

func (f *fakeSource) Location() *time.Location { return utc5 }

type fakeOut struct {
	mu   sync.Mutex
	msgs []string
	fail error
}

func (f *fakeOut) Deliver(_ context.Context, m tgui.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.msgs = append(f.msgs, m.Text.String())
	return nil
}

func (f *fakeOut) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

// failingStore accepts reads but rejects every write.
type failingStore struct{ storage.Store }

func (failingStore) MarkSent(_ context.Context, key string) error {
	return &storage.PersistenceError{Driver: "test", Op: "write", Key: key, Err: errors.New("disk full")}
}

func openStore(t *testing.T, path string) storage.Store {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func event(id string, at time.Time) calendar.Event {
	return calendar.Event{ID: id, OccursAt: at, Currency: "USD", Impact: calendar.ImpactHigh, Title: "CPI m/m"}
}

func defaultOptions() Options {
	return Options{Thresholds: []int{60, 30, 15, 5, 1}, Horizon: 2 * time.Hour}
}

func TestCheckFiresEachThresholdOnce(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)
	at := start.Add(59 * time.Minute)
	src := &fakeSource{events: []calendar.Event{event("ev1", at)}}
	st := openStore(t, filepath.Join(t.TempDir(), "sent.json"))
	out := &fakeOut{}
	n := New(src, st, out, defaultOptions(), logx.Nop())
	ctx := context.Background()

	res, err := n.Check(ctx, start)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Sent != 1 || !st.IsSent("ev1_t60") || st.IsSent("ev1_t30") {
		t.Fatalf("first tick: res=%+v keys=%v", res, st.Keys())
	}
	if !strings.HasPrefix(out.msgs[0], "⚠️ *Event in 60 minutes*") {
		t.Fatalf("msg=%q", out.msgs[0])
	}

	// Another tick inside the same window: nothing new.
	if res, _ := n.Check(ctx, start.Add(-10*time.Second)); res.Sent != 0 || res.AlreadySent != 1 {
		t.Fatalf("repeat tick: %+v", res)
	}

	res, err = n.Check(ctx, at.Add(-29*time.Minute))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Sent != 1 || !st.IsSent("ev1_t30") {
		t.Fatalf("second tick: res=%+v keys=%v", res, st.Keys())
	}
	if out.count() != 2 {
		t.Fatalf("deliveries=%d", out.count())
	}
	if !strings.HasPrefix(out.msgs[1], "⚠️ *Event in 30 minutes*") {
		t.Fatalf("msg=%q", out.msgs[1])
	}
}

func TestCheckStartedIndependentOfThresholds(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{events: []calendar.Event{
		event("soon", now.Add(30*time.Second)),
		event("now", now),
		event("past", now.Add(-10*time.Second)),
	}}
	st := openStore(t, filepath.Join(t.TempDir(), "sent.json"))
	out := &fakeOut{}
	n := New(src, st, out, Options{Thresholds: []int{60}, Horizon: 2 * time.Hour}, logx.Nop())

	if _, err := n.Check(context.Background(), now); err != nil {
		t.Fatalf("Check: %v", err)
	}
	want := []string{"now_started", "soon_started"}
	if got := st.Keys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("keys=%v want %v", got, want)
	}
	for _, m := range out.msgs {
		if !strings.HasPrefix(m, "🚨 *Event Starting Now*") {
			t.Fatalf("msg=%q", m)
		}
	}
}

func TestCheckOneMinuteThresholdAndStartedAreSeparate(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)
	// 0.5 min away: inside [0,1] for t=1 and inside [0,1) for started.
	src := &fakeSource{events: []calendar.Event{event("ev", now.Add(30*time.Second))}}
	st := openStore(t, filepath.Join(t.TempDir(), "sent.json"))
	n := New(src, st, &fakeOut{}, defaultOptions(), logx.Nop())

	res, err := n.Check(context.Background(), now)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Sent != 2 || !st.IsSent("ev_t1") || !st.IsSent("ev_started") {
		t.Fatalf("res=%+v keys=%v", res, st.Keys())
	}
}

func TestCheckDedupSurvivesRestart(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sent.json")
	now := time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{events: []calendar.Event{event("ev", now.Add(15*time.Minute))}}
	ctx := context.Background()

	first, err := storage.Open(ctx, storage.Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	out := &fakeOut{}
	if _, err := New(src, first, out, defaultOptions(), logx.Nop()).Check(ctx, now); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := openStore(t, path)
	res, err := New(src, second, out, defaultOptions(), logx.Nop()).Check(ctx, now.Add(20*time.Second))
	if err != nil {
		t.Fatalf("Check after restart: %v", err)
	}
	if res.Sent != 0 || out.count() != 1 {
		t.Fatalf("resent after restart: res=%+v deliveries=%d", res, out.count())
	}
}

func TestCheckDeliveryFailureLeavesKeyPending(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{events: []calendar.Event{event("ev", now.Add(5*time.Minute))}}
	st := openStore(t, filepath.Join(t.TempDir(), "sent.json"))
	out := &fakeOut{fail: &DeliveryError{Target: "@fx", Attempts: 1, Err: errors.New("timeout")}}
	n := New(src, st, out, defaultOptions(), logx.Nop())

	res, err := n.Check(context.Background(), now)
	if err != nil {
		t.Fatalf("delivery failure must not abort the cycle: %v", err)
	}
	if res.Failed != 1 || st.IsSent("ev_t5") {
		t.Fatalf("res=%+v keys=%v", res, st.Keys())
	}

	out.fail = nil
	res, _ = n.Check(context.Background(), now.Add(30*time.Second))
	if res.Sent != 1 || !st.IsSent("ev_t5") {
		t.Fatalf("retry: res=%+v keys=%v", res, st.Keys())
	}
}

func TestCheckPersistenceErrorAborts(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{events: []calendar.Event{
		event("a", now.Add(60*time.Minute)),
		event("b", now.Add(30*time.Minute)),
	}}
	base := openStore(t, filepath.Join(t.TempDir(), "sent.json"))
	out := &fakeOut{}
	n := New(src, failingStore{base}, out, defaultOptions(), logx.Nop())

	res, err := n.Check(context.Background(), now)
	var pe *storage.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("want PersistenceError, got %v", err)
	}
	if out.count() != 1 || res.Sent != 1 {
		t.Fatalf("cycle should stop after the first failed write: res=%+v deliveries=%d", res, out.count())
	}
	if n.Last().Err == "" {
		t.Fatalf("last result should carry the error")
	}
}

func TestCheckFetchErrorYieldsEmptyCycle(t *testing.T) {
	t.Parallel()
	fetchErr := &calendar.FetchError{URL: "http://feed", Status: 502}
	st := openStore(t, filepath.Join(t.TempDir(), "sent.json"))
	out := &fakeOut{}
	n := New(&fakeSource{err: fetchErr}, st, out, defaultOptions(), logx.Nop())

	res, err := n.Check(context.Background(), time.Now())
	if !errors.Is(err, fetchErr) {
		t.Fatalf("err=%v", err)
	}
	if res.Events != 0 || out.count() != 0 {
		t.Fatalf("res=%+v", res)
	}
}

func TestKeyStrings(t *testing.T) {
	t.Parallel()
	if got := ThresholdKey("Jan 08_06:30PM_USD_CPI m/m", 15).String(); got != "Jan 08_06:30PM_USD_CPI m/m_t15" {
		t.Fatalf("got %q", got)
	}
	if got := StartedKey("x").String(); got != "x_started" {
		t.Fatalf("got %q", got)
	}
	// 2024-12-30 is ISO week 1 of 2025.
	if got := WeeklySlotKey(time.Date(2024, 12, 30, 7, 0, 0, 0, utc5)); got != "weekly_2025-W01" {
		t.Fatalf("got %q", got)
	}
}

func TestThresholdWindowBounds(t *testing.T) {
	t.Parallel()
	cases := []struct {
		m    float64
		n    int
		want bool
	}{
		{60, 60, true},
		{59, 60, true},
		{58.99, 60, false},
		{60.01, 60, false},
		{0, 1, true},
	}
	for _, tc := range cases {
		if got := inThresholdWindow(tc.m, tc.n); got != tc.want {
			t.Fatalf("inThresholdWindow(%v,%d)=%v", tc.m, tc.n, got)
		}
	}
	if !inStartedWindow(0) || inStartedWindow(1) || inStartedWindow(-0.01) {
		t.Fatalf("started window bounds")
	}
}
