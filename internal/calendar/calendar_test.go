package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

var gmt5 = time.FixedZone("GMT+5", 5*3600)

func rawRecords(t *testing.T, recs ...any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(recs))
	for _, r := range recs {
		b, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		out = append(out, b)
	}
	return out
}

func TestNormalizeRecordBuildsStableID(t *testing.T) {
	t.Parallel()
	r := RawRecord{Title: "CPI m/m", Country: "usd", Date: "2024-01-08T08:30:00-05:00", Impact: "High", Forecast: "0.2%"}
	ev, err := NormalizeRecord(r, gmt5)
	if err != nil {
		t.Fatalf("NormalizeRecord: %v", err)
	}
	if ev.ID != "Jan 08_06:30PM_USD_CPI m/m" {
		t.Fatalf("id=%q", ev.ID)
	}
	if ev.OccursAt.Location() != gmt5 || ev.OccursAt.Hour() != 18 {
		t.Fatalf("occursAt=%v", ev.OccursAt)
	}
	if ev.Impact != ImpactHigh || ev.Currency != "USD" {
		t.Fatalf("event=%+v", ev)
	}

	again, _ := NormalizeRecord(r, gmt5)
	if again.ID != ev.ID {
		t.Fatalf("id not stable: %q vs %q", again.ID, ev.ID)
	}
	r.Title = "CPI m/m (revised)"
	edited, _ := NormalizeRecord(r, gmt5)
	if edited.ID == ev.ID {
		t.Fatalf("title edit should change id")
	}
}

func TestParseImpact(t *testing.T) {
	t.Parallel()
	cases := map[string]Impact{
		"High":         ImpactHigh,
		" medium ":     ImpactMedium,
		"Low":          ImpactLow,
		"Holiday":      ImpactHoliday,
		"Non-Economic": ImpactLow,
		"":             ImpactLow,
	}
	for in, want := range cases {
		if got := ParseImpact(in); got != want {
			t.Fatalf("ParseImpact(%q)=%v want %v", in, got, want)
		}
	}
	if !(ImpactHoliday < ImpactLow && ImpactLow < ImpactMedium && ImpactMedium < ImpactHigh) {
		t.Fatalf("impact order broken")
	}
}

func TestNormalizeSkipsMalformedRecord(t *testing.T) {
	t.Parallel()
	recs := make([]any, 0, 10)
	for i := 0; i < 10; i++ {
		title := fmt.Sprintf("Event %d", i)
		if i == 4 {
			title = ""
		}
		recs = append(recs, RawRecord{
			Title:   title,
			Country: "USD",
			Date:    fmt.Sprintf("2024-01-08T%02d:00:00+00:00", i),
			Impact:  "Low",
		})
	}
	events, errs := Normalize(rawRecords(t, recs...), gmt5)
	if len(events) != 9 || len(errs) != 1 {
		t.Fatalf("events=%d errs=%d", len(events), len(errs))
	}
	var pe *ParseError
	if !errors.As(errs[0], &pe) || pe.Index != 4 || !errors.Is(pe, errNoTitle) {
		t.Fatalf("unexpected error: %#v", errs[0])
	}
	if events[4].Title != "Event 5" {
		t.Fatalf("order not preserved: %q", events[4].Title)
	}
}

func TestNormalizeSkipsUndecodableAndBadDate(t *testing.T) {
	t.Parallel()
	recs := []json.RawMessage{
		json.RawMessage(`{"title":"ok","country":"EUR","date":"2024-01-08T10:00:00+01:00","impact":"Medium"}`),
		json.RawMessage(`{"title":42}`),
		json.RawMessage(`{"title":"bad date","country":"EUR","date":"Jan 8"}`),
		json.RawMessage(`{"title":"no country","date":"2024-01-08T10:00:00+01:00"}`),
	}
	events, errs := Normalize(recs, gmt5)
	if len(events) != 1 || len(errs) != 3 {
		t.Fatalf("events=%d errs=%d", len(events), len(errs))
	}
}

func TestFilterKeepsAllowedInOrder(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 1, 8, 10, 0, 0, 0, gmt5)
	events := []Event{
		{Currency: "EUR", Title: "a", OccursAt: at},
		{Currency: "USD", Title: "b", OccursAt: at},
		{Currency: "GBP", Title: "c", OccursAt: at},
		{Currency: "USD", Title: "d", OccursAt: at.Add(-time.Hour)},
	}
	got := Filter(events, []string{"usd"})
	if len(got) != 2 || got[0].Title != "b" || got[1].Title != "d" {
		t.Fatalf("got %+v", got)
	}
	if events[1].DisplayTitle != "" {
		t.Fatalf("input mutated")
	}
}

func TestDisplayTitle(t *testing.T) {
	t.Parallel()
	cases := []struct {
		forecast, previous, want string
	}{
		{"0.3%", "0.1%", "CPI (F: 0.3%, P: 0.1%)"},
		{"0.3%", "N/A", "CPI (F: 0.3%)"},
		{"", "0.1%", "CPI (P: 0.1%)"},
		{"N/A", "", "CPI"},
	}
	for _, tc := range cases {
		got := Filter([]Event{{Currency: "USD", Title: "CPI", Forecast: tc.forecast, Previous: tc.previous}}, []string{"USD"})
		if got[0].DisplayTitle != tc.want {
			t.Fatalf("F=%q P=%q: got %q want %q", tc.forecast, tc.previous, got[0].DisplayTitle, tc.want)
		}
	}
}

func TestUpcomingWindow(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 8, 12, 0, 0, 0, gmt5)
	mk := func(title string, d time.Duration) Event { return Event{Title: title, OccursAt: now.Add(d)} }
	events := []Event{
		mk("late", 90*time.Minute),
		mk("past", -time.Second),
		mk("edge", 2*time.Hour),
		mk("tie-1", 30*time.Minute),
		mk("beyond", 2*time.Hour+time.Second),
		mk("now", 0),
		mk("tie-2", 30*time.Minute),
	}
	got := Upcoming(events, now, 2*time.Hour)
	want := []string{"now", "tie-1", "tie-2", "late", "edge"}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Title != w {
			t.Fatalf("pos %d: got %q want %q", i, got[i].Title, w)
		}
		if m := got[i].MinutesUntil(now); m < 0 || m > 120 {
			t.Fatalf("%q outside window: %v", w, m)
		}
	}
}

func TestClampHours(t *testing.T) {
	t.Parallel()
	for in, want := range map[int]int{-3: 1, 0: 1, 1: 1, 12: 12, 72: 72, 500: 72} {
		if got := ClampHours(in); got != want {
			t.Fatalf("ClampHours(%d)=%d want %d", in, got, want)
		}
	}
}
