package render

import (
	"strings"
	"testing"
	"time"

	"fxcalbot/internal/calendar"
	"fxcalbot/pkg/tgui"
)

var tashkent = time.FixedZone("UZT", 5*3600)

func sampleEvent() calendar.Event {
	return calendar.Event{
		ID:           "Jan 08_06:30PM_USD_CPI m/m",
		OccursAt:     time.Date(2024, 1, 8, 13, 30, 0, 0, time.UTC),
		Currency:     "USD",
		Impact:       calendar.ImpactHigh,
		Title:        "CPI m/m",
		Forecast:     "0.2%",
		Previous:     "-0.1%",
		DisplayTitle: "CPI m/m (F: 0.2%, P: -0.1%)",
	}
}

func TestEventBlock(t *testing.T) {
	t.Parallel()
	got := EventBlock(sampleEvent(), tashkent).String()
	want := "*Time:* 06:30PM\n" +
		"*Currency:* USD\n" +
		"*Impact:* 🔴 High\n" +
		"*Event:* CPI m/m \\(F: 0\\.2%, P: \\-0\\.1%\\)\n"
	if got != want {
		t.Fatalf("got\n%q\nwant\n%q", got, want)
	}
}

func TestImpactEmoji(t *testing.T) {
	t.Parallel()
	cases := map[calendar.Impact]string{
		calendar.ImpactLow:     "🟢",
		calendar.ImpactMedium:  "🟡",
		calendar.ImpactHigh:    "🔴",
		calendar.ImpactHoliday: "🏁",
		calendar.Impact(42):    "⚪",
	}
	for in, want := range cases {
		if got := ImpactEmoji(in); got != want {
			t.Fatalf("ImpactEmoji(%v)=%q want %q", in, got, want)
		}
	}
}

func TestThresholdHeaderPluralization(t *testing.T) {
	t.Parallel()
	one := Threshold(sampleEvent(), 1, tashkent).Text.String()
	if !strings.HasPrefix(one, "⚠️ *Event in 1 minute*\n\n*Time:*") {
		t.Fatalf("got %q", one)
	}
	many := Threshold(sampleEvent(), 30, tashkent).Text.String()
	if !strings.HasPrefix(many, "⚠️ *Event in 30 minutes*\n\n") {
		t.Fatalf("got %q", many)
	}
	if s := Started(sampleEvent(), tashkent).Text.String(); !strings.HasPrefix(s, "🚨 *Event Starting Now*\n\n*Time:*") {
		t.Fatalf("got %q", s)
	}
}

func TestWeeklyGroupsByDate(t *testing.T) {
	t.Parallel()
	a := sampleEvent()
	b := sampleEvent()
	b.OccursAt = a.OccursAt.Add(time.Hour)
	c := sampleEvent()
	c.OccursAt = a.OccursAt.Add(24 * time.Hour)

	got := Weekly([]calendar.Event{a, b, c}, tashkent).Text.String()
	if !strings.HasPrefix(got, "📅 *Weekly Economic Calendar*\n\n\n📌 *Jan 08*\n\n*Time:* 06:30PM") {
		t.Fatalf("got %q", got)
	}
	if n := strings.Count(got, "📌"); n != 2 {
		t.Fatalf("date headers=%d want 2", n)
	}
	if !strings.Contains(got, "\n📌 *Jan 09*\n\n") {
		t.Fatalf("missing second date header: %q", got)
	}
}

func TestUpcomingHeader(t *testing.T) {
	t.Parallel()
	got := Upcoming([]calendar.Event{sampleEvent()}, 12, tashkent).Text.String()
	if !strings.HasPrefix(got, "📊 *Upcoming Events \\(Next 12 hours\\)*\n\n*Time:*") {
		t.Fatalf("got %q", got)
	}
	if !strings.HasSuffix(got, "\n\n") {
		t.Fatalf("each block ends with a blank line: %q", got)
	}
}

func TestTZLabel(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		loc  *time.Location
		want string
	}{
		{tashkent, "GMT+5"},
		{time.UTC, "GMT"},
		{time.FixedZone("X", -(3*3600 + 30*60)), "GMT-3:30"},
		{time.FixedZone("IST", 5*3600+30*60), "GMT+5:30"},
	}
	for _, tc := range cases {
		if got := TZLabel(tc.loc, now); got != tc.want {
			t.Fatalf("TZLabel=%q want %q", got, tc.want)
		}
	}
}

func TestWelcomeAndHelp(t *testing.T) {
	t.Parallel()
	w := Welcome("GMT+5")
	if !strings.Contains(w.Text.String(), "All times are shown in GMT\\+5 timezone\\.") {
		t.Fatalf("welcome=%q", w.Text)
	}
	if w.PlainText() != "Welcome to Forex News Bot! Use /help to see available commands." {
		t.Fatalf("plain=%q", w.PlainText())
	}

	h := Help(HelpOptions{Thresholds: []int{60, 30, 15, 5, 1}, TZ: "GMT+5", Weekly: "every Friday at 5:30 PM"})
	if !strings.Contains(h.Text.String(), "📅 Weekly schedule every Friday at 5:30 PM\n") {
		t.Fatalf("help=%q", h.Text)
	}
	if !strings.Contains(h.Text.String(), "⏰ Notifications at 60, 30, 15, 5, and 1 minute before events\n") {
		t.Fatalf("help=%q", h.Text)
	}
	if strings.Contains(h.Text.String(), "/status") {
		t.Fatalf("status command listed while disabled")
	}
	if !strings.Contains(Help(HelpOptions{TZ: "GMT", Status: true}).PlainText(), "/status - Show bot status") {
		t.Fatalf("status missing from plain help")
	}
}

func TestCannedRepliesAreEscaped(t *testing.T) {
	t.Parallel()
	for _, m := range []tgui.Message{NoUpcoming, NoPermission, BadHours, FetchFailed} {
		plain := m.PlainText()
		if strings.Contains(plain, "\\") {
			t.Fatalf("unescape left a backslash: %q", plain)
		}
		if tgui.Esc(plain) != m.Text && !strings.Contains(plain, "\n") {
			t.Fatalf("text %q is not the escaped form of %q", m.Text, plain)
		}
	}
}
