// Package render builds the MarkdownV2 texts the bot posts.
package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fxcalbot/internal/calendar"
	"fxcalbot/pkg/tgui"
)

const (
	TimeLayout = "03:04PM"
	DateLayout = "Jan 02"
)

// ImpactEmoji returns the marker shown next to the impact level.
func ImpactEmoji(i calendar.Impact) string {
	switch i {
	case calendar.ImpactLow:
		return "🟢"
	case calendar.ImpactMedium:
		return "🟡"
	case calendar.ImpactHigh:
		return "🔴"
	case calendar.ImpactHoliday:
		return "🏁"
	default:
		return "⚪"
	}
}

// EventBlock renders the four-line description of one event. The time is
// shown in loc.
func EventBlock(ev calendar.Event, loc *time.Location) tgui.MD {
	at := ev.OccursAt
	if loc != nil {
		at = at.In(loc)
	}
	return tgui.Join("\n",
		field("Time", tgui.Esc(at.Format(TimeLayout))),
		field("Currency", tgui.Esc(ev.Currency)),
		field("Impact", tgui.Esc(ImpactEmoji(ev.Impact)+" "+ev.Impact.String())),
		field("Event", tgui.Esc(ev.Label())),
	) + "\n"
}

func field(label string, value tgui.MD) tgui.MD {
	return tgui.Concat(tgui.B(label+":"), " ", value)
}

// Threshold is the alert posted minutes before an event.
func Threshold(ev calendar.Event, minutes int, loc *time.Location) tgui.Message {
	unit := "minute"
	if minutes > 1 {
		unit = "minutes"
	}
	head := fmt.Sprintf("⚠️ *Event in %d %s*\n\n", minutes, unit)
	return tgui.Message{Text: tgui.MD(head) + EventBlock(ev, loc), DisablePreview: true}
}

// Started is the alert posted when an event begins.
func Started(ev calendar.Event, loc *time.Location) tgui.Message {
	return tgui.Message{Text: "🚨 *Event Starting Now*\n\n" + EventBlock(ev, loc), DisablePreview: true}
}

// Weekly renders the Monday digest. Events are grouped under a date header
// each time the calendar date changes, in the order given.
func Weekly(events []calendar.Event, loc *time.Location) tgui.Message {
	var sb strings.Builder
	sb.WriteString("📅 *Weekly Economic Calendar*\n\n")
	current := ""
	for _, ev := range events {
		at := ev.OccursAt
		if loc != nil {
			at = at.In(loc)
		}
		if d := at.Format(DateLayout); d != current {
			current = d
			sb.WriteString("\n📌 " + tgui.B(d).String() + "\n\n")
		}
		sb.WriteString(EventBlock(ev, loc).String() + "\n")
	}
	return tgui.Message{Text: tgui.MD(sb.String()), DisablePreview: true}
}

// Upcoming renders the /upcoming reply. Callers send NoUpcoming when events is empty.
func Upcoming(events []calendar.Event, hours int, loc *time.Location) tgui.Message {
	var sb strings.Builder
	sb.WriteString("📊 *Upcoming Events \\(Next " + strconv.Itoa(hours) + " hours\\)*\n\n")
	for _, ev := range events {
		sb.WriteString(EventBlock(ev, loc).String() + "\n")
	}
	return tgui.Message{Text: tgui.MD(sb.String()), DisablePreview: true}
}

// Canned replies.
var (
	NoUpcoming   = tgui.Message{Text: "No upcoming events found\\."}
	NoPermission = tgui.Message{Text: "You don't have permission to use this command\\."}
	BadHours     = tgui.Message{Text: "Please use a valid number of hours \\(1\\-72\\)\\.\nExample: /upcoming 12"}
	FetchFailed  = tgui.Message{Text: "Error fetching upcoming events\\. Please try again later\\."}
)

// TZLabel formats the zone offset at t as "GMT+5", "GMT-3:30" or "GMT".
func TZLabel(loc *time.Location, t time.Time) string {
	if loc != nil {
		t = t.In(loc)
	}
	_, off := t.Zone()
	if off == 0 {
		return "GMT"
	}
	sign := "+"
	if off < 0 {
		sign = "-"
		off = -off
	}
	h, m := off/3600, (off%3600)/60
	if m == 0 {
		return fmt.Sprintf("GMT%s%d", sign, h)
	}
	return fmt.Sprintf("GMT%s%d:%02d", sign, h, m)
}
