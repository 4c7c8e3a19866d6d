package render

import (
	"strconv"
	"strings"

	"fxcalbot/pkg/tgui"
)

// Welcome is the /start reply.
func Welcome(tz string) tgui.Message {
	text := "👋 *Welcome to Forex News Bot\\!*\n\n" +
		"I will help you track important forex news events\\.\n\n" +
		"*Available Commands:*\n" +
		"🔹 /help \\- Show all commands\n\n" +
		"All times are shown in " + tgui.Esc(tz).String() + " timezone\\.\n\n" +
		"I will automatically post updates to the channel\\."
	return tgui.Message{
		Text:  tgui.MD(text),
		Plain: "Welcome to Forex News Bot! Use /help to see available commands.",
	}
}

// HelpOptions carries the configured values quoted in /help.
type HelpOptions struct {
	Thresholds []int
	TZ         string
	Status     bool
	// Weekly describes when the weekly schedule goes out ("every Monday at 7 AM").
	Weekly string
}

// Help is the /help reply.
func Help(o HelpOptions) tgui.Message {
	mins := make([]string, len(o.Thresholds))
	for i, t := range o.Thresholds {
		mins[i] = strconv.Itoa(t)
	}
	list := joinAnd(mins)
	tz := tgui.Esc(o.TZ).String()

	var sb strings.Builder
	sb.WriteString("📱 *Forex News Bot Commands*\n\n")
	sb.WriteString("👑 *Admin Commands:*\n")
	sb.WriteString("🔸 /upcoming \\- Show upcoming events \\(1\\-72 hours\\)\n")
	if o.Status {
		sb.WriteString("🔸 /status \\- Show bot status\n")
	}
	sb.WriteString("\nBot automatically sends:\n")
	if o.Weekly != "" {
		sb.WriteString("📅 Weekly schedule " + tgui.Esc(o.Weekly).String() + "\n")
	}
	if list != "" {
		sb.WriteString("⏰ Notifications at " + tgui.Esc(list).String() + " minute before events\n")
	}
	sb.WriteString("🚨 Event start notifications\n\n")
	sb.WriteString("All times are shown in " + tz + " timezone\\.")

	var plain strings.Builder
	plain.WriteString("Forex News Bot Commands\n\nAdmin Commands:\n/upcoming - Show upcoming events (1-72 hours)\n")
	if o.Status {
		plain.WriteString("/status - Show bot status\n")
	}
	plain.WriteString("\nBot automatically sends:\n")
	if o.Weekly != "" {
		plain.WriteString("Weekly schedule " + o.Weekly + "\n")
	}
	if list != "" {
		plain.WriteString("Notifications at " + list + " minute before events\n")
	}
	plain.WriteString("Event start notifications\n\nAll times are shown in " + o.TZ + " timezone.")

	return tgui.Message{Text: tgui.MD(sb.String()), Plain: plain.String()}
}

// joinAnd renders ["60","30","5"] as "60, 30, and 5".
func joinAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
}
