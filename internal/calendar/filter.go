package calendar

import "strings"

// Filter keeps events whose currency is in allowed and sets DisplayTitle.
// The input is not modified; order is preserved.
func Filter(events []Event, allowed []string) []Event {
	set := make(map[string]struct{}, len(allowed))
	for _, c := range allowed {
		set[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if _, ok := set[ev.Currency]; !ok {
			continue
		}
		ev.DisplayTitle = displayTitle(ev)
		out = append(out, ev)
	}
	return out
}

func displayTitle(ev Event) string {
	parts := make([]string, 0, 2)
	if present(ev.Forecast) {
		parts = append(parts, "F: "+ev.Forecast)
	}
	if present(ev.Previous) {
		parts = append(parts, "P: "+ev.Previous)
	}
	if len(parts) == 0 {
		return ev.Title
	}
	return ev.Title + " (" + strings.Join(parts, ", ") + ")"
}

func present(v string) bool {
	return v != "" && !strings.EqualFold(v, NotAvailable)
}
