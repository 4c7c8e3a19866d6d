package tgui

import "strings"

// Split cuts s into chunks of at most limit runes that are safe to send to
// Telegram one by one. It prefers newline boundaries and never leaves a
// trailing MarkdownV2 escape backslash at the end of a chunk.
func Split(s string, limit int) []string {
	if limit <= 0 {
		limit = TextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		// Keep "\x" escape pairs together.
		if end < len(rs) {
			bs := 0
			for i := end - 1; i >= start && rs[i] == '\\'; i-- {
				bs++
			}
			if bs%2 == 1 && end-1 > start {
				end--
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
