package tgui

import (
	"strings"
)

// MD represents text that is safe to pass to Telegram when
// ParseMode="MarkdownV2". Values of type MD should be treated as already-escaped.
type MD string

func (m MD) String() string { return string(m) }

// mdSpecial lists every character MarkdownV2 reserves outside of code spans.
const mdSpecial = "_*[]()~`>#+-=|{}.!\\"

var mdReplacer = func() *strings.Replacer {
	pairs := make([]string, 0, len(mdSpecial)*2)
	for _, r := range mdSpecial {
		pairs = append(pairs, string(r), `\`+string(r))
	}
	return strings.NewReplacer(pairs...)
}()

// Esc escapes text for Telegram MarkdownV2 parse mode.
func Esc(s string) MD { return MD(mdReplacer.Replace(s)) }

func wrap(mark string, inner MD) MD { return MD(mark + inner.String() + mark) }

// B bolds s.
func B(s string) MD { return wrap("*", Esc(s)) }

// Join joins safe parts with sep, skipping blank parts. sep is escaped.
func Join(sep string, parts ...MD) MD {
	if len(parts) == 0 {
		return ""
	}
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p.String()) == "" {
			continue
		}
		ss = append(ss, p.String())
	}
	return MD(strings.Join(ss, Esc(sep).String()))
}

// Concat glues parts together without a separator.
func Concat(parts ...MD) MD {
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(string(p))
	}
	return MD(sb.String())
}

// Unescape strips MarkdownV2 escapes and emphasis markers, producing a readable
// plain-text rendition. It is used for the plain fallback when Telegram
// refuses to parse an entity.
func Unescape(m MD) string {
	s := string(m)
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			i++
			sb.WriteByte(s[i])
			continue
		}
		if c == '*' || c == '_' || c == '~' || c == '`' {
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
